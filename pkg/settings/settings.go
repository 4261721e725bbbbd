// Package settings resolves the effective per-session settings map by
// layering system defaults, a named profile, and session overrides. The
// resolved values feed every Eye decision through request context.
package settings

// Strictness controls Mangekyō coverage thresholds.
type Strictness string

const (
	StrictnessLenient Strictness = "lenient"
	StrictnessNormal  Strictness = "normal"
	StrictnessStrict  Strictness = "strict"
)

// IsValid reports whether the strictness value is known.
func (s Strictness) IsValid() bool {
	return s == StrictnessLenient || s == StrictnessNormal || s == StrictnessStrict
}

// Settings map keys. The settings map attached to request context uses
// exactly these keys.
const (
	KeyAmbiguityThreshold   = "ambiguity_threshold"
	KeyCitationCutoff       = "citation_cutoff"
	KeyConsistencyTolerance = "consistency_tolerance"
	KeyRequireRollback      = "require_rollback"
	KeyMangekyo             = "mangekyo"
)

// Values holds the normalized effective settings for one session.
type Values struct {
	AmbiguityThreshold   float64
	CitationCutoff       float64
	ConsistencyTolerance float64
	RequireRollback      bool
	Mangekyo             Strictness
}

// Defaults returns the system-default settings (the enterprise profile).
func Defaults() Values {
	return Values{
		AmbiguityThreshold:   0.35,
		CitationCutoff:       0.80,
		ConsistencyTolerance: 0.85,
		RequireRollback:      true,
		Mangekyo:             StrictnessNormal,
	}
}

// Map renders the values as the settings map carried in request context.
func (v Values) Map() map[string]any {
	return map[string]any{
		KeyAmbiguityThreshold:   v.AmbiguityThreshold,
		KeyCitationCutoff:       v.CitationCutoff,
		KeyConsistencyTolerance: v.ConsistencyTolerance,
		KeyRequireRollback:      v.RequireRollback,
		KeyMangekyo:             string(v.Mangekyo),
	}
}

// Apply layers a raw settings map (profile data or session overrides) on top
// of v, normalizing every value: numbers clamped to [0,1], booleans coerced,
// enum strings restricted to the known set. Unknown keys are ignored.
func (v Values) Apply(layer map[string]any) Values {
	if f, ok := toFloat(layer[KeyAmbiguityThreshold]); ok {
		v.AmbiguityThreshold = clamp01(f)
	}
	if f, ok := toFloat(layer[KeyCitationCutoff]); ok {
		v.CitationCutoff = clamp01(f)
	}
	if f, ok := toFloat(layer[KeyConsistencyTolerance]); ok {
		v.ConsistencyTolerance = clamp01(f)
	}
	if b, ok := toBool(layer[KeyRequireRollback]); ok {
		v.RequireRollback = b
	}
	if s, ok := layer[KeyMangekyo].(string); ok {
		if st := Strictness(s); st.IsValid() {
			v.Mangekyo = st
		}
	}
	return v
}

// FromMap rebuilds normalized values from a settings map. Eyes use this to
// read request context settings; missing or malformed keys fall back to the
// system defaults.
func FromMap(m map[string]any) Values {
	return Defaults().Apply(m)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		if b == "true" {
			return true, true
		}
		if b == "false" {
			return false, true
		}
	}
	return false, false
}
