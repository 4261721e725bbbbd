package settings

// DefaultProfile is used when a session names no profile.
const DefaultProfile = "enterprise"

// builtinProfiles is the built-in profile table. Unknown profile names fall
// back to DefaultProfile; built-ins are persisted to the profile store on
// first use so operators can inspect and tune them.
var builtinProfiles = map[string]map[string]any{
	"casual": {
		KeyAmbiguityThreshold:   0.55,
		KeyCitationCutoff:       0.65,
		KeyConsistencyTolerance: 0.70,
		KeyRequireRollback:      false,
		KeyMangekyo:             string(StrictnessLenient),
	},
	"enterprise": {
		KeyAmbiguityThreshold:   0.35,
		KeyCitationCutoff:       0.80,
		KeyConsistencyTolerance: 0.85,
		KeyRequireRollback:      true,
		KeyMangekyo:             string(StrictnessNormal),
	},
	"security": {
		KeyAmbiguityThreshold:   0.25,
		KeyCitationCutoff:       0.90,
		KeyConsistencyTolerance: 0.95,
		KeyRequireRollback:      true,
		KeyMangekyo:             string(StrictnessStrict),
	},
}

// BuiltinProfile returns a copy of the named built-in profile's data.
func BuiltinProfile(name string) (map[string]any, bool) {
	data, ok := builtinProfiles[name]
	if !ok {
		return nil, false
	}
	cp := make(map[string]any, len(data))
	for k, v := range data {
		cp[k] = v
	}
	return cp, true
}

// BuiltinProfileNames lists the built-in profile names.
func BuiltinProfileNames() []string {
	return []string{"casual", "enterprise", "security"}
}
