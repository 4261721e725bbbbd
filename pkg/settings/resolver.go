package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrProfileNotFound is returned by ProfileStore implementations when the
// named profile does not exist.
var ErrProfileNotFound = errors.New("profile not found")

// ProfileStore is the persistence surface the resolver needs.
type ProfileStore interface {
	GetProfile(ctx context.Context, name string) (map[string]any, error)
	PutProfile(ctx context.Context, name string, data map[string]any) error
}

// Resolver merges system defaults ← profile ← session overrides into the
// effective settings for one session.
type Resolver struct {
	profiles ProfileStore
}

// NewResolver creates a resolver backed by the given profile store.
func NewResolver(profiles ProfileStore) *Resolver {
	return &Resolver{profiles: profiles}
}

// Resolve returns the effective settings for a session. Profile lookup order:
// store, then the built-in table (persisting the built-in on first use), then
// DefaultProfile. Overrides apply last and are normalized like every layer.
func (r *Resolver) Resolve(ctx context.Context, profile string, overrides map[string]any) (Values, error) {
	if profile == "" {
		profile = DefaultProfile
	}

	data, err := r.profileData(ctx, profile)
	if err != nil {
		return Values{}, err
	}

	return Defaults().Apply(data).Apply(overrides), nil
}

func (r *Resolver) profileData(ctx context.Context, name string) (map[string]any, error) {
	data, err := r.profiles.GetProfile(ctx, name)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, fmt.Errorf("load profile %q: %w", name, err)
	}

	builtin, ok := BuiltinProfile(name)
	if !ok {
		slog.Warn("Unknown profile, falling back to default", "profile", name)
		builtin, _ = BuiltinProfile(DefaultProfile)
		return builtin, nil
	}

	// Persist the built-in so later reads hit the store. Best-effort: a
	// failed write must not block request processing.
	if err := r.profiles.PutProfile(ctx, name, builtin); err != nil {
		slog.Warn("Failed to persist built-in profile", "profile", name, "error", err)
	}

	return builtin, nil
}
