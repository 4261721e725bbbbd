package store

import (
	"context"
	"errors"

	"github.com/third-eye/overseer/pkg/settings"
)

// ProfileResolverAdapter exposes a ProfileStore through the interface the
// settings resolver expects, translating the not-found sentinel.
type ProfileResolverAdapter struct {
	Profiles ProfileStore
}

var _ settings.ProfileStore = (*ProfileResolverAdapter)(nil)

func (a *ProfileResolverAdapter) GetProfile(ctx context.Context, name string) (map[string]any, error) {
	data, err := a.Profiles.GetProfile(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil, settings.ErrProfileNotFound
	}
	return data, err
}

func (a *ProfileResolverAdapter) PutProfile(ctx context.Context, name string, data map[string]any) error {
	return a.Profiles.PutProfile(ctx, name, data)
}
