package user

import (
	"context"

	"gosocial-messaging/internal/chat/models"
)

// StaticDirectory serves a fixed set of profiles; used with the in-memory
// backend and in tests.
type StaticDirectory struct {
	profiles map[string]*models.Profile
}

func NewStaticDirectory(profiles ...*models.Profile) *StaticDirectory {
	d := &StaticDirectory{profiles: make(map[string]*models.Profile, len(profiles))}
	for _, p := range profiles {
		d.profiles[p.ID] = p
	}
	return d
}

func (d *StaticDirectory) GetProfiles(_ context.Context, ids []string) (map[string]*models.Profile, error) {
	out := make(map[string]*models.Profile, len(ids))
	for _, id := range ids {
		if p, ok := d.profiles[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}
