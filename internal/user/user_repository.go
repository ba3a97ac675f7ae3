package user

import (
	"context"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"gosocial-messaging/internal/chat/models"
	"gosocial-messaging/internal/dbmysql"
)

// ProfileDirectory resolves user ids to public profiles. Ids it does not
// know are simply missing from the result.
type ProfileDirectory interface {
	GetProfiles(ctx context.Context, ids []string) (map[string]*models.Profile, error)
}

// userRepository reads profiles from the users table owned by the user
// service. Ids there are numeric; anything else can't match a row.
type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) ProfileDirectory {
	return &userRepository{db: db}
}

func (r *userRepository) GetProfiles(ctx context.Context, ids []string) (map[string]*models.Profile, error) {
	numeric := make([]uint64, 0, len(ids))
	seen := make(map[uint64]bool, len(ids))
	for _, id := range ids {
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil || seen[n] {
			continue
		}
		seen[n] = true
		numeric = append(numeric, n)
	}

	profiles := make(map[string]*models.Profile, len(numeric))
	if len(numeric) == 0 {
		return profiles, nil
	}

	var users []*dbmysql.User
	err := r.db.WithContext(ctx).Where("user_id IN ? AND status = ?", numeric, "active").Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}

	for _, u := range users {
		p := u.ToProfile()
		profiles[p.ID] = p
	}
	return profiles, nil
}
