package dbmysql

import (
	"encoding/json"
	"strconv"
	"time"

	"gorm.io/gorm"

	"gosocial-messaging/internal/chat/models"
)

// User is the read-only projection of the user service's users table.
type User struct {
	UserID         uint64         `gorm:"primaryKey;column:user_id;autoIncrement" json:"user_id"`
	Handle         string         `gorm:"column:handle;uniqueIndex;size:50;not null" json:"handle"`
	ProfileDetails string         `gorm:"column:profile_details;type:text" json:"profile_details"`
	Status         string         `gorm:"column:status;type:enum('active','banned','deleted');default:'active'" json:"status"`
	CreatedAt      time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }

// profileDetails is the JSON blob the user service keeps in profile_details.
type profileDetails struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// ToProfile maps the row to the public profile. Malformed profile details
// leave the name and avatar empty.
func (u *User) ToProfile() *models.Profile {
	p := &models.Profile{
		ID:     strconv.FormatUint(u.UserID, 10),
		Handle: u.Handle,
	}
	var details profileDetails
	if u.ProfileDetails != "" && json.Unmarshal([]byte(u.ProfileDetails), &details) == nil {
		p.Name = details.Name
		p.AvatarURL = details.Avatar
	}
	if p.Name == "" {
		p.Name = u.Handle
	}
	return p
}
