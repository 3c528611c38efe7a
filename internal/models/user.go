package models

import (
	"time"
)

type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name   string `gorm:"uniqueIndex;not null" json:"name"`
	Avatar string `json:"img"`
	Role   string `gorm:"not null;default:user" json:"role"`

	// Persisted half of presence. The ephemeral Redis keys are
	// authoritative for single-user checks; these fields back the bulk
	// online listing and may lag by up to one heartbeat interval.
	IsOnline   bool       `gorm:"default:false;index" json:"online"`
	LastActive *time.Time `json:"last_active"`
	SessionID  string     `gorm:"size:64" json:"-"`
}

// IsAdmin reports whether the user may restore messages and remove messages
// sent by others.
func (u *User) IsAdmin() bool { return u.Role == "admin" }

// OnlineUser is the projection returned by the bulk presence listing.
type OnlineUser struct {
	ID         uint       `json:"id"`
	Name       string     `json:"name"`
	Avatar     string     `json:"img"`
	LastActive *time.Time `json:"last_active"`
}

func (u *User) ToOnlineUser() OnlineUser {
	return OnlineUser{
		ID:         u.ID,
		Name:       u.Name,
		Avatar:     u.Avatar,
		LastActive: u.LastActive,
	}
}
