package repository

import (
	"time"

	"github.com/520Girl/socket-chat/internal/models"
)

// ConversationFilter identifies one conversation stream. Private when
// CounterpartID addresses a user (both directions match); group when GroupID
// is set.
type ConversationFilter struct {
	ViewerID      uint
	CounterpartID uint
	GroupID       uint
}

func (f ConversationFilter) IsGroup() bool { return f.GroupID != 0 }

// MessageRepositoryInterface is the persistent message store contract: the
// always-correct fallback whenever the cache cannot prove completeness.
type MessageRepositoryInterface interface {
	Create(message *models.Message) error
	FindByID(id uint) (*models.Message, error)
	// FindConversationPage returns messages ordered by sentAt descending
	// with skip/limit semantics.
	FindConversationPage(filter ConversationFilter, offset, limit int) ([]models.Message, error)
	CountConversation(filter ConversationFilter) (int64, error)
	// MarkConversationRead flips is_read on every unread message sent by
	// counterpart to recipient; returns the number updated.
	MarkConversationRead(recipientID, counterpartID uint) (int64, error)
	// SaveTombstone persists the tombstone (or cleared tombstone) fields.
	SaveTombstone(message *models.Message) error
}

// UserRepositoryInterface covers the persisted half of presence plus the
// sender lookups the snapshot path needs.
type UserRepositoryInterface interface {
	FindByID(id uint) (*models.User, error)
	// SetPresence updates the online flag, session id and lastActive.
	SetPresence(userID uint, online bool, sessionID string, lastActive time.Time) error
	// TouchLastActive refreshes lastActive without changing the flag.
	TouchLastActive(userID uint, lastActive time.Time) error
	ListOnline() ([]models.User, error)
}

// GroupRepositoryInterface exposes the membership reads the message core
// depends on; group management lives elsewhere.
type GroupRepositoryInterface interface {
	FindByID(id uint) (*models.Group, error)
	MemberIDs(groupID uint) ([]uint, error)
	IsMember(groupID, userID uint) (bool, error)
	MemberRole(groupID, userID uint) (models.GroupRole, error)
}
