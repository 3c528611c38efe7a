package service

import (
	"errors"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/520Girl/socket-chat/internal/cache"
	"github.com/520Girl/socket-chat/internal/models"
	"github.com/520Girl/socket-chat/internal/repository"
)

// DeleteService implements soft delete as a domain tombstone: the persistent
// row gains deletion metadata and stays queryable, every cached copy across
// the tiers is purged, and display-time redaction replaces the payload with a
// notice that names who removed it.
type DeleteService struct {
	redis       *cache.RedisCache
	messageRepo repository.MessageRepositoryInterface
	userRepo    repository.UserRepositoryInterface
	groupRepo   repository.GroupRepositoryInterface
	now         func() time.Time
}

func NewDeleteService(
	redisCache *cache.RedisCache,
	messageRepo repository.MessageRepositoryInterface,
	userRepo repository.UserRepositoryInterface,
	groupRepo repository.GroupRepositoryInterface,
) *DeleteService {
	return &DeleteService{
		redis:       redisCache,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		groupRepo:   groupRepo,
		now:         time.Now,
	}
}

// SetClock overrides the service clock. Tests only.
func (s *DeleteService) SetClock(now func() time.Time) { s.now = now }

// Delete tombstones a message on behalf of actingUserID. Permission is
// checked before anything mutates: the sender may always delete; in a private
// chat so may the counterpart; in a group so may a group admin. The store
// write is fatal, the cross-tier cache purge is best effort.
func (s *DeleteService) Delete(messageID, actingUserID uint) error {
	msg, err := s.messageRepo.FindByID(messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	allowed, err := s.canDelete(msg, actingUserID)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrPermissionDenied
	}

	deletedAt := s.now()
	msg.IsDeleted = true
	msg.DeletedAt = &deletedAt
	msg.DeletedBy = &actingUserID
	if err := s.messageRepo.SaveTombstone(msg); err != nil {
		return err
	}

	if err := s.purgeCache(msg); err != nil {
		log.Printf("[delete] cache purge for message %d incomplete: %v", messageID, err)
	}
	return nil
}

func (s *DeleteService) canDelete(msg *models.Message, actingUserID uint) (bool, error) {
	if actingUserID == msg.SenderID {
		return true, nil
	}
	if msg.IsGroup() {
		role, err := s.groupRepo.MemberRole(*msg.GroupID, actingUserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return false, nil
			}
			return false, err
		}
		return role == models.RoleAdmin, nil
	}
	return msg.RecipientID != nil && actingUserID == *msg.RecipientID, nil
}

// purgeCache removes the message body from every tier and its id from every
// sorted index, across every viewpoint the message was indexed under. One
// pipeline carries the whole purge.
func (s *DeleteService) purgeCache(msg *models.Message) error {
	baseKeys, err := s.conversationBaseKeys(msg)
	if err != nil {
		return err
	}
	ctx := s.redis.Context()
	pipe := s.redis.Pipeline()
	for _, bk := range baseKeys {
		for _, tier := range []cache.Tier{cache.TierHot, cache.TierFrequent, cache.TierCold} {
			pipe.Del(ctx, cache.BodyKey(tier, bk, msg.ID))
			pipe.ZRem(ctx, cache.IndexKey(tier, bk), msg.ID)
		}
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *DeleteService) conversationBaseKeys(msg *models.Message) ([]string, error) {
	if msg.IsGroup() {
		members, err := s.groupRepo.MemberIDs(*msg.GroupID)
		if err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(members))
		for _, member := range members {
			keys = append(keys, cache.HistoryBaseKey(cache.ScopeGroup, member, *msg.GroupID))
		}
		return keys, nil
	}
	if msg.RecipientID == nil {
		return nil, ErrInvalidConversation
	}
	return []string{
		cache.HistoryBaseKey(cache.ScopeUser, msg.SenderID, *msg.RecipientID),
		cache.HistoryBaseKey(cache.ScopeUser, *msg.RecipientID, msg.SenderID),
	}, nil
}

// Restore clears a tombstone. Platform admins only. The row becomes fully
// visible again; the cache is not rehydrated, the next read repopulates it.
func (s *DeleteService) Restore(messageID, actingUserID uint) error {
	actor, err := s.userRepo.FindByID(actingUserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPermissionDenied
		}
		return err
	}
	if !actor.IsAdmin() {
		return ErrPermissionDenied
	}

	msg, err := s.messageRepo.FindByID(messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if !msg.IsDeleted {
		return ErrNotDeleted
	}

	msg.IsDeleted = false
	msg.DeletedAt = nil
	msg.DeletedBy = nil
	return s.messageRepo.SaveTombstone(msg)
}

// FilterForDisplay redacts tombstoned messages in place of dropping them: the
// envelope survives so the conversation keeps its shape, the payload becomes
// a notice distinguishing a sender recall from a moderator removal.
func (s *DeleteService) FilterForDisplay(messages []models.Message, viewerID uint) []models.Message {
	for i := range messages {
		msg := &messages[i]
		if !msg.IsDeleted {
			continue
		}
		notice := "Message deleted"
		if msg.DeletedBy != nil {
			if *msg.DeletedBy == msg.SenderID {
				notice = "Message recalled"
			} else {
				notice = "Message removed by an admin"
			}
		}
		msg.Type = models.TextMessage
		msg.Body = models.NewBody(models.TextPayload{Content: notice})
	}
	return messages
}
