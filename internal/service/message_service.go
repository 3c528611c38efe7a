package service

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/520Girl/socket-chat/internal/cache"
	"github.com/520Girl/socket-chat/internal/models"
	"github.com/520Girl/socket-chat/internal/repository"
)

// SendMessageInput is the client-facing shape of a send request. Exactly one
// of RecipientID / GroupID must be set.
type SendMessageInput struct {
	RecipientID *uint                `json:"recipient_id,omitempty"`
	GroupID     *uint                `json:"group_id,omitempty"`
	Type        models.MessageType   `json:"type"`
	Content     string               `json:"content,omitempty"`
	MediaURL    string               `json:"media_url,omitempty"`
	Duration    int                  `json:"media_duration,omitempty"`
	Thumbnail   string               `json:"thumbnail_url,omitempty"`
	FileName    string               `json:"file_name,omitempty"`
	Location    *models.LocationData `json:"location,omitempty"`
}

func buildPayload(in SendMessageInput) (models.Payload, error) {
	switch in.Type {
	case "", models.TextMessage:
		return models.TextPayload{Content: in.Content}, nil
	case models.ImageMessage:
		return models.ImagePayload{MediaURL: in.MediaURL, ThumbnailURL: in.Thumbnail}, nil
	case models.AudioMessage:
		return models.AudioPayload{MediaURL: in.MediaURL, MediaDuration: in.Duration, ThumbnailURL: in.Thumbnail}, nil
	case models.LocationMessage:
		if in.Location == nil {
			return nil, ErrInvalidConversation
		}
		return models.LocationPayload{Location: *in.Location}, nil
	case models.FileMessage:
		return models.FilePayload{MediaURL: in.MediaURL, FileName: in.FileName}, nil
	default:
		return nil, fmt.Errorf("unsupported message type %q", in.Type)
	}
}

// MessageService is the send pipeline: persist first, then fan the message
// into the history index and the unread counters. The store write is the
// source of truth and fatal on failure; the cache-side fan-out is logged and
// survivable, the next read repairs it from the store.
type MessageService struct {
	messageRepo repository.MessageRepositoryInterface
	userRepo    repository.UserRepositoryInterface
	groupRepo   repository.GroupRepositoryInterface
	history     *HistoryService
	unread      *UnreadService
	now         func() time.Time
}

func NewMessageService(
	messageRepo repository.MessageRepositoryInterface,
	userRepo repository.UserRepositoryInterface,
	groupRepo repository.GroupRepositoryInterface,
	history *HistoryService,
	unread *UnreadService,
) *MessageService {
	return &MessageService{
		messageRepo: messageRepo,
		userRepo:    userRepo,
		groupRepo:   groupRepo,
		history:     history,
		unread:      unread,
		now:         time.Now,
	}
}

// SetClock overrides the service clock. Tests only.
func (s *MessageService) SetClock(now func() time.Time) { s.now = now }

// Send validates, persists and fans out one message, returning the stored
// envelope with its assigned id.
func (s *MessageService) Send(senderID uint, in SendMessageInput) (*models.Message, error) {
	if (in.RecipientID == nil) == (in.GroupID == nil) {
		return nil, ErrInvalidConversation
	}
	if in.GroupID != nil {
		member, err := s.groupRepo.IsMember(*in.GroupID, senderID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, ErrPermissionDenied
		}
	}

	payload, err := buildPayload(in)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		SenderID:    senderID,
		RecipientID: in.RecipientID,
		GroupID:     in.GroupID,
		Type:        payload.Kind(),
		Body:        models.NewBody(payload),
		SentAt:      s.now(),
	}
	if err := s.messageRepo.Create(msg); err != nil {
		return nil, err
	}

	sender, err := s.userRepo.FindByID(senderID)
	if err != nil {
		log.Printf("[message] sender %d lookup for snapshot failed: %v", senderID, err)
		sender = nil
	}
	snap := models.SnapshotOf(msg, sender)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.history.IndexMessage(msg); err != nil {
			log.Printf("[message] indexing message %d failed: %v", msg.ID, err)
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		if msg.IsGroup() {
			err = s.unread.IncrementGroup(*msg.GroupID, senderID, snap)
		} else {
			err = s.unread.Increment(*msg.RecipientID, senderID, snap)
		}
		if err != nil {
			log.Printf("[message] unread fan-out for message %d failed: %v", msg.ID, err)
		}
	}()
	wg.Wait()

	return msg, nil
}

// FanoutTargets lists the users a freshly sent message should be pushed to:
// the counterpart for private chats, every member except the sender for
// groups.
func (s *MessageService) FanoutTargets(msg *models.Message) ([]uint, error) {
	if !msg.IsGroup() {
		if msg.RecipientID == nil {
			return nil, ErrInvalidConversation
		}
		return []uint{*msg.RecipientID}, nil
	}
	members, err := s.groupRepo.MemberIDs(*msg.GroupID)
	if err != nil {
		return nil, err
	}
	targets := members[:0]
	for _, member := range members {
		if member != msg.SenderID {
			targets = append(targets, member)
		}
	}
	return targets, nil
}

// MarkRead clears the viewer's unread state for one conversation.
func (s *MessageService) MarkRead(viewerID, counterpartID uint, scope cache.Scope) error {
	return s.unread.Reset(viewerID, counterpartID, scope)
}
