package ws

import (
	"github.com/520Girl/socket-chat/internal/cache"
)

// MessageRead clears the sender's unread state for one conversation.
type MessageRead struct {
	CounterpartID uint `json:"counterpart_id,omitempty"`
	GroupID       uint `json:"group_id,omitempty"`
}

func (msg *MessageRead) GetType() string {
	return "read"
}

func (msg *MessageRead) Process(ctx *MessageContext) error {
	scope := cache.ScopeUser
	counterpart := msg.CounterpartID
	if msg.GroupID != 0 {
		scope = cache.ScopeGroup
		counterpart = msg.GroupID
	}
	if err := ctx.MessageService.MarkRead(ctx.UserID, counterpart, scope); err != nil {
		return err
	}
	return ctx.Reply(map[string]interface{}{
		"type":           "read_ack",
		"scope":          scope,
		"counterpart_id": counterpart,
	})
}

// MessageUnread asks for the full unread summary.
type MessageUnread struct {
}

func (msg *MessageUnread) GetType() string {
	return "unread"
}

func (msg *MessageUnread) Process(ctx *MessageContext) error {
	entries, err := ctx.UnreadService.Read(ctx.UserID)
	if err != nil {
		return err
	}
	return ctx.Reply(map[string]interface{}{
		"type":    "unread",
		"entries": entries,
	})
}
