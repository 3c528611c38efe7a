package ws

import (
	"github.com/520Girl/socket-chat/internal/repository"
)

// MessageHistory requests one page of conversation history.
type MessageHistory struct {
	CounterpartID uint `json:"counterpart_id,omitempty"`
	GroupID       uint `json:"group_id,omitempty"`
	Page          int  `json:"page"`
	Size          int  `json:"size"`
}

func (msg *MessageHistory) GetType() string {
	return "history"
}

func (msg *MessageHistory) Process(ctx *MessageContext) error {
	filter := repository.ConversationFilter{
		ViewerID:      ctx.UserID,
		CounterpartID: msg.CounterpartID,
		GroupID:       msg.GroupID,
	}
	page, err := ctx.HistoryService.GetHistory(filter, msg.Page, msg.Size)
	if err != nil {
		return err
	}
	return ctx.Reply(map[string]interface{}{
		"type":    "history",
		"history": page,
	})
}
