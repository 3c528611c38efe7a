package ws

import (
	"log"

	"github.com/520Girl/socket-chat/internal/models"
	"github.com/520Girl/socket-chat/internal/service"
)

// MessageChat carries one outbound chat message from the client.
type MessageChat struct {
	service.SendMessageInput
}

func (msg *MessageChat) GetType() string {
	return "chat"
}

// ChatDelivery is the frame pushed to recipients and echoed to the sender.
type ChatDelivery struct {
	Type    string          `json:"type"`
	Message *models.Message `json:"message"`
}

func (msg *MessageChat) Process(ctx *MessageContext) error {
	sent, err := ctx.MessageService.Send(ctx.UserID, msg.SendMessageInput)
	if err != nil {
		return err
	}

	delivery := ChatDelivery{Type: "chat", Message: sent}

	targets, err := ctx.MessageService.FanoutTargets(sent)
	if err != nil {
		log.Printf("[ws] resolving fan-out targets for message %d failed: %v", sent.ID, err)
	} else {
		ctx.Hub.BroadcastToUsers(targets, delivery)
		// Nudge recipients that a counter moved; they refetch the summary.
		ctx.Hub.BroadcastToUsers(targets, unreadChanged(sent))
	}

	// Echo back so the sender's view carries the assigned id and timestamps.
	return ctx.Reply(delivery)
}

func unreadChanged(msg *models.Message) map[string]interface{} {
	event := map[string]interface{}{
		"type":      "unread_changed",
		"sender_id": msg.SenderID,
	}
	if msg.IsGroup() {
		event["scope"] = "group"
		event["counterpart_id"] = *msg.GroupID
	} else {
		event["scope"] = "user"
		event["counterpart_id"] = msg.SenderID
	}
	return event
}
