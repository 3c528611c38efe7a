package ws

import "log"

// MessagePing is the client heartbeat. It keeps the session's presence keys
// alive and answers with a pong.
type MessagePing struct {
}

func (msg *MessagePing) GetType() string {
	return "ping"
}

func (msg *MessagePing) Process(ctx *MessageContext) error {
	if err := ctx.PresenceService.Heartbeat(ctx.UserID, ctx.SessionID); err != nil {
		log.Printf("[ws] heartbeat for user %d failed: %v", ctx.UserID, err)
	}
	return ctx.Reply(map[string]string{
		"type": "pong",
	})
}

// MessagePong is a pong response (in case client wants to track latency)
type MessagePong struct {
}

func (msg *MessagePong) GetType() string {
	return "pong"
}

func (msg *MessagePong) Process(ctx *MessageContext) error {
	// No-op - just acknowledge
	return nil
}
