package handlers

import (
	"log"
	"os"

	"github.com/gofiber/websocket/v2"

	"github.com/520Girl/socket-chat/internal/handlers/ws"
	"github.com/520Girl/socket-chat/internal/observability"
	"github.com/520Girl/socket-chat/internal/service"
)

type WebSocketHandler struct {
	messageService  *service.MessageService
	historyService  *service.HistoryService
	unreadService   *service.UnreadService
	presenceService *service.PresenceService
	hub             *ws.Hub
}

func NewWebSocketHandler(
	messageService *service.MessageService,
	historyService *service.HistoryService,
	unreadService *service.UnreadService,
	presenceService *service.PresenceService,
) *WebSocketHandler {
	return &WebSocketHandler{
		messageService:  messageService,
		historyService:  historyService,
		unreadService:   unreadService,
		presenceService: presenceService,
		hub:             ws.NewHub(),
	}
}

// GetHub returns the hub instance (useful for sending messages from other handlers)
func (h *WebSocketHandler) GetHub() *ws.Hub {
	return h.hub
}

func (h *WebSocketHandler) HandleWebSocket(c *websocket.Conn) {
	userID := c.Locals("userID").(uint)
	wsDebug := os.Getenv("WS_DEBUG") == "true"

	sessionID, err := h.presenceService.Connect(userID)
	if err != nil {
		log.Printf("[ws] presence connect for user %d failed: %v", userID, err)
		_ = ws.SendError(c, "presence_unavailable", "Could not establish presence", err.Error())
		return
	}

	h.hub.Register(userID, sessionID, c)
	h.broadcastPresence(userID, true)

	defer func() {
		h.hub.Unregister(userID, sessionID)
		if err := h.presenceService.Disconnect(userID, sessionID); err != nil {
			log.Printf("[ws] presence disconnect for user %d failed: %v", userID, err)
		}
		h.broadcastPresence(userID, false)
	}()

	log.Printf("[ws] user %d connected (session %s)", userID, sessionID)

	ctx := &ws.MessageContext{
		UserID:          userID,
		SessionID:       sessionID,
		Hub:             h.hub,
		MessageService:  h.messageService,
		HistoryService:  h.historyService,
		UnreadService:   h.unreadService,
		PresenceService: h.presenceService,
	}

	for {
		_, messageBytes, err := c.ReadMessage()
		if err != nil {
			log.Printf("[ws] read from user %d failed: %v", userID, err)
			break
		}

		if wsDebug {
			log.Printf("ws_recv user_id=%d size=%d", userID, len(messageBytes))
		}

		msg, err := ws.Deserialize(messageBytes)
		if err != nil {
			log.Printf("[ws] bad frame from user %d: %v", userID, err)
			_ = ctx.ReplyError("invalid_message", "Invalid message format", err.Error())
			continue
		}

		observability.WSEvent(msg.GetType())
		if err := msg.Process(ctx); err != nil {
			log.Printf("[ws] processing %s from user %d failed: %v", msg.GetType(), userID, err)
			_ = ctx.ReplyError("processing_failed", "Failed to process message", err.Error())
		}
	}

	log.Printf("[ws] user %d disconnected", userID)
}

// broadcastPresence announces a presence transition to everyone connected.
func (h *WebSocketHandler) broadcastPresence(userID uint, online bool) {
	h.hub.Broadcast(map[string]interface{}{
		"type":    "presence",
		"user_id": userID,
		"online":  online,
	})
}
