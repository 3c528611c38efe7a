package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/websocket/v2"

	"github.com/520Girl/socket-chat/internal/observability"
)

// Conn is the slice of the websocket connection the hub writes through.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
}

// ClientConnection wraps a WebSocket connection with its session identity.
type ClientConnection struct {
	Conn      Conn
	UserID    uint
	SessionID string
	writeMux  sync.Mutex
}

// write serializes frame writes; fiber websocket connections are not safe for
// concurrent writers.
func (c *ClientConnection) write(data []byte) error {
	c.writeMux.Lock()
	defer c.writeMux.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// Hub manages all active WebSocket connections, one per user.
type Hub struct {
	clients    map[uint]*ClientConnection
	clientsMux sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{clients: make(map[uint]*ClientConnection)}
}

// Register adds a client connection, replacing any previous connection for
// the same user.
func (h *Hub) Register(userID uint, sessionID string, conn Conn) {
	client := &ClientConnection{Conn: conn, UserID: userID, SessionID: sessionID}
	h.clientsMux.Lock()
	h.clients[userID] = client
	count := len(h.clients)
	h.clientsMux.Unlock()
	observability.WSConnect()
	log.Printf("[hub] user %d connected (total: %d)", userID, count)
}

// Unregister removes a client connection. A stale unregister (the user has
// already reconnected with a new session) is a no-op.
func (h *Hub) Unregister(userID uint, sessionID string) {
	h.clientsMux.Lock()
	client, exists := h.clients[userID]
	if exists && client.SessionID == sessionID {
		delete(h.clients, userID)
	} else {
		exists = false
	}
	count := len(h.clients)
	h.clientsMux.Unlock()
	if exists {
		observability.WSDisconnect()
		log.Printf("[hub] user %d disconnected (total: %d)", userID, count)
	}
}

// IsConnected reports whether the user holds a live connection on this node.
func (h *Hub) IsConnected(userID uint) bool {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	_, exists := h.clients[userID]
	return exists
}

// SendToUser delivers data to one user if connected. Offline users are simply
// skipped; they pick the message up from history and unread counters.
func (h *Hub) SendToUser(userID uint, data interface{}) error {
	h.clientsMux.RLock()
	client, exists := h.clients[userID]
	h.clientsMux.RUnlock()
	if !exists {
		return nil
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if err := client.write(jsonData); err != nil {
		log.Printf("[hub] write to user %d failed: %v", userID, err)
		h.Unregister(userID, client.SessionID)
		return err
	}
	return nil
}

// BroadcastToUsers delivers data to each listed user that is connected.
func (h *Hub) BroadcastToUsers(userIDs []uint, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[hub] marshal broadcast failed: %v", err)
		return
	}

	h.clientsMux.RLock()
	targets := make([]*ClientConnection, 0, len(userIDs))
	for _, userID := range userIDs {
		if client, exists := h.clients[userID]; exists {
			targets = append(targets, client)
		}
	}
	h.clientsMux.RUnlock()

	for _, client := range targets {
		if err := client.write(jsonData); err != nil {
			log.Printf("[hub] broadcast to user %d failed: %v", client.UserID, err)
			h.Unregister(client.UserID, client.SessionID)
		}
	}
}

// Broadcast delivers data to every connected user.
func (h *Hub) Broadcast(data interface{}) {
	h.clientsMux.RLock()
	userIDs := make([]uint, 0, len(h.clients))
	for userID := range h.clients {
		userIDs = append(userIDs, userID)
	}
	h.clientsMux.RUnlock()
	h.BroadcastToUsers(userIDs, data)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.clientsMux.RLock()
	defer h.clientsMux.RUnlock()
	return len(h.clients)
}
