package ws

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/gofiber/websocket/v2"

	"github.com/520Girl/socket-chat/internal/service"
)

// MessageContext provides all dependencies needed for message processing
type MessageContext struct {
	UserID          uint
	SessionID       string
	Hub             *Hub
	MessageService  *service.MessageService
	HistoryService  *service.HistoryService
	UnreadService   *service.UnreadService
	PresenceService *service.PresenceService
}

// Reply sends data back to this context's user through the hub's registered
// connection. Handlers must reply here rather than writing the raw conn: the
// registered connection's write is mutex-guarded, so replies cannot interleave
// with a broadcast arriving from another user's goroutine.
func (ctx *MessageContext) Reply(data interface{}) error {
	return ctx.Hub.SendToUser(ctx.UserID, data)
}

// ReplyError sends an error frame through the same serialized write path.
func (ctx *MessageContext) ReplyError(code, message, details string) error {
	return ctx.Reply(ErrorResponse{
		Type:    "error",
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// Message interface for all WebSocket message types
type Message interface {
	GetType() string
	Process(ctx *MessageContext) error
}

// SerializedMessage is the wire format wrapper
type SerializedMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorResponse is sent when message processing fails
type ErrorResponse struct {
	Type    string `json:"type"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func ToJson(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func FromJson(jsonBytes []byte, msg Message) error {
	return json.Unmarshal(jsonBytes, msg)
}

func CreateMessage(msgType string, typeRegistry map[string]reflect.Type) (Message, error) {
	msgTypeReflect, ok := typeRegistry[msgType]
	if !ok {
		return nil, fmt.Errorf("unknown message type: %s", msgType)
	}

	instance := reflect.New(msgTypeReflect).Interface()
	return instance.(Message), nil
}

// SendError writes an error frame on a raw connection. Only safe before the
// connection is registered with the hub; registered connections must reply via
// MessageContext.ReplyError so the write takes the serialized path.
func SendError(conn *websocket.Conn, code, message, details string) error {
	errResp := ErrorResponse{
		Type:    "error",
		Error:   message,
		Code:    code,
		Details: details,
	}
	return conn.WriteJSON(errResp)
}
