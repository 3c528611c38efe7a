package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type MessageType string

const (
	TextMessage     MessageType = "text"
	ImageMessage    MessageType = "image"
	AudioMessage    MessageType = "audio"
	LocationMessage MessageType = "location"
	FileMessage     MessageType = "file"
)

// Payload is the type-specific body of a message. Exactly one concrete
// payload exists per MessageType; the envelope carries the discriminator.
type Payload interface {
	Kind() MessageType
	// Preview returns the short text shown in conversation lists and
	// unread snapshots.
	Preview() string
}

type TextPayload struct {
	Content string `json:"content"`
}

func (p TextPayload) Kind() MessageType { return TextMessage }
func (p TextPayload) Preview() string {
	const max = 60
	if len(p.Content) <= max {
		return p.Content
	}
	runes := []rune(p.Content)
	if len(runes) <= max {
		return p.Content
	}
	return string(runes[:max])
}

type ImagePayload struct {
	MediaURL     string `json:"media_url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

func (p ImagePayload) Kind() MessageType { return ImageMessage }
func (p ImagePayload) Preview() string   { return "[Image]" }

type AudioPayload struct {
	MediaURL      string `json:"media_url"`
	MediaDuration int    `json:"media_duration"` // seconds
	ThumbnailURL  string `json:"thumbnail_url,omitempty"`
}

func (p AudioPayload) Kind() MessageType { return AudioMessage }
func (p AudioPayload) Preview() string   { return "[Voice]" }

type LocationData struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
	Name      string  `json:"name,omitempty"`
}

type LocationPayload struct {
	Location LocationData `json:"location"`
}

func (p LocationPayload) Kind() MessageType { return LocationMessage }
func (p LocationPayload) Preview() string {
	if p.Location.Name != "" {
		return "[Location] " + p.Location.Name
	}
	return "[Location]"
}

type FilePayload struct {
	MediaURL string `json:"media_url"`
	FileName string `json:"file_name,omitempty"`
}

func (p FilePayload) Kind() MessageType { return FileMessage }
func (p FilePayload) Preview() string {
	if p.FileName != "" {
		return "[File] " + p.FileName
	}
	return "[File]"
}

// Body wraps a Payload so it can travel through JSON and a single database
// column. The serialized form carries its own discriminator, so a body can be
// decoded without consulting the envelope.
type Body struct {
	Payload Payload
}

type bodyEnvelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

func NewBody(p Payload) Body { return Body{Payload: p} }

func (b Body) MarshalJSON() ([]byte, error) {
	if b.Payload == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(b.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(bodyEnvelope{Type: b.Payload.Kind(), Data: data})
}

func (b *Body) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		b.Payload = nil
		return nil
	}
	var env bodyEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	payload, err := decodePayload(env.Type, env.Data)
	if err != nil {
		return err
	}
	b.Payload = payload
	return nil
}

func decodePayload(t MessageType, data json.RawMessage) (Payload, error) {
	switch t {
	case TextMessage:
		var p TextPayload
		return p, json.Unmarshal(data, &p)
	case ImageMessage:
		var p ImagePayload
		return p, json.Unmarshal(data, &p)
	case AudioMessage:
		var p AudioPayload
		return p, json.Unmarshal(data, &p)
	case LocationMessage:
		var p LocationPayload
		return p, json.Unmarshal(data, &p)
	case FileMessage:
		var p FilePayload
		return p, json.Unmarshal(data, &p)
	default:
		return nil, fmt.Errorf("unknown message type %q", t)
	}
}

// Value implements driver.Valuer so Body persists as a JSON column.
func (b Body) Value() (driver.Value, error) {
	data, err := b.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (b *Body) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		b.Payload = nil
		return nil
	case []byte:
		return b.UnmarshalJSON(v)
	case string:
		return b.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("unsupported payload column type %T", src)
	}
}

// Message is the shared envelope for every message type. A message belongs
// either to a private conversation (RecipientID set) or to a group (GroupID
// set), never both. Only IsRead and the tombstone fields mutate after create.
type Message struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	SenderID    uint  `gorm:"not null;index" json:"sender_id"`
	Sender      User  `gorm:"foreignKey:SenderID" json:"sender"`
	RecipientID *uint `gorm:"index" json:"recipient_id,omitempty"`
	GroupID     *uint `gorm:"index" json:"group_id,omitempty"`

	Type MessageType `gorm:"type:varchar(20);not null;default:'text'" json:"type"`
	Body Body        `gorm:"type:jsonb" json:"body"`

	SentAt time.Time `gorm:"not null;index" json:"sent_at"`
	IsRead bool      `gorm:"default:false" json:"is_read"`

	// Tombstone fields. Soft delete is a domain state, not a gorm soft
	// delete: tombstoned rows stay visible to queries and are redacted at
	// display time.
	IsDeleted bool       `gorm:"default:false" json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *uint      `json:"deleted_by,omitempty"`
}

// IsGroup reports whether the message belongs to a group conversation.
func (m *Message) IsGroup() bool { return m.GroupID != nil }

// Preview returns the short list/snapshot text for this message.
func (m *Message) Preview() string {
	if m.Body.Payload == nil {
		return ""
	}
	return m.Body.Payload.Preview()
}

// LastMessageSnapshot is the denormalized last-message record kept next to an
// unread counter so conversation lists render without a store round trip.
type LastMessageSnapshot struct {
	MessageID  uint        `json:"message_id" msgpack:"message_id"`
	SenderID   uint        `json:"sender_id" msgpack:"sender_id"`
	SenderName string      `json:"sender_name" msgpack:"sender_name"`
	SenderImg  string      `json:"sender_img" msgpack:"sender_img"`
	Type       MessageType `json:"type" msgpack:"type"`
	Preview    string      `json:"preview" msgpack:"preview"`
	SentAt     time.Time   `json:"sent_at" msgpack:"sent_at"`
	IsRead     bool        `json:"is_read" msgpack:"is_read"`
}

// SnapshotOf builds the unread snapshot for a freshly sent message.
func SnapshotOf(m *Message, sender *User) LastMessageSnapshot {
	snap := LastMessageSnapshot{
		MessageID: m.ID,
		SenderID:  m.SenderID,
		Type:      m.Type,
		Preview:   m.Preview(),
		SentAt:    m.SentAt,
		IsRead:    m.IsRead,
	}
	if sender != nil {
		snap.SenderName = sender.Name
		snap.SenderImg = sender.Avatar
	}
	return snap
}
