package chat

import (
	"errors"
	"time"
)

// Severity tags an audit log entry.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Envelope is an encrypted message as submitted by a connection. The relay
// never looks inside EncryptedContent, IV or WrappedKey.
type Envelope struct {
	RoomID           string `json:"room_id"`
	EncryptedContent string `json:"encrypted_content"`
	IV               string `json:"iv"`
	WrappedKey       string `json:"wrapped_key"`
	SenderID         string `json:"sender_id"`
	RecipientID      string `json:"recipient_id,omitempty"`
}

// Size is the ciphertext length in bytes.
func (e Envelope) Size() int { return len(e.EncryptedContent) }

// HasRecipient reports whether the envelope names a direct recipient.
func (e Envelope) HasRecipient() bool { return e.RecipientID != "" }

// StoredMessage is an Envelope after persistence assigned its id and time.
type StoredMessage struct {
	Envelope
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// SenderDisplay is what recipients are shown about a sender.
type SenderDisplay struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// LogEntry is a persisted audit record.
type LogEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Type      Severity  `json:"type"`
	CreatedAt time.Time `json:"timestamp"`
}

// User is the subset of an account the relay needs for display resolution.
type User struct {
	ID        string
	Username  string
	AvatarURL string
}

var (
	ErrNotFound    = errors.New("chat: not found")
	ErrPersistence = errors.New("chat: persistence failed")
	ErrInvalid     = errors.New("chat: invalid input")
)
