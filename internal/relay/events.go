package relay

import "time"

// Outbound event names.
const (
	EventReceiveMessage     = "receive_message"
	EventConversationUpdate = "update_conversation_list"
	EventMetadataLog        = "metadata_log"
	EventInterceptedPacket  = "intercepted_packet"
	EventAttackLog          = "attack_log"
	EventSecurityAlert      = "security_alert"
)

// SpoofedSenderLabel is the display name carried by injected frames.
const SpoofedSenderLabel = "Unknown"

// unknownSenderName is shown when a stored message's sender cannot be
// resolved. It is kept apart from SpoofedSenderLabel so either can change
// without the other.
const unknownSenderName = "Unknown"

// MetadataLog is the traffic-shape record every observer sees for every send.
type MetadataLog struct {
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id,omitempty"`
	RoomID      string    `json:"room_id"`
	Size        int       `json:"size"`
	Timestamp   time.Time `json:"timestamp"`
}

// InterceptedPacket is a withheld message as shown to observers.
type InterceptedPacket struct {
	PacketID         string    `json:"packet_id"`
	RoomID           string    `json:"room_id"`
	EncryptedContent string    `json:"encrypted_content"`
	IV               string    `json:"iv"`
	WrappedKey       string    `json:"wrapped_key"`
	SenderID         string    `json:"sender_id"`
	RecipientID      string    `json:"recipient_id,omitempty"`
	Status           string    `json:"status"`
	Timestamp        time.Time `json:"timestamp"`
}

// ReceiveMessage is a room delivery.
type ReceiveMessage struct {
	ID               string    `json:"id"`
	RoomID           string    `json:"room_id"`
	EncryptedContent string    `json:"encrypted_content"`
	IV               string    `json:"iv"`
	WrappedKey       string    `json:"wrapped_key"`
	SenderID         string    `json:"sender_id"`
	SenderName       string    `json:"sender_name"`
	RecipientID      string    `json:"recipient_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// ConversationUpdate tells a recipient a conversation has a new message.
type ConversationUpdate struct {
	RoomID       string    `json:"room_id"`
	MessageID    string    `json:"message_id"`
	SenderID     string    `json:"sender_id"`
	SenderName   string    `json:"sender_name"`
	SenderAvatar string    `json:"sender_avatar,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// AttackLog records a simulated attack on the observer channel.
type AttackLog struct {
	Type      string    `json:"type"`
	PacketID  string    `json:"packet_id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Size      int       `json:"size"`
	Timestamp time.Time `json:"timestamp"`
}

// SecurityAlert is high-severity admin telemetry.
type SecurityAlert struct {
	Level     string    `json:"level"`
	Action    string    `json:"action"`
	ID        string    `json:"id,omitempty"`
	Details   string    `json:"details"`
	RoomID    string    `json:"room_id,omitempty"`
	SenderID  string    `json:"sender_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Report is a suspected-tampering report from any connection.
type Report struct {
	RoomID   string `json:"room_id"`
	SenderID string `json:"sender_id"`
	Reason   string `json:"reason"`
}
