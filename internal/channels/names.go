package channels

import "strings"

// Role channel names.
const (
	Observer = "role:observer"
	Admin    = "role:admin"
)

const (
	personalPrefix = "user:"
	roomPrefix     = "room:"
)

// Personal names the direct-notification channel of a subject.
func Personal(subjectID string) string { return personalPrefix + subjectID }

// Room names the delivery channel of a conversation.
func Room(roomID string) string { return roomPrefix + roomID }

// IsRoom reports whether name is a room channel.
func IsRoom(name string) bool { return strings.HasPrefix(name, roomPrefix) }
