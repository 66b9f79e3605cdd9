package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"mitmlab.org/internal/ids"
)

// MessageStore persists messages and resolves sender display data.
type MessageStore interface {
	CreateMessage(ctx context.Context, env Envelope) (StoredMessage, error)
	ResolveSenderDisplay(ctx context.Context, senderID string) (SenderDisplay, error)
}

// LogStore persists audit log entries.
type LogStore interface {
	CreateLogEntry(ctx context.Context, action, details string, typ Severity) (LogEntry, error)
}

// Store is the full persistence collaborator.
type Store interface {
	MessageStore
	LogStore
}

// DefaultRetention is how many messages and how many log entries an
// InMemory store keeps before discarding the oldest.
const DefaultRetention = 10000

// InMemory implements Store with in-process concurrency safety. It is the
// development and test backend used when no database is configured; it keeps
// only the most recent DefaultRetention messages and log entries.
type InMemory struct {
	mu     sync.RWMutex
	users  map[string]User
	msgs   []StoredMessage
	logs   []LogEntry
	retain int
	now    func() time.Time
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store seeded with the given users.
func NewInMemory(users ...User) *InMemory {
	s := &InMemory{
		users:  make(map[string]User, len(users)),
		retain: DefaultRetention,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

// SetRetention changes how many messages and log entries are kept. Zero or
// less keeps everything. Existing history is trimmed to the new limit.
func (s *InMemory) SetRetention(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retain = n
	s.msgs = trimOldest(s.msgs, n)
	s.logs = trimOldest(s.logs, n)
}

// trimOldest drops leading elements so at most limit remain.
func trimOldest[T any](items []T, limit int) []T {
	if limit <= 0 || len(items) <= limit {
		return items
	}
	return items[len(items)-limit:]
}

// appendBounded appends v, then drops the oldest elements past limit. The
// backing array is released once append outgrows it.
func appendBounded[T any](items []T, v T, limit int) []T {
	if limit > 0 && len(items) >= limit {
		items = items[len(items)-limit+1:]
	}
	return append(items, v)
}

// PutUser adds or replaces a user.
func (s *InMemory) PutUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *InMemory) CreateMessage(ctx context.Context, env Envelope) (StoredMessage, error) {
	if err := ctx.Err(); err != nil {
		return StoredMessage{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if strings.TrimSpace(env.RoomID) == "" || strings.TrimSpace(env.SenderID) == "" {
		return StoredMessage{}, ErrInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	msg := StoredMessage{Envelope: env, ID: ids.NewAt(now), CreatedAt: now}
	s.msgs = appendBounded(s.msgs, msg, s.retain)
	return msg, nil
}

func (s *InMemory) ResolveSenderDisplay(ctx context.Context, senderID string) (SenderDisplay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[senderID]
	if !ok {
		return SenderDisplay{}, ErrNotFound
	}
	return SenderDisplay{Username: u.Username, AvatarURL: u.AvatarURL}, nil
}

func (s *InMemory) CreateLogEntry(ctx context.Context, action, details string, typ Severity) (LogEntry, error) {
	if err := ctx.Err(); err != nil {
		return LogEntry{}, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if strings.TrimSpace(action) == "" {
		return LogEntry{}, ErrInvalid
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	entry := LogEntry{
		ID:        ids.NewAt(now),
		Action:    action,
		Details:   details,
		Type:      typ,
		CreatedAt: now,
	}
	s.logs = appendBounded(s.logs, entry, s.retain)
	return entry, nil
}

// Messages returns a copy of persisted messages for a room, oldest first.
func (s *InMemory) Messages(roomID string) []StoredMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []StoredMessage
	for _, m := range s.msgs {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out
}

// MessageCount returns the number of retained messages.
func (s *InMemory) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Logs returns a copy of persisted log entries, oldest first.
func (s *InMemory) Logs() []LogEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}
