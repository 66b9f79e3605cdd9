package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"mitmlab.org/internal/channels"
	"mitmlab.org/internal/chat"
	"mitmlab.org/internal/obs"
)

// Actions recorded by the relay.
const (
	ActionTraffic   = "TRAFFIC"
	ActionMITMAlert = "MITM_ALERT"
)

// EventLogEntry announces a new entry on the admin channel.
const EventLogEntry = "traffic_log"

// EntrySummary is the admin-facing view of a persisted entry.
type EntrySummary struct {
	ID        string        `json:"id"`
	Action    string        `json:"action"`
	Details   string        `json:"details"`
	Type      chat.Severity `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
}

// Summarize converts an entry to its admin-facing view.
func Summarize(e chat.LogEntry) EntrySummary {
	return EntrySummary{ID: e.ID, Action: e.Action, Details: e.Details, Type: e.Type, Timestamp: e.CreatedAt}
}

// Publisher is the slice of the channel registry the sink needs.
type Publisher interface {
	Publish(name, event string, payload any) int
}

// Sink persists audit records and notifies admins of each new one.
type Sink struct {
	store chat.LogStore
	pub   Publisher
	log   zerolog.Logger
}

// NewSink wires a sink to its store and publisher.
func NewSink(store chat.LogStore, pub Publisher) *Sink {
	return &Sink{store: store, pub: pub, log: obs.Component("audit")}
}

// Record persists one entry and publishes its summary to the admin channel.
// A persistence failure is returned wrapped in chat.ErrPersistence; the entry
// is dropped and nothing is published.
func (s *Sink) Record(ctx context.Context, action, details string, severity chat.Severity) (chat.LogEntry, error) {
	entry, err := s.store.CreateLogEntry(ctx, action, details, severity)
	if err != nil {
		return chat.LogEntry{}, fmt.Errorf("%w: create log entry %s: %w", chat.ErrPersistence, action, err)
	}
	s.pub.Publish(channels.Admin, EventLogEntry, Summarize(entry))
	_ = LogEvent(ctx, "audit."+action, map[string]any{
		"id":      entry.ID,
		"details": details,
		"type":    string(severity),
	})
	return entry, nil
}
