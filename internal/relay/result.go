package relay

import (
	"errors"

	"github.com/rs/zerolog"
)

// ErrNotObserver is returned for observer-only operations invoked by a
// connection that never joined the observer role.
var ErrNotObserver = errors.New("relay: caller is not an observer")

// Outcome classifies how a unit of relay work ended.
type Outcome string

const (
	OutcomeDelivered   Outcome = "delivered"
	OutcomeIntercepted Outcome = "intercepted"
	OutcomeInjected    Outcome = "injected"
	OutcomeReported    Outcome = "reported"
	OutcomeToggled     Outcome = "toggled"
	OutcomeDropped     Outcome = "dropped"
	OutcomeRejected    Outcome = "rejected"
)

// Result describes what the relay did with one event. It is logged by the
// transport and never sent to the originating connection.
type Result struct {
	Outcome   Outcome
	MessageID string
	PacketID  string
	Err       error
}

// OK reports whether the work completed without error.
func (r Result) OK() bool { return r.Err == nil }

// MarshalZerologObject lets a Result be attached to log events.
func (r Result) MarshalZerologObject(e *zerolog.Event) {
	e.Str("outcome", string(r.Outcome))
	if r.MessageID != "" {
		e.Str("message_id", r.MessageID)
	}
	if r.PacketID != "" {
		e.Str("packet_id", r.PacketID)
	}
	if r.Err != nil {
		e.Str("error", r.Err.Error())
	}
}
