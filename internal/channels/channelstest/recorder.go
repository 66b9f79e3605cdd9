// Package channelstest provides a recording Subscriber for tests.
package channelstest

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"mitmlab.org/internal/channels"
)

// ErrClosed is returned by Deliver after Close.
var ErrClosed = errors.New("channelstest: subscriber closed")

// Recorder captures every frame delivered to it.
type Recorder struct {
	id string

	mu     sync.Mutex
	frames []channels.Frame
	closed bool
	fail   bool
}

// New returns a Recorder with a random id.
func New() *Recorder { return &Recorder{id: uuid.NewString()} }

// NewWithID returns a Recorder with a fixed id.
func NewWithID(id string) *Recorder { return &Recorder{id: id} }

func (r *Recorder) ID() string { return r.id }

func (r *Recorder) Deliver(frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.fail {
		return errors.New("channelstest: delivery failure")
	}
	f, err := channels.Decode(frame)
	if err != nil {
		return err
	}
	r.frames = append(r.frames, f)
	return nil
}

// Close marks the recorder closed; later deliveries fail. It also satisfies
// session.Conn.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// FailDeliveries makes subsequent deliveries return an error.
func (r *Recorder) FailDeliveries(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = fail
}

// Frames returns a copy of all recorded frames.
func (r *Recorder) Frames() []channels.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]channels.Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

// Events returns recorded event names in delivery order.
func (r *Recorder) Events() []string {
	frames := r.Frames()
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Event
	}
	return out
}

// Count returns how many frames carried event.
func (r *Recorder) Count(event string) int {
	n := 0
	for _, f := range r.Frames() {
		if f.Event == event {
			n++
		}
	}
	return n
}

// Last decodes the data of the most recent frame tagged event into v and
// reports whether one existed.
func (r *Recorder) Last(event string, v any) bool {
	frames := r.Frames()
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].Event == event {
			if v != nil {
				_ = json.Unmarshal(frames[i].Data, v)
			}
			return true
		}
	}
	return false
}

// Reset drops recorded frames.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}
