package intercept

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"mitmlab.org/internal/channels"
	"mitmlab.org/internal/obs"
)

// EventStatus carries the flag to observers.
const EventStatus = "mitm_status"

// Status is the mitm_status payload.
type Status struct {
	Active bool `json:"active"`
}

// Publisher is the slice of the channel registry the controller needs.
type Publisher interface {
	Publish(name, event string, payload any) int
	Send(sub channels.Subscriber, event string, payload any) error
}

// Controller owns the process-wide interception flag. Reads are lock-free;
// writes are serialized so broadcasts leave in write order.
type Controller struct {
	active atomic.Bool
	mu     sync.Mutex
	pub    Publisher
	log    zerolog.Logger
}

// New returns a controller in the passive state.
func New(pub Publisher) *Controller {
	return &Controller{pub: pub, log: obs.Component("intercept")}
}

// IsActive reports whether traffic is currently being intercepted.
func (c *Controller) IsActive() bool { return c.active.Load() }

// SetActive replaces the flag and broadcasts the new value to observers,
// even if it did not change.
func (c *Controller) SetActive(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.active.Swap(active)
	if active {
		obs.InterceptionActive.Set(1)
	} else {
		obs.InterceptionActive.Set(0)
	}
	n := c.pub.Publish(channels.Observer, EventStatus, Status{Active: active})
	c.log.Warn().Bool("active", active).Bool("previous", prev).Int("observers", n).Msg("interception mode set")
}

// Snapshot sends the current value to a single subscriber. It holds the
// writer lock so a concurrent SetActive broadcast cannot be overtaken by a
// stale snapshot.
func (c *Controller) Snapshot(sub channels.Subscriber) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pub.Send(sub, EventStatus, Status{Active: c.active.Load()})
}
