package channels

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"mitmlab.org/internal/obs"
)

// Subscriber is a live connection that can receive encoded frames.
// Deliver must not block and must not call back into the Registry.
type Subscriber interface {
	ID() string
	Deliver(frame []byte) error
}

type channel struct {
	mu      sync.Mutex
	members map[string]Subscriber
}

// Registry tracks channel membership and fans frames out to members.
//
// Lock order is Registry.mu then channel.mu. Publishes to one channel hold its
// lock for the whole fan-out so all members observe the same order.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*channel
	bySub    map[string]map[string]struct{} // subscriber id -> channel names
	log      zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[string]*channel),
		bySub:    make(map[string]map[string]struct{}),
		log:      obs.Component("channels"),
	}
}

// Subscribe adds sub to the named channel, creating it on first use.
func (r *Registry) Subscribe(sub Subscriber, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[name]
	if !ok {
		ch = &channel{members: make(map[string]Subscriber)}
		r.channels[name] = ch
	}
	ch.mu.Lock()
	ch.members[sub.ID()] = sub
	ch.mu.Unlock()

	names, ok := r.bySub[sub.ID()]
	if !ok {
		names = make(map[string]struct{})
		r.bySub[sub.ID()] = names
	}
	names[name] = struct{}{}
}

// Unsubscribe removes sub from the named channel.
func (r *Registry) Unsubscribe(sub Subscriber, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(sub.ID(), name)
	if names, ok := r.bySub[sub.ID()]; ok {
		delete(names, name)
		if len(names) == 0 {
			delete(r.bySub, sub.ID())
		}
	}
}

// UnsubscribeAll removes sub from every channel it joined.
func (r *Registry) UnsubscribeAll(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.bySub[sub.ID()] {
		r.removeLocked(sub.ID(), name)
	}
	delete(r.bySub, sub.ID())
}

func (r *Registry) removeLocked(subID, name string) {
	ch, ok := r.channels[name]
	if !ok {
		return
	}
	ch.mu.Lock()
	delete(ch.members, subID)
	empty := len(ch.members) == 0
	ch.mu.Unlock()
	if empty {
		delete(r.channels, name)
	}
}

// Publish delivers payload tagged with event to every current member of the
// channel and returns the number of successful deliveries. Failing members
// are skipped.
func (r *Registry) Publish(name, event string, payload any) int {
	frame, err := Encode(event, payload)
	if err != nil {
		r.log.Error().Err(err).Str("channel", name).Msg("publish encode failed")
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	if !ok {
		return 0
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	delivered := 0
	for id, sub := range ch.members {
		if err := sub.Deliver(frame); err != nil {
			obs.DeliveryFailures.Inc()
			r.log.Debug().Err(err).Str("channel", name).Str("event", event).Str("conn_id", id).Msg("delivery skipped")
			continue
		}
		delivered++
	}
	return delivered
}

// Send delivers a single frame to one subscriber regardless of membership.
func (r *Registry) Send(sub Subscriber, event string, payload any) error {
	frame, err := Encode(event, payload)
	if err != nil {
		return err
	}
	if err := sub.Deliver(frame); err != nil {
		obs.DeliveryFailures.Inc()
		return err
	}
	return nil
}

// Members returns the number of subscribers on a channel.
func (r *Registry) Members(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	if !ok {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.members)
}

// IsSubscribed reports whether sub is a member of the named channel.
func (r *Registry) IsSubscribed(sub Subscriber, name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bySub[sub.ID()][name]
	return ok
}

// Channels lists the channels sub joined, sorted.
func (r *Registry) Channels(sub Subscriber) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.bySub[sub.ID()]))
	for name := range r.bySub[sub.ID()] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
