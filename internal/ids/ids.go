package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier used for persisted
// messages and log entries.
func New() string {
	return NewAt(time.Now())
}

// NewAt is New with an explicit timestamp component.
func NewAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Correlation returns a random identifier for transient objects that never
// reach storage (connections, intercepted packets, injected frames).
func Correlation() string {
	return uuid.NewString()
}

// Short truncates an identifier for display in log details.
func Short(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
