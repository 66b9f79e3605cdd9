package ids

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewIsMonotonic(t *testing.T) {
	at := time.Now()
	prev := NewAt(at)
	for i := 0; i < 100; i++ {
		next := NewAt(at)
		if next <= prev {
			t.Fatalf("ids not increasing: %s <= %s", next, prev)
		}
		prev = next
	}
}

func TestCorrelationIsUUID(t *testing.T) {
	if err := uuid.Validate(Correlation()); err != nil {
		t.Fatalf("correlation id is not a uuid: %v", err)
	}
}

func TestShort(t *testing.T) {
	if got := Short("abc"); got != "abc" {
		t.Fatalf("Short(abc)=%q", got)
	}
	if got := Short("0123456789"); got != "01234567" {
		t.Fatalf("Short=%q", got)
	}
}
