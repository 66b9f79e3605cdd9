package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestCreateMessageAssignsIDAndTime(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	msg, err := s.CreateMessage(ctx, Envelope{RoomID: "r1", SenderID: "u1", EncryptedContent: "abc"})
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Fatalf("id/timestamp not assigned: %#v", msg)
	}
	if got := s.Messages("r1"); len(got) != 1 || got[0].ID != msg.ID {
		t.Fatalf("unexpected room history: %#v", got)
	}
	if got := s.Messages("r2"); len(got) != 0 {
		t.Fatalf("room isolation violated: %#v", got)
	}
}

func TestCreateMessageRejectsMissingFields(t *testing.T) {
	s := NewInMemory()
	if _, err := s.CreateMessage(context.Background(), Envelope{SenderID: "u1"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestCreateMessageCanceledContext(t *testing.T) {
	s := NewInMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.CreateMessage(ctx, Envelope{RoomID: "r1", SenderID: "u1"})
	if !errors.Is(err, ErrPersistence) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrPersistence wrapping context.Canceled, got %v", err)
	}
	if _, err := s.CreateLogEntry(ctx, "TRAFFIC", "", SeverityInfo); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled from log entry, got %v", err)
	}
}

func TestRetentionDropsOldest(t *testing.T) {
	s := NewInMemory()
	s.SetRetention(3)
	ctx := context.Background()

	var last []string
	for i := 0; i < 10; i++ {
		m, err := s.CreateMessage(ctx, Envelope{RoomID: "r1", SenderID: "u1"})
		if err != nil {
			t.Fatal(err)
		}
		if _, err := s.CreateLogEntry(ctx, "TRAFFIC", "", SeverityInfo); err != nil {
			t.Fatal(err)
		}
		last = append(last, m.ID)
	}
	last = last[len(last)-3:]

	if s.MessageCount() != 3 || len(s.Logs()) != 3 {
		t.Fatalf("retention not applied: msgs=%d logs=%d", s.MessageCount(), len(s.Logs()))
	}
	got := s.Messages("r1")
	for i, m := range got {
		if m.ID != last[i] {
			t.Fatalf("message %d: got %s, want %s", i, m.ID, last[i])
		}
	}

	s.SetRetention(1)
	if got := s.Messages("r1"); len(got) != 1 || got[0].ID != last[2] {
		t.Fatalf("shrinking retention kept %#v", got)
	}
}

func TestDefaultRetention(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	for i := 0; i < DefaultRetention+5; i++ {
		if _, err := s.CreateLogEntry(ctx, "TRAFFIC", "", SeverityInfo); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(s.Logs()); n != DefaultRetention {
		t.Fatalf("expected %d retained entries, got %d", DefaultRetention, n)
	}
}

func TestResolveSenderDisplay(t *testing.T) {
	s := NewInMemory(User{ID: "u1", Username: "alice", AvatarURL: "/a.png"})
	d, err := s.ResolveSenderDisplay(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if d.Username != "alice" || d.AvatarURL != "/a.png" {
		t.Fatalf("unexpected display: %#v", d)
	}
	if _, err := s.ResolveSenderDisplay(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateLogEntry(t *testing.T) {
	s := NewInMemory()
	e, err := s.CreateLogEntry(context.Background(), "TRAFFIC", "Room r1: 3 bytes", SeverityInfo)
	if err != nil {
		t.Fatal(err)
	}
	if e.ID == "" || e.Type != SeverityInfo || e.CreatedAt.IsZero() {
		t.Fatalf("unexpected entry: %#v", e)
	}
	if _, err := s.CreateLogEntry(context.Background(), " ", "x", SeverityInfo); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestConcurrentWrites(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	const n = 50
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.CreateMessage(ctx, Envelope{RoomID: "r1", SenderID: "u1"})
			_, _ = s.CreateLogEntry(ctx, "TRAFFIC", "", SeverityInfo)
		}()
	}
	wg.Wait()

	if s.MessageCount() != n || len(s.Logs()) != n {
		t.Fatalf("lost writes: msgs=%d logs=%d", s.MessageCount(), len(s.Logs()))
	}
	seen := map[string]bool{}
	for _, m := range s.Messages("r1") {
		if seen[m.ID] {
			t.Fatalf("duplicate id %s", m.ID)
		}
		seen[m.ID] = true
	}
}
