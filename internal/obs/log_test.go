package obs

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogRequestLiftsHeaderFields(t *testing.T) {
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	defer SetOutput(prev)

	LogRequest(map[string]any{
		"msg":        "request_complete",
		"level":      "warn",
		"request_id": "req-1",
		"status":     418,
	})

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	for _, key := range []string{"ts", "level", "msg", "request_id", "status"} {
		if _, ok := entry[key]; !ok {
			t.Fatalf("expected key %q in %v", key, entry)
		}
	}
	if entry["level"] != "warn" || entry["msg"] != "request_complete" {
		t.Fatalf("unexpected header: %v", entry)
	}
}

func TestComponentFollowsOutputSwap(t *testing.T) {
	l := Component("relay")

	var buf bytes.Buffer
	prev := SetOutput(&buf)
	defer SetOutput(prev)

	l.Info().Msg("hello")
	if !strings.Contains(buf.String(), `"component":"relay"`) {
		t.Fatalf("component tag missing: %s", buf.String())
	}
}

func TestSetLevelRejectsUnknown(t *testing.T) {
	if err := SetLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if err := SetLevel("INFO"); err != nil {
		t.Fatalf("SetLevel(INFO): %v", err)
	}
}
