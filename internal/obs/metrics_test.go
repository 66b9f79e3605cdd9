package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                  "/",
		"/":                 "/",
		"/metrics":          "/metrics",
		"/ws":               "/ws",
		"/ws?token=abc":     "/ws",
		"/healthz":          "/healthz",
		"/v1/info":          "/v1/info",
		"/v1/chat/room-123": "other",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestSetReady(t *testing.T) {
	SetReady(true)
	if !Ready() {
		t.Fatal("expected ready")
	}
	SetReady(false)
	if Ready() {
		t.Fatal("expected not ready")
	}
}
