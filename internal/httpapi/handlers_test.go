package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type apiClient struct {
	baseURL string
	client  *http.Client
	t       *testing.T
}

func newTestAPI(t *testing.T, rp readinessChecker, ws http.Handler) *apiClient {
	t.Helper()

	api := New(rp, "test", ws, Options{UpgradeRatePerSec: 100, UpgradeRateBurst: 100})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
		t:       t,
	}
}

func (c *apiClient) get(path string, headers map[string]string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("get request: %v", err)
	}
	return resp
}

func decode[T any](t *testing.T, r *http.Response) T {
	t.Helper()
	defer r.Body.Close()
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthAndInfo(t *testing.T) {
	api := newTestAPI(t, ReadyProbe{}, nil)

	resp := api.get("/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
	health := decode[map[string]any](t, resp)
	if health["status"] != "ok" || health["service"] != serviceName || health["version"] != "test" {
		t.Fatalf("unexpected health body: %v", health)
	}

	info := decode[map[string]any](t, api.get("/v1/info", nil))
	if info["name"] != serviceName || info["time"] == "" {
		t.Fatalf("unexpected info body: %v", info)
	}
}

func TestReadyReflectsProbe(t *testing.T) {
	ok := newTestAPI(t, ReadyProbe{}, nil)
	if resp := ok.get("/readyz", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	down := newTestAPI(t, failingReadiness{}, nil)
	resp := down.get("/readyz", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	body := decode[map[string]any](t, resp)
	if body["status"] != "not_ready" || body["error"] != "boom" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestWebSocketRouteMounted(t *testing.T) {
	var hits int
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusTeapot)
	})
	api := newTestAPI(t, ReadyProbe{}, ws)

	resp := api.get("/ws", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot || hits != 1 {
		t.Fatalf("ws handler not reached: status=%d hits=%d", resp.StatusCode, hits)
	}

	resp = api.get("/nope", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	api := newTestAPI(t, ReadyProbe{}, nil)
	resp := api.get("/metrics", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestReadyProbeNilDB(t *testing.T) {
	if err := (ReadyProbe{}).Check(context.Background()); err != nil {
		t.Fatalf("nil DB should be ready: %v", err)
	}
}
