package control

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vietddude/failover/internal/core/config"
)

func newTestApp(t *testing.T, groups []config.GroupConfig) *App {
	t.Helper()
	app, err := NewApp(context.Background(), Config{Port: 0, Groups: groups})
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	return app
}

func TestHandleForward(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/echo" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	}))
	defer upstream.Close()

	app := newTestApp(t, []config.GroupConfig{{
		Name:           "api",
		Endpoints:      []string{upstream.URL},
		Policy:         "round_robin",
		TimeoutSeconds: 5,
	}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/forward/api/v1/echo", nil)
	app.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "pong" {
		t.Errorf("body = %q, want pong", rec.Body.String())
	}
}

func TestHandleForward_UnknownGroup(t *testing.T) {
	app := newTestApp(t, []config.GroupConfig{{
		Name:           "api",
		Endpoints:      []string{"http://a.local"},
		TimeoutSeconds: 1,
	}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/forward/nope/thing", nil)
	app.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleForward_RelaysFatalUpstreamStatus(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such resource", http.StatusNotFound)
	}))
	defer upstream.Close()

	app := newTestApp(t, []config.GroupConfig{{
		Name:           "api",
		Endpoints:      []string{upstream.URL},
		TimeoutSeconds: 5,
	}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/forward/api/missing", nil)
	app.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want relayed 404", rec.Code)
	}
}

func TestHandleForward_EncodesBody(t *testing.T) {
	var got string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	app := newTestApp(t, []config.GroupConfig{{
		Name:           "api",
		Endpoints:      []string{upstream.URL},
		TimeoutSeconds: 5,
		Encoding:       []string{"base64"},
	}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/forward/api/ingest", strings.NewReader("raw payload"))
	app.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got != "cmF3IHBheWxvYWQ=" {
		t.Errorf("upstream body = %q, want base64 of raw payload", got)
	}
}

func TestHandleStats(t *testing.T) {
	app := newTestApp(t, []config.GroupConfig{{
		Name:           "api",
		Endpoints:      []string{"http://a.local", "http://b.local"},
		TimeoutSeconds: 1,
	}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	app.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var stats map[string]map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(stats["api"]) != 2 {
		t.Errorf("stats for api = %v, want 2 endpoints", stats["api"])
	}
	for endpoint, status := range stats["api"] {
		if status != "n/a" {
			t.Errorf("stats[%s] = %q, want n/a for round robin", endpoint, status)
		}
	}
}

func TestHandleHealthz(t *testing.T) {
	app := newTestApp(t, []config.GroupConfig{{
		Name:           "api",
		Endpoints:      []string{"http://a.local"},
		TimeoutSeconds: 1,
	}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	app.handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("body = %q, want ok status", rec.Body.String())
	}
}

func TestBuildGroup_HealthCheckPolicy(t *testing.T) {
	app := newTestApp(t, []config.GroupConfig{{
		Name:                 "api",
		Endpoints:            []string{"http://a.local", "http://b.local"},
		Policy:               "health_check",
		YellowStates:         3,
		HealthPath:           "/health",
		ProbeKind:            "http",
		TimeoutSeconds:       1,
		ProbeIntervalSeconds: 30,
	}})

	group := app.groups["api"]
	if group.Health == nil {
		t.Fatal("health_check group has no HealthCheck policy")
	}
	for _, status := range group.Client.Stats() {
		if status != "green" {
			t.Errorf("initial status = %q, want green", status)
		}
	}
}
