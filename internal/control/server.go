package control

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/failover/internal/balance"
	"github.com/vietddude/failover/internal/httpx"
)

func (a *App) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/forward/{group}", a.handleForward)
	mux.HandleFunc("/forward/{group}/{path...}", a.handleForward)
	mux.HandleFunc("/stats", a.handleStats)
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// handleForward relays the request to the named group's balanced endpoints
// and writes back the first successful upstream response.
func (a *App) handleForward(w http.ResponseWriter, r *http.Request) {
	group, ok := a.groups[r.PathValue("group")]
	if !ok {
		http.Error(w, "unknown group", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if group.Composer != nil && len(body) > 0 {
		body = []byte(group.Composer.Encode(string(body)))
	}

	resp, err := group.Client.Do(r.Context(), r.Method, "/"+r.PathValue("path"), body, r.Header)
	if err != nil {
		a.writeUpstreamError(w, group.Name, err)
		return
	}

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(resp.Body)
}

func (a *App) writeUpstreamError(w http.ResponseWriter, group string, err error) {
	var statusErr *httpx.StatusError
	if errors.As(err, &statusErr) {
		// Fatal upstream client error: relay it verbatim.
		http.Error(w, statusErr.Body, statusErr.Code)
		return
	}

	var noResult *balance.NoResultError
	if errors.As(err, &noResult) {
		slog.Warn("All endpoints exhausted", "group", group, "errors", noResult.ErrorTypes)
		http.Error(w, "no upstream available", http.StatusBadGateway)
		return
	}

	var cfgErr *balance.ConfigError
	if errors.As(err, &cfgErr) {
		http.Error(w, cfgErr.Error(), http.StatusInternalServerError)
		return
	}

	slog.Error("Forward failed", "group", group, "error", err)
	http.Error(w, "upstream request failed", http.StatusBadGateway)
}

// handleStats renders every group's endpoint status projection.
func (a *App) handleStats(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]map[string]string, len(a.groups))
	for name, group := range a.groups {
		out[name] = group.Client.Stats()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (a *App) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	if a.db != nil {
		if err := a.db.Health(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	if a.redis != nil {
		if err := a.redis.Health(r.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
