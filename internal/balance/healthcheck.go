package balance

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultYellowStates is the number of consecutive successful probes a
// recovering endpoint needs before it is fully trusted again.
const DefaultYellowStates = 4

type color int

const (
	green color = iota
	yellow
	red
)

type endpointHealth struct {
	color     color
	countdown int // successful probes still required while yellow
}

// HealthCheck tracks per-endpoint health as a three-color state machine with
// probation:
//
//   - green: offered normally, no probe required.
//   - yellow(k): recently bad; must pass a probe before each real attempt.
//     A successful probe decrements k, and k reaching zero promotes the
//     endpoint to green. A failed probe demotes it to red (the strict
//     choice: probation failure means the endpoint is untrusted again).
//   - red: excluded from selection while healthier endpoints exist. A
//     successful probe re-enters the endpoint at the highest yellow level,
//     never directly at green; recovery is always gradual.
//
// Bad on a green endpoint demotes it to the highest yellow level; Bad on a
// yellow or red endpoint sends it to red, so a chronically failing endpoint
// can only climb back through consecutive successful probes.
//
// All state lives behind one mutex; the policy is safe to share across
// concurrent requests.
type HealthCheck[E comparable] struct {
	mu           sync.Mutex
	endpoints    []E
	health       map[E]*endpointHealth
	cursor       int
	yellowStates int
	probe        ProbeFunc[E]
}

// NewHealthCheck builds a HealthCheck policy. Every endpoint starts green.
// probe may be nil, in which case probes pass trivially and endpoints
// recover through successful real attempts only. yellowStates must be
// positive; zero selects DefaultYellowStates.
func NewHealthCheck[E comparable](endpoints []E, probe ProbeFunc[E], yellowStates int) (*HealthCheck[E], error) {
	if yellowStates == 0 {
		yellowStates = DefaultYellowStates
	}
	if yellowStates < 1 {
		return nil, &ConfigError{Reason: "yellow states must be positive"}
	}

	h := &HealthCheck[E]{
		endpoints:    append([]E(nil), endpoints...),
		health:       make(map[E]*endpointHealth, len(endpoints)),
		yellowStates: yellowStates,
		probe:        probe,
	}
	for _, e := range h.endpoints {
		h.health[e] = &endpointHealth{color: green}
	}
	return h, nil
}

// Next offers the healthiest endpoint available: green endpoints first, then
// yellow ones (probe required), then red ones. Red endpoints are only offered
// when nothing healthier exists, so the balancer degrades to probing rather
// than failing outright. The scan starts at a rotating cursor so load spreads
// across equally-healthy endpoints.
func (h *HealthCheck[E]) Next() (E, bool, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero E
	n := len(h.endpoints)
	if n == 0 {
		return zero, false, false
	}

	best := -1
	bestColor := red
	for i := 0; i < n; i++ {
		idx := (h.cursor + i) % n
		c := h.health[h.endpoints[idx]].color
		if best == -1 || c < bestColor {
			best = idx
			bestColor = c
		}
		if bestColor == green {
			break
		}
	}

	h.cursor = (best + 1) % n
	return h.endpoints[best], bestColor != green, true
}

// Good reports a successful real attempt. A yellow endpoint moves one step
// toward green; a red endpoint re-enters probation at the highest yellow
// level. Unknown endpoints are ignored.
func (h *HealthCheck[E]) Good(endpoint E, _, _ time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.step(endpoint)
}

// Bad reports a failed attempt or failed probe. Green drops to the highest
// yellow level; yellow and red drop to red.
func (h *HealthCheck[E]) Bad(endpoint E, _, _ time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st, ok := h.health[endpoint]
	if !ok {
		return
	}
	if st.color == green {
		st.color = yellow
		st.countdown = h.yellowStates
	} else {
		st.color = red
		st.countdown = 0
	}
}

// Probe runs the configured health probe against the endpoint and applies
// the outcome: success steps the endpoint toward green, failure drops it to
// red. With no probe configured the check passes without touching state.
func (h *HealthCheck[E]) Probe(ctx context.Context, endpoint E) error {
	if h.probe == nil {
		return nil
	}
	err := h.probe(ctx, endpoint)

	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.health[endpoint]
	if !ok {
		return err
	}
	if err != nil {
		st.color = red
		st.countdown = 0
		return err
	}
	h.step(endpoint)
	return nil
}

// CheckAll probes every endpoint that is not currently green. Run it
// periodically so red endpoints can re-enter probation even when the request
// path never selects them.
func (h *HealthCheck[E]) CheckAll(ctx context.Context) {
	h.mu.Lock()
	var pending []E
	for _, e := range h.endpoints {
		if h.health[e].color != green {
			pending = append(pending, e)
		}
	}
	h.mu.Unlock()

	for _, e := range pending {
		if ctx.Err() != nil {
			return
		}
		_ = h.Probe(ctx, e)
	}
}

// Stats renders each endpoint's color as "green", "red", or "yellow-k" where
// k is the number of successful probes still required.
func (h *HealthCheck[E]) Stats() map[E]string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make(map[E]string, len(h.endpoints))
	for _, e := range h.endpoints {
		st := h.health[e]
		switch st.color {
		case green:
			out[e] = "green"
		case red:
			out[e] = "red"
		default:
			out[e] = fmt.Sprintf("yellow-%d", st.countdown)
		}
	}
	return out
}

// step moves an endpoint one level toward green. Callers hold h.mu.
func (h *HealthCheck[E]) step(endpoint E) {
	st, ok := h.health[endpoint]
	if !ok {
		return
	}
	switch st.color {
	case yellow:
		st.countdown--
		if st.countdown <= 0 {
			st.color = green
			st.countdown = 0
		}
	case red:
		st.color = yellow
		st.countdown = h.yellowStates
	}
}
