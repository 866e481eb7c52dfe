package balance

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// scriptedProbe returns probe outcomes from a per-endpoint queue, defaulting
// to success once the script runs out.
type scriptedProbe struct {
	outcomes map[string][]error
}

func (s *scriptedProbe) fn(_ context.Context, endpoint string) error {
	queue := s.outcomes[endpoint]
	if len(queue) == 0 {
		return nil
	}
	out := queue[0]
	s.outcomes[endpoint] = queue[1:]
	return out
}

func newHealthCheck(t *testing.T, endpoints []string, probe ProbeFunc[string], yellowStates int) *HealthCheck[string] {
	t.Helper()
	hc, err := NewHealthCheck(endpoints, probe, yellowStates)
	if err != nil {
		t.Fatalf("NewHealthCheck failed: %v", err)
	}
	return hc
}

func TestHealthCheck_InvalidYellowStates(t *testing.T) {
	if _, err := NewHealthCheck([]string{"a"}, nil, -3); err == nil {
		t.Fatal("expected error for negative yellow states")
	}
}

func TestHealthCheck_BadOnGreenGoesToTopYellow(t *testing.T) {
	hc := newHealthCheck(t, []string{"a", "b"}, nil, 3)
	now := time.Now()

	hc.Bad("a", now, now)
	if got := hc.Stats()["a"]; got != "yellow-3" {
		t.Errorf("status = %q, want yellow-3", got)
	}
}

func TestHealthCheck_BadOnYellowGoesToRed(t *testing.T) {
	hc := newHealthCheck(t, []string{"a"}, nil, 3)
	now := time.Now()

	hc.Bad("a", now, now)
	hc.Bad("a", now, now)
	if got := hc.Stats()["a"]; got != "red" {
		t.Errorf("status = %q, want red", got)
	}

	// Red stays red on further failures.
	hc.Bad("a", now, now)
	if got := hc.Stats()["a"]; got != "red" {
		t.Errorf("status = %q, want red", got)
	}
}

func TestHealthCheck_ConsecutiveProbesPromoteToGreen(t *testing.T) {
	const yellowStates = 4
	probe := &scriptedProbe{outcomes: map[string][]error{}}
	hc := newHealthCheck(t, []string{"a"}, probe.fn, yellowStates)
	now := time.Now()
	ctx := context.Background()

	hc.Bad("a", now, now)
	for i := yellowStates; i > 1; i-- {
		if err := hc.Probe(ctx, "a"); err != nil {
			t.Fatalf("probe failed: %v", err)
		}
		want := fmt.Sprintf("yellow-%d", i-1)
		if got := hc.Stats()["a"]; got != want {
			t.Errorf("after probe: status = %q, want %s", got, want)
		}
	}
	if err := hc.Probe(ctx, "a"); err != nil {
		t.Fatalf("final probe failed: %v", err)
	}
	if got := hc.Stats()["a"]; got != "green" {
		t.Errorf("status after %d probes = %q, want green", yellowStates, got)
	}
}

func TestHealthCheck_FailedProbeDemotesToRed(t *testing.T) {
	probeErr := errors.New("probe refused")
	probe := &scriptedProbe{outcomes: map[string][]error{
		"a": {nil, probeErr},
	}}
	hc := newHealthCheck(t, []string{"a"}, probe.fn, 4)
	now := time.Now()
	ctx := context.Background()

	hc.Bad("a", now, now)
	_ = hc.Probe(ctx, "a") // success: yellow-3
	if err := hc.Probe(ctx, "a"); !errors.Is(err, probeErr) {
		t.Fatalf("expected probe error, got %v", err)
	}
	if got := hc.Stats()["a"]; got != "red" {
		t.Errorf("status after failed probe = %q, want red", got)
	}
}

func TestHealthCheck_RedRecoversThroughYellowNeverDirectly(t *testing.T) {
	hc := newHealthCheck(t, []string{"a"}, (&scriptedProbe{}).fn, 4)
	now := time.Now()
	ctx := context.Background()

	hc.Bad("a", now, now)
	hc.Bad("a", now, now) // red

	if err := hc.Probe(ctx, "a"); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if got := hc.Stats()["a"]; got != "yellow-4" {
		t.Errorf("status after recovery probe = %q, want yellow-4 (never straight to green)", got)
	}
}

func TestHealthCheck_ChronicFailureNeverReachesGreen(t *testing.T) {
	// An endpoint that fails yellowStates-1 consecutive probes after an
	// initial failure must never return to green within that sequence.
	const yellowStates = 4
	probeErr := errors.New("still down")
	probe := &scriptedProbe{outcomes: map[string][]error{
		"a": {probeErr, probeErr, probeErr},
	}}
	hc := newHealthCheck(t, []string{"a"}, probe.fn, yellowStates)
	now := time.Now()
	ctx := context.Background()

	hc.Bad("a", now, now)
	for i := 0; i < yellowStates-1; i++ {
		_ = hc.Probe(ctx, "a")
		if got := hc.Stats()["a"]; got == "green" {
			t.Fatalf("endpoint reached green after %d failed probes", i+1)
		}
	}
}

func TestHealthCheck_NextPrefersHealthiest(t *testing.T) {
	hc := newHealthCheck(t, []string{"a", "b", "c"}, nil, 2)
	now := time.Now()

	hc.Bad("a", now, now) // yellow
	hc.Bad("b", now, now)
	hc.Bad("b", now, now) // red

	e, needsProbe, ok := hc.Next()
	if !ok {
		t.Fatal("expected an endpoint")
	}
	if e != "c" || needsProbe {
		t.Errorf("Next = (%s, probe=%v), want (c, probe=false)", e, needsProbe)
	}
}

func TestHealthCheck_AllUnhealthyStillOffersOne(t *testing.T) {
	hc := newHealthCheck(t, []string{"a", "b"}, nil, 2)
	now := time.Now()
	for _, e := range []string{"a", "b"} {
		hc.Bad(e, now, now)
		hc.Bad(e, now, now) // red
	}

	e, needsProbe, ok := hc.Next()
	if !ok {
		t.Fatal("policy must still offer an endpoint for probing when all are red")
	}
	if !needsProbe {
		t.Errorf("red endpoint %s offered without a probe", e)
	}
}

func TestHealthCheck_StatsKeySetStable(t *testing.T) {
	endpoints := []string{"a", "b", "c"}
	hc := newHealthCheck(t, endpoints, nil, 2)
	now := time.Now()
	hc.Bad("b", now, now)

	stats := hc.Stats()
	if len(stats) != len(endpoints) {
		t.Fatalf("stats key set size = %d, want %d", len(stats), len(endpoints))
	}
	for _, e := range endpoints {
		if _, ok := stats[e]; !ok {
			t.Errorf("stats missing endpoint %s", e)
		}
	}
}

func TestHealthCheck_CheckAllRecoversRedEndpoints(t *testing.T) {
	hc := newHealthCheck(t, []string{"a", "b"}, (&scriptedProbe{}).fn, 2)
	now := time.Now()
	hc.Bad("a", now, now)
	hc.Bad("a", now, now) // red

	hc.CheckAll(context.Background())
	if got := hc.Stats()["a"]; got != "yellow-2" {
		t.Errorf("status after CheckAll = %q, want yellow-2", got)
	}
	if got := hc.Stats()["b"]; got != "green" {
		t.Errorf("green endpoint perturbed by CheckAll: %q", got)
	}
}
