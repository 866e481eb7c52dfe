package balance

import (
	"sync"
	"time"
)

// RoundRobin cycles through the endpoint set in fixed order, wrapping at the
// end. It keeps no health state: Good and Bad are no-ops and endpoints never
// require probes.
type RoundRobin[E comparable] struct {
	mu        sync.Mutex
	endpoints []E
	cursor    int
}

// NewRoundRobin builds a RoundRobin policy over the given endpoints.
func NewRoundRobin[E comparable](endpoints []E) *RoundRobin[E] {
	return &RoundRobin[E]{endpoints: append([]E(nil), endpoints...)}
}

func (r *RoundRobin[E]) Next() (E, bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero E
	if len(r.endpoints) == 0 {
		return zero, false, false
	}
	e := r.endpoints[r.cursor]
	r.cursor = (r.cursor + 1) % len(r.endpoints)
	return e, false, true
}

func (r *RoundRobin[E]) Good(E, time.Time, time.Time) {}

func (r *RoundRobin[E]) Bad(E, time.Time, time.Time) {}
