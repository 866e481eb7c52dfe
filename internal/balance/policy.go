package balance

import (
	"context"
	"time"
)

// Policy selects the next endpoint to try and tracks endpoint health.
//
// Next reports the endpoint to use, whether it must pass a health probe
// before carrying a real request, and whether any endpoint is available at
// all. Good and Bad report the outcome of an attempt back to the policy; all
// health transitions happen inside the policy, never in the balancer.
//
// Implementations must be safe for concurrent use: a single policy instance
// may be shared by many in-flight requests.
type Policy[E comparable] interface {
	Next() (endpoint E, needsProbe bool, ok bool)
	Good(endpoint E, started, finished time.Time)
	Bad(endpoint E, started, finished time.Time)
}

// Prober is an optional policy capability. When the policy flags an endpoint
// as needing a probe, the balancer runs Probe before invoking the operation.
// A nil error means the endpoint may carry a real request.
type Prober[E comparable] interface {
	Probe(ctx context.Context, endpoint E) error
}

// Reporter is an optional policy capability exposing a read-only projection
// of per-endpoint health as status labels.
type Reporter[E comparable] interface {
	Stats() map[E]string
}

// ProbeFunc checks whether a recovering endpoint may resume service.
type ProbeFunc[E comparable] func(ctx context.Context, endpoint E) error
