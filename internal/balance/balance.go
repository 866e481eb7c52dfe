// Package balance implements a protocol-agnostic request balancer.
//
// Given an ordered set of opaque endpoints and a caller-supplied operation,
// the balancer selects an endpoint, invokes the operation against it,
// classifies the outcome, and on retryable failure tries another endpoint
// until the operation succeeds, a fatal error occurs, or the retry bound is
// exhausted. The balancer never performs I/O itself and never enforces
// timeouts; both are the operation's responsibility.
//
// This package contains:
//   - Balancer: the retry loop and its configuration
//   - Policy interface with RoundRobin and HealthCheck implementations
//   - Fatal: pluggable fatal-vs-retryable error classification
package balance

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// Operation is a single call against one endpoint. It must respect ctx for
// cancellation and enforce its own timeout; the balancer blocks until it
// returns.
type Operation[E comparable] func(ctx context.Context, endpoint E) (any, error)

// RetryFunc decides whether another attempt is allowed, given the number of
// configured endpoints and the attempts made so far.
type RetryFunc func(endpoints, attempts int) bool

// NotifyFunc is invoked after every failed attempt with the classification
// decision, the error, and the endpoint that produced it.
type NotifyFunc[E comparable] func(fatal bool, err error, endpoint E)

// Balancer distributes operations across a fixed set of endpoints. The
// endpoint ordering is shuffled once at construction and never changes;
// only the policy's selection among them reorders attempts. A Balancer is
// safe for concurrent use, and policy state persists across Request calls.
type Balancer[E comparable] struct {
	endpoints []E
	policy    Policy[E]
	fatal     Fatal
	notify    NotifyFunc[E]
	retry     RetryFunc
	log       *slog.Logger
}

type config[E comparable] struct {
	policy        Policy[E]
	policyFactory func(endpoints []E) (Policy[E], error)
	fatal         Fatal
	fatalSet      bool
	notify        NotifyFunc[E]
	retries       int
	retriesSet    bool
	retryFunc     RetryFunc
	logger        *slog.Logger
}

// Option configures a Balancer at construction time.
type Option[E comparable] func(*config[E])

// WithPolicy supplies a ready selection policy instance.
func WithPolicy[E comparable](p Policy[E]) Option[E] {
	return func(c *config[E]) { c.policy = p }
}

// WithPolicyFactory supplies a factory that builds the selection policy from
// the shuffled endpoint set.
func WithPolicyFactory[E comparable](f func(endpoints []E) (Policy[E], error)) Option[E] {
	return func(c *config[E]) { c.policyFactory = f }
}

// WithFatal replaces the default fatal classifier.
func WithFatal[E comparable](f Fatal) Option[E] {
	return func(c *config[E]) { c.fatal = f; c.fatalSet = true }
}

// WithNotify installs a hook invoked after every failed attempt.
func WithNotify[E comparable](hook NotifyFunc[E]) Option[E] {
	return func(c *config[E]) { c.notify = hook }
}

// WithRetries caps the number of attempts per Request call. The cap never
// exceeds one attempt per configured endpoint; use WithRetryFunc for policies
// that revisit endpoints.
func WithRetries[E comparable](n int) Option[E] {
	return func(c *config[E]) { c.retries = n; c.retriesSet = true }
}

// WithRetryFunc replaces the integer retry bound with a predicate.
func WithRetryFunc[E comparable](pred RetryFunc) Option[E] {
	return func(c *config[E]) { c.retryFunc = pred }
}

// WithLogger routes the balancer's informational output to l instead of the
// package logger.
func WithLogger[E comparable](l *slog.Logger) Option[E] {
	return func(c *config[E]) { c.logger = l }
}

// New builds a Balancer over a non-empty endpoint set. The endpoints are
// copied and shuffled once so that process lifetimes do not systematically
// favor the first configured endpoint.
func New[E comparable](endpoints []E, opts ...Option[E]) (*Balancer[E], error) {
	if len(endpoints) == 0 {
		return nil, &ConfigError{Reason: "cannot balance over an empty endpoint set"}
	}

	shuffled := make([]E, len(endpoints))
	copy(shuffled, endpoints)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	var c config[E]
	for _, opt := range opts {
		opt(&c)
	}

	if c.policy != nil && c.policyFactory != nil {
		return nil, &ConfigError{Reason: "policy and policy factory are mutually exclusive"}
	}
	if c.fatalSet && c.fatal == nil {
		return nil, &ConfigError{Reason: "fatal classifier must not be nil"}
	}
	if c.retriesSet && c.retryFunc != nil {
		return nil, &ConfigError{Reason: "retry count and retry predicate are mutually exclusive"}
	}
	if c.retriesSet && c.retries < 1 {
		return nil, &ConfigError{Reason: "retry count must be positive"}
	}

	policy := c.policy
	if c.policyFactory != nil {
		p, err := c.policyFactory(shuffled)
		if err != nil {
			return nil, &ConfigError{Reason: "policy factory: " + err.Error()}
		}
		if p == nil {
			return nil, &ConfigError{Reason: "policy factory returned nil"}
		}
		policy = p
	}
	if policy == nil {
		policy = NewRoundRobin(shuffled)
	}

	retry := c.retryFunc
	if retry == nil {
		bound := len(shuffled)
		if c.retriesSet && c.retries < bound {
			bound = c.retries
		}
		retry = func(_, attempts int) bool { return attempts < bound }
	}

	fatal := c.fatal
	if fatal == nil {
		fatal = DefaultFatal
	}

	return &Balancer[E]{
		endpoints: shuffled,
		policy:    policy,
		fatal:     fatal,
		notify:    c.notify,
		retry:     retry,
		log:       c.logger,
	}, nil
}

// Endpoints returns a copy of the shuffled endpoint set.
func (b *Balancer[E]) Endpoints() []E {
	out := make([]E, len(b.endpoints))
	copy(out, b.endpoints)
	return out
}

// Request runs op against endpoints chosen by the policy until it succeeds,
// a fatal error occurs, or the retry bound is exhausted. The first success
// wins; its result is returned and no further endpoints are tried. A fatal
// error is returned verbatim, after the endpoint has been marked bad. When
// every permitted attempt fails, Request returns a *NoResultError carrying
// the distinct error types seen.
func (b *Balancer[E]) Request(ctx context.Context, op Operation[E]) (any, error) {
	if op == nil {
		return nil, &ConfigError{Reason: "operation is required"}
	}

	log := b.logger()
	attempts := 0
	var errs []error

	for b.retry(len(b.endpoints), attempts) {
		endpoint, needsProbe, ok := b.policy.Next()
		if !ok {
			log.Error("balancer has no endpoints to offer")
			return nil, newNoResult(errs)
		}
		attempts++

		started := time.Now()
		if needsProbe {
			if err := b.probe(ctx, endpoint); err != nil {
				b.policy.Bad(endpoint, started, time.Now())
				log.Info("health probe failed", "endpoint", endpoint, "error", err)
				continue
			}
			log.Debug("health probe passed", "endpoint", endpoint)
		}

		result, err := b.invoke(ctx, op, endpoint, started)
		finished := time.Now()
		if err == nil {
			b.policy.Good(endpoint, started, finished)
			return result, nil
		}

		b.policy.Bad(endpoint, started, finished)
		fatal := b.fatal(err)
		if b.notify != nil {
			b.notify(fatal, err, endpoint)
		}
		if fatal {
			log.Error("aborting on fatal error", "endpoint", endpoint, "error", err)
			return nil, err
		}

		log.Info("retrying after error", "endpoint", endpoint, "error", err,
			"latency", finished.Sub(started))
		errs = append(errs, err)
	}

	log.Error("all attempts exhausted", "attempts", attempts, "errors", len(errs))
	return nil, newNoResult(errs)
}

// Stats projects the policy's health state into status labels. Policies
// without the Reporter capability yield "n/a" for every endpoint.
func (b *Balancer[E]) Stats() map[E]string {
	if r, ok := b.policy.(Reporter[E]); ok {
		return r.Stats()
	}
	stats := make(map[E]string, len(b.endpoints))
	for _, e := range b.endpoints {
		stats[e] = "n/a"
	}
	return stats
}

func (b *Balancer[E]) probe(ctx context.Context, endpoint E) error {
	prober, ok := b.policy.(Prober[E])
	if !ok {
		// The policy asked for a probe it cannot run; offer the endpoint
		// as-is rather than wedging the loop.
		return nil
	}
	return prober.Probe(ctx, endpoint)
}

// invoke runs the operation, marking the endpoint bad before re-panicking if
// the operation panics. Panics are programmer errors and are never retried,
// but health state must be updated before the stack unwinds.
func (b *Balancer[E]) invoke(ctx context.Context, op Operation[E], endpoint E, started time.Time) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			b.policy.Bad(endpoint, started, time.Now())
			panic(r)
		}
	}()
	return op(ctx, endpoint)
}

func (b *Balancer[E]) logger() *slog.Logger {
	if b.log != nil {
		return b.log
	}
	return packageLogger.Load()
}
