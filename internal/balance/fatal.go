package balance

import (
	"context"
	"errors"
	"net/http"
)

// Fatal decides whether an error must abort retrying. A fatal error is
// propagated to the caller immediately; anything else causes the balancer to
// try the next endpoint.
type Fatal func(error) bool

// StatusCoder is implemented by errors that carry an HTTP-style status code.
// Transport-level failures without a response should not implement it.
type StatusCoder interface {
	HTTPStatus() int
}

// DefaultFatal treats client errors as permanent and everything else as
// retryable: an error is fatal if it carries a status code in [400,500)
// other than 408 (Request Timeout), or if it is context.Canceled (the caller
// gave up, so trying further endpoints is pointless). 5xx, timeouts, network
// errors, and unrecognized errors are all retryable.
func DefaultFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatus()
		return code >= 400 && code < 500 && code != http.StatusRequestTimeout
	}
	return false
}

// FatalOn builds a classifier that aborts only on errors matching one of the
// given targets, per errors.Is. Everything else is retryable.
func FatalOn(targets ...error) Fatal {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}
