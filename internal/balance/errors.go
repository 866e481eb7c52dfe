package balance

import (
	"fmt"
	"strings"
)

// ConfigError reports invalid construction arguments. It is never retried and
// always surfaces synchronously from New or Request.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "balance: " + e.Reason
}

// NoResultError is returned when every permitted attempt failed without a
// success, or when the policy had no endpoint to offer. ErrorTypes holds the
// deduplicated Go type names of the errors encountered, for diagnostics.
type NoResultError struct {
	ErrorTypes []string
	Errs       []error
}

func (e *NoResultError) Error() string {
	if len(e.ErrorTypes) == 0 {
		return "balance: no endpoints available"
	}
	return fmt.Sprintf("balance: no result after trying all endpoints (errors: %s)",
		strings.Join(e.ErrorTypes, ", "))
}

// Unwrap exposes the captured attempt errors to errors.Is/errors.As.
func (e *NoResultError) Unwrap() []error {
	return e.Errs
}

func newNoResult(errs []error) *NoResultError {
	seen := make(map[string]struct{}, len(errs))
	var types []string
	for _, err := range errs {
		name := fmt.Sprintf("%T", err)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		types = append(types, name)
	}
	return &NoResultError{ErrorTypes: types, Errs: errs}
}
