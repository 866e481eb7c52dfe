package balance

import (
	"log/slog"
	"sync/atomic"
)

// packageLogger is consulted by balancers constructed without WithLogger.
// It starts out discarding everything, so the balancer is silent by default.
var packageLogger atomic.Pointer[slog.Logger]

func init() {
	packageLogger.Store(slog.New(slog.DiscardHandler))
}

// SetLogger swaps the logger used by every balancer that was not given its
// own via WithLogger. This is the one piece of process-wide state in the
// package; prefer WithLogger for per-instance control.
func SetLogger(l *slog.Logger) {
	if l != nil {
		packageLogger.Store(l)
	}
}
