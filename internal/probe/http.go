// Package probe provides health probe implementations for recovering
// endpoints. Probes are lightweight checks handed to the HealthCheck policy;
// their failures never surface as a request's result.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/failover/internal/balance"
)

// HTTP returns a probe that issues a GET against path on the endpoint base
// URL. Any status below 400 passes.
func HTTP(client *http.Client, path string) balance.ProbeFunc[string] {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return func(ctx context.Context, endpoint string) error {
		u := strings.TrimRight(endpoint, "/") + "/" + strings.TrimLeft(path, "/")
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("create probe request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("probe %s: %w", endpoint, err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode >= 400 {
			return fmt.Errorf("probe %s: http %d", endpoint, resp.StatusCode)
		}
		return nil
	}
}
