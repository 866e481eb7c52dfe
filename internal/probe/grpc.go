package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/vietddude/failover/internal/balance"
)

// GRPC returns a probe that runs the standard gRPC health checking protocol
// against the endpoint. service names the service to check; empty checks
// overall server health. Endpoints with an https scheme or :443 suffix dial
// with TLS, everything else dials insecurely.
func GRPC(service string, timeout time.Duration) balance.ProbeFunc[string] {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return func(ctx context.Context, endpoint string) error {
		target := endpoint
		var opts []grpc.DialOption
		if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
			opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{})))
			target = strings.TrimPrefix(target, "https://")
		} else {
			opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
			target = strings.TrimPrefix(target, "http://")
		}

		conn, err := grpc.NewClient(target, opts...)
		if err != nil {
			return fmt.Errorf("dial %s: %w", target, err)
		}
		defer conn.Close()

		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		resp, err := grpc_health_v1.NewHealthClient(conn).Check(checkCtx,
			&grpc_health_v1.HealthCheckRequest{Service: service})
		if err != nil {
			return fmt.Errorf("health check %s: %w", target, err)
		}
		if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
			return fmt.Errorf("health check %s: status %s", target, resp.Status)
		}
		return nil
	}
}
