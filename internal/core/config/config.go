package config

import (
	redisclient "github.com/vietddude/failover/internal/redis"
	"github.com/vietddude/failover/internal/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Logging  LoggingConfig      `yaml:"logging"`
	Groups   []GroupConfig      `yaml:"groups"`
	Redis    redisclient.Config `yaml:"redis"`
	Database postgres.Config    `yaml:"database"`
	Audit    AuditConfig        `yaml:"audit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// AuditConfig controls attempt audit persistence.
type AuditConfig struct {
	RetentionHours int `yaml:"retention_hours"` // 0 = keep forever
}

// GroupConfig holds settings for one balanced endpoint group.
type GroupConfig struct {
	Name      string   `yaml:"name"`
	Endpoints []string `yaml:"endpoints"`

	// Policy selects endpoint selection: "round_robin" or "health_check".
	Policy string `yaml:"policy"`

	// YellowStates is the consecutive-probe count for health_check recovery.
	YellowStates int `yaml:"yellow_states"`

	// Retries caps attempts per request; 0 means one attempt per endpoint.
	Retries int `yaml:"retries"`

	// TimeoutSeconds bounds each attempt. Timeout enforcement lives in the
	// HTTP client, never in the balancer.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// HealthPath is probed on recovering endpoints (health_check only).
	HealthPath string `yaml:"health_path"`

	// ProbeKind selects the probe transport: "http" or "grpc".
	ProbeKind string `yaml:"probe_kind"`

	// GRPCService names the service for gRPC health checks; empty checks
	// overall server health.
	GRPCService string `yaml:"grpc_service"`

	// ProbeIntervalSeconds schedules background probing of unhealthy
	// endpoints; 0 disables the background prober.
	ProbeIntervalSeconds int `yaml:"probe_interval_seconds"`

	// Encoding wraps forwarded request bodies for upstreams that expect
	// encoded payloads, applied in order (e.g. [base64]).
	Encoding []string `yaml:"encoding"`
}
