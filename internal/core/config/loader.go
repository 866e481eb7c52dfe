package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if len(cfg.Groups) == 0 {
		return nil, fmt.Errorf("config defines no endpoint groups")
	}

	seen := make(map[string]bool, len(cfg.Groups))
	for i := range cfg.Groups {
		g := &cfg.Groups[i]
		if g.Name == "" {
			return nil, fmt.Errorf("group %d has no name", i)
		}
		if seen[g.Name] {
			return nil, fmt.Errorf("duplicate group name %q", g.Name)
		}
		seen[g.Name] = true
		if len(g.Endpoints) == 0 {
			return nil, fmt.Errorf("group %q has no endpoints", g.Name)
		}

		if g.Policy == "" {
			g.Policy = "round_robin"
		}
		if g.Policy != "round_robin" && g.Policy != "health_check" {
			return nil, fmt.Errorf("group %q: unknown policy %q", g.Name, g.Policy)
		}
		if g.TimeoutSeconds == 0 {
			g.TimeoutSeconds = 30
		}
		if g.HealthPath == "" {
			g.HealthPath = "/health"
		}
		if g.ProbeKind == "" {
			g.ProbeKind = "http"
		}
		if g.ProbeKind != "http" && g.ProbeKind != "grpc" {
			return nil, fmt.Errorf("group %q: unknown probe kind %q", g.Name, g.ProbeKind)
		}
	}

	return &cfg, nil
}
