// Package control wires configuration into running balancer groups and the
// gateway server.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/vietddude/failover/internal/balance"
	"github.com/vietddude/failover/internal/core/config"
	"github.com/vietddude/failover/internal/encoding"
	"github.com/vietddude/failover/internal/httpx"
	"github.com/vietddude/failover/internal/metrics"
	"github.com/vietddude/failover/internal/probe"
	redisclient "github.com/vietddude/failover/internal/redis"
	"github.com/vietddude/failover/internal/storage/postgres"
)

const (
	statsInterval = 15 * time.Second
	statsTTL      = 2 * time.Minute
	pruneInterval = time.Hour
)

// Group is one running balanced endpoint set.
type Group struct {
	Name          string
	Client        *httpx.Client
	Health        *balance.HealthCheck[string] // nil for round_robin
	Composer      *encoding.Composer
	ProbeInterval time.Duration
}

// Config holds the application configuration.
type Config struct {
	Port           int
	Groups         []config.GroupConfig
	Redis          redisclient.Config
	Database       postgres.Config
	AuditRetention time.Duration // 0 = keep forever
}

// App owns every running component: balancer groups, the gateway server,
// and the optional audit store and stats publisher.
type App struct {
	cfg    Config
	groups map[string]*Group
	server *http.Server

	db       *postgres.DB
	attempts *postgres.AttemptRepo
	statuses *postgres.StatusRepo
	redis    *redisclient.Client

	log    *slog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApp creates an App with all dependencies initialized. Database and
// Redis are optional; with empty URLs the gateway runs without audit
// persistence or stats publishing.
func NewApp(ctx context.Context, cfg Config) (*App, error) {
	a := &App{
		cfg:    cfg,
		groups: make(map[string]*Group, len(cfg.Groups)),
		log:    slog.Default(),
	}

	if cfg.Database.URL != "" {
		var db *postgres.DB
		backoff := retry.WithMaxRetries(5, retry.NewExponential(time.Second))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			var err error
			db, err = postgres.NewDB(ctx, cfg.Database)
			if err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := postgres.Migrate(db); err != nil {
			return nil, err
		}
		a.db = db
		a.attempts = postgres.NewAttemptRepo(db)
		a.statuses = postgres.NewStatusRepo(db)
		slog.Info("Attempt audit enabled", "retention", cfg.AuditRetention)
	}

	if cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		a.redis = rc
		slog.Info("Stats publishing enabled")
	}

	for _, gc := range cfg.Groups {
		group, err := a.buildGroup(gc)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", gc.Name, err)
		}
		a.groups[gc.Name] = group
	}

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: a.handler(),
	}
	return a, nil
}

func (a *App) buildGroup(gc config.GroupConfig) (*Group, error) {
	group := &Group{Name: gc.Name}

	opts := []balance.Option[string]{
		balance.WithLogger[string](slog.Default().With("group", gc.Name)),
		balance.WithNotify(a.auditNotify(gc.Name)),
	}
	if gc.Retries > 0 {
		opts = append(opts, balance.WithRetries[string](gc.Retries))
	}

	if gc.Policy == "health_check" {
		var probeFn balance.ProbeFunc[string]
		switch gc.ProbeKind {
		case "grpc":
			probeFn = probe.GRPC(gc.GRPCService, 5*time.Second)
		default:
			probeFn = probe.HTTP(nil, gc.HealthPath)
		}
		probeFn = instrumentProbe(gc.Name, probeFn)

		opts = append(opts, balance.WithPolicyFactory(func(endpoints []string) (balance.Policy[string], error) {
			h, err := balance.NewHealthCheck(endpoints, probeFn, gc.YellowStates)
			if err != nil {
				return nil, err
			}
			group.Health = h
			return h, nil
		}))
		group.ProbeInterval = time.Duration(gc.ProbeIntervalSeconds) * time.Second
	}

	if len(gc.Encoding) > 0 {
		chain := make([]encoding.Encoding, len(gc.Encoding))
		for i, name := range gc.Encoding {
			chain[i] = encoding.Encoding(name)
		}
		composer, err := encoding.NewComposer(chain...)
		if err != nil {
			return nil, err
		}
		group.Composer = composer
	}

	client, err := httpx.New(gc.Name, gc.Endpoints,
		time.Duration(gc.TimeoutSeconds)*time.Second, opts...)
	if err != nil {
		return nil, err
	}
	group.Client = client
	return group, nil
}

// Start launches the gateway server and the background loops.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		slog.Info("Gateway listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Gateway server failed", "error", err)
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.statsLoop(ctx)
	}()

	for _, group := range a.groups {
		if group.Health == nil || group.ProbeInterval <= 0 {
			continue
		}
		a.wg.Add(1)
		go func(g *Group) {
			defer a.wg.Done()
			a.probeLoop(ctx, g)
		}(group)
	}

	if a.attempts != nil && a.cfg.AuditRetention > 0 {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			a.pruneLoop(ctx)
		}()
	}

	return nil
}

// Stop shuts the gateway down and releases connections.
func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	err := a.server.Shutdown(ctx)
	a.wg.Wait()

	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	return err
}

// statsLoop periodically snapshots every group's health projection into the
// gauge metrics, Redis, and the status table.
func (a *App) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, group := range a.groups {
				stats := group.Client.Stats()
				for endpoint, status := range stats {
					metrics.SetEndpointState(name, endpoint, status)
				}
				if a.redis != nil {
					if err := a.redis.PublishStats(ctx, name, stats, statsTTL); err != nil {
						slog.Warn("Failed to publish stats", "group", name, "error", err)
					}
				}
				if a.statuses != nil {
					if err := a.statuses.Upsert(ctx, name, stats); err != nil {
						slog.Warn("Failed to store status snapshot", "group", name, "error", err)
					}
				}
			}
		}
	}
}

// probeLoop runs background health probes so red endpoints can recover even
// when the request path never selects them.
func (a *App) probeLoop(ctx context.Context, group *Group) {
	ticker := time.NewTicker(group.ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			group.Health.CheckAll(ctx)
		}
	}
}

func (a *App) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.attempts.Prune(ctx, a.cfg.AuditRetention)
			if err != nil {
				slog.Warn("Failed to prune attempt audit", "error", err)
				continue
			}
			if n > 0 {
				slog.Info("Pruned attempt audit", "removed", n)
			}
		}
	}
}

// auditNotify records failed attempts. Writes happen off the request path so
// a slow database never delays failover.
func (a *App) auditNotify(group string) balance.NotifyFunc[string] {
	return func(fatal bool, err error, endpoint string) {
		if a.attempts == nil {
			return
		}
		rec := &postgres.AttemptRecord{
			ID:          uuid.New().String(),
			Group:       group,
			Endpoint:    endpoint,
			Succeeded:   false,
			ErrorType:   fmt.Sprintf("%T", err),
			ErrorDetail: err.Error(),
		}
		if fatal {
			rec.ErrorType = "fatal:" + rec.ErrorType
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := a.attempts.Save(ctx, rec); err != nil {
				slog.Warn("Failed to audit attempt", "group", group, "error", err)
			}
		}()
	}
}

func instrumentProbe(group string, inner balance.ProbeFunc[string]) balance.ProbeFunc[string] {
	return func(ctx context.Context, endpoint string) error {
		err := inner(ctx, endpoint)
		result := "pass"
		if err != nil {
			result = "fail"
		}
		metrics.ProbesTotal.WithLabelValues(group, endpoint, result).Inc()
		return err
	}
}
