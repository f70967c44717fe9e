package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"fairrate/db"
	"fairrate/internal/analytics"
	"fairrate/internal/api"
	"fairrate/internal/calc"
	"fairrate/internal/config"
	"fairrate/internal/email"
	"fairrate/internal/migrate"
	"fairrate/internal/observability"
	"fairrate/internal/ppp"
	"fairrate/internal/session"
	"fairrate/internal/store"
	"fairrate/internal/throttle"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	_ "modernc.org/sqlite"
)

type Runtime struct {
	Handler http.Handler
	Cleanup func()
}

// NewRuntime wires every component. An error means the backing store could
// not be reached or prepared and the process should exit.
func NewRuntime(ctx context.Context, cfg config.Config, logger logr.Logger) (*Runtime, error) {
	repo, closeRepo, err := buildRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	var cleanups []func()
	cleanups = append(cleanups, closeRepo)
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	factors := ppp.NewStore(repo, logger.WithName("ppp"))
	if err := factors.Initialize(ctx); err != nil {
		cleanup()
		return nil, fmt.Errorf("initialize ppp store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	aggregator := analytics.NewAggregator(repo, logger.WithName("analytics"), analytics.WithRegisterer(reg))
	auth := session.NewAuthenticator(repo, session.Config{
		Password:     cfg.Admin.Password,
		PasswordHash: cfg.Admin.PasswordHash,
		TTL:          cfg.Admin.SessionTTL,
		FailureDelay: cfg.Admin.FailureDelay,
	}, logger.WithName("session"))

	sweeps := session.NewSweepCounter()
	reg.MustRegister(sweeps)
	sweepCtx, stopSweeper := context.WithCancel(ctx)
	sweeper := &session.Sweeper{
		Auth:     auth,
		Interval: cfg.Admin.SweepInterval,
		Logger:   logger.WithName("session-sweeper"),
		Sweeps:   sweeps,
	}
	sweeperDone := sweeper.Run(sweepCtx)
	// Runs before closeRepo: the sweeper must be gone before its store is.
	cleanups = append(cleanups, func() {
		stopSweeper()
		<-sweeperDone
	})
	logger.Info("session sweeper started", "interval", cfg.Admin.SweepInterval.String())

	limits, closeLimits, err := buildLimits(ctx, cfg, reg, logger)
	if err != nil {
		cleanup()
		return nil, err
	}
	cleanups = append(cleanups, closeLimits)

	server := api.NewServer(api.ServerOptions{
		Calculator:  calc.NewCalculator(factors),
		Countries:   factors,
		Analytics:   aggregator,
		Auth:        auth,
		Email:       buildEmail(cfg, logger),
		Limits:      limits,
		Audit:       api.AuditPolicy{LogFile: cfg.Audit.LogFile},
		FrontendURL: cfg.FrontendURL,
		TrustProxy:  cfg.TrustProxy,
		Logger:      logger.WithName("api"),
	})

	metrics := observability.NewHTTPMetrics(reg)
	rootMux := http.NewServeMux()
	rootMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	rootMux.Handle("/", observability.RequestID(metrics.Wrap(server.Routes())))

	return &Runtime{
		Handler: rootMux,
		Cleanup: cleanup,
	}, nil
}

func buildRepository(ctx context.Context, cfg config.Config, logger logr.Logger) (store.Repository, func(), error) {
	if cfg.DBDriver == "" || cfg.DBDSN == "" {
		logger.Info("running with in-memory repository")
		return store.NewMemoryRepository(), func() {}, nil
	}

	dsn := applyPostgresTLS(cfg)
	conn, err := sql.Open(cfg.DBDriver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}
	if cfg.DBDialect == "sqlite" {
		// One writer keeps concurrent upserts from failing with SQLITE_BUSY.
		conn.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("db ping: %w", err)
	}

	if cfg.DBMigrate {
		runner := migrate.NewRunner(db.Migrations)
		if err := runner.Apply(ctx, conn, cfg.DBDialect); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("migration apply: %w", err)
		}
	}

	repo, err := store.NewSQLRepository(conn, cfg.DBDialect)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("sql repository init: %w", err)
	}
	logger.Info("running with SQL repository", "dialect", cfg.DBDialect)
	return repo, func() { _ = conn.Close() }, nil
}

func applyPostgresTLS(cfg config.Config) string {
	driver := strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if driver != "pgx" {
		return cfg.DBDSN
	}
	if strings.TrimSpace(cfg.DB.SSLMode) == "" &&
		strings.TrimSpace(cfg.DB.SSLRootCert) == "" &&
		strings.TrimSpace(cfg.DB.SSLCert) == "" &&
		strings.TrimSpace(cfg.DB.SSLKey) == "" {
		return cfg.DBDSN
	}
	u, err := url.Parse(cfg.DBDSN)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return cfg.DBDSN
	}
	q := u.Query()
	if strings.TrimSpace(cfg.DB.SSLMode) != "" {
		q.Set("sslmode", strings.TrimSpace(cfg.DB.SSLMode))
	}
	if strings.TrimSpace(cfg.DB.SSLRootCert) != "" {
		q.Set("sslrootcert", strings.TrimSpace(cfg.DB.SSLRootCert))
	}
	if strings.TrimSpace(cfg.DB.SSLCert) != "" {
		q.Set("sslcert", strings.TrimSpace(cfg.DB.SSLCert))
	}
	if strings.TrimSpace(cfg.DB.SSLKey) != "" {
		q.Set("sslkey", strings.TrimSpace(cfg.DB.SSLKey))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// buildLimits creates one limiter per policy. Memory stores are never shared
// between policies; a Redis store is shared and separates policies by key.
func buildLimits(ctx context.Context, cfg config.Config, reg prometheus.Registerer, logger logr.Logger) (api.Limits, func(), error) {
	if !cfg.RateLimit.Enabled {
		logger.Info("rate limiting disabled")
		return api.Limits{}, func() {}, nil
	}
	denied := throttle.NewDeniedCounter()
	reg.MustRegister(denied)

	newStore := func() throttle.Store { return throttle.NewMemoryStore() }
	closeFn := func() {}
	if strings.EqualFold(strings.TrimSpace(cfg.RateLimit.Backend), "redis") {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			// Limiters fail open, so an unreachable Redis only costs throttling.
			logger.Error(err, "redis ping failed; throttling degrades to allow until it recovers", "addr", cfg.Redis.Addr)
		}
		shared := throttle.NewRedisStore(client, cfg.Redis.Prefix)
		newStore = func() throttle.Store { return shared }
		closeFn = func() { _ = client.Close() }
	}

	build := func(p throttle.Policy) (api.Limiter, error) {
		l, err := throttle.NewLimiter(p, newStore(), throttle.WithDeniedCounter(denied.WithLabelValues(p.Name)))
		if err != nil {
			return nil, err
		}
		return l, nil
	}
	var limits api.Limits
	var err error
	if limits.General, err = build(throttle.GeneralAPI); err != nil {
		closeFn()
		return api.Limits{}, nil, err
	}
	if limits.Calculation, err = build(throttle.Calculation); err != nil {
		closeFn()
		return api.Limits{}, nil, err
	}
	if limits.Login, err = build(throttle.AdminLogin); err != nil {
		closeFn()
		return api.Limits{}, nil, err
	}
	logger.Info("rate limiting enabled", "backend", cfg.RateLimit.Backend)
	return limits, closeFn, nil
}

func buildEmail(cfg config.Config, logger logr.Logger) *email.Generator {
	var completer email.Completer
	if key := strings.TrimSpace(cfg.OpenAI.APIKey); key != "" {
		completer = email.NewOpenAIClient(key, cfg.OpenAI.Model, cfg.OpenAI.BaseURL, cfg.OpenAI.Timeout)
	}
	return email.NewGenerator(completer, cfg.OpenAI.Timeout, logger.WithName("email"))
}
