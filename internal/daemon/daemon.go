package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/tutu-network/karma/internal/api"
	"github.com/tutu-network/karma/internal/app/engagement"
	"github.com/tutu-network/karma/internal/domain"
	"github.com/tutu-network/karma/internal/health"
	"github.com/tutu-network/karma/internal/infra/catalog"
	"github.com/tutu-network/karma/internal/infra/store"
	"github.com/tutu-network/karma/internal/logger"
)

// Daemon is the karma runtime. It wires the store, catalog, ledger facade,
// health checker and HTTP API together.
type Daemon struct {
	Config  Config
	DB      *store.DB
	Catalog *catalog.Catalog
	Ledger  *engagement.Facade
	Server  *api.Server
	Health  *health.Checker
	Log     *zap.Logger

	scheduler gocron.Scheduler
	stopOnce  sync.Once
	cancel    context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxFiles:   cfg.Logging.MaxFiles,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	dir := cfg.Database.Dir
	if dir == "" {
		dir = karmaHome()
	}
	db, err := store.Open(store.Config{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		Dir:          dir,
		MaxOpenConns: cfg.Database.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	cat, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	policy, err := engagement.ParseBackfillPolicy(cfg.Ledger.BackfillPolicy)
	if err != nil {
		db.Close()
		return nil, err
	}

	facade := engagement.NewFacade(db, cat, engagement.Options{
		BackfillPolicy: policy,
		MaxAttempts:    cfg.Ledger.MaxAttempts,
		RetryInitial:   parseDuration(cfg.Ledger.RetryInitial, 20*time.Millisecond),
		RetryMax:       parseDuration(cfg.Ledger.RetryMax, time.Second),
		Logger:         log,

		DailyChallenges:  cfg.Challenges.Daily,
		WeeklyChallenges: cfg.Challenges.Weekly,
	})

	checker := health.NewChecker(db, cat, func(ctx context.Context) error {
		_, err := facade.Reconcile(ctx)
		return err
	}, log)
	checker.SetInterval(parseDuration(cfg.Sweep.HealthInterval, time.Minute))

	srv := api.NewServer(facade, cat, log)
	srv.SetHealth(checker)
	srv.SetTimeout(parseDuration(cfg.API.Timeout, 30*time.Second))
	if cfg.API.RatePerSecond > 0 {
		srv.SetRateLimit(cfg.API.RatePerSecond, cfg.API.Burst)
	}
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	return &Daemon{
		Config:  cfg,
		DB:      db,
		Catalog: cat,
		Ledger:  facade,
		Server:  srv,
		Health:  checker,
		Log:     log,
	}, nil
}

// Sweep deactivates streaks whose last activity is older than yesterday
// and expires challenges whose window has closed.
func (d *Daemon) Sweep(ctx context.Context) (domain.SweepResult, error) {
	return d.Ledger.Sweep(ctx, domain.Today())
}

// startScheduler registers the periodic sweep. A disabled sweep leaves the
// scheduler nil.
func (d *Daemon) startScheduler(ctx context.Context) error {
	if !d.Config.Sweep.Enabled {
		return nil
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	every := parseDuration(d.Config.Sweep.Interval, time.Hour)
	_, err = sched.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			res, err := d.Sweep(ctx)
			if err != nil {
				d.Log.Error("sweep failed", zap.Error(err))
				return
			}
			d.Log.Info("sweep finished",
				zap.Int64("streaks_deactivated", res.StreaksDeactivated),
				zap.Int64("challenges_expired", res.ChallengesExpired))
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule sweep: %w", err)
	}

	sched.Start()
	d.scheduler = sched
	return nil
}

func (d *Daemon) stopScheduler() {
	d.stopOnce.Do(func() {
		if d.scheduler == nil {
			return
		}
		if err := d.scheduler.Shutdown(); err != nil {
			d.Log.Warn("scheduler shutdown", zap.Error(err))
		}
	})
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	go d.Health.Run(ctx)

	if err := d.startScheduler(ctx); err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           d.Server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			d.Log.Info("shutdown signal received")
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		d.stopScheduler()
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
	}()

	fmt.Printf("karma serving on http://%s\n", addr)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}
	d.Log.Info("server started",
		zap.String("addr", addr),
		zap.String("driver", string(d.DB.Dialect())),
		zap.Int("activities", len(d.Catalog.Activities())),
	)

	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	d.stopScheduler()
	if d.DB != nil {
		_ = d.DB.Close()
	}
	if d.Log != nil {
		_ = d.Log.Sync()
	}
}
