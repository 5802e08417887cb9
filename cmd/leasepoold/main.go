package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/guileen/leasepool/api"
	"github.com/guileen/leasepool/archive"
	"github.com/guileen/leasepool/config"
	"github.com/guileen/leasepool/health"
	"github.com/guileen/leasepool/logger"
	"github.com/guileen/leasepool/metrics"
	"github.com/guileen/leasepool/pool"
	"github.com/guileen/leasepool/stats"
	"github.com/guileen/leasepool/supervisor"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "leasepool.yaml", "path to a YAML or TOML config file")
	enablePprof := flag.Bool("pprof", false, "serve /debug/pprof")
	workers := flag.Int("load", 0, "number of synthetic workers exercising the pool")
	flag.Parse()

	if err := run(*configPath, *enablePprof, *workers); err != nil {
		logger.Error("leasepoold exited", logger.ErrorField(err))
		log.Fatalf("leasepoold: %v", err)
	}
}

func run(configPath string, enablePprof bool, workers int) error {
	startTime := time.Now()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Info("Configuration loaded", "path", configPath, "pool", cfg.Pool.Name)

	p, err := pool.New(cfg.PoolConfig(), pool.WithName(cfg.Pool.Name))
	if err != nil {
		return err
	}
	defer p.Shutdown()

	monitor, err := health.NewMonitor(
		health.WithThresholds(cfg.Health.UnhealthyUtilization, cfg.Health.DegradedUtilization),
		health.WithMaxAlerts(cfg.Health.MaxAlerts),
	)
	if err != nil {
		return err
	}
	recorder := stats.NewRecorder()
	collector := metrics.NewCollector(cfg.Server.MetricsNamespace)

	supOpts := []supervisor.Option{supervisor.WithObserver(collector)}
	apiOpts := []api.Option{api.WithMetrics(collector.Handler())}

	if cfg.Archive.Path != "" {
		store, err := archive.Open(archive.DefaultConfig(cfg.Archive.Path))
		if err != nil {
			return err
		}
		defer store.Close()
		logger.Info("Sample archive opened", "path", cfg.Archive.Path)
		supOpts = append(supOpts, supervisor.WithSink(store))
		apiOpts = append(apiOpts, api.WithArchive(store))
	}

	sup, err := supervisor.New(supervisor.Config{
		Name:           cfg.Pool.Name,
		Interval:       cfg.Supervisor.Interval.Duration,
		CleanupExpired: cfg.Supervisor.CleanupExpired,
		MaxSamples:     cfg.Supervisor.MaxSamples,
	}, p, monitor, recorder, supOpts...)
	if err != nil {
		return err
	}
	apiOpts = append(apiOpts, api.WithTicker(sup))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if enablePprof {
		registerPprof(r)
	}
	api.NewHandler(cfg.Pool.Name, p, monitor, recorder, apiOpts...).RegisterRoutes(r)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down HTTP server")
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return sup.Run(gctx)
	})
	if workers > 0 {
		g.Go(func() error {
			return generateLoad(gctx, p, workers)
		})
	}

	logger.Info("leasepoold started", "init_duration", time.Since(startTime).String())
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("leasepoold stopped", "uptime", time.Since(startTime).String())
	return nil
}

func registerPprof(r chi.Router) {
	r.HandleFunc("/debug/pprof/", pprof.Index)
	r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	r.HandleFunc("/debug/pprof/profile", pprof.Profile)
	r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	r.Handle("/debug/pprof/mutex", pprof.Handler("mutex"))
}
