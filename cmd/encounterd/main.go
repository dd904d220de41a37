// Package main runs the encounter engine daemon: a supervisor with hot
// reloadable content and tuning, an optional scenario soak runner, summary
// persistence, and a gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/cory-johannsen/skirmish/internal/config"
	"github.com/cory-johannsen/skirmish/internal/game/catalog"
	"github.com/cory-johannsen/skirmish/internal/game/encounter"
	"github.com/cory-johannsen/skirmish/internal/game/scenario"
	"github.com/cory-johannsen/skirmish/internal/notify"
	"github.com/cory-johannsen/skirmish/internal/observability"
	"github.com/cory-johannsen/skirmish/internal/scripting"
	"github.com/cory-johannsen/skirmish/internal/server"
	"github.com/cory-johannsen/skirmish/internal/session"
	"github.com/cory-johannsen/skirmish/internal/storage/postgres"
)

// serviceName is the health status key for the engine itself.
const serviceName = "skirmish.Engine"

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	v := config.New(*configPath)
	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("reading config: %v", err)
	}
	cfg, err := config.LoadFromViper(v)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting encounter engine",
		zap.String("grpc_addr", cfg.Server.Addr()),
		zap.Duration("tick_interval", cfg.Engine.TickInterval),
	)

	// Content
	catStart := time.Now()
	cat, err := catalog.LoadDirectory(cfg.Catalog.Dir)
	if err != nil {
		logger.Fatal("loading catalog", zap.Error(err))
	}
	store := catalog.NewStore(cat)
	if err := config.ApplyTuning(v, store); err != nil {
		logger.Fatal("applying tuning", zap.Error(err))
	}
	config.Watch(v, store, logger)
	logger.Info("catalog loaded",
		zap.String("dir", cfg.Catalog.Dir),
		zap.Uint64("tuning_version", store.Tuning().Version),
		zap.Duration("elapsed", time.Since(catStart)),
	)

	scriptDir := filepath.Join(cfg.Catalog.Dir, "scripts", "behaviors")
	scripts := scripting.NewManager(logger, cfg.Engine.ScriptInstructionLimit)
	defer scripts.Close()
	if err := scripts.Load(scriptDir); err != nil {
		logger.Fatal("loading behavior scripts", zap.Error(err))
	}

	// Persistence
	var pool *postgres.Pool
	opts := []session.Option{session.WithBehaviorScript(scripts)}
	if cfg.Database.Enabled {
		dbStart := time.Now()
		pool, err = postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		defer pool.Close()
		opts = append(opts, session.WithSummarySink(pool.Summaries()))
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
	}

	sup := session.NewSupervisor(store, session.Config{
		TickInterval:   cfg.Engine.TickInterval,
		NotifyInterval: cfg.Engine.NotifyInterval,
		MaxEncounters:  cfg.Engine.MaxEncounters,
	}, logger, opts...)

	lifecycle := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)
	healthSrv := health.NewServer()

	// gRPC health
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	lifecycle.Add("grpc", &server.FuncService{
		StartFn: func() error {
			lis, err := net.Listen("tcp", cfg.Server.Addr())
			if err != nil {
				return fmt.Errorf("listening on %s: %w", cfg.Server.Addr(), err)
			}
			healthSrv.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
			logger.Info("grpc health listening", zap.String("addr", cfg.Server.Addr()))
			return grpcServer.Serve(lis)
		},
		StopFn: func(ctx context.Context) error {
			healthSrv.Shutdown()
			stopped := make(chan struct{})
			go func() {
				grpcServer.GracefulStop()
				close(stopped)
			}()
			select {
			case <-stopped:
				return nil
			case <-ctx.Done():
				grpcServer.Stop()
				return ctx.Err()
			}
		},
	})

	// Supervisor
	lifecycle.Add("supervisor", &server.FuncService{
		StartFn: func() error { return nil },
		StopFn: func(ctx context.Context) error {
			err := sup.Shutdown(ctx)
			st := sup.Stats()
			logger.Info("encounter totals",
				zap.Uint64("created", st.Created),
				zap.Uint64("won", st.Won),
				zap.Uint64("lost", st.Lost),
				zap.Uint64("timed_out", st.TimedOut),
				zap.Uint64("cancelled", st.Cancelled),
				zap.Uint64("abandoned", st.Abandoned),
			)
			return err
		},
	})

	if cfg.Catalog.ReloadInterval > 0 {
		lifecycle.Add("content-reload", loopService(cfg.Catalog.ReloadInterval, func() {
			if err := store.Reload(cfg.Catalog.Dir); err != nil {
				logger.Warn("catalog reload rejected", zap.Error(err))
			}
			if err := scripts.Load(scriptDir); err != nil {
				logger.Warn("behavior script reload rejected", zap.Error(err))
			}
		}))
	}

	if pool != nil {
		lifecycle.Add("db-health", loopService(30*time.Second, func() {
			status := healthpb.HealthCheckResponse_SERVING
			if err := pool.Health(ctx, 5*time.Second); err != nil {
				logger.Warn("database health check failed", zap.Error(err))
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			healthSrv.SetServingStatus("skirmish.Database", status)
		}))
	}

	if cfg.Soak.Enabled {
		lifecycle.Add("soak", soakService(cfg, sup, logger))
	}

	logger.Info("encounter engine ready", zap.Duration("startup", time.Since(start)))
	if err := lifecycle.Run(ctx); err != nil {
		logger.Error("encounter engine exited with error", zap.Error(err))
	}
}

// loopService runs fn every interval between Start and Stop.
func loopService(interval time.Duration, fn func()) *server.FuncService {
	stop := make(chan struct{})
	done := make(chan struct{})
	return &server.FuncService{
		StartFn: func() error {
			defer close(done)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-stop:
					return nil
				case <-ticker.C:
					fn()
				}
			}
		},
		StopFn: func(ctx context.Context) error {
			close(stop)
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// soakService loads the configured scenarios and keeps them running.
func soakService(cfg config.Config, sup *session.Supervisor, logger *zap.Logger) *server.FuncService {
	dir := cfg.Soak.Dir
	if dir == "" {
		dir = filepath.Join(cfg.Catalog.Dir, "scenarios")
	}
	all, err := scenario.LoadDirectory(dir)
	if err != nil {
		logger.Fatal("loading soak scenarios", zap.Error(err))
	}
	if len(cfg.Soak.Scenarios) > 0 {
		var picked []*scenario.Scenario
		for _, id := range cfg.Soak.Scenarios {
			sc, ok := scenario.Find(all, id)
			if !ok {
				logger.Fatal("unknown soak scenario", zap.String("scenario", id))
			}
			picked = append(picked, sc)
		}
		all = picked
	}
	if len(all) == 0 {
		logger.Fatal("no soak scenarios", zap.String("dir", dir))
	}

	defaults := encounter.Setup{
		Step:       cfg.Engine.Step,
		GraceTicks: cfg.Engine.GraceTicks,
		TimeBudget: cfg.Engine.TimeBudget,
		LogWindow:  cfg.Engine.LogWindow,
	}
	rotation := make([]session.SoakScenario, 0, len(all))
	for _, sc := range all {
		rotation = append(rotation, session.SoakScenario{Name: sc.ID, Setup: sc.Setup(defaults)})
	}

	soakLogger := logger.Named("soak")
	soak := session.NewSoak(sup, rotation, session.SoakConfig{
		Interval:    cfg.Soak.Interval,
		Concurrency: cfg.Soak.Concurrency,
		NewEmitter: func(name string) session.Emitter {
			return notify.NewLogEmitter(soakLogger.With(zap.String("scenario", name)))
		},
	}, soakLogger)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	return &server.FuncService{
		StartFn: func() error {
			defer close(done)
			if err := soak.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
		StopFn: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}
