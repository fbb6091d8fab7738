package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/georgemunganga/warehouse-backend/internal/events"
	"github.com/georgemunganga/warehouse-backend/internal/httpx"
	"github.com/georgemunganga/warehouse-backend/internal/idempotency"
	"github.com/georgemunganga/warehouse-backend/internal/log"
	"github.com/georgemunganga/warehouse-backend/internal/metrics"
	"github.com/georgemunganga/warehouse-backend/internal/modules/auth"
	"github.com/georgemunganga/warehouse-backend/internal/modules/fleet"
	"github.com/georgemunganga/warehouse-backend/internal/modules/inventory"
	"github.com/georgemunganga/warehouse-backend/internal/modules/task"
	"github.com/georgemunganga/warehouse-backend/internal/seed"
	"github.com/georgemunganga/warehouse-backend/internal/storage"
	"github.com/georgemunganga/warehouse-backend/internal/storage/memory"
	"github.com/georgemunganga/warehouse-backend/internal/storage/postgres"
)

type server struct {
	http    *http.Server
	sweeper *fleet.MaintenanceSweeper
	closers []func() error
	logger  log.Logger
}

func (s *server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Warningf("error while closing: %s", err)
		}
	}
}

type repositories struct {
	transactor storage.Transactor
	products   inventory.Repository
	tasks      task.Repository
	forklifts  fleet.Repository
	ping       func(context.Context) error
}

// newServer wires storage, modules and the HTTP router.
func newServer(ctx context.Context, cfg Config, logger log.Logger) (_ *server, err error) {
	srv := &server{logger: logger}
	defer func() {
		if err != nil {
			srv.close()
		}
	}()

	// ── Metrics ─────────────────────────────────────────────
	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewPrometheusRecorder(reg)

	// ── Events ──────────────────────────────────────────────
	var publisher events.Publisher = events.Noop
	if cfg.NATSURL != "" {
		nc, err := events.NewNATSPublisher(events.NATSConfig{URL: cfg.NATSURL, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("could not connect to NATS: %w", err)
		}
		srv.closers = append(srv.closers, nc.Close)
		publisher = nc
	}

	// ── Storage ─────────────────────────────────────────────
	repos, err := newRepositories(ctx, cfg, logger, srv)
	if err != nil {
		return nil, err
	}

	// ── Modules ─────────────────────────────────────────────
	inventoryService, err := inventory.NewService(inventory.ServiceConfig{
		Repository: repos.products,
		Transactor: repos.transactor,
		Usage:      repos.tasks,
		Capacity:   cfg.PositionCapacity,
		Events:     publisher,
		Metrics:    rec,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create inventory service: %w", err)
	}

	fleetService, err := fleet.NewService(fleet.ServiceConfig{
		Repository:          repos.forklifts,
		Transactor:          repos.transactor,
		MaintenanceInterval: cfg.MaintenanceInterval,
		Metrics:             rec,
		Logger:              logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create fleet service: %w", err)
	}

	taskService, err := task.NewService(task.ServiceConfig{
		Repository: repos.tasks,
		Transactor: repos.transactor,
		Inventory:  inventoryService,
		Fleet:      fleetService,
		Events:     publisher,
		Metrics:    rec,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create task service: %w", err)
	}

	srv.sweeper, err = fleet.NewMaintenanceSweeper(fleet.SweeperConfig{
		Service:  fleetService,
		Interval: cfg.MaintenanceSweepInterval,
		Window:   cfg.MaintenanceWarnWindow,
		Events:   publisher,
		Metrics:  rec,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create maintenance sweeper: %w", err)
	}

	if cfg.SeedFile != "" {
		fixture, err := seed.Load(os.DirFS("."), cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		if _, err := seed.Apply(ctx, fixture, inventoryService, fleetService, logger); err != nil {
			return nil, fmt.Errorf("could not apply seed: %w", err)
		}
	}

	// ── Router ──────────────────────────────────────────────
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(metrics.Middleware(rec))

	if cfg.JWTSecret != "" {
		authService, err := auth.NewService(cfg.JWTSecret)
		if err != nil {
			return nil, fmt.Errorf("could not create auth service: %w", err)
		}
		router.Use(auth.Middleware(authService, logger))
	} else {
		logger.Warningf("JWT secret not set, every caller is anonymous")
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		srv.closers = append(srv.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("could not connect to redis: %w", err)
		}
		router.Use(idempotency.Middleware(idempotency.NewRedisStore(client), logger))
	}

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := repos.ping(ctx); err != nil {
			httpx.Respond(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		httpx.Respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Handle("/metrics", metrics.Handler(reg))

	inventory.NewHandler(inventoryService).RegisterRoutes(router)
	task.NewHandler(taskService).RegisterRoutes(router)
	fleet.NewHandler(fleetService).RegisterRoutes(router)

	srv.http = &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv, nil
}

func newRepositories(ctx context.Context, cfg Config, logger log.Logger, srv *server) (*repositories, error) {
	switch cfg.storageDriver() {
	case storagePostgres:
		db, err := postgres.Open(ctx, postgres.Config{URL: cfg.DatabaseURL, Migrate: cfg.Migrate, Logger: logger})
		if err != nil {
			return nil, err
		}
		srv.closers = append(srv.closers, db.Close)
		logger.Infof("Using Postgres storage")
		return &repositories{
			transactor: db,
			products:   inventory.NewPostgresRepository(db),
			tasks:      task.NewPostgresRepository(db),
			forklifts:  fleet.NewPostgresRepository(db),
			ping:       db.Ping,
		}, nil
	default:
		logger.Warningf("Using in-memory storage, data is lost on exit")
		return &repositories{
			transactor: memory.Transactor{},
			products:   inventory.NewMemoryRepository(),
			tasks:      task.NewMemoryRepository(),
			forklifts:  fleet.NewMemoryRepository(),
			ping:       func(context.Context) error { return nil },
		}, nil
	}
}
