package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/buildcfg/internal/api"
	"github.com/eugenenazirov/buildcfg/internal/snapshot"
)

// Options configures the config API server.
type Options struct {
	Listen               string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int

	// WatchFiles are polled for changes and trigger a reload when they change.
	WatchFiles []string
}

// DefaultOptions returns the server defaults.
func DefaultOptions() Options {
	return Options{
		Listen:               "127.0.0.1:3100",
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         15 * time.Second,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         25,
		RateLimitBurst:       50,
	}
}

// App encapsulates the snapshot store, the config API and its HTTP server.
type App struct {
	opts    Options
	store   snapshot.Store
	handler *api.Handler
	router  http.Handler
	logger  *zap.Logger
	server  *http.Server
}

// New loads the initial configuration with load and wires the API around it.
// A failing initial load is returned as is so the caller can abort startup.
func New(opts Options, load api.Reloader, logger *zap.Logger) (*App, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}

	store := snapshot.NewMemoryStore()
	if err := store.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to store initial configuration: %w", err)
	}

	handler := api.NewHandler(store, api.WithReloader(load))
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(opts.EnableRequestLogging),
		api.WithRateLimit(opts.RateLimitRPS, opts.RateLimitBurst),
	)

	return &App{
		opts:    opts,
		store:   store,
		handler: handler,
		router:  apiRouter,
		logger:  logger,
		server:  NewServer(opts, apiRouter),
	}, nil
}

// NewServer creates and configures an HTTP server from the provided options.
func NewServer(opts Options, handler http.Handler) *http.Server {
	addr := opts.Listen
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and, when watch files are
// configured, a polling watcher bound to ctx. The watcher adopts the poll
// interval of every successfully reloaded snapshot.
func (a *App) Start(ctx context.Context) error {
	if len(a.opts.WatchFiles) > 0 {
		cfg, _, err := a.store.Get()
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		w := newFileWatcher(a.opts.WatchFiles, cfg.Server.Watch.Interval(), a.reload, a.logger)
		w.nextInterval = a.pollInterval
		go w.run(ctx)
		a.logger.Info("watching configuration files",
			zap.Strings("files", a.opts.WatchFiles),
			zap.Duration("interval", cfg.Server.Watch.Interval()),
		)
	}

	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// pollInterval reports the poll interval of the current snapshot, zero when
// none is loaded.
func (a *App) pollInterval() time.Duration {
	cfg, _, err := a.store.Get()
	if err != nil {
		return 0
	}
	return cfg.Server.Watch.Interval()
}

func (a *App) reload() {
	cfg, err := a.handler.Reload()
	if err != nil {
		a.logger.Warn("configuration reload failed, keeping previous snapshot", zap.Error(err))
		return
	}
	a.logger.Info("configuration reloaded",
		zap.String("root", cfg.Root),
		zap.Int("port", cfg.Server.Port),
		zap.Int("hmr_port", cfg.Server.HMRPort),
	)
}
