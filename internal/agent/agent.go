// Package agent runs the per-device sync agent: the local process UI tabs
// talk to. It keeps the durable mirror, the pending queue, the connectivity
// monitor, and the drain coordinator together, so submissions made offline
// reach the backend once it is reachable again.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/duetrack/duetrack/internal/blob"
	"github.com/duetrack/duetrack/internal/cache"
	"github.com/duetrack/duetrack/internal/config"
	"github.com/duetrack/duetrack/internal/connectivity"
	"github.com/duetrack/duetrack/internal/idgen"
	"github.com/duetrack/duetrack/internal/logging"
	"github.com/duetrack/duetrack/internal/metrics"
	"github.com/duetrack/duetrack/internal/mirror"
	"github.com/duetrack/duetrack/internal/notify"
	"github.com/duetrack/duetrack/internal/queue"
	"github.com/duetrack/duetrack/internal/realtime"
	"github.com/duetrack/duetrack/internal/remote"
	"github.com/duetrack/duetrack/internal/session"
	"github.com/duetrack/duetrack/internal/syncer"
)

// Agent wires the offline submission subsystem for one device.
type Agent struct {
	cfg      *config.Config
	deviceID string
	logger   *slog.Logger

	mirror       mirror.Mirror
	client       *remote.HTTPClient
	sessionStore *session.Store
	queueStore   queue.Store
	cacheLayer   *cache.Layer
	monitor      *connectivity.Monitor
	dispatcher   *notify.Dispatcher
	coordinator  *syncer.Coordinator
	hub          *realtime.Hub

	router  *gin.Engine
	httpSrv *http.Server
}

// Option configures the agent.
type Option func(*Agent)

// WithMirror injects a mirror handle (for testing).
func WithMirror(m mirror.Mirror) Option {
	return func(a *Agent) { a.mirror = m }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// New builds an agent from configuration. The mirror is Redis when
// REDIS_ADDR is set, otherwise an in-process store that lives as long as
// the agent does.
func New(cfg *config.Config, opts ...Option) (*Agent, error) {
	a := &Agent{
		cfg:      cfg,
		deviceID: cfg.DeviceID,
		logger:   logging.New(cfg.LogLevel, "json"),
	}
	if a.deviceID == "" {
		a.deviceID = "dev-" + idgen.Hex(6)
	}

	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("device_id", a.deviceID)

	if a.mirror == nil {
		if cfg.RedisAddr != "" {
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
			})
			m, err := mirror.NewRedis(rdb, "duetrack", a.logger)
			if err != nil {
				return nil, fmt.Errorf("connect mirror: %w", err)
			}
			a.mirror = m
			a.logger.Info("using redis mirror", "addr", cfg.RedisAddr)
		} else {
			a.mirror = mirror.NewMemoryStore().OpenAs(a.deviceID)
			a.logger.Info("using in-memory mirror (queue will not survive restarts)")
		}
	}

	a.client = remote.NewHTTPClient(cfg.BackendURL, cfg.APIToken)
	a.sessionStore = session.NewStore(a.mirror, a.logger)
	a.queueStore = queue.NewMirrorStore(a.mirror, a.logger)
	a.cacheLayer = cache.NewLayer(a.mirror, a.logger)

	a.monitor = connectivity.NewMonitor(a.client, connectivity.Config{
		ProbeInterval:   cfg.ProbeInterval,
		DebounceWindow:  cfg.DebounceWindow,
		RecoveredWindow: cfg.RecoveredWindow,
	}, a.logger)

	a.hub = realtime.NewHub(a.logger)
	a.dispatcher = notify.NewDispatcher(notify.NewRecordStore(a.client), &hubCuer{hub: a.hub}, a.logger)

	var uploader blob.Uploader
	if cfg.StorageURL != "" {
		uploader = blob.NewHTTPUploader(cfg.StorageURL, cfg.APIToken)
	} else {
		uploader = blob.NewMemoryUploader()
		a.logger.Warn("no STORAGE_URL configured, receipts are not uploaded")
	}

	a.coordinator = syncer.NewCoordinator(
		a.queueStore,
		a.client,
		a.dispatcher,
		a.monitor,
		uploader,
		a.hub,
		syncer.Config{
			BaseDelay:     cfg.DrainBaseDelay,
			MaxDelay:      cfg.DrainMaxDelay,
			MaxRetries:    cfg.DrainMaxRetries,
			SweepInterval: cfg.SweepInterval,
		},
		a.logger,
	)

	// Tell open tabs the link is back so they can refresh their views.
	a.monitor.OnTransition(func(s connectivity.State) {
		if s == connectivity.Online {
			a.hub.Announce(realtime.EventRecovered, map[string]any{
				"deviceId": a.deviceID,
			})
		}
	})

	// Session changes from other tabs propagate through the hub too.
	a.sessionStore.OnExternalChange(func(rec *session.Record) {
		if rec == nil {
			a.logger.Info("session cleared by another tab")
		}
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	a.router = gin.New()
	a.router.Use(gin.Recovery())
	a.router.Use(metrics.GinMiddleware())
	a.setupRoutes()

	return a, nil
}

// hubCuer surfaces notification cues to connected tabs.
type hubCuer struct {
	hub *realtime.Hub
}

func (c *hubCuer) Cue(kind string) {
	c.hub.Announce(realtime.EventNotification, map[string]any{"kind": kind})
}

// Run starts the background loops and the local HTTP server, and blocks
// until the context is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.hub.Run(runCtx)
	a.monitor.Start()
	defer a.monitor.Stop()
	a.coordinator.Start()
	defer a.coordinator.Stop()

	// Probe once at startup so the first Submit sees a real state.
	probeCtx, probeCancel := context.WithTimeout(runCtx, 5*time.Second)
	a.monitor.Recheck(probeCtx)
	probeCancel()

	a.httpSrv = &http.Server{
		Addr:              ":" + a.cfg.AgentPort,
		Handler:           a.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		a.logger.Info("agent listening", "port", a.cfg.AgentPort, "backend", a.cfg.BackendURL)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("agent server error: %w", err)
	case <-ctx.Done():
		a.logger.Info("shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("agent shutdown: %w", err)
	}

	a.sessionStore.Close()
	return a.mirror.Close()
}

// Router exposes the gin engine for tests.
func (a *Agent) Router() http.Handler {
	return a.router
}
