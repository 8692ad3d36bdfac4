package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"classboard/internal/api"
	"classboard/internal/auth"
	"classboard/internal/board"
	"classboard/internal/broadcast"
	"classboard/internal/config"
	"classboard/internal/database"
	"classboard/internal/hub"
	"classboard/internal/id"
	"classboard/internal/router"
	"classboard/internal/session"
	"classboard/internal/tracker"
	"classboard/internal/websocket"
	pkgdatabase "classboard/pkg/database"
)

const (
	relayReadyTimeout = 5 * time.Second
	cleanupInterval   = time.Minute
	presenceTTL       = time.Minute
)

// Application owns every component and their start/stop order.
type Application struct {
	config *config.Config

	db          *database.Manager
	registry    *session.Registry
	broadcaster *broadcast.Broadcaster
	relay       *broadcast.RedisRelay
	tracker     *tracker.Tracker
	ledgerHub   *hub.Hub
	board       *board.Board
	auth        *auth.Authenticator
	limiter     *router.RateLimiter
	presence    *router.PresenceRecorder
	engine      *gin.Engine
	httpServer  *http.Server

	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewApplication wires components in dependency order:
// database → registry → broadcaster → tracker/hub → board → http.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := id.Init(cfg.NodeID); err != nil {
		return nil, fmt.Errorf("failed to initialize id generator: %w", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()

	// STEP 1: store and schema
	db, err := database.NewManager(cfg.Database.Store())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// STEP 2: live broadcast, optionally relayed across instances
	broadcaster := broadcast.NewBroadcaster()
	var relay *broadcast.RedisRelay
	if cfg.Redis.Enabled() {
		relay, err = newRelay(cfg, broadcaster)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		broadcaster.SetRelay(relay)
	}

	// STEP 3: session registry warmed from the store
	registry := session.NewRegistry(db, broadcaster)
	if err := registry.LoadLiveSessions(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load live sessions: %w", err)
	}
	if relay != nil {
		relay.AddObserver(registry)
	}

	// STEP 4: update ledger behind the async dispatch hub
	tr := tracker.NewTracker(db, registry)
	ledgerHub := hub.NewHub(tr, cfg.Board.LedgerQueueSize)

	// STEP 5: question board
	b := board.NewBoard(db, registry, db, ledgerHub, broadcaster, board.Options{
		DuplicateScope:    cfg.Board.DuplicateScope,
		MaxQuestionLength: cfg.Board.MaxQuestionLength,
		MaxReplyLength:    cfg.Board.MaxReplyLength,
	})

	// STEP 6: HTTP and WebSocket surface
	authenticator := auth.NewAuthenticator(cfg.Auth)
	limiter := router.NewRateLimiter(cfg.Board.RateLimitPerMinute)
	presence := router.NewPresenceRecorder(db, presenceTTL)

	apiHandler := api.NewHandler(api.Deps{
		Sessions:  registry,
		Questions: b,
		Updates:   tr,
		Directory: db,
		Rooms:     broadcaster,
		Database:  db,
		Stats: map[string]api.StatsProvider{
			"sessions":    registry,
			"broadcaster": broadcaster,
			"ledger":      ledgerHub,
		},
	})
	wsHandler := websocket.NewHandler(broadcaster, registry, db, cfg.WebSocket, cfg.HTTP.AllowedOrigins)

	serviceName := ""
	if cfg.Telemetry.Enabled() {
		serviceName = cfg.Telemetry.ServiceName
	}
	engine := router.New(router.Options{
		ServiceName:    serviceName,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		RequestTimeout: cfg.Database.Timeout,
	}, router.Deps{
		API:       apiHandler,
		WebSocket: wsHandler,
		Auth:      authenticator,
		Limiter:   limiter,
		Presence:  presence,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:      cfg,
		db:          db,
		registry:    registry,
		broadcaster: broadcaster,
		relay:       relay,
		tracker:     tr,
		ledgerHub:   ledgerHub,
		board:       b,
		auth:        authenticator,
		limiter:     limiter,
		presence:    presence,
		engine:      engine,
		httpServer:  httpServer,
	}, nil
}

func migrate(ctx context.Context, db *database.Manager) error {
	migrations, err := pkgdatabase.NewMigrationManager(db.GetDB())
	if err != nil {
		return fmt.Errorf("failed to prepare migrations: %w", err)
	}
	if err := migrations.ApplyMigrations(ctx); err != nil {
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if err := pkgdatabase.NewSchemaValidator(db.GetDB()).Validate(); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	slog.InfoContext(ctx, "database migrations applied")
	return nil
}

func newRelay(cfg *config.Config, local *broadcast.Broadcaster) (*broadcast.RedisRelay, error) {
	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	// replicas started from one config share a node id; the relay origin
	// must still be unique per process
	origin := fmt.Sprintf("%d-%s", cfg.NodeID, uuid.NewString())
	return broadcast.NewRedisRelay(client, cfg.Redis.ChannelPrefix, origin, local), nil
}

// Start runs background workers and then begins serving. It returns once
// the listener is bound.
func (app *Application) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	app.cancel = cancel

	// STEP 1: ledger dispatch
	if err := app.ledgerHub.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start ledger hub: %w", err)
	}

	// STEP 2: cross-instance relay
	if app.relay != nil {
		if err := app.startRelay(runCtx); err != nil {
			app.abortStart()
			return err
		}
	}

	// STEP 3: limiter and presence housekeeping
	app.wg.Add(1)
	go app.cleanupLoop(runCtx)

	// STEP 4: accept connections
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		app.abortStart()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.ErrorContext(runCtx, "http server error", "error", err)
		}
	}()

	slog.InfoContext(ctx, "classboard started", "addr", listener.Addr().String())
	return nil
}

func (app *Application) startRelay(ctx context.Context) error {
	ready := make(chan struct{})
	errCh := make(chan error, 1)

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		errCh <- app.relay.Run(ctx, ready)
	}()

	select {
	case <-ready:
		return nil
	case err := <-errCh:
		return fmt.Errorf("failed to subscribe redis relay: %w", err)
	case <-time.After(relayReadyTimeout):
		return errors.New("timed out waiting for redis relay subscription")
	}
}

func (app *Application) cleanupLoop(ctx context.Context) {
	defer app.wg.Done()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			app.limiter.Cleanup()
			app.presence.Cleanup()
		}
	}
}

func (app *Application) abortStart() {
	if app.cancel != nil {
		app.cancel()
	}
	_ = app.ledgerHub.Stop()
	app.wg.Wait()
}

// Stop shuts down in reverse order: HTTP, relay, hub, database.
func (app *Application) Stop(ctx context.Context) error {
	slog.InfoContext(ctx, "shutting down classboard")

	var errs []error
	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	if app.cancel != nil {
		app.cancel()
	}
	app.wg.Wait()
	if app.relay != nil {
		if err := app.relay.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis relay close: %w", err))
		}
	}

	if err := app.ledgerHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("ledger hub stop: %w", err))
	}
	if err := app.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database close: %w", err))
	}

	slog.InfoContext(ctx, "classboard shutdown complete")
	return errors.Join(errs...)
}

// Addr is the bound listener address once started, else the configured one.
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Authenticator signs and verifies participant tokens.
func (app *Application) Authenticator() *auth.Authenticator {
	return app.auth
}
