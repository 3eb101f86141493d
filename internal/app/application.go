package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"nexa/internal/access"
	"nexa/internal/api"
	"nexa/internal/auth"
	"nexa/internal/bot"
	"nexa/internal/config"
	"nexa/internal/database"
	"nexa/internal/hub"
	"nexa/internal/router"
	"nexa/internal/session"
	"nexa/internal/websocket"
	"nexa/pkg/ai"
	pkgdatabase "nexa/pkg/database"
)

const rateLimitCleanupInterval = time.Minute

// Application owns every component and their start and stop order.
type Application struct {
	config        *config.Config
	logger        *slog.Logger
	dbManager     *database.Manager
	revoker       auth.TokenRevoker
	registry      *websocket.Registry
	sessions      *session.Manager
	messageRouter *router.Router
	messageHub    *hub.Hub
	apiServer     *api.Server
	httpServer    *http.Server

	listener net.Listener
	cancel   context.CancelFunc
	group    *errgroup.Group
}

// NewApplication builds the component graph in dependency order:
// storage, credentials, access, rooms, hub, sessions, router, chatbot, HTTP.
func NewApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	dbManager, err := openDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	revoker, err := newRevoker(ctx, cfg.Redis, logger)
	if err != nil {
		dbManager.Close()
		return nil, err
	}

	authService, err := auth.NewService(dbManager, auth.Options{
		Secret:  cfg.Auth.JWTSecret,
		Issuer:  cfg.Auth.Issuer,
		TTL:     cfg.Auth.TokenTTL.Duration,
		Revoker: revoker,
	})
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to initialize auth service: %w", err)
	}

	generator, err := newGenerator(cfg.Bot)
	if err != nil {
		dbManager.Close()
		return nil, err
	}
	if generator == nil {
		logger.Warn("no text generator configured, chatbot answers with the fallback reply")
	}

	oracle := access.NewOracle(dbManager, logger)
	registry := websocket.NewRegistry()
	messageHub := hub.NewHub(registry, logger)
	sessions := session.NewManager(oracle, registry, dbManager, messageHub, logger)
	messageRouter := router.NewRouter(sessions, cfg.Chat.RateLimit, cfg.Chat.RateWindow.Duration, logger)
	chatbot := bot.NewService(oracle, dbManager, dbManager, generator, cfg.Bot.HistoryLimit, logger)

	wsHandler := websocket.NewHandler(registry, authService, messageRouter, websocket.HandlerConfig{
		CookieName:       cfg.Auth.CookieName,
		AuthTimeout:      cfg.WebSocket.AuthTimeout.Duration,
		PingInterval:     cfg.WebSocket.PingInterval.Duration,
		ReadTimeout:      cfg.WebSocket.ReadTimeout.Duration,
		WriteTimeout:     cfg.WebSocket.WriteTimeout.Duration,
		HandshakeTimeout: cfg.WebSocket.HandshakeTimeout.Duration,
		BufferSize:       cfg.WebSocket.BufferSize,
		AllowedOrigins:   cfg.WebSocket.AllowedOrigins,
	}, logger)

	apiServer := api.NewServer(api.Dependencies{
		Auth:     authService,
		Access:   oracle,
		History:  dbManager,
		Bot:      chatbot,
		Database: dbManager,
		Realtime: http.HandlerFunc(wsHandler.HandleWebSocket),
		Stats: map[string]func() interface{}{
			"registry": func() interface{} { return registry.GetStats() },
			"hub":      func() interface{} { return messageHub.GetStats() },
			"sessions": func() interface{} { return sessions.GetStats() },
		},
	}, api.Options{
		CookieName:     cfg.Auth.CookieName,
		CookieSecure:   cfg.Auth.CookieSecure,
		HistoryLimit:   cfg.Chat.HistoryLimit,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Address(),
		Handler:           apiServer,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout.Duration,
		ReadTimeout:       cfg.HTTP.ReadTimeout.Duration,
		WriteTimeout:      cfg.HTTP.WriteTimeout.Duration,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return &Application{
		config:        cfg,
		logger:        logger,
		dbManager:     dbManager,
		revoker:       revoker,
		registry:      registry,
		sessions:      sessions,
		messageRouter: messageRouter,
		messageHub:    messageHub,
		apiServer:     apiServer,
		httpServer:    httpServer,
	}, nil
}

func openDatabase(cfg *config.DatabaseConfig, logger *slog.Logger) (*database.Manager, error) {
	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Path,
		MaxConnections:  cfg.MaxConnections,
		ConnMaxLifetime: cfg.Timeout.Duration,
		ConnMaxIdleTime: cfg.Timeout.Duration / 3,
	}

	dbManager, err := database.NewManager(dbConfig, database.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	applied, err := pkgdatabase.NewMigrationManager(dbManager.GetDB()).ApplyMigrations()
	if err != nil {
		dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("database migrations applied", "versions", applied)
	}
	return dbManager, nil
}

// newRevoker uses Redis when an address is configured so revocations
// survive restarts.
func newRevoker(ctx context.Context, cfg *config.RedisConfig, logger *slog.Logger) (auth.TokenRevoker, error) {
	if cfg.Addr == "" {
		return auth.NewMemoryTokenRevoker(), nil
	}

	revoker := auth.NewRedisTokenRevoker(cfg.Addr, cfg.Password)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := revoker.Ping(pingCtx); err != nil {
		revoker.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Addr, err)
	}
	logger.Info("token revocations stored in redis", "addr", cfg.Addr)
	return revoker, nil
}

// newGenerator returns nil when the chatbot has no usable provider.
func newGenerator(cfg *config.BotConfig) (ai.TextGenerator, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		if cfg.APIKey == "" {
			return nil, nil
		}
		return ai.NewGeminiClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case config.ProviderOpenAI:
		return ai.NewOpenAICompatGenerator(cfg.BaseURL, cfg.APIKey, cfg.Model)
	default:
		return nil, nil
	}
}

// Start listens, then starts the hub and the background work. It returns
// once the server accepts connections.
func (app *Application) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	if err := app.messageHub.Start(context.WithoutCancel(ctx)); err != nil {
		listener.Close()
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	app.cancel = cancel
	group, groupCtx := errgroup.WithContext(runCtx)
	app.group = group

	group.Go(func() error {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		app.messageRouter.RateLimiter().Run(groupCtx, rateLimitCleanupInterval)
		return nil
	})

	app.logger.Info("nexa started", "addr", listener.Addr().String())
	return nil
}

// Wait blocks until the HTTP server stops and reports why.
func (app *Application) Wait() error {
	if app.group == nil {
		return nil
	}
	return app.group.Wait()
}

// Stop shuts down in reverse dependency order: HTTP, live connections, hub,
// revocation store and storage.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down")
	var errs []error

	if err := app.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}
	if n := app.registry.CloseAll(); n > 0 {
		app.logger.Info("closed realtime connections", "count", n)
	}
	if app.cancel != nil {
		app.cancel()
	}
	if err := app.Wait(); err != nil {
		errs = append(errs, err)
	}

	if err := app.messageHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		errs = append(errs, fmt.Errorf("message hub shutdown: %w", err))
	}
	if closer, ok := app.revoker.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis shutdown: %w", err))
		}
	}
	if err := app.dbManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database shutdown: %w", err))
	}

	app.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

// GetAddr returns the listen address, resolved once started.
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Database exposes storage for seeding and tests.
func (app *Application) Database() *database.Manager {
	return app.dbManager
}
