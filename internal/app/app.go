package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/duochat/duochat-server/internal/auth"
	"github.com/duochat/duochat-server/internal/cache"
	"github.com/duochat/duochat-server/internal/config"
	"github.com/duochat/duochat-server/internal/core"
	"github.com/duochat/duochat-server/internal/store"
	"github.com/duochat/duochat-server/internal/store/sqlite"
	transporthttp "github.com/duochat/duochat-server/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	store           store.Store
	cache           cache.Cache
	log             *zerolog.Logger
}

// New constructs the application with provided configuration. Failure to
// reach the durable store or the cache collaborator here is fatal; nothing
// past startup is.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	var c cache.Cache
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("init cache: %w", err)
		}
		logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("cache connected")
		c = redisCache
	} else {
		logger.Info().Msg("using in-process cache")
		c = cache.NewMemory()
	}

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.TokenTTL,
	}

	authService := auth.NewService(st, jwtConfig)
	gate := core.NewGate(jwtConfig, st, c, cfg.PrincipalCacheTTL, logger)
	registry := core.NewRegistry()
	router := core.NewRouter(registry, st, c, logger, core.Options{
		TypingWindow:      cfg.TypingWindow,
		HistoryLimit:      cfg.HistoryLimit,
		PresenceThreshold: cfg.PresenceThreshold,
	})

	server := transporthttp.NewServer(gate, registry, router, authService, st, c, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		cache:           c,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the store and cache connections.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		}
	}
	if closer, ok := a.cache.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close cache")
		}
	}
}
