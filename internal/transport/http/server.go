package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/duochat/duochat-server/internal/auth"
	"github.com/duochat/duochat-server/internal/cache"
	"github.com/duochat/duochat-server/internal/config"
	"github.com/duochat/duochat-server/internal/core"
	"github.com/duochat/duochat-server/internal/store"
)

// NewServer builds the HTTP server: REST surface plus the WebSocket
// endpoint bridged into the core engine.
func NewServer(
	gate *core.Gate,
	registry *core.Registry,
	router *core.Router,
	authService *auth.Service,
	st store.Store,
	c cache.Cache,
	cfg *config.Config,
	logger *zerolog.Logger,
) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(LoggerMiddleware(logger))

	engine.GET("/health", func(gc *gin.Context) {
		gc.JSON(stdhttp.StatusOK, gin.H{"status": "ok"})
	})

	authHandlers := NewAuthHandlers(authService, logger)
	chatHandlers := NewChatHandlers(st, c, logger)

	api := engine.Group("/api")
	{
		api.POST("/auth/register", authHandlers.Register)
		api.POST("/auth/login", authHandlers.Login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(authService, logger))
		{
			protected.GET("/auth/me", authHandlers.Me)
			protected.POST("/chats", chatHandlers.Create)
			protected.GET("/chats", chatHandlers.List)
			protected.GET("/chats/:id", chatHandlers.GetByID)
		}
	}

	wsHandler := NewWSHandler(gate, registry, router, cfg.HeartbeatInterval, logger)
	engine.GET("/ws", gin.WrapH(wsHandler))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
