package handler

import (
	"github.com/gin-gonic/gin"
	"support_chat/internal/config"
	"support_chat/internal/middleware"
	"support_chat/pkg/logger"
)

func SetupRouter(
	handlers *Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))

	router.GET("/health", handlers.Health.Check)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.Health.Check)

		protected := v1.Group("")
		protected.Use(authMiddleware.RequireAuth())
		{
			protected.GET("/chat/messages", handlers.Chat.GetMessages)

			admin := protected.Group("/admin")
			admin.Use(authMiddleware.RequireAdmin(), rateLimitMiddleware.Limit())
			{
				admin.GET("/conversations", handlers.Conversation.List)
				admin.GET("/conversations/:identity/messages", handlers.Conversation.GetMessages)
				admin.DELETE("/conversations", handlers.Export.DeleteConversations)

				admin.POST("/exports", handlers.Export.CreateExport)
				admin.GET("/exports", handlers.Export.ListExports)
				admin.GET("/exports/:name", handlers.Export.Download)
				admin.GET("/exports/:name/messages", handlers.Export.GetMessages)
				admin.DELETE("/exports/:name", handlers.Export.DeleteExport)
			}
		}
	}

	// WebSocket чата; токен в заголовке или в ?token=
	router.GET("/ws/chat", authMiddleware.RequireAuth(), handlers.WebSocket.HandleChat)

	return router
}
