package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/recallchat/internal/api/admin"
	"github.com/liliang-cn/recallchat/internal/api/chat"
	"github.com/liliang-cn/recallchat/internal/api/middleware"
	"github.com/liliang-cn/recallchat/internal/api/status"
	"github.com/liliang-cn/recallchat/internal/events"
	"github.com/liliang-cn/recallchat/internal/service"
	"go.uber.org/zap"
)

// RouterConfig holds configuration for the router
type RouterConfig struct {
	APIKey       string
	AllowOrigins []string
}

// Services bundles what the handlers call into
type Services struct {
	Chat   *service.ChatService
	Admin  *service.AdminService
	Ingest *service.IngestService
	Broker *events.Broker
}

// SetupRouter sets up the Gin router
func SetupRouter(svc Services, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.AllowOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := r.Group("/api")

	chatHandler := chat.NewHandler(svc.Chat)
	chatHandler.RegisterRoutes(apiGroup.Group("/chat"))

	statusHandler := status.NewHandler(svc.Ingest, svc.Broker)
	statusHandler.RegisterRoutes(apiGroup)

	// Admin API (requires API key)
	adminHandler := admin.NewHandler(svc.Admin)
	adminGroup := apiGroup.Group("/admin")
	adminGroup.Use(middleware.Auth(cfg.APIKey))
	adminHandler.RegisterRoutes(adminGroup)

	return r
}
