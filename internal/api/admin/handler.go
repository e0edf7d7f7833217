package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/recallchat/internal/api/respond"
	"github.com/liliang-cn/recallchat/internal/service"
)

// Handler handles admin API requests
type Handler struct {
	adminService *service.AdminService
}

// NewHandler creates a new admin handler
func NewHandler(adminService *service.AdminService) *Handler {
	return &Handler{adminService: adminService}
}

// RegisterRoutes registers admin routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	threads := r.Group("/threads")
	{
		threads.GET("", h.ListThreads)
		threads.POST("/dedupe", h.DedupeAll)
		threads.POST("/:thread_id/dedupe", h.DedupeThread)
	}

	r.GET("/stats", h.GetStats)
}

func (h *Handler) ListThreads(c *gin.Context) {
	threads, err := h.adminService.ListThreads(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"threads": threads})
}

func (h *Handler) DedupeThread(c *gin.Context) {
	threadID := c.Param("thread_id")
	removed, err := h.adminService.DeduplicateThread(c.Request.Context(), threadID)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"thread_id": threadID, "removed": removed})
}

func (h *Handler) DedupeAll(c *gin.Context) {
	removed, err := h.adminService.DeduplicateAll(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.adminService.GetStats(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}
