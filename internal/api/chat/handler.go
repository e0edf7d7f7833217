package chat

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/recallchat/internal/api/respond"
	"github.com/liliang-cn/recallchat/internal/domain"
	"github.com/liliang-cn/recallchat/internal/service"
)

// Handler handles chat API requests
type Handler struct {
	chatService *service.ChatService
}

// NewHandler creates a new chat handler
func NewHandler(chatService *service.ChatService) *Handler {
	return &Handler{chatService: chatService}
}

// RegisterRoutes registers chat routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/:thread_id", h.Chat)
	r.GET("/:thread_id/history", h.History)
	r.DELETE("/:thread_id", h.Clear)
}

// Chat runs one turn. An error reply still answers 200 with the error field set.
func (h *Handler) Chat(c *gin.Context) {
	var req domain.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.chatService.Chat(c.Request.Context(), c.Param("thread_id"), &req)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// History returns recent turns with the links of search turns regenerated
func (h *Handler) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	resp, err := h.chatService.LoadRecent(c.Request.Context(), c.Param("thread_id"), limit)
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Clear deletes the thread and resets its generation session
func (h *Handler) Clear(c *gin.Context) {
	if err := h.chatService.Clear(c.Request.Context(), c.Param("thread_id")); err != nil {
		respond.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
