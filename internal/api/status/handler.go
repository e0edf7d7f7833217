package status

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/liliang-cn/recallchat/internal/api/respond"
	"github.com/liliang-cn/recallchat/internal/domain"
	"github.com/liliang-cn/recallchat/internal/events"
	"github.com/liliang-cn/recallchat/internal/service"
)

// Handler serves model and processing status, push events and the event stream
type Handler struct {
	ingestService *service.IngestService
	broker        *events.Broker
}

// NewHandler creates a new status handler
func NewHandler(ingestService *service.IngestService, broker *events.Broker) *Handler {
	return &Handler{ingestService: ingestService, broker: broker}
}

// RegisterRoutes registers status and event routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/status", h.Status)
	r.POST("/status/warm", h.Warm)
	r.POST("/events", h.Push)
	r.GET("/events/:topic", h.Stream)
}

func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.ingestService.Status())
}

// Warm starts the remote model warm-up watcher
func (h *Handler) Warm(c *gin.Context) {
	err := h.ingestService.WarmRemote(c.Request.Context())
	if errors.Is(err, domain.ErrWarmWatchRunning) {
		c.JSON(http.StatusOK, gin.H{"status": "warming"})
		return
	}
	if err != nil {
		respond.Error(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "warming"})
}

// Push accepts a fire-and-forget event from the page processing pipeline
func (h *Handler) Push(c *gin.Context) {
	var ev domain.PushEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ingestService.HandlePush(&ev); err != nil {
		respond.Error(c, err)
		return
	}

	c.Status(http.StatusAccepted)
}

// Stream sends the topic's events as server-sent events until the client leaves.
// The topic is either "status" or a thread id.
func (h *Handler) Stream(c *gin.Context) {
	topic := events.NormalizeTopic(c.Param("topic"))
	if topic == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic is required"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	stream := h.broker.Subscribe(c.Request.Context(), topic)
	c.Stream(func(w io.Writer) bool {
		ev, ok := <-stream
		if !ok {
			return false
		}
		c.SSEvent(ev.Type, ev)
		return true
	})
}
