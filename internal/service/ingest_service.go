package service

import (
	"context"
	"fmt"

	"github.com/liliang-cn/recallchat/internal/domain"
	"go.uber.org/zap"
)

// IngestService is the inbound side of page ingestion: it takes push events
// from the processing pipeline and reports model and queue status
type IngestService struct {
	gate      *ProcessingGate
	readiness *ReadinessMonitor
	logger    *zap.Logger
}

// NewIngestService creates a new ingest service
func NewIngestService(gate *ProcessingGate, readiness *ReadinessMonitor, logger *zap.Logger) *IngestService {
	return &IngestService{
		gate:      gate,
		readiness: readiness,
		logger:    logger,
	}
}

// HandlePush validates a push event and applies it to the processing gate
func (s *IngestService) HandlePush(ev *domain.PushEvent) error {
	switch ev.Type {
	case domain.MessageStatusUpdate:
		if ev.Event == "" {
			return fmt.Errorf("%w: status_update without event", domain.ErrInvalidRequest)
		}
	case domain.MessageContentIndexed:
		if v, ok := ev.Data["indexingComplete"].(bool); ok && v {
			ev.IndexingComplete = true
		}
	default:
		return fmt.Errorf("%w: unknown push type %q", domain.ErrInvalidRequest, ev.Type)
	}

	s.logger.Debug("push event",
		zap.String("type", ev.Type),
		zap.String("event", ev.Name()),
		zap.String("url", ev.URL),
	)
	s.gate.HandleEvent(*ev)
	return nil
}

// Status returns model readiness and processing state together
func (s *IngestService) Status() *domain.StatusResponse {
	return &domain.StatusResponse{
		Model:      s.readiness.Snapshot(),
		Processing: s.gate.Snapshot(),
	}
}

// WarmRemote starts warming the remote model and watching the warm-up
func (s *IngestService) WarmRemote(ctx context.Context) error {
	if _, err := s.readiness.WatchWarm(ctx); err != nil {
		return err
	}
	s.logger.Info("remote warm-up requested")
	return nil
}
