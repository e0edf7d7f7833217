package service

import (
	"context"
	"sync"
	"time"

	"github.com/liliang-cn/recallchat/internal/domain"
	"github.com/liliang-cn/recallchat/internal/events"
	"github.com/liliang-cn/recallchat/internal/poller"
	"github.com/liliang-cn/recallchat/internal/status"
	"go.uber.org/zap"
)

const (
	DefaultGateInterval    = 3 * time.Second
	DefaultGateSettleDelay = 1500 * time.Millisecond
)

// GateOptions tunes queue polling and the refresh after processing settles
type GateOptions struct {
	Interval    time.Duration
	SettleDelay time.Duration
	// DisableInput makes the gate block chat input while pages are processing.
	// Otherwise the gate is informational only.
	DisableInput bool
}

// IdleHandler is told when page processing goes idle while a query is active
type IdleHandler interface {
	HasActiveQuery() bool
	RefreshActiveQueries(ctx context.Context)
}

// ProcessingGate tracks whether background page processing is running.
// Polls are the source of truth; push events move the flag between polls.
type ProcessingGate struct {
	source status.QueueSource
	broker *events.Broker
	opts   GateOptions
	logger *zap.Logger

	mu         sync.Mutex
	ctx        context.Context
	processing bool
	summary    domain.QueueStats
	ingestion  domain.QueueStats
	idle       IdleHandler
	settle     *time.Timer
	task       *poller.Task
}

// NewProcessingGate creates a new processing gate
func NewProcessingGate(source status.QueueSource, broker *events.Broker, opts GateOptions, logger *zap.Logger) *ProcessingGate {
	if opts.Interval <= 0 {
		opts.Interval = DefaultGateInterval
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultGateSettleDelay
	}
	return &ProcessingGate{
		source: source,
		broker: broker,
		opts:   opts,
		logger: logger,
		ctx:    context.Background(),
	}
}

// SetIdleHandler registers who re-runs queries after processing settles
func (g *ProcessingGate) SetIdleHandler(h IdleHandler) {
	g.mu.Lock()
	g.idle = h
	g.mu.Unlock()
}

// Start polls the queue stats until ctx is done or Stop is called. It returns
// nil when the gate is already polling.
func (g *ProcessingGate) Start(ctx context.Context) *poller.Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	if running(g.task) {
		return nil
	}
	g.ctx = ctx
	g.task = poller.Start(ctx, poller.Options{Interval: g.opts.Interval}, func(ctx context.Context, attempt int) (bool, error) {
		return false, g.Poll(ctx)
	})
	return g.task
}

// Poll reads both queues once. On error the previous state is kept.
func (g *ProcessingGate) Poll(ctx context.Context) error {
	summary, err := g.source.SummaryQueueStats(ctx)
	if err != nil {
		g.logger.Warn("summary queue poll failed", zap.Error(err))
		return err
	}
	ingestion, err := g.source.IngestionStats(ctx)
	if err != nil {
		g.logger.Warn("ingestion queue poll failed", zap.Error(err))
		return err
	}

	processing := summary.IsProcessing || ingestion.IsProcessing ||
		summary.QueueLength+ingestion.QueueLength > 0

	g.mu.Lock()
	g.summary = summary
	g.ingestion = ingestion
	g.mu.Unlock()

	g.set(processing, "poll")
	return nil
}

// HandleEvent applies a push event from the ingestion side
func (g *ProcessingGate) HandleEvent(ev domain.PushEvent) {
	switch name := ev.Name(); name {
	case domain.EventNavigationStarted, domain.EventPageQueued, domain.EventProcessingStarted:
		g.set(true, name)
	case domain.EventProcessingCompleted:
		// other pages may still be queued; the next poll decides
		g.logger.Debug("processing completed event", zap.String("url", ev.URL))
	case domain.EventContentIndexed:
		if ev.IndexingComplete {
			g.set(false, name)
		}
	default:
		g.logger.Debug("ignoring push event", zap.String("type", ev.Type), zap.String("event", ev.Event))
	}
}

func (g *ProcessingGate) set(processing bool, cause string) {
	g.mu.Lock()
	prev := g.processing
	g.processing = processing
	snap := g.snapshotLocked()
	wentIdle := prev && !processing
	if wentIdle {
		g.scheduleRefreshLocked()
	}
	g.mu.Unlock()

	if prev == processing {
		return
	}
	g.logger.Debug("processing state changed", zap.Bool("processing", processing), zap.String("cause", cause))
	if g.broker != nil {
		g.broker.Publish(events.TopicStatus, events.TypeProcessing, map[string]any{
			"processingPages": snap.ProcessingPages,
			"inputDisabled":   snap.InputDisabled,
			"cause":           cause,
		})
	}
}

// scheduleRefreshLocked re-runs active queries once processing has stayed idle for SettleDelay
func (g *ProcessingGate) scheduleRefreshLocked() {
	if g.idle == nil || !g.idle.HasActiveQuery() {
		return
	}
	if g.settle != nil {
		g.settle.Stop()
	}
	idle, ctx := g.idle, g.ctx
	g.settle = time.AfterFunc(g.opts.SettleDelay, func() {
		g.mu.Lock()
		busy := g.processing
		g.mu.Unlock()
		if busy || ctx.Err() != nil {
			return
		}
		idle.RefreshActiveQueries(ctx)
	})
}

// Processing reports whether pages are being processed
func (g *ProcessingGate) Processing() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.processing
}

// InputDisabled reports whether chat input should be refused right now
func (g *ProcessingGate) InputDisabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.opts.DisableInput && g.processing
}

func (g *ProcessingGate) Snapshot() domain.GateSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *ProcessingGate) snapshotLocked() domain.GateSnapshot {
	return domain.GateSnapshot{
		ProcessingPages: g.processing,
		InputDisabled:   g.opts.DisableInput && g.processing,
		Summary:         g.summary,
		Ingestion:       g.ingestion,
	}
}

// Stop ends polling and drops a pending refresh
func (g *ProcessingGate) Stop() {
	g.mu.Lock()
	task := g.task
	if g.settle != nil {
		g.settle.Stop()
	}
	g.mu.Unlock()

	if task != nil {
		task.Stop()
	}
}
