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
	DefaultReadinessInitialDelay = time.Second
	DefaultReadinessInterval     = 2 * time.Second
	DefaultReadinessMaxAttempts  = 60
	// DefaultOptimisticReadyAfter is how long the download indicator stays up
	// for a downloadable model. It hides afterwards whether or not the download
	// actually finished.
	DefaultOptimisticReadyAfter = 3 * time.Second
	DefaultWarmInterval         = 2 * time.Second
	DefaultWarmTimeout          = 120 * time.Second
)

// ReadinessOptions tunes availability polling and the remote warm watch.
// A negative InitialDelay selects the default; zero polls immediately.
type ReadinessOptions struct {
	InitialDelay         time.Duration
	Interval             time.Duration
	MaxAttempts          int
	OptimisticReadyAfter time.Duration
	WarmInterval         time.Duration
	WarmTimeout          time.Duration
}

func (o ReadinessOptions) withDefaults() ReadinessOptions {
	if o.InitialDelay < 0 {
		o.InitialDelay = DefaultReadinessInitialDelay
	}
	if o.Interval <= 0 {
		o.Interval = DefaultReadinessInterval
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultReadinessMaxAttempts
	}
	if o.OptimisticReadyAfter <= 0 {
		o.OptimisticReadyAfter = DefaultOptimisticReadyAfter
	}
	if o.WarmInterval <= 0 {
		o.WarmInterval = DefaultWarmInterval
	}
	if o.WarmTimeout <= 0 {
		o.WarmTimeout = DefaultWarmTimeout
	}
	return o
}

// ReadinessMonitor tracks local model availability and the remote warm-up.
// It only reports state; it never blocks the chat pipeline.
type ReadinessMonitor struct {
	source status.ModelSource
	broker *events.Broker
	opts   ReadinessOptions
	logger *zap.Logger

	mu       sync.Mutex
	snap     domain.ReadinessSnapshot
	poll     *poller.Task
	warm     *poller.Task
	warmBusy bool
	hide     *time.Timer
}

// NewReadinessMonitor creates a new readiness monitor
func NewReadinessMonitor(source status.ModelSource, broker *events.Broker, opts ReadinessOptions, logger *zap.Logger) *ReadinessMonitor {
	return &ReadinessMonitor{
		source: source,
		broker: broker,
		opts:   opts.withDefaults(),
		logger: logger,
		snap:   domain.ReadinessSnapshot{State: domain.ReadinessUninitialized},
	}
}

// Start begins polling availability. It returns nil when a poll is already running.
func (m *ReadinessMonitor) Start(ctx context.Context) *poller.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	if running(m.poll) {
		return nil
	}

	m.poll = poller.Start(ctx, poller.Options{
		InitialDelay: m.opts.InitialDelay,
		Interval:     m.opts.Interval,
		MaxAttempts:  m.opts.MaxAttempts,
	}, m.checkAvailability)
	return m.poll
}

func (m *ReadinessMonitor) checkAvailability(ctx context.Context, attempt int) (bool, error) {
	last := attempt >= m.opts.MaxAttempts

	raw, err := m.source.Availability(ctx)
	if err != nil {
		m.logger.Warn("model availability poll failed", zap.Int("attempt", attempt), zap.Error(err))
		m.update(func(s *domain.ReadinessSnapshot) {
			s.Attempts = attempt
			s.LastError = err.Error()
			if last {
				s.State = domain.ReadinessUnavailable
				s.Downloading = false
			}
		})
		return false, err
	}

	state, ok := domain.ParseReadiness(raw)
	if !ok {
		m.logger.Warn("unknown model availability", zap.String("availability", raw), zap.Int("attempt", attempt))
		m.update(func(s *domain.ReadinessSnapshot) {
			s.Attempts = attempt
			if last {
				s.State = domain.ReadinessUnavailable
				s.Downloading = false
			}
		})
		return false, nil
	}

	m.update(func(s *domain.ReadinessSnapshot) {
		s.Attempts = attempt
		s.State = state
		s.LastError = ""
		s.Downloading = state == domain.ReadinessDownloading || state == domain.ReadinessDownloadable
	})

	switch state {
	case domain.ReadinessReady, domain.ReadinessUnavailable:
		m.logger.Info("model availability settled", zap.String("state", string(state)), zap.Int("attempts", attempt))
		return true, nil
	case domain.ReadinessDownloadable:
		m.hideDownloadIndicator()
		return true, nil
	default:
		if last {
			m.logger.Warn("model still downloading after last attempt", zap.Int("attempts", attempt))
		}
		return false, nil
	}
}

// hideDownloadIndicator drops the downloading flag once OptimisticReadyAfter has passed
func (m *ReadinessMonitor) hideDownloadIndicator() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hide != nil {
		m.hide.Stop()
	}
	m.hide = time.AfterFunc(m.opts.OptimisticReadyAfter, func() {
		m.update(func(s *domain.ReadinessSnapshot) {
			s.Downloading = false
		})
	})
}

// WatchWarm asks the status source to warm the remote model and watches the
// warm-up until it finishes, the remote model is in use, or WarmTimeout passes.
// Only one watcher runs at a time.
func (m *ReadinessMonitor) WatchWarm(ctx context.Context) (*poller.Task, error) {
	m.mu.Lock()
	if m.warmBusy || running(m.warm) {
		m.mu.Unlock()
		return nil, domain.ErrWarmWatchRunning
	}
	m.warmBusy = true
	m.mu.Unlock()

	release := func() {
		m.mu.Lock()
		m.warmBusy = false
		m.mu.Unlock()
	}

	if err := m.source.RefreshPrefs(ctx); err != nil {
		m.logger.Warn("refresh prefs failed", zap.Error(err))
	}
	if err := m.source.StartRemoteWarm(ctx); err != nil {
		release()
		return nil, err
	}

	m.update(func(s *domain.ReadinessSnapshot) {
		s.Warming = true
	})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.warmBusy = false
	// the watch outlives the request that triggered it
	m.warm = poller.Start(context.WithoutCancel(ctx), poller.Options{
		InitialDelay: m.opts.WarmInterval,
		Interval:     m.opts.WarmInterval,
		Timeout:      m.opts.WarmTimeout,
	}, m.checkWarm)
	return m.warm, nil
}

func (m *ReadinessMonitor) checkWarm(ctx context.Context, attempt int) (bool, error) {
	st, err := m.source.ModelStatus(ctx)
	if err != nil {
		m.logger.Warn("model status poll failed", zap.Int("attempt", attempt), zap.Error(err))
		return false, err
	}

	m.update(func(s *domain.ReadinessSnapshot) {
		s.Warming = st.Warming
		s.Using = st.Using
		s.LastError = st.LastError
	})

	done := !st.Warming || st.Using == domain.ModelRemote
	if done {
		m.logger.Info("remote warm-up finished",
			zap.String("using", string(st.Using)),
			zap.Int("attempts", attempt),
		)
	}
	return done, nil
}

// Snapshot returns the current readiness state
func (m *ReadinessMonitor) Snapshot() domain.ReadinessSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Stop cancels both pollers and the pending indicator timer
func (m *ReadinessMonitor) Stop() {
	m.mu.Lock()
	poll, warm := m.poll, m.warm
	if m.hide != nil {
		m.hide.Stop()
	}
	m.mu.Unlock()

	if poll != nil {
		poll.Stop()
	}
	if warm != nil {
		warm.Stop()
	}
}

// update applies fn to the snapshot and publishes it when it changed
func (m *ReadinessMonitor) update(fn func(s *domain.ReadinessSnapshot)) {
	m.mu.Lock()
	before := m.snap
	fn(&m.snap)
	after := m.snap
	m.mu.Unlock()

	if m.broker == nil || sameReadiness(before, after) {
		return
	}
	m.broker.Publish(events.TopicStatus, events.TypeModelStatus, map[string]any{
		"state":       after.State,
		"downloading": after.Downloading,
		"warming":     after.Warming,
		"using":       after.Using,
		"lastError":   after.LastError,
	})
}

// attempts alone do not count as a change
func sameReadiness(a, b domain.ReadinessSnapshot) bool {
	a.Attempts, b.Attempts = 0, 0
	return a == b
}

func running(t *poller.Task) bool {
	if t == nil {
		return false
	}
	select {
	case <-t.Done():
		return false
	default:
		return true
	}
}
