package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/liliang-cn/recallchat/internal/domain"
	"github.com/liliang-cn/recallchat/internal/events"
	"github.com/liliang-cn/recallchat/internal/poller"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeModelSource answers availability polls from a script; the last entry repeats
type fakeModelSource struct {
	mu        sync.Mutex
	script    []availabilityReply
	polls     int
	statuses  []domain.ModelStatus
	statusIdx int
	warmErr   error
	warmCalls int
	prefCalls int
}

type availabilityReply struct {
	value string
	err   error
}

func (f *fakeModelSource) Availability(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.polls
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	f.polls++
	return f.script[i].value, f.script[i].err
}

func (f *fakeModelSource) ModelStatus(ctx context.Context) (domain.ModelStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.statusIdx
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	f.statusIdx++
	return f.statuses[i], nil
}

func (f *fakeModelSource) StartRemoteWarm(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warmCalls++
	return f.warmErr
}

func (f *fakeModelSource) RefreshPrefs(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefCalls++
	return nil
}

func (f *fakeModelSource) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func fastReadiness() ReadinessOptions {
	return ReadinessOptions{
		Interval:             time.Millisecond,
		MaxAttempts:          60,
		OptimisticReadyAfter: 20 * time.Millisecond,
		WarmInterval:         time.Millisecond,
		WarmTimeout:          time.Second,
	}
}

func repeat(value string, n int) []availabilityReply {
	out := make([]availabilityReply, n)
	for i := range out {
		out[i] = availabilityReply{value: value}
	}
	return out
}

func TestReadiness_DownloadingThenReadyOnLastAttempt(t *testing.T) {
	source := &fakeModelSource{script: append(repeat("downloading", 59), availabilityReply{value: "readily"})}
	m := NewReadinessMonitor(source, nil, fastReadiness(), zap.NewNop())

	task := m.Start(context.Background())
	require.NotNil(t, task)
	res := task.Wait()

	assert.Equal(t, poller.ReasonDone, res.Reason)
	assert.Equal(t, 60, res.Attempts)
	assert.Equal(t, 60, source.pollCount())

	snap := m.Snapshot()
	assert.Equal(t, domain.ReadinessReady, snap.State)
	assert.False(t, snap.Downloading)
	assert.Equal(t, 60, snap.Attempts)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 60, source.pollCount())
}

func TestReadiness_ExhaustedWhileDownloadingKeepsState(t *testing.T) {
	source := &fakeModelSource{script: repeat("downloading", 1)}
	opts := fastReadiness()
	opts.MaxAttempts = 5
	m := NewReadinessMonitor(source, nil, opts, zap.NewNop())

	res := m.Start(context.Background()).Wait()

	assert.Equal(t, poller.ReasonExhausted, res.Reason)
	assert.Equal(t, 5, source.pollCount())
	assert.Equal(t, domain.ReadinessDownloading, m.Snapshot().State)
	assert.True(t, m.Snapshot().Downloading)
}

func TestReadiness_ErrorsAfterDownloadingExhaustToUnavailable(t *testing.T) {
	source := &fakeModelSource{script: []availabilityReply{{value: "downloading"}, {err: errBoom}}}
	opts := fastReadiness()
	opts.MaxAttempts = 5
	m := NewReadinessMonitor(source, nil, opts, zap.NewNop())

	res := m.Start(context.Background()).Wait()

	assert.Equal(t, poller.ReasonExhausted, res.Reason)
	assert.Equal(t, 5, res.Attempts)
	snap := m.Snapshot()
	assert.Equal(t, domain.ReadinessUnavailable, snap.State)
	assert.False(t, snap.Downloading)
	assert.Equal(t, "boom", snap.LastError)
}

func TestReadiness_ExhaustedByErrorsIsUnavailable(t *testing.T) {
	source := &fakeModelSource{script: []availabilityReply{{err: errBoom}}}
	opts := fastReadiness()
	opts.MaxAttempts = 3
	m := NewReadinessMonitor(source, nil, opts, zap.NewNop())

	res := m.Start(context.Background()).Wait()

	assert.Equal(t, poller.ReasonExhausted, res.Reason)
	snap := m.Snapshot()
	assert.Equal(t, domain.ReadinessUnavailable, snap.State)
	assert.Equal(t, "boom", snap.LastError)
}

func TestReadiness_ErrorsAreRetried(t *testing.T) {
	source := &fakeModelSource{script: []availabilityReply{{err: errBoom}, {err: errBoom}, {value: "available"}}}
	m := NewReadinessMonitor(source, nil, fastReadiness(), zap.NewNop())

	res := m.Start(context.Background()).Wait()

	assert.Equal(t, poller.ReasonDone, res.Reason)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, domain.ReadinessReady, m.Snapshot().State)
	assert.Empty(t, m.Snapshot().LastError)
}

func TestReadiness_UnavailableIsTerminal(t *testing.T) {
	source := &fakeModelSource{script: repeat("no", 1)}
	m := NewReadinessMonitor(source, nil, fastReadiness(), zap.NewNop())

	res := m.Start(context.Background()).Wait()

	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, domain.ReadinessUnavailable, m.Snapshot().State)
}

func TestReadiness_DownloadableHidesIndicatorOptimistically(t *testing.T) {
	source := &fakeModelSource{script: repeat("after-download", 1)}
	opts := fastReadiness()
	opts.OptimisticReadyAfter = 30 * time.Millisecond
	broker := events.NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := broker.Subscribe(ctx, events.TopicStatus)

	m := NewReadinessMonitor(source, broker, opts, zap.NewNop())
	res := m.Start(context.Background()).Wait()

	assert.Equal(t, poller.ReasonDone, res.Reason)
	assert.Equal(t, 1, source.pollCount())
	snap := m.Snapshot()
	assert.Equal(t, domain.ReadinessDownloadable, snap.State)
	assert.True(t, snap.Downloading)

	assert.Eventually(t, func() bool { return !m.Snapshot().Downloading }, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.ReadinessDownloadable, m.Snapshot().State)

	ev := <-stream
	assert.Equal(t, events.TypeModelStatus, ev.Type)
	assert.Equal(t, domain.ReadinessDownloadable, ev.Payload["state"])
	assert.Equal(t, true, ev.Payload["downloading"])
	ev = <-stream
	assert.Equal(t, false, ev.Payload["downloading"])

	m.Stop()
}

func TestReadiness_StartIsGuarded(t *testing.T) {
	source := &fakeModelSource{script: repeat("downloading", 1)}
	opts := fastReadiness()
	opts.Interval = 10 * time.Millisecond
	opts.MaxAttempts = 1000
	m := NewReadinessMonitor(source, nil, opts, zap.NewNop())

	first := m.Start(context.Background())
	require.NotNil(t, first)
	assert.Nil(t, m.Start(context.Background()))

	m.Stop()
	assert.Equal(t, poller.ReasonStopped, first.Result().Reason)
}

func TestReadiness_WatchWarm(t *testing.T) {
	source := &fakeModelSource{statuses: []domain.ModelStatus{
		{Warming: true, Using: domain.ModelLocal},
		{Warming: true, Using: domain.ModelLocal},
		{Warming: false, Using: domain.ModelRemote},
	}}
	m := NewReadinessMonitor(source, nil, fastReadiness(), zap.NewNop())

	task, err := m.WatchWarm(context.Background())
	require.NoError(t, err)
	res := task.Wait()

	assert.Equal(t, poller.ReasonDone, res.Reason)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 1, source.prefCalls)
	assert.Equal(t, 1, source.warmCalls)

	snap := m.Snapshot()
	assert.False(t, snap.Warming)
	assert.Equal(t, domain.ModelRemote, snap.Using)
}

func TestReadiness_WatchWarmSingleInstance(t *testing.T) {
	source := &fakeModelSource{statuses: []domain.ModelStatus{{Warming: true, Using: domain.ModelLocal}}}
	opts := fastReadiness()
	opts.WarmInterval = 5 * time.Millisecond
	m := NewReadinessMonitor(source, nil, opts, zap.NewNop())

	first, err := m.WatchWarm(context.Background())
	require.NoError(t, err)

	_, err = m.WatchWarm(context.Background())
	assert.ErrorIs(t, err, domain.ErrWarmWatchRunning)
	assert.Equal(t, 1, source.warmCalls)

	m.Stop()
	first.Wait()

	again, err := m.WatchWarm(context.Background())
	require.NoError(t, err)
	m.Stop()
	again.Wait()
}

func TestReadiness_WatchWarmTimeout(t *testing.T) {
	source := &fakeModelSource{statuses: []domain.ModelStatus{{Warming: true, Using: domain.ModelLocal}}}
	opts := fastReadiness()
	opts.WarmInterval = 2 * time.Millisecond
	opts.WarmTimeout = 30 * time.Millisecond
	m := NewReadinessMonitor(source, nil, opts, zap.NewNop())

	task, err := m.WatchWarm(context.Background())
	require.NoError(t, err)

	assert.Equal(t, poller.ReasonTimeout, task.Wait().Reason)
}

func TestReadiness_WatchWarmStartFailure(t *testing.T) {
	source := &fakeModelSource{warmErr: errBoom}
	m := NewReadinessMonitor(source, nil, fastReadiness(), zap.NewNop())

	_, err := m.WatchWarm(context.Background())
	assert.ErrorIs(t, err, errBoom)

	source.mu.Lock()
	source.warmErr = nil
	source.statuses = []domain.ModelStatus{{Warming: false}}
	source.mu.Unlock()

	task, err := m.WatchWarm(context.Background())
	require.NoError(t, err)
	task.Wait()
}
