package service

import (
	"context"
	"testing"
	"time"

	"github.com/liliang-cn/recallchat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestIngestService() (*IngestService, *ProcessingGate) {
	gate := newTestGate(&fakeQueueSource{}, true)
	readiness := NewReadinessMonitor(&fakeModelSource{script: repeat("readily", 1)}, nil, fastReadiness(), zap.NewNop())
	return NewIngestService(gate, readiness, zap.NewNop()), gate
}

func TestIngestService_HandlePush(t *testing.T) {
	svc, gate := newTestIngestService()

	require.NoError(t, svc.HandlePush(&domain.PushEvent{Type: domain.MessageStatusUpdate, Event: domain.EventPageQueued}))
	assert.True(t, svc.Status().Processing.InputDisabled)

	require.NoError(t, svc.HandlePush(&domain.PushEvent{
		Type: domain.MessageContentIndexed,
		URL:  "https://go.dev/blog",
		Data: map[string]any{"indexingComplete": true},
	}))
	assert.False(t, gate.Processing())
}

func TestIngestService_HandlePushRejectsUnknown(t *testing.T) {
	svc, _ := newTestIngestService()

	assert.ErrorIs(t, svc.HandlePush(&domain.PushEvent{Type: "bogus"}), domain.ErrInvalidRequest)
	assert.ErrorIs(t, svc.HandlePush(&domain.PushEvent{Type: domain.MessageStatusUpdate}), domain.ErrInvalidRequest)
}

func TestIngestService_Status(t *testing.T) {
	svc, _ := newTestIngestService()

	status := svc.Status()
	assert.Equal(t, domain.ReadinessUninitialized, status.Model.State)
	assert.False(t, status.Processing.ProcessingPages)
}

func TestIngestService_WarmRemote(t *testing.T) {
	source := &fakeModelSource{statuses: []domain.ModelStatus{{Warming: false, Using: domain.ModelRemote}}}
	readiness := NewReadinessMonitor(source, nil, fastReadiness(), zap.NewNop())
	svc := NewIngestService(newTestGate(&fakeQueueSource{}, false), readiness, zap.NewNop())

	require.NoError(t, svc.WarmRemote(context.Background()))
	assert.Eventually(t, func() bool { return readiness.Snapshot().Using == domain.ModelRemote }, time.Second, time.Millisecond)
	readiness.Stop()
}
