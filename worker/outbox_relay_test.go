package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cityzen/config"
	"cityzen/logx"
	"cityzen/models"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) ClaimPending(ctx context.Context, limit int, staleAfter time.Duration) ([]models.OutboxEvent, error) {
	args := m.Called(ctx, limit, staleAfter)
	out, _ := args.Get(0).([]models.OutboxEvent)
	return out, args.Error(1)
}

func (m *mockSource) MarkDelivered(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockSource) MarkFailed(ctx context.Context, id string, attempts int, nextRetryAt *time.Time, lastErr string, dead bool) error {
	return m.Called(ctx, id, attempts, nextRetryAt, lastErr, dead).Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, e models.OutboxEvent) error {
	return m.Called(ctx, e.ID).Error(0)
}

func (m *mockPublisher) Close() error { return nil }

func relayConfig() config.OutboxConfig {
	return config.OutboxConfig{Interval: time.Hour, BatchSize: 10, MaxAttempts: 3, StaleAfter: time.Minute}
}

func TestProcessOnceDeliversAndRetries(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	src := &mockSource{}
	pub := &mockPublisher{}
	src.On("ClaimPending", mock.Anything, 10, time.Minute).Return([]models.OutboxEvent{
		{ID: "ok", EventType: models.EventComplaintSubmitted},
		{ID: "flaky", EventType: models.EventCitizenStruck, Attempts: 0},
		{ID: "hopeless", EventType: models.EventCitizenBanned, Attempts: 2},
	}, nil).Once()
	pub.On("Publish", mock.Anything, "ok").Return(nil)
	pub.On("Publish", mock.Anything, "flaky").Return(errors.New("broker unavailable"))
	pub.On("Publish", mock.Anything, "hopeless").Return(errors.New("broker unavailable"))
	src.On("MarkDelivered", mock.Anything, "ok").Return(nil)
	src.On("MarkFailed", mock.Anything, "flaky", 1, mock.MatchedBy(func(at *time.Time) bool {
		return at != nil && at.Equal(now.Add(2*time.Second))
	}), "broker unavailable", false).Return(nil)
	src.On("MarkFailed", mock.Anything, "hopeless", 3, mock.Anything, "broker unavailable", true).Return(nil)

	relay := NewOutboxRelay(src, pub, relayConfig(), logx.Nop())
	relay.now = func() time.Time { return now }

	n, err := relay.ProcessOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	src.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestProcessOnceReportsClaimError(t *testing.T) {
	src := &mockSource{}
	src.On("ClaimPending", mock.Anything, 10, time.Minute).Return(nil, errors.New("db down")).Once()

	relay := NewOutboxRelay(src, &mockPublisher{}, relayConfig(), logx.Nop())

	_, err := relay.ProcessOnce(context.Background())
	assert.Error(t, err)
	src.AssertExpectations(t)
}

func TestStartStop(t *testing.T) {
	src := &mockSource{}
	claimed := make(chan struct{}, 1)
	src.On("ClaimPending", mock.Anything, 10, time.Minute).Return(nil, nil).Run(func(mock.Arguments) {
		select {
		case claimed <- struct{}{}:
		default:
		}
	})

	relay := NewOutboxRelay(src, &mockPublisher{}, relayConfig(), logx.Nop())
	relay.Start()
	relay.Start()

	select {
	case <-claimed:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not poll on start")
	}
	relay.Stop()
	relay.Stop()
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, RetryDelay(1))
	assert.Equal(t, 4*time.Second, RetryDelay(2))
	assert.Equal(t, 16*time.Second, RetryDelay(4))
	assert.Equal(t, 10*time.Minute, RetryDelay(20))
	assert.Equal(t, 2*time.Second, RetryDelay(0))
}
