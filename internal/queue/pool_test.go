package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shohag/notifyd/internal/channel"
	"github.com/shohag/notifyd/internal/metrics"
	"github.com/shohag/notifyd/internal/models"
)

type flakyTransport struct {
	ch       models.Channel
	failures int

	mu    sync.Mutex
	calls int
}

func (f *flakyTransport) Channel() models.Channel       { return f.ch }
func (f *flakyTransport) IsAvailable() bool             { return true }
func (f *flakyTransport) ValidateRecipient(string) bool { return true }

func (f *flakyTransport) Send(ctx context.Context, n *models.Notification) (*channel.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("transient provider error")
	}
	return &channel.SendResult{MessageID: models.NewID("msg")}, nil
}

func (f *flakyTransport) sendCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestPoolDeliversEndToEnd(t *testing.T) {
	ctx := context.Background()
	q, store := newTestQueue(t)

	transport := &flakyTransport{ch: models.ChannelEmail}
	registry := channel.NewRegistry(metrics.Nop{}, zerolog.Nop())
	registry.Register(transport)
	proc := NewProcessor(store, registry, metrics.Nop{}, time.Second, zerolog.Nop())

	n := seedNotification(t, store, models.PriorityNormal)
	_, err := q.Enqueue(ctx, n.ID, models.PriorityNormal, nil, nil)
	require.NoError(t, err)

	p := NewPool(q, proc, 2, 10*time.Millisecond, zerolog.Nop())
	p.Start(ctx)
	defer p.Stop()

	require.Eventually(t, func() bool {
		got, err := store.GetNotification(ctx, n.ID)
		return err == nil && got != nil && got.Status == models.StatusSent
	}, 5*time.Second, 20*time.Millisecond, "pool should pick up and deliver the job")

	counts, err := store.JobCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.JobCompleted])
}

func TestPoolSkipsWhilePaused(t *testing.T) {
	ctx := context.Background()
	q, store := newTestQueue(t)

	transport := &flakyTransport{ch: models.ChannelEmail}
	registry := channel.NewRegistry(metrics.Nop{}, zerolog.Nop())
	registry.Register(transport)
	proc := NewProcessor(store, registry, metrics.Nop{}, time.Second, zerolog.Nop())

	q.Pause()

	n := seedNotification(t, store, models.PriorityNormal)
	_, err := q.Enqueue(ctx, n.ID, models.PriorityNormal, nil, nil)
	require.NoError(t, err)

	p := NewPool(q, proc, 2, 10*time.Millisecond, zerolog.Nop())
	p.Start(ctx)
	defer p.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, transport.sendCalls(), "a paused queue dispatches nothing")

	q.Resume()
	require.Eventually(t, func() bool {
		got, err := store.GetNotification(ctx, n.ID)
		return err == nil && got != nil && got.Status == models.StatusSent
	}, 5*time.Second, 20*time.Millisecond, "resume should drain the backlog")
}

func TestPoolRetriesUntilSuccess(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// One transient failure, then success. A short initial backoff keeps the
	// test fast while still exercising the reschedule path.
	cfg := testQueueConfig()
	cfg.Normal.InitialBackoff = 20 * time.Millisecond
	q := New(cfg, store, zerolog.Nop())

	transport := &flakyTransport{ch: models.ChannelEmail, failures: 1}
	registry := channel.NewRegistry(metrics.Nop{}, zerolog.Nop())
	registry.Register(transport)
	proc := NewProcessor(store, registry, metrics.Nop{}, time.Second, zerolog.Nop())

	n := seedNotification(t, store, models.PriorityNormal)
	_, err := q.Enqueue(ctx, n.ID, models.PriorityNormal, nil, nil)
	require.NoError(t, err)

	p := NewPool(q, proc, 2, 10*time.Millisecond, zerolog.Nop())
	p.Start(ctx)
	defer p.Stop()

	require.Eventually(t, func() bool {
		got, err := store.GetNotification(ctx, n.ID)
		return err == nil && got != nil && got.Status == models.StatusSent
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, 2, transport.sendCalls())

	got, err := store.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RetryCount, "the failed attempt stays on the record")
	assert.Equal(t, "2", got.Metadata["attempt"])
}
