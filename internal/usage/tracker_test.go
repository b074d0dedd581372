package usage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/leozw/inbound-guardian/internal/metrics"
	"github.com/leozw/inbound-guardian/internal/queue"
)

type failingPublisher struct{}

func (failingPublisher) Push(ctx context.Context, event *queue.Event) error {
	return errors.New("redis unavailable")
}

func TestTrackPublishesToQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	q := queue.NewRedisQueue(client, "usage:test")
	collector := metrics.NewCollector(prometheus.NewRegistry())
	tracker := NewTracker(q, collector, zaptest.NewLogger(t))
	tracker.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // request already finished
	tracker.Track(ctx, queue.EventDomainAdded, "user-1", "dom-1", "example.com", "")
	tracker.Track(context.Background(), queue.EventAddressAdded, "user-1", "dom-1", "example.com", "hi@example.com")

	n, err := q.Length(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	first, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user-1", first.OwnerID)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.UsageEvents("domain_added", "sent")))
}

func TestTrackSwallowsFailures(t *testing.T) {
	collector := metrics.NewCollector(prometheus.NewRegistry())
	tracker := NewTracker(failingPublisher{}, collector, zaptest.NewLogger(t))

	assert.NotPanics(t, func() {
		tracker.Track(context.Background(), queue.EventDomainAdded, "user-1", "dom-1", "example.com", "")
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.UsageEvents("domain_added", "dropped")))
}

func TestNilTrackerAndPublisher(t *testing.T) {
	var tracker *Tracker
	assert.NotPanics(t, func() {
		tracker.Track(context.Background(), queue.EventDomainAdded, "u", "d", "example.com", "")
	})

	assert.NotPanics(t, func() {
		NewTracker(nil, nil, nil).Track(context.Background(), queue.EventDomainAdded, "u", "d", "example.com", "")
	})
}

func TestQueuePopEmpty(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	_, err := queue.NewRedisQueue(client, "").Pop(context.Background())
	assert.ErrorIs(t, err, queue.ErrEmpty)
}
