// Package usage emits usage events to the billing side channel. Emission is
// fire-and-forget: failures are logged and counted, never returned.
package usage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leozw/inbound-guardian/internal/metrics"
	"github.com/leozw/inbound-guardian/internal/queue"
)

const publishTimeout = 500 * time.Millisecond

type Publisher interface {
	Push(ctx context.Context, event *queue.Event) error
}

type Tracker struct {
	publisher Publisher
	metrics   *metrics.Collector
	logger    *zap.Logger
	now       func() time.Time
}

// NewTracker returns a tracker that publishes to p. A nil publisher makes
// Track a no-op apart from the debug log.
func NewTracker(p Publisher, collector *metrics.Collector, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		publisher: p,
		metrics:   collector,
		logger:    logger,
		now:       time.Now,
	}
}

// Track publishes synchronously with a short deadline detached from the
// request's cancellation.
func (t *Tracker) Track(ctx context.Context, eventType queue.EventType, ownerID, domainID, domain, address string) {
	if t == nil {
		return
	}

	event := &queue.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		OwnerID:   ownerID,
		DomainID:  domainID,
		Domain:    domain,
		Address:   address,
		CreatedAt: t.now().UTC(),
	}

	if t.publisher == nil {
		t.logger.Debug("Usage tracking disabled", zap.String("event", string(eventType)))
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := t.publisher.Push(pubCtx, event)
	if t.metrics != nil {
		t.metrics.RecordUsageEvent(string(eventType), err)
	}
	if err != nil {
		t.logger.Warn("Failed to publish usage event",
			zap.String("event", string(eventType)),
			zap.String("domain", domain),
			zap.Error(err),
		)
	}
}
