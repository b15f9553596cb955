package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/iliyamo/geo-regions/internal/metrics"
	"github.com/iliyamo/geo-regions/internal/queue"
)

// publishTimeout caps how long a request waits on the broker after its
// write has committed.
const publishTimeout = 2 * time.Second

// Option configures the collaborators shared by all services.
type Option func(*common)

// WithEvents sets the publisher that receives lifecycle events.
func WithEvents(p EventPublisher) Option { return func(c *common) { c.events = p } }

// WithMetrics sets the metrics sink.  Nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option { return func(c *common) { c.metrics = m } }

// WithLogger sets the logger used for failures that are not surfaced to
// callers.
func WithLogger(l *slog.Logger) Option { return func(c *common) { c.logger = l } }

type common struct {
	events  EventPublisher
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func newCommon(opts []Option) common {
	c := common{events: queue.NopPublisher{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(&c)
	}
	if c.events == nil {
		c.events = queue.NopPublisher{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// publish is best effort: the mutation already committed.
func (c common) publish(ctx context.Context, ev queue.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := c.events.Publish(ctx, ev); err != nil {
		c.logger.Warn("event publish failed", "type", ev.Type, "error", err)
	}
}

func (c common) txFailed(operation string, err error) {
	c.metrics.IncTransactionFailure(operation)
	c.logger.Error("transaction aborted", "operation", operation, "error", err)
}
