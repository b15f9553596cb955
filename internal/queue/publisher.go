package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// EventsQueue is the durable queue every lifecycle event is routed to.
const EventsQueue = "geo.events"

// Publisher publishes events to RabbitMQ.  Each call dials, publishes and
// closes; event volume is a handful per mutating request.  Errors are
// logged and returned so the caller can choose to ignore them.
type Publisher struct {
	url    string
	logger *slog.Logger
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{url: url, logger: logger}
}

// Publish sends ev to EventsQueue as a persistent JSON message.  Dialing
// honours ctx, so a silent broker costs at most the caller's deadline.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	conn, err := dial(ctx, p.url)
	if err != nil {
		p.logger.Warn("rabbitmq: dial failed", "error", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.logger.Warn("rabbitmq: channel open failed", "error", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(EventsQueue, true, false, false, false, nil); err != nil {
		p.logger.Warn("rabbitmq: queue declare failed", "error", err)
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("rabbitmq: marshal event failed", "error", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", EventsQueue, false, false, pub); err != nil {
		p.logger.Warn("rabbitmq: publish failed", "error", err, "type", ev.Type)
		return err
	}
	return nil
}

// NopPublisher drops events.  Used when the broker is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
