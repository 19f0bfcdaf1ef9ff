package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"centris_importer/config"
	"centris_importer/models"
)

const (
	DefaultExchange   = "listings"
	DefaultRoutingKey = "listing.imported"
	eventType         = "ListingImported"
	eventVersion      = "1.0.0"
)

// Publisher announces imported listings to other services.
type Publisher interface {
	PublishListingImported(ctx context.Context, l *models.ListingRecord) error
	Close() error
}

// Noop is used when no broker is configured.
type Noop struct{}

func (Noop) PublishListingImported(context.Context, *models.ListingRecord) error { return nil }
func (Noop) Close() error { return nil }

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type AMQPPublisher struct {
	conn       *amqp.Connection
	ch         channel
	exchange   string
	routingKey string
	logger     *slog.Logger
}

// NewAMQPPublisher dials the broker and declares a durable topic exchange.
func NewAMQPPublisher(cfg config.AMQPConfig, logger *slog.Logger) (*AMQPPublisher, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("amqp url is not configured")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	p := newAMQPPublisher(ch, exchange, cfg.RoutingKey, logger)
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch channel, exchange, routingKey string, logger *slog.Logger) *AMQPPublisher {
	if routingKey == "" {
		routingKey = DefaultRoutingKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AMQPPublisher{
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
		logger:     logger.With("component", "events", "exchange", exchange),
	}
}

func (p *AMQPPublisher) PublishListingImported(ctx context.Context, l *models.ListingRecord) error {
	body, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal listing %s: %w", l.ID, err)
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		MessageId:    l.ID.String(),
		Headers: amqp.Table{
			"event-type":    eventType,
			"event-version": eventVersion,
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := p.ch.PublishWithContext(publishCtx, p.exchange, p.routingKey, false, false, msg); err != nil {
		return fmt.Errorf("publish listing %s: %w", l.ID, err)
	}
	p.logger.Debug("listing event published", "listing_id", l.ID, "routing_key", p.routingKey)
	return nil
}

func (p *AMQPPublisher) Close() error {
	var firstErr error
	if p.ch != nil {
		firstErr = p.ch.Close()
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
