package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Default worker topology names.
const (
	DefaultConsumerQueueName = "therapia.worker"
	DefaultDeliveryLimit     = 10
)

// RabbitMQConsumerConfig configures the worker queue. The queue is a quorum
// queue: after DeliveryLimit redeliveries the broker moves a message to the
// dead-letter queue "<queue>.dead".
type RabbitMQConsumerConfig struct {
	URL           string
	QueueName     string
	Exchange      string
	Prefetch      int
	DeliveryLimit int
	Logger        *slog.Logger
}

func (c *RabbitMQConsumerConfig) withDefaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.QueueName == "" {
		c.QueueName = DefaultConsumerQueueName
	}
	if c.Exchange == "" {
		c.Exchange = ExchangeName
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 1
	}
	if c.DeliveryLimit <= 0 {
		c.DeliveryLimit = DefaultDeliveryLimit
	}
}

// RabbitMQConsumer feeds the worker queue into a ConsumerRegistry. A failed
// dispatch is requeued; undecodable bodies go straight to the dead-letter
// queue.
type RabbitMQConsumer struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	cfg      RabbitMQConsumerConfig
	registry *ConsumerRegistry
	logger   *slog.Logger

	mu     sync.Mutex
	bound  map[string]bool
	cancel context.CancelFunc
}

// NewRabbitMQConsumer connects and declares the exchange, the worker queue
// and its dead-letter queue.
func NewRabbitMQConsumer(cfg RabbitMQConsumerConfig, registry *ConsumerRegistry) (*RabbitMQConsumer, error) {
	cfg.withDefaults()

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := declareTopology(ch, cfg); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	cfg.Logger.Info("RabbitMQ consumer connected",
		"queue", cfg.QueueName,
		"exchange", cfg.Exchange,
		"delivery_limit", cfg.DeliveryLimit,
	)
	return &RabbitMQConsumer{
		conn:     conn,
		channel:  ch,
		cfg:      cfg,
		registry: registry,
		logger:   cfg.Logger,
		bound:    make(map[string]bool),
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg RabbitMQConsumerConfig) error {
	deadExchange := cfg.Exchange + ".dead"
	deadQueue := cfg.QueueName + ".dead"

	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(deadExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(deadQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dead-letter queue: %w", err)
	}
	if err := ch.QueueBind(deadQueue, "", deadExchange, false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue: %w", err)
	}
	_, err := ch.QueueDeclare(cfg.QueueName, true, false, false, false, amqp.Table{
		amqp.QueueTypeArg:        amqp.QueueTypeQuorum,
		"x-delivery-limit":       cfg.DeliveryLimit,
		"x-dead-letter-exchange": deadExchange,
	})
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	return nil
}

// RegisterConsumer adds consumer to the registry and binds its routing keys
// to the worker queue.
func (c *RabbitMQConsumer) RegisterConsumer(consumer EventConsumer) {
	c.registry.Register(consumer)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range consumer.EventTypes() {
		if c.bound[key] {
			continue
		}
		if err := c.channel.QueueBind(c.cfg.QueueName, key, c.cfg.Exchange, false, nil); err != nil {
			c.logger.Error("failed to bind routing key", "routing_key", key, "error", err)
			continue
		}
		c.bound[key] = true
	}
}

// Start consumes until ctx ends, Close is called or the broker closes the
// channel.
func (c *RabbitMQConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return errors.New("consumer already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	if err := c.channel.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	deliveries, err := c.channel.Consume(c.cfg.QueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	c.logger.Info("consuming events", "queue", c.cfg.QueueName, "routing_keys", len(c.bound))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed by broker")
			}
			c.handleDelivery(ctx, d)
		}
	}
}

// handleDelivery dispatches one delivery and settles it.
func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	logger := c.logger.With("routing_key", d.RoutingKey, "message_id", d.MessageId)

	var event ConsumedEvent
	if err := json.Unmarshal(d.Body, &event); err != nil {
		logger.Error("undecodable event, dead-lettering", "error", err)
		if err := d.Nack(false, false); err != nil {
			logger.Error("failed to nack delivery", "error", err)
		}
		return
	}
	if event.RoutingKey == "" {
		event.RoutingKey = d.RoutingKey
	}

	started := time.Now()
	err := c.registry.Dispatch(ctx, &event)
	elapsed := time.Since(started)
	if err != nil {
		logger.Warn("event dispatch failed, requeueing",
			"event_id", event.EventID,
			"attempt", deliveryCount(d)+1,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		if err := d.Nack(false, true); err != nil {
			logger.Error("failed to nack delivery", "error", err)
		}
		return
	}
	logger.Debug("event dispatched", "event_id", event.EventID, "duration_ms", elapsed.Milliseconds())
	if err := d.Ack(false); err != nil {
		logger.Error("failed to ack delivery", "error", err)
	}
}

// deliveryCount reads the quorum queue redelivery counter.
func deliveryCount(d amqp.Delivery) int64 {
	switch v := d.Headers["x-delivery-count"].(type) {
	case int64:
		return v
	case int32:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

// Close stops Start and closes the connection.
func (c *RabbitMQConsumer) Close() error {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()

	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Warn("error closing channel", "error", err)
		}
	}
	if c.conn != nil && !c.conn.IsClosed() {
		if err := c.conn.Close(); err != nil {
			return err
		}
	}
	c.logger.Info("RabbitMQ consumer closed")
	return nil
}
