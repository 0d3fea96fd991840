package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// amqpChannel is the part of *amqp.Channel the publisher uses.
type amqpChannel interface {
	IsClosed() bool
	Close() error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// ChannelPool hands out AMQP channels on one connection, each with the
// events queue declared. Channels that die while borrowed are replaced, so
// the pool keeps its size across broker hiccups.
type ChannelPool struct {
	conn      *amqp.Connection
	open      func() (amqpChannel, error)
	channels  chan amqpChannel
	mu        sync.Mutex
	queueName string
	missing   int
	closed    bool
}

func NewChannelPool(url, queueName string, size int) (*ChannelPool, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	pool, err := newChannelPool(func() (amqpChannel, error) {
		return declareChannel(conn, queueName)
	}, queueName, size)
	if err != nil {
		conn.Close()
		return nil, err
	}
	pool.conn = conn
	return pool, nil
}

func newChannelPool(open func() (amqpChannel, error), queueName string, size int) (*ChannelPool, error) {
	pool := &ChannelPool{
		open:      open,
		channels:  make(chan amqpChannel, size),
		queueName: queueName,
	}

	for i := 0; i < size; i++ {
		ch, err := open()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to create channel %d: %w", i, err)
		}
		pool.channels <- ch
	}

	return pool, nil
}

func declareChannel(conn *amqp.Connection, queueName string) (amqpChannel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}

	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return ch, nil
}

func (p *ChannelPool) get() (amqpChannel, error) {
	select {
	case ch, ok := <-p.channels:
		if !ok {
			return nil, errors.New("channel pool closed")
		}
		if ch.IsClosed() {
			return p.reopen()
		}
		return ch, nil
	default:
	}

	p.mu.Lock()
	if p.closed || p.missing == 0 {
		p.mu.Unlock()
		return nil, errors.New("no channels available in pool")
	}
	p.missing--
	p.mu.Unlock()
	return p.reopen()
}

// reopen opens a channel for a slot the caller already holds. On failure the
// slot is recorded as missing so a later get retries it.
func (p *ChannelPool) reopen() (amqpChannel, error) {
	ch, err := p.open()
	if err != nil {
		p.mu.Lock()
		p.missing++
		p.mu.Unlock()
		return nil, fmt.Errorf("failed to reopen channel: %w", err)
	}
	return ch, nil
}

func (p *ChannelPool) put(ch amqpChannel) {
	if ch == nil {
		return
	}
	if ch.IsClosed() {
		replacement, err := p.open()
		if err != nil {
			p.mu.Lock()
			p.missing++
			p.mu.Unlock()
			return
		}
		ch = replacement
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		ch.Close()
		return
	}
	select {
	case p.channels <- ch:
	default:
		ch.Close()
	}
}

func (p *ChannelPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true

	close(p.channels)
	for ch := range p.channels {
		ch.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// RabbitPublisher publishes order events as persistent JSON messages on the
// default exchange, routed to the events queue.
type RabbitPublisher struct {
	pool   *ChannelPool
	logger *zap.Logger
}

func NewRabbitPublisher(pool *ChannelPool, logger *zap.Logger) *RabbitPublisher {
	return &RabbitPublisher{pool: pool, logger: logger.Named("events")}
}

func (p *RabbitPublisher) Publish(ctx context.Context, event OrderEvent) error {
	ch, err := p.pool.get()
	if err != nil {
		return fmt.Errorf("failed to get channel from pool: %w", err)
	}
	defer p.pool.put(ch)

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(ctx,
		"",
		p.pool.queueName,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         event.Type,
			Timestamp:    event.OccurredAt,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	p.logger.Debug("order event published", zap.String("type", event.Type), zap.String("orderId", event.OrderID))
	return nil
}
