package queue

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

// ErrDisabled is returned by a Publisher built without a broker URL.
var ErrDisabled = errors.New("queue: publishing disabled")

// Publisher publishes JSON messages to durable queues on the default
// exchange.  The broker connection is opened on first use and reopened
// after a failure.  A Publisher is safe for concurrent use.
type Publisher struct {
	url string
	log *zap.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

// NewPublisher returns a Publisher for the broker at url.  An empty url
// yields a Publisher whose Publish always returns ErrDisabled.
func NewPublisher(url string, log *zap.Logger) *Publisher {
	return &Publisher{url: url, log: log, declared: map[string]bool{}}
}

func (p *Publisher) channel(queue string) (*amqp.Channel, error) {
	if p.ch == nil || p.ch.IsClosed() {
		if p.conn == nil || p.conn.IsClosed() {
			conn, err := amqp.Dial(p.url)
			if err != nil {
				return nil, fmt.Errorf("dial: %w", err)
			}
			p.conn = conn
		}
		ch, err := p.conn.Channel()
		if err != nil {
			return nil, fmt.Errorf("channel open: %w", err)
		}
		p.ch = ch
		p.declared = map[string]bool{}
	}
	if !p.declared[queue] {
		// Durable so messages survive broker restarts.
		if _, err := p.ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("queue declare: %w", err)
		}
		p.declared[queue] = true
	}
	return p.ch, nil
}

// Publish marshals v and publishes it as a persistent message routed to
// queue.  Errors are logged and returned so the caller can ignore them.
func (p *Publisher) Publish(ctx context.Context, queue string, v any) error {
	if p == nil || p.url == "" {
		return ErrDisabled
	}
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", queue, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel(queue)
	if err != nil {
		p.log.Warn("rabbitmq: publish setup failed", zap.String("queue", queue), zap.Error(err))
		p.closeLocked()
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
		p.log.Warn("rabbitmq: publish failed", zap.String("queue", queue), zap.Error(err))
		p.closeLocked()
		return err
	}
	return nil
}

func (p *Publisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}
