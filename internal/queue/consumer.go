package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// NotificationConsumer drains the attendee.notification queue and appends
// one line per notification to a log file.  Actual delivery (mail, push)
// is owned by an external collaborator that tails that file.
type NotificationConsumer struct {
	url     string
	logPath string
	log     *zap.Logger
}

// NewNotificationConsumer returns a consumer for the broker at url that
// writes to logPath.
func NewNotificationConsumer(url, logPath string, log *zap.Logger) *NotificationConsumer {
	return &NotificationConsumer{url: url, logPath: logPath, log: log}
}

// Run connects, declares the queue and consumes until ctx is cancelled.
// Broker failures are retried with exponential backoff capped at 30s.
// Run returns ctx.Err() on cancellation.
func (c *NotificationConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("notification-consumer: failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("notification-consumer: consume loop ended; reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *NotificationConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("notification-consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(NotificationQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, NotificationQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := c.handle(d.Body); err != nil {
			c.log.Error("notification-consumer: handle message failed", zap.Error(err))
			_ = d.Nack(false, false) // do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func (c *NotificationConsumer) handle(body []byte) error {
	if err := os.MkdirAll(filepath.Dir(c.logPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	return WriteNotification(f, body)
}

// WriteNotification decodes one AttendeeNotification and writes it as a
// single human-friendly line.
func WriteNotification(w io.Writer, body []byte) error {
	var n AttendeeNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if n.Kind == "" || n.ReservationID == "" {
		return errors.New("notification without kind or reservation")
	}
	line := fmt.Sprintf("[%s] %s | user_id=%d | reservation_id=%s | event_id=%d | event=%q",
		n.At.UTC().Format(time.RFC3339), n.Kind, n.UserID, n.ReservationID, n.EventID, n.EventName)
	if n.Refunded != "" {
		line += " | refunded=" + n.Refunded
	}
	if _, err := io.WriteString(w, line+"\n"); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
