package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultQueue = "action_logs"

	dialTimeout    = 5 * time.Second
	redialCooldown = 30 * time.Second
)

// AMQPPublisher sends stored entries to a durable RabbitMQ queue. The
// connection is opened lazily and reopened after a failed publish. After a
// failed dial no new dial is attempted until the cooldown passes.
type AMQPPublisher struct {
	url   string
	queue string
	now   func() time.Time

	mu          sync.Mutex
	conn        *amqp.Connection
	channel     *amqp.Channel
	nextDialAt  time.Time
	lastDialErr error
}

func NewAMQPPublisher(url, queue string) *AMQPPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AMQPPublisher{url: url, queue: queue, now: time.Now}
}

func (p *AMQPPublisher) Publish(ctx context.Context, entry Entry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal action log: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	channel, err := p.openChannel()
	if err != nil {
		return err
	}

	err = channel.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    entry.ID.String(),
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		p.reset()
		return fmt.Errorf("publish action log: %w", err)
	}

	return nil
}

func (p *AMQPPublisher) openChannel() (*amqp.Channel, error) {
	if p.channel != nil && !p.channel.IsClosed() {
		return p.channel, nil
	}
	p.reset()

	if now := p.now(); now.Before(p.nextDialAt) {
		return nil, fmt.Errorf("rabbitmq unavailable until %s: %w", p.nextDialAt.Format(time.RFC3339), p.lastDialErr)
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Dial:      amqp.DefaultDial(dialTimeout),
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		p.nextDialAt = p.now().Add(redialCooldown)
		p.lastDialErr = err
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if _, err := channel.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", p.queue, err)
	}

	p.conn = conn
	p.channel = channel
	return channel, nil
}

func (p *AMQPPublisher) reset() {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
