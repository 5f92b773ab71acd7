package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	ErrPublishNacked      = errors.New("amqp: publish not acknowledged")
	ErrConfirmTimeout     = errors.New("amqp: confirm timeout")
	ErrClosed             = errors.New("amqp: publisher closed")
	ErrChannelInvalidated = errors.New("amqp: channel invalidated")
)

const (
	defaultConfirmTimeout = 5 * time.Second
	confirmBuffer         = 256
)

// Channel is the subset of *amqp.Channel used by the publisher.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes persistent JSON events to a topic exchange and
// waits for broker confirms. A channel whose confirm stream may hold a stale
// confirmation is closed and replaced on the next publish.
type AMQPPublisher struct {
	mu             sync.Mutex
	conn           *amqp.Connection
	open           func() (Channel, error)
	ch             Channel
	exchange       string
	confirms       chan amqp.Confirmation
	confirmTimeout time.Duration
	closed         bool
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	p, err := NewAMQPPublisher(ch, exchange)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	p.open = func() (Channel, error) { return conn.Channel() }
	return p, nil
}

// NewAMQPPublisher declares exchange on ch and enables publisher confirms.
func NewAMQPPublisher(ch Channel, exchange string) (*AMQPPublisher, error) {
	p := &AMQPPublisher{
		exchange:       exchange,
		confirmTimeout: defaultConfirmTimeout,
	}
	if err := p.attach(ch); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *AMQPPublisher) attach(ch Channel) error {
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("enable confirms: %w", err)
	}
	p.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, confirmBuffer))
	p.ch = ch
	return nil
}

// RoutingKey is "<queue>.<type>" in lower case.
func RoutingKey(queue Queue, t Type) string {
	return strings.ToLower(string(queue)) + "." + string(t)
}

func (p *AMQPPublisher) Publish(ctx context.Context, queue Queue, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.ch == nil {
		if err := p.reopen(); err != nil {
			return err
		}
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         string(ev.Type),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(queue, ev.Type), false, false, msg); err != nil {
		return fmt.Errorf("publish event %s: %w", ev.ID, err)
	}

	err = p.waitForConfirm(ctx)
	if err != nil && isConfirmStreamCorrupted(err) {
		// The confirmation still owed for this publish would be read by the next one.
		p.invalidate()
	}
	return err
}

func (p *AMQPPublisher) waitForConfirm(ctx context.Context) error {
	timeout := time.NewTimer(p.confirmTimeout)
	defer timeout.Stop()
	select {
	case confirmed, ok := <-p.confirms:
		if !ok {
			return ErrClosed
		}
		if !confirmed.Ack {
			return fmt.Errorf("%w: delivery_tag=%d", ErrPublishNacked, confirmed.DeliveryTag)
		}
		return nil
	case <-timeout.C:
		return ErrConfirmTimeout
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	}
}

func isConfirmStreamCorrupted(err error) bool {
	return errors.Is(err, ErrConfirmTimeout) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// invalidate closes the current channel. Must be called with mu held.
func (p *AMQPPublisher) invalidate() {
	_ = p.ch.Close()
	p.ch = nil
	p.confirms = nil
}

// reopen replaces an invalidated channel. Must be called with mu held.
func (p *AMQPPublisher) reopen() error {
	if p.open == nil {
		return ErrChannelInvalidated
	}
	ch, err := p.open()
	if err != nil {
		return fmt.Errorf("reopen amqp channel: %w", err)
	}
	if err := p.attach(ch); err != nil {
		_ = ch.Close()
		return err
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var err error
	if p.ch != nil {
		err = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
