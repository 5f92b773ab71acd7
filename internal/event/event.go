package event

import (
	"context"
	"fmt"
	"sync"

	"github.com/ayo6706/anchor-platform/internal/domain"
	"github.com/ayo6706/anchor-platform/internal/observability"
	"go.uber.org/zap"
)

// Queue names a logical event stream.
type Queue string

const QueueTransaction Queue = "TRANSACTION"

// Type classifies an event.
type Type string

const (
	TypeTransactionStatusChanged Type = "transaction_status_changed"
	TypeTransactionError         Type = "transaction_error"
	TypeCustomerUpdated          Type = "customer_updated"
)

// Customer is the customer payload of a customer_updated event.
type Customer struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Event is the message published to business consumers.
type Event struct {
	ID          string                  `json:"id"`
	Type        Type                    `json:"type"`
	Sep         string                  `json:"sep"`
	Transaction *domain.TransactionView `json:"transaction,omitempty"`
	Customer    *Customer               `json:"customer,omitempty"`
}

// Publisher delivers events to a backend.
type Publisher interface {
	Publish(ctx context.Context, queue Queue, ev Event) error
	Close() error
}

// Session publishes events to one queue on behalf of a named producer.
type Session interface {
	Publish(ctx context.Context, ev Event) error
}

// Service hands out sessions bound to a publisher.
type Service struct {
	publisher Publisher
}

func NewService(publisher Publisher) *Service {
	return &Service{publisher: publisher}
}

// CreateSession returns a session publishing to queue.
func (s *Service) CreateSession(name string, queue Queue) Session {
	return &session{name: name, queue: queue, publisher: s.publisher}
}

// Close releases the publisher.
func (s *Service) Close() error {
	return s.publisher.Close()
}

type session struct {
	name      string
	queue     Queue
	publisher Publisher
}

func (s *session) Publish(ctx context.Context, ev Event) error {
	if err := s.publisher.Publish(ctx, s.queue, ev); err != nil {
		observability.IncrementEventPublished(string(s.queue), "error")
		return fmt.Errorf("session %s publish %s: %w", s.name, ev.Type, err)
	}
	observability.IncrementEventPublished(string(s.queue), "ok")
	zap.L().Debug("event published",
		zap.String("session", s.name),
		zap.String("queue", string(s.queue)),
		zap.String("event_id", ev.ID),
		zap.String("type", string(ev.Type)),
	)
	return nil
}

// MemoryPublisher keeps published events in memory.
type MemoryPublisher struct {
	mu     sync.Mutex
	events map[Queue][]Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{events: map[Queue][]Event{}}
}

func (p *MemoryPublisher) Publish(_ context.Context, queue Queue, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events[queue] = append(p.events[queue], ev)
	return nil
}

// Events returns a copy of the events published to queue.
func (p *MemoryPublisher) Events(queue Queue) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events[queue]...)
}

func (p *MemoryPublisher) Close() error { return nil }
