// Package events publishes tracking lifecycle events to the log pipeline.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/SUF145/call-geo/common/logger"
	"github.com/SUF145/call-geo/common/rabbitmq"
)

const (
	TrackingStarted = "tracking.started"
	TrackingStopped = "tracking.stopped"
	AlertPosted     = "alert.posted"
	SpoofingFlagged = "location.spoofing_detected"
)

// Event matches the {name, data} shape the log consumer stores.
type Event struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

// New encodes payload as the event data.
func New(name string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", name, err)
	}
	return Event{Name: name, Data: string(data)}, nil
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// AMQPPublisher sends events to the logs queue over one reused sender.
type AMQPPublisher struct {
	session *amqp.Session
	address string

	mu     sync.Mutex
	sender *amqp.Sender
}

func NewAMQPPublisher(ctx context.Context, conn *amqp.Conn) (*AMQPPublisher, error) {
	session, err := conn.NewSession(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open RabbitMQ session: %w", err)
	}
	return &AMQPPublisher{session: session, address: rabbitmq.Address(rabbitmq.LogsQueue)}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg, err := encode(ev)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sender == nil {
		sender, err := p.session.NewSender(ctx, p.address, nil)
		if err != nil {
			return fmt.Errorf("failed to create sender for %s: %w", p.address, err)
		}
		p.sender = sender
	}

	if err := p.sender.Send(ctx, msg, nil); err != nil {
		// the link may be dead; reopen on the next publish
		p.sender.Close(ctx)
		p.sender = nil
		return fmt.Errorf("failed to publish %s: %w", ev.Name, err)
	}

	logger.DebugCtx(ctx, "Published event", "event_name", ev.Name)
	return nil
}

func (p *AMQPPublisher) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sender != nil {
		p.sender.Close(ctx)
		p.sender = nil
	}
	return p.session.Close(ctx)
}

func encode(ev Event) (*amqp.Message, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	contentType := "application/json"
	return &amqp.Message{
		Data:       [][]byte{body},
		Properties: &amqp.MessageProperties{ContentType: &contentType},
	}, nil
}

// Memory records published events in process.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
