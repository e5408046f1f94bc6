// Package bus carries mission traffic between the orchestrator and field
// agents. Subjects fan messages out to whoever is listening now; durable
// queues hold mission contexts for agents that come online later. NATS with
// JetStream backs deployments and MemoryBus serves single-process runs and
// tests.
package bus

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrClosed is returned by every operation on a closed bus or queue.
	ErrClosed = errors.New("bus closed")

	// ErrQueueEmpty is returned when a pull found nothing to deliver.
	ErrQueueEmpty = errors.New("queue empty")
)

// SubjectPrefix roots every subject the orchestrator publishes.
const SubjectPrefix = "overwatch"

// MessageBus is the transport the orchestrator publishes on. Implementations
// must be safe for concurrent use.
type MessageBus interface {
	// Publish fans data out to every subscription matching subject and
	// returns without waiting for delivery.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe calls handler for each message whose subject matches
	// pattern. "*" matches one token and a trailing ">" matches the rest.
	Subscribe(ctx context.Context, pattern string, handler Handler) (Subscription, error)

	// Queue returns the durable queue with the given name, creating it on
	// first use.
	Queue(name string) DurableQueue

	Close() error
}

// Handler processes one message. Handlers for a subscription run one at a
// time.
type Handler func(msg *Message)

// Message is one published payload.
type Message struct {
	Subject string
	Data    []byte
}

// Subscription is a live registration on a MessageBus.
type Subscription interface {
	Unsubscribe() error
	Pattern() string
}

// DurableQueue holds payloads until a consumer acknowledges them. Each
// payload goes to exactly one consumer.
type DurableQueue interface {
	Push(ctx context.Context, data []byte) error

	// Pull blocks until a delivery is available or ctx ends.
	Pull(ctx context.Context) (Delivery, error)

	Ack(ctx context.Context, deliveryID string) error

	// Nack returns the delivery to the queue for another attempt.
	Nack(ctx context.Context, deliveryID string) error

	// Len is the number of payloads waiting, excluding unacknowledged
	// deliveries.
	Len(ctx context.Context) (int, error)

	Name() string
}

// Delivery is one payload handed to a queue consumer.
type Delivery struct {
	ID       string
	Data     []byte
	Attempts int
}

// Config holds the connection settings for a NATS-backed bus.
type Config struct {
	URL     string
	Name    string
	Timeout time.Duration
}

// DefaultConfig points at a local NATS server.
func DefaultConfig() Config {
	return Config{
		URL:     "nats://localhost:4222",
		Name:    "overwatch",
		Timeout: 5 * time.Second,
	}
}
