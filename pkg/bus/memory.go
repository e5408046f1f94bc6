package bus

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"

	owerr "github.com/odvcencio/overwatch/pkg/errors"
)

const subscriptionBuffer = 256

// MemoryBus is an in-process MessageBus. Nothing survives a restart, and a
// subscriber whose buffer is full misses messages rather than slowing the
// publisher.
type MemoryBus struct {
	mu      sync.RWMutex
	subs    map[uint64]*memorySubscription
	queues  map[string]*memoryQueue
	nextSub uint64
	closed  bool
	dropped atomic.Int64
}

// NewMemoryBus creates an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		subs:   make(map[uint64]*memorySubscription),
		queues: make(map[string]*memoryQueue),
	}
}

// Publish delivers data to every matching subscription.
func (b *MemoryBus) Publish(_ context.Context, subject string, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for _, sub := range b.subs {
		if !matchSubject(sub.pattern, subject) {
			continue
		}
		select {
		case sub.messages <- &Message{Subject: subject, Data: data}:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe starts a goroutine feeding handler until the subscription, the
// bus or ctx ends.
func (b *MemoryBus) Subscribe(ctx context.Context, pattern string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	b.nextSub++
	sub := &memorySubscription{
		id:       b.nextSub,
		pattern:  pattern,
		messages: make(chan *Message, subscriptionBuffer),
		bus:      b,
	}
	b.subs[sub.id] = sub
	go sub.run(ctx, handler)
	return sub, nil
}

// Queue returns the named queue.
func (b *MemoryBus) Queue(name string) DurableQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = newMemoryQueue(name)
		if b.closed {
			q.close()
		}
		b.queues[name] = q
	}
	return q
}

// Dropped counts messages discarded because a subscriber was full.
func (b *MemoryBus) Dropped() int64 {
	return b.dropped.Load()
}

// Close ends every subscription and queue. Closing twice returns ErrClosed.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.stop()
	}
	for _, q := range b.queues {
		q.close()
	}
	return nil
}

type memorySubscription struct {
	id       uint64
	pattern  string
	messages chan *Message
	bus      *MemoryBus
	once     sync.Once
}

func (s *memorySubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	s.stop()
	return nil
}

func (s *memorySubscription) Pattern() string { return s.pattern }

func (s *memorySubscription) stop() {
	s.once.Do(func() { close(s.messages) })
}

func (s *memorySubscription) run(ctx context.Context, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-s.messages:
			if !ok {
				return
			}
			if handler != nil {
				handler(msg)
			}
		}
	}
}

// memoryQueue is a FIFO with explicit acknowledgement. Nacked deliveries go
// to the back of the line.
type memoryQueue struct {
	name     string
	mu       sync.Mutex
	ready    []Delivery
	inflight map[string]Delivery
	wake     chan struct{}
	closed   bool
}

func newMemoryQueue(name string) *memoryQueue {
	return &memoryQueue{
		name:     name,
		inflight: make(map[string]Delivery),
		wake:     make(chan struct{}, 1),
	}
}

// notify wakes one waiting Pull. Callers hold q.mu.
func (q *memoryQueue) notify() {
	if q.closed {
		return
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *memoryQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.wake)
	}
}

func (q *memoryQueue) Push(_ context.Context, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.ready = append(q.ready, Delivery{ID: ulid.Make().String(), Data: data})
	q.notify()
	return nil
}

func (q *memoryQueue) Pull(ctx context.Context) (Delivery, error) {
	for {
		q.mu.Lock()
		if len(q.ready) > 0 {
			d := q.ready[0]
			q.ready = q.ready[1:]
			d.Attempts++
			q.inflight[d.ID] = d
			if len(q.ready) > 0 {
				q.notify()
			}
			q.mu.Unlock()
			return d, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return Delivery{}, ErrClosed
		}

		select {
		case <-q.wake:
		case <-ctx.Done():
			return Delivery{}, ctx.Err()
		}
	}
}

func (q *memoryQueue) Ack(_ context.Context, deliveryID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[deliveryID]; !ok {
		return owerr.NotFound("delivery", deliveryID)
	}
	delete(q.inflight, deliveryID)
	return nil
}

func (q *memoryQueue) Nack(_ context.Context, deliveryID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	d, ok := q.inflight[deliveryID]
	if !ok {
		return owerr.NotFound("delivery", deliveryID)
	}
	delete(q.inflight, deliveryID)
	q.ready = append(q.ready, d)
	q.notify()
	return nil
}

func (q *memoryQueue) Len(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready), nil
}

func (q *memoryQueue) Name() string { return q.name }

// matchSubject applies NATS wildcard rules: "*" matches exactly one token
// and a final ">" matches one or more.
func matchSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, tok := range pt {
		if tok == ">" && i == len(pt)-1 {
			return i < len(st)
		}
		if i >= len(st) || (tok != "*" && tok != st[i]) {
			return false
		}
	}
	return len(pt) == len(st)
}
