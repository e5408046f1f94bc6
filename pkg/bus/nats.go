package bus

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	owerr "github.com/odvcencio/overwatch/pkg/errors"
)

const (
	queueMaxAge   = 24 * time.Hour
	queueAckWait  = 5 * time.Minute
	queuePullWait = 30 * time.Second
	queueMaxTries = 5
)

// NATSBus implements MessageBus on a NATS connection. Durable queues are
// JetStream work-queue streams, one per queue name.
type NATSBus struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	mu     sync.Mutex
	queues map[string]*natsQueue
	closed atomic.Bool
}

// NewNATSBus connects to cfg.URL and reconnects forever after a drop.
func NewNATSBus(cfg Config) (*NATSBus, error) {
	def := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, owerr.Wrap(err, owerr.ErrCodeBusPublish, "nats connect").
			WithContext("url", cfg.URL).
			WithRemediation("check bus.url or unset it to use the in-process bus")
	}
	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, owerr.Wrap(err, owerr.ErrCodeBusPublish, "jetstream init")
	}
	return &NATSBus{conn: conn, js: js, queues: make(map[string]*natsQueue)}, nil
}

func (b *NATSBus) Publish(_ context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}
	return b.conn.Publish(subject, data)
}

// Subscribe registers handler with the NATS client, which already delivers
// one message at a time per subscription. ctx is not consulted; end the
// subscription with Unsubscribe.
func (b *NATSBus) Subscribe(_ context.Context, pattern string, handler Handler) (Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}
	sub, err := b.conn.Subscribe(pattern, func(m *nats.Msg) {
		if handler != nil {
			handler(&Message{Subject: m.Subject, Data: m.Data})
		}
	})
	if err != nil {
		return nil, owerr.Wrap(err, owerr.ErrCodeBusPublish, "nats subscribe").WithContext("pattern", pattern)
	}
	return natsSubscription{sub: sub}, nil
}

func (b *NATSBus) Queue(name string) DurableQueue {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = &natsQueue{name: name, js: b.js, inflight: make(map[string]jetstream.Msg)}
		b.queues[name] = q
	}
	return q
}

// Close drains nothing: unacknowledged queue deliveries are redelivered
// after the ack wait.
func (b *NATSBus) Close() error {
	if b.closed.Swap(true) {
		return ErrClosed
	}
	b.conn.Close()
	return nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s natsSubscription) Unsubscribe() error { return s.sub.Unsubscribe() }

func (s natsSubscription) Pattern() string { return s.sub.Subject }

type natsQueue struct {
	name     string
	js       jetstream.JetStream
	once     sync.Once
	setupErr error
	stream   jetstream.Stream
	consumer jetstream.Consumer

	mu       sync.Mutex
	inflight map[string]jetstream.Msg
}

func (q *natsQueue) subject() string {
	return SubjectPrefix + ".queue." + q.name
}

// streamName upper-cases the queue name and replaces anything JetStream
// rejects in a stream name.
func (q *natsQueue) streamName() string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, q.name)
	return "OVERWATCH_" + name
}

func (q *natsQueue) setup(ctx context.Context) error {
	q.once.Do(func() {
		q.stream, q.setupErr = q.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:      q.streamName(),
			Subjects:  []string{q.subject()},
			Retention: jetstream.WorkQueuePolicy,
			MaxAge:    queueMaxAge,
			Storage:   jetstream.FileStorage,
			Replicas:  1,
		})
		if q.setupErr != nil {
			return
		}
		q.consumer, q.setupErr = q.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
			Durable:    strings.ToLower(q.streamName()),
			AckPolicy:  jetstream.AckExplicitPolicy,
			AckWait:    queueAckWait,
			MaxDeliver: queueMaxTries,
		})
	})
	if q.setupErr != nil {
		return owerr.Wrap(q.setupErr, owerr.ErrCodeBusPublish, "jetstream queue setup").WithContext("queue", q.name)
	}
	return nil
}

func (q *natsQueue) Push(ctx context.Context, data []byte) error {
	if err := q.setup(ctx); err != nil {
		return err
	}
	_, err := q.js.Publish(ctx, q.subject(), data)
	return err
}

// Pull waits for the next message, up to ctx's deadline or thirty seconds,
// and reports ErrQueueEmpty when none arrived.
func (q *natsQueue) Pull(ctx context.Context) (Delivery, error) {
	if err := q.setup(ctx); err != nil {
		return Delivery{}, err
	}
	wait := queuePullWait
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}
	if wait <= 0 {
		return Delivery{}, context.DeadlineExceeded
	}
	msg, err := q.consumer.Next(jetstream.FetchMaxWait(wait))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return Delivery{}, ErrQueueEmpty
		}
		return Delivery{}, err
	}
	meta, err := msg.Metadata()
	if err != nil {
		return Delivery{}, err
	}

	id := strconv.FormatUint(meta.Sequence.Stream, 10) + ":" + strconv.FormatUint(meta.Sequence.Consumer, 10)
	q.mu.Lock()
	q.inflight[id] = msg
	q.mu.Unlock()
	return Delivery{ID: id, Data: msg.Data(), Attempts: int(meta.NumDelivered)}, nil
}

func (q *natsQueue) take(id string) (jetstream.Msg, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	msg, ok := q.inflight[id]
	if !ok {
		return nil, owerr.NotFound("delivery", id)
	}
	delete(q.inflight, id)
	return msg, nil
}

func (q *natsQueue) Ack(_ context.Context, deliveryID string) error {
	msg, err := q.take(deliveryID)
	if err != nil {
		return err
	}
	return msg.Ack()
}

func (q *natsQueue) Nack(_ context.Context, deliveryID string) error {
	msg, err := q.take(deliveryID)
	if err != nil {
		return err
	}
	return msg.Nak()
}

func (q *natsQueue) Len(ctx context.Context) (int, error) {
	if err := q.setup(ctx); err != nil {
		return 0, err
	}
	info, err := q.stream.Info(ctx)
	if err != nil {
		return 0, err
	}
	return int(info.State.Msgs), nil
}

func (q *natsQueue) Name() string { return q.name }
