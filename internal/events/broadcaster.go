package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/filap/internal/domain"
	"github.com/immxrtalbeast/filap/lib/logger/sl"
)

// Publisher accepts committed mutations for fan-out. Implementations never
// report per-subscriber failures.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}

// Subscription is an opaque sink handle owned by the Broadcaster. Its channel
// is closed when the subscription is removed, evicted or its queue closed.
type Subscription struct {
	id      uint64
	queueID uuid.UUID
	ch      chan []byte
	closed  bool
}

func (s *Subscription) QueueID() uuid.UUID {
	return s.queueID
}

func (s *Subscription) Frames() <-chan []byte {
	return s.ch
}

type queueSubscribers struct {
	mu   sync.Mutex
	subs map[uint64]*Subscription
}

// Broadcaster is the registry of live subscriptions keyed by queue. Lock
// order is b.mu, then queueSubscribers.mu. Publishing only read-locks b.mu.
type Broadcaster struct {
	log        *slog.Logger
	bufferSize int
	nextID     atomic.Uint64

	mu     sync.RWMutex
	queues map[uuid.UUID]*queueSubscribers
	closed bool
}

func NewBroadcaster(log *slog.Logger, bufferSize int) *Broadcaster {
	if log == nil {
		log = slog.Default()
	}
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &Broadcaster{
		log:        log,
		bufferSize: bufferSize,
		queues:     make(map[uuid.UUID]*queueSubscribers),
	}
}

// Subscribe registers a new sink for queueID. On a closed broadcaster the
// returned subscription is already closed.
func (b *Broadcaster) Subscribe(queueID uuid.UUID) *Subscription {
	sub := &Subscription{
		id:      b.nextID.Add(1),
		queueID: queueID,
		ch:      make(chan []byte, b.bufferSize),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}

	set, ok := b.queues[queueID]
	if !ok {
		set = &queueSubscribers{subs: make(map[uint64]*Subscription)}
		b.queues[queueID] = set
	}

	set.mu.Lock()
	set.subs[sub.id] = sub
	set.mu.Unlock()

	return sub
}

// Unsubscribe removes sub and drops the queue entry once it is empty. It is
// safe to call more than once and after eviction.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.queues[sub.queueID]
	if !ok {
		return
	}

	set.mu.Lock()
	if s, ok := set.subs[sub.id]; ok {
		delete(set.subs, sub.id)
		closeSubscription(s)
	}
	empty := len(set.subs) == 0
	set.mu.Unlock()

	if empty {
		delete(b.queues, sub.queueID)
	}
}

func (b *Broadcaster) Publish(_ context.Context, ev domain.Event) error {
	frame, err := Encode(ev)
	if err != nil {
		return err
	}
	b.Deliver(ev.QueueID, frame)
	return nil
}

// Deliver fans an encoded frame out to the queue's subscribers without
// blocking. A subscriber whose buffer is full is evicted.
func (b *Broadcaster) Deliver(queueID uuid.UUID, frame []byte) {
	b.mu.RLock()
	set, ok := b.queues[queueID]
	b.mu.RUnlock()
	if !ok {
		return
	}

	set.mu.Lock()
	defer set.mu.Unlock()

	for id, sub := range set.subs {
		select {
		case sub.ch <- frame:
		default:
			delete(set.subs, id)
			closeSubscription(sub)
			b.log.Warn("evicted slow subscriber",
				slog.String("queue_id", queueID.String()),
				slog.Uint64("subscription_id", id),
			)
		}
	}
}

// CloseQueue ends every subscription of a removed queue.
func (b *Broadcaster) CloseQueue(queueID uuid.UUID) {
	b.mu.Lock()
	set, ok := b.queues[queueID]
	delete(b.queues, queueID)
	b.mu.Unlock()
	if !ok {
		return
	}

	set.mu.Lock()
	for id, sub := range set.subs {
		delete(set.subs, id)
		closeSubscription(sub)
	}
	set.mu.Unlock()
}

func (b *Broadcaster) SubscriberCount(queueID uuid.UUID) int {
	b.mu.RLock()
	set, ok := b.queues[queueID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	return len(set.subs)
}

func (b *Broadcaster) TotalSubscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	total := 0
	for _, set := range b.queues {
		set.mu.Lock()
		total += len(set.subs)
		set.mu.Unlock()
	}
	return total
}

// Close ends all subscriptions and refuses new ones.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for queueID, set := range b.queues {
		set.mu.Lock()
		for id, sub := range set.subs {
			delete(set.subs, id)
			closeSubscription(sub)
		}
		set.mu.Unlock()
		delete(b.queues, queueID)
	}
	b.log.Info("broadcaster closed")
}

// closeSubscription requires the owning set's lock.
func closeSubscription(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	close(sub.ch)
}

// PublishLogged publishes and logs a failure instead of returning it, since a
// committed mutation must not fail because fan-out did.
func PublishLogged(ctx context.Context, p Publisher, log *slog.Logger, ev domain.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		log.Error("failed to publish event",
			slog.String("event", string(ev.Type)),
			slog.String("queue_id", ev.QueueID.String()),
			sl.Err(err),
		)
	}
}
