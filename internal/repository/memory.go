package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/filap/internal/domain"
)

// memoryDB backs the in-memory repositories. Lock order is db.mu, then
// queueState.mu, then messageState.mu. idxMu guards the id indexes and is a
// leaf: nothing else is acquired while it is held. Mutations lock only the
// queue or message they touch.
type memoryDB struct {
	mu     sync.RWMutex
	queues map[uuid.UUID]*queueState

	idxMu    sync.RWMutex
	messages map[uuid.UUID]*messageState
	raises   map[uuid.UUID]*queueState
}

type queueState struct {
	mu           sync.Mutex
	queue        domain.Queue
	messages     map[uuid.UUID]*messageState
	handRaises   map[uuid.UUID]*domain.HandRaise
	lastRaisedAt time.Time
	deleted      bool
}

type messageState struct {
	mu      sync.Mutex
	msg     domain.Message
	voters  map[uuid.UUID]struct{}
	deleted bool
}

// NewInMemoryStore returns repositories sharing one in-process state.
func NewInMemoryStore() *Store {
	db := &memoryDB{
		queues:   make(map[uuid.UUID]*queueState),
		messages: make(map[uuid.UUID]*messageState),
		raises:   make(map[uuid.UUID]*queueState),
	}
	return &Store{
		Queues:     &InMemoryQueueRepository{db: db},
		Messages:   &InMemoryMessageRepository{db: db},
		HandRaises: &InMemoryHandRaiseRepository{db: db},
	}
}

func (db *memoryDB) queue(id uuid.UUID) (*queueState, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	qs, ok := db.queues[id]
	return qs, ok
}

func (db *memoryDB) message(id uuid.UUID) (*messageState, bool) {
	db.idxMu.RLock()
	defer db.idxMu.RUnlock()
	ms, ok := db.messages[id]
	return ms, ok
}

type InMemoryQueueRepository struct {
	db *memoryDB
}

func (r *InMemoryQueueRepository) Create(ctx context.Context, queue *domain.Queue) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.queues[queue.ID] = &queueState{
		queue:      copyQueue(queue),
		messages:   make(map[uuid.UUID]*messageState),
		handRaises: make(map[uuid.UUID]*domain.HandRaise),
	}
	return nil
}

func (r *InMemoryQueueRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Queue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qs, ok := r.db.queue(id)
	if !ok {
		return nil, ErrQueueNotFound
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()
	if qs.deleted {
		return nil, ErrQueueNotFound
	}
	q := copyQueue(&qs.queue)
	return &q, nil
}

func (r *InMemoryQueueRepository) Update(ctx context.Context, id uuid.UUID, patch domain.QueuePatch) (*domain.Queue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qs, ok := r.db.queue(id)
	if !ok {
		return nil, ErrQueueNotFound
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()
	if qs.deleted {
		return nil, ErrQueueNotFound
	}

	if patch.Name != nil {
		name := *patch.Name
		if name == "" {
			qs.queue.Name = nil
		} else {
			qs.queue.Name = &name
		}
	}
	if patch.DefaultSortOrder != nil {
		qs.queue.DefaultSortOrder = *patch.DefaultSortOrder
	}

	q := copyQueue(&qs.queue)
	return &q, nil
}

func (r *InMemoryQueueRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if !r.db.deleteQueueLocked(id) {
		return ErrQueueNotFound
	}
	return nil
}

func (r *InMemoryQueueRepository) DeleteExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var expired []uuid.UUID
	for id, qs := range r.db.queues {
		qs.mu.Lock()
		isExpired := qs.queue.IsExpired(now)
		qs.mu.Unlock()
		if isExpired {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		r.db.deleteQueueLocked(id)
	}
	return expired, nil
}

// deleteQueueLocked requires db.mu held for writing.
func (db *memoryDB) deleteQueueLocked(id uuid.UUID) bool {
	qs, ok := db.queues[id]
	if !ok {
		return false
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()

	for _, ms := range qs.messages {
		ms.mu.Lock()
		ms.deleted = true
		ms.mu.Unlock()
	}

	db.idxMu.Lock()
	for msgID := range qs.messages {
		delete(db.messages, msgID)
	}
	for hrID := range qs.handRaises {
		delete(db.raises, hrID)
	}
	db.idxMu.Unlock()

	qs.deleted = true
	delete(db.queues, id)
	return true
}

func (r *InMemoryQueueRepository) Stats(ctx context.Context, now time.Time) (domain.QueueStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.QueueStats{}, err
	}

	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var stats domain.QueueStats
	for _, qs := range r.db.queues {
		qs.mu.Lock()
		if !qs.queue.IsExpired(now) {
			stats.ActiveQueues++
			stats.TotalMessages += int64(len(qs.messages))
		}
		qs.mu.Unlock()
	}
	return stats, nil
}

type InMemoryMessageRepository struct {
	db *memoryDB
}

func (r *InMemoryMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	qs, ok := r.db.queue(msg.QueueID)
	if !ok {
		return ErrQueueNotFound
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()
	if qs.deleted {
		return ErrQueueNotFound
	}

	ms := &messageState{msg: *msg, voters: make(map[uuid.UUID]struct{})}
	qs.messages[msg.ID] = ms

	r.db.idxMu.Lock()
	r.db.messages[msg.ID] = ms
	r.db.idxMu.Unlock()
	return nil
}

func (r *InMemoryMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms, ok := r.db.message(id)
	if !ok {
		return nil, ErrMessageNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.deleted {
		return nil, ErrMessageNotFound
	}
	m := ms.msg
	return &m, nil
}

func (r *InMemoryMessageRepository) List(ctx context.Context, queueID uuid.UUID, opts domain.MessageListOptions) ([]*domain.Message, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	qs, ok := r.db.queue(queueID)
	if !ok {
		return nil, 0, ErrQueueNotFound
	}

	qs.mu.Lock()
	all := make([]*domain.Message, 0, len(qs.messages))
	for _, ms := range qs.messages {
		ms.mu.Lock()
		m := ms.msg
		ms.mu.Unlock()
		all = append(all, &m)
	}
	qs.mu.Unlock()

	sortMessages(all, opts.Sort)

	total := len(all)
	if opts.Offset >= total {
		return []*domain.Message{}, total, nil
	}
	end := total
	if opts.Limit > 0 && opts.Offset+opts.Limit < total {
		end = opts.Offset + opts.Limit
	}
	return all[opts.Offset:end], total, nil
}

func sortMessages(msgs []*domain.Message, order domain.SortOrder) {
	sort.Slice(msgs, func(i, j int) bool {
		a, b := msgs[i], msgs[j]
		if order == domain.SortNewest {
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.ID.String() < b.ID.String()
		}
		if a.VoteCount != b.VoteCount {
			return a.VoteCount > b.VoteCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}

func (r *InMemoryMessageRepository) SetRead(ctx context.Context, id uuid.UUID, isRead bool, now time.Time) (*domain.Message, error) {
	return r.mutate(ctx, id, func(ms *messageState) error {
		ms.msg.IsRead = isRead
		ms.msg.UpdatedAt = now
		return nil
	})
}

func (r *InMemoryMessageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ms, ok := r.db.message(id)
	if !ok {
		return ErrMessageNotFound
	}

	// QueueID never changes, so reading it needs no lock.
	qs, ok := r.db.queue(ms.msg.QueueID)
	if !ok {
		return ErrMessageNotFound
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()

	ms.mu.Lock()
	if ms.deleted {
		ms.mu.Unlock()
		return ErrMessageNotFound
	}
	ms.deleted = true
	ms.mu.Unlock()

	delete(qs.messages, id)

	r.db.idxMu.Lock()
	delete(r.db.messages, id)
	r.db.idxMu.Unlock()
	return nil
}

func (r *InMemoryMessageRepository) ToggleVote(ctx context.Context, id, voter uuid.UUID, now time.Time) (*domain.Message, bool, error) {
	var voted bool
	msg, err := r.mutate(ctx, id, func(ms *messageState) error {
		if _, ok := ms.voters[voter]; ok {
			delete(ms.voters, voter)
			voted = false
		} else {
			ms.voters[voter] = struct{}{}
			voted = true
		}
		ms.msg.VoteCount = len(ms.voters)
		ms.msg.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return msg, voted, nil
}

func (r *InMemoryMessageRepository) AddVote(ctx context.Context, id, voter uuid.UUID, now time.Time) (*domain.Message, error) {
	return r.mutate(ctx, id, func(ms *messageState) error {
		if _, ok := ms.voters[voter]; ok {
			return ErrAlreadyVoted
		}
		ms.voters[voter] = struct{}{}
		ms.msg.VoteCount = len(ms.voters)
		ms.msg.UpdatedAt = now
		return nil
	})
}

func (r *InMemoryMessageRepository) VotedBy(ctx context.Context, voter uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		ms, ok := r.db.message(id)
		if !ok {
			continue
		}
		ms.mu.Lock()
		_, voted := ms.voters[voter]
		ms.mu.Unlock()
		res[id] = voted
	}
	return res, nil
}

// mutate runs fn under the message lock and returns a copy of the result.
func (r *InMemoryMessageRepository) mutate(ctx context.Context, id uuid.UUID, fn func(ms *messageState) error) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms, ok := r.db.message(id)
	if !ok {
		return nil, ErrMessageNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.deleted {
		return nil, ErrMessageNotFound
	}
	if err := fn(ms); err != nil {
		return nil, err
	}
	m := ms.msg
	return &m, nil
}

type InMemoryHandRaiseRepository struct {
	db *memoryDB
}

func (r *InMemoryHandRaiseRepository) Toggle(ctx context.Context, queueID, userID uuid.UUID, userName string, now time.Time) (*domain.HandRaise, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	qs, ok := r.db.queue(queueID)
	if !ok {
		return nil, false, ErrQueueNotFound
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()
	if qs.deleted {
		return nil, false, ErrQueueNotFound
	}

	for id, hr := range qs.handRaises {
		if hr.UserID == userID && hr.IsActive() {
			delete(qs.handRaises, id)
			r.db.idxMu.Lock()
			delete(r.db.raises, id)
			r.db.idxMu.Unlock()
			removed := copyHandRaise(hr)
			return &removed, false, nil
		}
	}

	if userName == "" {
		return nil, false, ErrNothingToLower
	}

	raisedAt := domain.NextRaisedAt(qs.lastRaisedAt, now)
	qs.lastRaisedAt = raisedAt

	hr := domain.NewHandRaise(queueID, userID, userName, raisedAt)
	qs.handRaises[hr.ID] = hr
	r.db.idxMu.Lock()
	r.db.raises[hr.ID] = qs
	r.db.idxMu.Unlock()

	created := copyHandRaise(hr)
	return &created, true, nil
}

func (r *InMemoryHandRaiseRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.HandRaise, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qs, ok := r.owner(id)
	if !ok {
		return nil, ErrHandRaiseNotFound
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()
	hr, ok := qs.handRaises[id]
	if !ok {
		return nil, ErrHandRaiseNotFound
	}
	res := copyHandRaise(hr)
	return &res, nil
}

func (r *InMemoryHandRaiseRepository) List(ctx context.Context, queueID uuid.UUID) ([]*domain.HandRaise, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qs, ok := r.db.queue(queueID)
	if !ok {
		return nil, ErrQueueNotFound
	}

	qs.mu.Lock()
	res := make([]*domain.HandRaise, 0, len(qs.handRaises))
	for _, hr := range qs.handRaises {
		c := copyHandRaise(hr)
		res = append(res, &c)
	}
	qs.mu.Unlock()

	sort.Slice(res, func(i, j int) bool {
		return res[i].RaisedAt.Before(res[j].RaisedAt)
	})
	return res, nil
}

func (r *InMemoryHandRaiseRepository) SetCompleted(ctx context.Context, id uuid.UUID, completed bool, now time.Time) (*domain.HandRaise, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qs, ok := r.owner(id)
	if !ok {
		return nil, ErrHandRaiseNotFound
	}

	qs.mu.Lock()
	defer qs.mu.Unlock()

	hr, ok := qs.handRaises[id]
	if !ok {
		return nil, ErrHandRaiseNotFound
	}

	if !completed && !hr.IsActive() {
		for otherID, other := range qs.handRaises {
			if otherID != id && other.UserID == hr.UserID && other.IsActive() {
				return nil, ErrActiveHandRaiseExists
			}
		}
	}

	hr.MarkCompleted(completed, now)
	res := copyHandRaise(hr)
	return &res, nil
}

func (r *InMemoryHandRaiseRepository) owner(id uuid.UUID) (*queueState, bool) {
	r.db.idxMu.RLock()
	defer r.db.idxMu.RUnlock()
	qs, ok := r.db.raises[id]
	return qs, ok
}

func copyQueue(q *domain.Queue) domain.Queue {
	c := *q
	if q.Name != nil {
		name := *q.Name
		c.Name = &name
	}
	return c
}

func copyHandRaise(h *domain.HandRaise) domain.HandRaise {
	c := *h
	if h.CompletedAt != nil {
		t := *h.CompletedAt
		c.CompletedAt = &t
	}
	return c
}
