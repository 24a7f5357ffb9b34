package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type SortOrder string

const (
	SortVotes  SortOrder = "votes"
	SortNewest SortOrder = "newest"
)

var ErrInvalidSortOrder = errors.New("sort order must be 'votes' or 'newest'")

// ParseSortOrder accepts only the two known orders. An empty value is not
// accepted here; callers decide what the default is.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case SortVotes, SortNewest:
		return SortOrder(s), nil
	default:
		return "", ErrInvalidSortOrder
	}
}

// Queue is a time-boxed Q&A session. Ownership is proven by the host secret,
// of which only a keyed digest is kept.
type Queue struct {
	ID               uuid.UUID `json:"id"`
	Name             *string   `json:"name"`
	HostSecretHash   string    `json:"-"`
	DefaultSortOrder SortOrder `json:"default_sort_order"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// NewQueue builds a queue that lives for ttl starting at now.
func NewQueue(name *string, order SortOrder, secretHash string, now time.Time, ttl time.Duration) *Queue {
	if order == "" {
		order = SortVotes
	}
	return &Queue{
		ID:               uuid.New(),
		Name:             name,
		HostSecretHash:   secretHash,
		DefaultSortOrder: order,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
	}
}

// IsExpired reports whether the queue is past its expiry at the given moment.
func (q *Queue) IsExpired(now time.Time) bool {
	if q == nil {
		return true
	}
	return !now.Before(q.ExpiresAt)
}

// QueuePatch carries the mutable queue fields. Nil means "leave as is".
type QueuePatch struct {
	Name             *string
	DefaultSortOrder *SortOrder
}

func (p QueuePatch) IsEmpty() bool {
	return p.Name == nil && p.DefaultSortOrder == nil
}

// QueueStats is a point-in-time summary over live queues.
type QueueStats struct {
	ActiveQueues  int64 `json:"active_queues"`
	TotalMessages int64 `json:"total_messages"`
}
