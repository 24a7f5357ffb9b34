package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/filap/internal/domain"
)

// Every method returns copies, so callers may keep or mutate results freely.

type QueueRepository interface {
	Create(ctx context.Context, queue *domain.Queue) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Queue, error)
	Update(ctx context.Context, id uuid.UUID, patch domain.QueuePatch) (*domain.Queue, error)
	// Delete removes the queue with its messages, votes and hand-raises.
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	Stats(ctx context.Context, now time.Time) (domain.QueueStats, error)
}

type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error)
	// List returns one page and the total number of messages in the queue.
	List(ctx context.Context, queueID uuid.UUID, opts domain.MessageListOptions) ([]*domain.Message, int, error)
	SetRead(ctx context.Context, id uuid.UUID, isRead bool, now time.Time) (*domain.Message, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// ToggleVote adds the voter's vote or removes it if present, atomically
	// per message. The bool reports whether the voter has a vote afterwards.
	ToggleVote(ctx context.Context, id, voter uuid.UUID, now time.Time) (*domain.Message, bool, error)
	// AddVote fails with ErrAlreadyVoted instead of removing a present vote.
	AddVote(ctx context.Context, id, voter uuid.UUID, now time.Time) (*domain.Message, error)
	VotedBy(ctx context.Context, voter uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error)
}

type HandRaiseRepository interface {
	// Toggle lowers the user's active hand-raise if there is one, otherwise
	// raises a new one. It returns the affected entry and whether it was raised.
	// With an empty userName nothing is raised and ErrNothingToLower is
	// returned when there is no active entry.
	Toggle(ctx context.Context, queueID, userID uuid.UUID, userName string, now time.Time) (*domain.HandRaise, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.HandRaise, error)
	// List returns every entry of the queue ordered by raised_at.
	List(ctx context.Context, queueID uuid.UUID) ([]*domain.HandRaise, error)
	SetCompleted(ctx context.Context, id uuid.UUID, completed bool, now time.Time) (*domain.HandRaise, error)
}

type Store struct {
	Queues     QueueRepository
	Messages   MessageRepository
	HandRaises HandRaiseRepository
}
