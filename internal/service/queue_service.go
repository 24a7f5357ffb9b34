package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/filap/internal/domain"
	"github.com/immxrtalbeast/filap/internal/repository"
	"github.com/immxrtalbeast/filap/lib/logger/sl"
)

type CreateQueueInput struct {
	Name             *string
	DefaultSortOrder string
}

type UpdateQueueInput struct {
	Name             *string
	DefaultSortOrder *string
}

type UserToken struct {
	Token     string
	UserID    uuid.UUID
	QueueID   uuid.UUID
	ExpiresAt time.Time
}

type QueueService struct {
	base
	ttl time.Duration
}

func NewQueueService(d Deps, ttl time.Duration) *QueueService {
	return &QueueService{base: newBase(d), ttl: ttl}
}

func (s *QueueService) CreateQueue(ctx context.Context, in CreateQueueInput) (*domain.Queue, string, error) {
	const op = "service.queue.create"
	log := s.log.With(slog.String("op", op))

	name := trimmed(in.Name)
	if tooLong(name, maxQueueNameLength) {
		return nil, "", invalid("name", fmt.Sprintf("must be at most %d characters", maxQueueNameLength))
	}

	order := domain.SortVotes
	if in.DefaultSortOrder != "" {
		parsed, err := domain.ParseSortOrder(in.DefaultSortOrder)
		if err != nil {
			return nil, "", invalid("default_sort_order", "must be 'votes' or 'newest'")
		}
		order = parsed
	}

	secret, err := s.secrets.Generate()
	if err != nil {
		log.Error("failed to generate host secret", sl.Err(err))
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	var namePtr *string
	if name != "" {
		namePtr = &name
	}

	q := domain.NewQueue(namePtr, order, s.secrets.Hash(secret), s.clock(), s.ttl)
	if err := s.store.Queues.Create(ctx, q); err != nil {
		log.Error("failed to store queue", sl.Err(err))
		return nil, "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("queue created",
		slog.String("queue_id", q.ID.String()),
		slog.Time("expires_at", q.ExpiresAt),
	)
	return q, secret, nil
}

func (s *QueueService) GetQueue(ctx context.Context, id uuid.UUID) (*domain.Queue, error) {
	return s.liveQueue(ctx, id)
}

// UpdateQueue treats a missing secret as unauthorized and a wrong one as
// forbidden. Only the fields that actually changed are broadcast.
func (s *QueueService) UpdateQueue(ctx context.Context, id uuid.UUID, hostSecret string, in UpdateQueueInput) (*domain.Queue, error) {
	const op = "service.queue.update"
	log := s.log.With(
		slog.String("op", op),
		slog.String("queue_id", id.String()),
	)

	var patch domain.QueuePatch
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if tooLong(name, maxQueueNameLength) {
			return nil, invalid("name", fmt.Sprintf("must be at most %d characters", maxQueueNameLength))
		}
		patch.Name = &name
	}
	if in.DefaultSortOrder != nil {
		order, err := domain.ParseSortOrder(*in.DefaultSortOrder)
		if err != nil {
			return nil, invalid("default_sort_order", "must be 'votes' or 'newest'")
		}
		patch.DefaultSortOrder = &order
	}
	if patch.IsEmpty() {
		return nil, invalid("body", "no updates provided")
	}

	if hostSecret == "" {
		return nil, ErrMissingSecret
	}

	q, err := s.liveQueue(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.secrets.Verify(hostSecret, q.HostSecretHash) {
		log.Warn("host secret mismatch")
		return nil, ErrSecretMismatch
	}

	changed := map[string]any{"id": q.ID}
	if patch.Name != nil && *patch.Name != derefName(q.Name) {
		if *patch.Name == "" {
			changed["name"] = nil
		} else {
			changed["name"] = *patch.Name
		}
	}
	if patch.DefaultSortOrder != nil && *patch.DefaultSortOrder != q.DefaultSortOrder {
		changed["default_sort_order"] = *patch.DefaultSortOrder
	}
	if len(changed) == 1 {
		return q, nil
	}

	updated, err := s.store.Queues.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, repository.ErrQueueNotFound) {
			return nil, ErrQueueNotFound
		}
		log.Error("failed to update queue", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.publish(ctx, domain.NewEvent(q.ID, domain.EventQueueUpdated, changed))
	log.Info("queue updated")
	return updated, nil
}

func (s *QueueService) IssueUserToken(ctx context.Context, id uuid.UUID) (*UserToken, error) {
	const op = "service.queue.issue_user_token"

	q, err := s.liveQueue(ctx, id)
	if err != nil {
		return nil, err
	}

	token, userID, err := s.tokens.Issue(q.ID, q.ExpiresAt)
	if err != nil {
		s.log.Error("failed to issue user token",
			slog.String("op", op),
			slog.String("queue_id", id.String()),
			sl.Err(err),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &UserToken{Token: token, UserID: userID, QueueID: q.ID, ExpiresAt: q.ExpiresAt}, nil
}

func (s *QueueService) Stats(ctx context.Context) (domain.QueueStats, error) {
	stats, err := s.store.Queues.Stats(ctx, s.now().UTC())
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("service.queue.stats: %w", err)
	}
	return stats, nil
}

func derefName(name *string) string {
	if name == nil {
		return ""
	}
	return *name
}
