package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/filap/internal/domain"
	"github.com/immxrtalbeast/filap/internal/repository"
	"github.com/immxrtalbeast/filap/lib/logger/sl"
)

type ToggleHandRaiseInput struct {
	UserName  *string
	UserToken string
}

type SetCompletedInput struct {
	Completed  *bool
	HostSecret string
}

type PositionedHandRaise struct {
	domain.HandRaise
	Position int
}

type HandRaiseList struct {
	Active         []PositionedHandRaise
	Completed      []domain.HandRaise
	TotalActive    int
	TotalCompleted int
}

// Position is nil unless HasRaisedHand is set.
type Position struct {
	HasRaisedHand bool
	Position      *int
}

type HandRaiseService struct {
	base
}

func NewHandRaiseService(d Deps) *HandRaiseService {
	return &HandRaiseService{base: newBase(d)}
}

// ToggleHandRaise lowers the caller's active hand-raise, or raises a new one
// when there is none. The bool reports whether a hand was raised.
func (s *HandRaiseService) ToggleHandRaise(ctx context.Context, queueID uuid.UUID, in ToggleHandRaiseInput) (*domain.HandRaise, bool, error) {
	const op = "service.hand_raise.toggle"
	log := s.log.With(
		slog.String("op", op),
		slog.String("queue_id", queueID.String()),
	)

	name := trimmed(in.UserName)
	if tooLong(name, maxUserNameLength) {
		return nil, false, invalid("user_name", fmt.Sprintf("must be at most %d characters", maxUserNameLength))
	}
	if in.UserToken == "" {
		return nil, false, invalid("user_token", "is required")
	}

	q, err := s.liveQueue(ctx, queueID)
	if err != nil {
		return nil, false, err
	}
	userID, err := s.userID(q, in.UserToken)
	if err != nil {
		return nil, false, err
	}

	hr, raised, err := s.store.HandRaises.Toggle(ctx, q.ID, userID, name, s.clock())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNothingToLower):
			return nil, false, invalid("user_name", "is required")
		case errors.Is(err, repository.ErrQueueNotFound):
			return nil, false, ErrQueueNotFound
		}
		log.Error("failed to toggle hand raise", sl.Err(err))
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	if raised {
		s.publish(ctx, domain.NewEvent(q.ID, domain.EventHandRaiseNew, hr))
		log.Debug("hand raised", slog.String("hand_raise_id", hr.ID.String()))
	} else {
		s.publish(ctx, domain.NewEvent(q.ID, domain.EventHandRaiseRemoved, domain.IDPayload{ID: hr.ID}))
		log.Debug("hand lowered", slog.String("hand_raise_id", hr.ID.String()))
	}
	return hr, raised, nil
}

// ListHandRaises reports both totals regardless of includeCompleted.
func (s *HandRaiseService) ListHandRaises(ctx context.Context, queueID uuid.UUID, includeCompleted bool) (*HandRaiseList, error) {
	q, err := s.liveQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	all, err := s.store.HandRaises.List(ctx, q.ID)
	if err != nil {
		return nil, fmt.Errorf("service.hand_raise.list: %w", err)
	}

	res := &HandRaiseList{
		Active:    []PositionedHandRaise{},
		Completed: []domain.HandRaise{},
	}
	for _, hr := range all {
		if hr.IsActive() {
			res.Active = append(res.Active, PositionedHandRaise{HandRaise: *hr, Position: len(res.Active) + 1})
			continue
		}
		res.TotalCompleted++
		if includeCompleted {
			res.Completed = append(res.Completed, *hr)
		}
	}
	res.TotalActive = len(res.Active)

	sort.SliceStable(res.Completed, func(i, j int) bool {
		return completedAt(&res.Completed[i]).Before(completedAt(&res.Completed[j]))
	})
	return res, nil
}

func (s *HandRaiseService) Position(ctx context.Context, queueID uuid.UUID, userToken string) (*Position, error) {
	if userToken == "" {
		return nil, invalid("user_token", "is required")
	}
	q, err := s.liveQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	userID, err := s.userID(q, userToken)
	if err != nil {
		return nil, err
	}

	all, err := s.store.HandRaises.List(ctx, q.ID)
	if err != nil {
		return nil, fmt.Errorf("service.hand_raise.position: %w", err)
	}
	rank := 0
	for _, hr := range all {
		if !hr.IsActive() {
			continue
		}
		rank++
		if hr.UserID == userID {
			pos := rank
			return &Position{HasRaisedHand: true, Position: &pos}, nil
		}
	}
	return &Position{}, nil
}

// SetCompleted is host only. A wrong secret is reported as unauthorized.
func (s *HandRaiseService) SetCompleted(ctx context.Context, queueID, handRaiseID uuid.UUID, in SetCompletedInput) (*domain.HandRaise, error) {
	const op = "service.hand_raise.set_completed"
	log := s.log.With(
		slog.String("op", op),
		slog.String("queue_id", queueID.String()),
		slog.String("hand_raise_id", handRaiseID.String()),
	)

	if in.Completed == nil {
		return nil, invalid("completed", "is required")
	}
	if in.HostSecret == "" {
		return nil, ErrMissingSecret
	}

	q, err := s.liveQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if err := s.checkHost(q, in.HostSecret); err != nil {
		log.Warn("host check failed", sl.Err(err))
		return nil, err
	}

	hr, err := s.store.HandRaises.GetByID(ctx, handRaiseID)
	if err != nil {
		if errors.Is(err, repository.ErrHandRaiseNotFound) {
			return nil, ErrHandRaiseNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if hr.QueueID != q.ID {
		return nil, ErrHandRaiseNotFound
	}

	updated, err := s.store.HandRaises.SetCompleted(ctx, hr.ID, *in.Completed, s.clock())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrActiveHandRaiseExists):
			return nil, ErrActiveHandRaise
		case errors.Is(err, repository.ErrHandRaiseNotFound):
			return nil, ErrHandRaiseNotFound
		}
		log.Error("failed to update hand raise", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.publish(ctx, domain.NewEvent(q.ID, domain.EventHandRaiseUpdated, updated))
	log.Info("hand raise updated", slog.Bool("completed", updated.Completed))
	return updated, nil
}

func completedAt(hr *domain.HandRaise) time.Time {
	if hr.CompletedAt == nil {
		return time.Time{}
	}
	return *hr.CompletedAt
}
