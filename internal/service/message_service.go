package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/filap/internal/domain"
	"github.com/immxrtalbeast/filap/internal/repository"
	"github.com/immxrtalbeast/filap/lib/logger/sl"
)

type VoteMode string

const (
	// VoteToggle removes a present vote on a repeat upvote.
	VoteToggle VoteMode = "toggle"
	// VoteStrict rejects a repeat upvote with ErrAlreadyVoted.
	VoteStrict VoteMode = "strict"
)

type CreateMessageInput struct {
	Text       string
	AuthorName *string
	UserToken  string
}

type ListMessagesInput struct {
	Sort      string
	Limit     int
	Offset    int
	UserToken string
}

type UpdateMessageInput struct {
	IsRead     *bool
	HostSecret string
	UserToken  string
}

// MessageView is a message as seen by one caller. HasUserVoted is nil when
// the caller did not identify itself.
type MessageView struct {
	domain.Message
	HasUserVoted *bool
}

type MessageList struct {
	Messages   []MessageView
	TotalCount int
	Limit      int
	Offset     int
	SortBy     domain.SortOrder
}

type MessageService struct {
	base
	mode VoteMode
}

func NewMessageService(d Deps, mode VoteMode) *MessageService {
	if mode == "" {
		mode = VoteToggle
	}
	return &MessageService{base: newBase(d), mode: mode}
}

func (s *MessageService) CreateMessage(ctx context.Context, queueID uuid.UUID, in CreateMessageInput) (*domain.Message, error) {
	const op = "service.message.create"
	log := s.log.With(
		slog.String("op", op),
		slog.String("queue_id", queueID.String()),
	)

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, invalid("text", "is required")
	}
	if tooLong(text, maxMessageLength) {
		return nil, invalid("text", fmt.Sprintf("must be at most %d characters", maxMessageLength))
	}
	author := trimmed(in.AuthorName)
	if tooLong(author, maxAuthorNameLength) {
		return nil, invalid("author_name", fmt.Sprintf("must be at most %d characters", maxAuthorNameLength))
	}
	if in.UserToken == "" {
		return nil, invalid("user_token", "is required")
	}

	q, err := s.liveQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	userID, err := s.userID(q, in.UserToken)
	if err != nil {
		return nil, err
	}

	msg := domain.NewMessage(q.ID, userID, text, author, s.clock())
	if err := s.store.Messages.Create(ctx, msg); err != nil {
		if errors.Is(err, repository.ErrQueueNotFound) {
			return nil, ErrQueueNotFound
		}
		log.Error("failed to store message", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.publish(ctx, domain.NewEvent(q.ID, domain.EventNewMessage, msg))
	log.Debug("message created", slog.String("message_id", msg.ID.String()))
	return msg, nil
}

// ListMessages falls back to the queue's default order when no sort is given.
// An unusable user token only hides the per-caller vote flag.
func (s *MessageService) ListMessages(ctx context.Context, queueID uuid.UUID, in ListMessagesInput) (*MessageList, error) {
	const op = "service.message.list"

	if in.Limit < 1 || in.Limit > MaxListLimit {
		return nil, invalid("limit", fmt.Sprintf("must be between 1 and %d", MaxListLimit))
	}
	if in.Offset < 0 {
		return nil, invalid("offset", "must not be negative")
	}
	var order domain.SortOrder
	if in.Sort != "" {
		parsed, err := domain.ParseSortOrder(in.Sort)
		if err != nil {
			return nil, invalid("sort", "must be 'votes' or 'newest'")
		}
		order = parsed
	}

	q, err := s.liveQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	if order == "" {
		order = q.DefaultSortOrder
	}

	msgs, total, err := s.store.Messages.List(ctx, q.ID, domain.MessageListOptions{
		Sort:   order,
		Limit:  in.Limit,
		Offset: in.Offset,
	})
	if err != nil {
		if errors.Is(err, repository.ErrQueueNotFound) {
			return nil, ErrQueueNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	views := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, MessageView{Message: *m})
	}

	if in.UserToken != "" && len(msgs) > 0 {
		if userID, err := s.tokens.Parse(in.UserToken, q.ID); err == nil {
			ids := make([]uuid.UUID, 0, len(msgs))
			for _, m := range msgs {
				ids = append(ids, m.ID)
			}
			voted, err := s.store.Messages.VotedBy(ctx, userID, ids)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			for i := range views {
				v := voted[views[i].ID]
				views[i].HasUserVoted = &v
			}
		}
	}

	return &MessageList{
		Messages:   views,
		TotalCount: total,
		Limit:      in.Limit,
		Offset:     in.Offset,
		SortBy:     order,
	}, nil
}

// UpdateMessage is allowed for the host or the message's author.
func (s *MessageService) UpdateMessage(ctx context.Context, queueID, messageID uuid.UUID, in UpdateMessageInput) (*domain.Message, error) {
	const op = "service.message.update"
	log := s.log.With(
		slog.String("op", op),
		slog.String("queue_id", queueID.String()),
		slog.String("message_id", messageID.String()),
	)

	if in.IsRead == nil {
		return nil, invalid("is_read", "is required")
	}
	if in.HostSecret == "" && in.UserToken == "" {
		return nil, ErrMissingCredential
	}

	q, err := s.liveQueue(ctx, queueID)
	if err != nil {
		return nil, err
	}
	msg, err := s.messageInQueue(ctx, q, messageID)
	if err != nil {
		return nil, err
	}

	if !s.isHostOrAuthor(q, msg, in.HostSecret, in.UserToken) {
		log.Warn("update rejected")
		return nil, ErrNotAuthor
	}

	updated, err := s.store.Messages.SetRead(ctx, msg.ID, *in.IsRead, s.clock())
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrMessageNotFound
		}
		log.Error("failed to update message", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.publish(ctx, domain.NewEvent(q.ID, domain.EventMessageUpdated, updated))
	return updated, nil
}

func (s *MessageService) isHostOrAuthor(q *domain.Queue, msg *domain.Message, secret, token string) bool {
	if secret != "" && s.secrets.Verify(secret, q.HostSecretHash) {
		return true
	}
	if token == "" {
		return false
	}
	userID, err := s.tokens.Parse(token, q.ID)
	return err == nil && userID == msg.AuthorID
}

func (s *MessageService) DeleteMessage(ctx context.Context, queueID, messageID uuid.UUID, hostSecret string) error {
	const op = "service.message.delete"
	log := s.log.With(
		slog.String("op", op),
		slog.String("queue_id", queueID.String()),
		slog.String("message_id", messageID.String()),
	)

	if hostSecret == "" {
		return ErrMissingSecret
	}

	q, err := s.liveQueue(ctx, queueID)
	if err != nil {
		return err
	}
	if err := s.checkHost(q, hostSecret); err != nil {
		return err
	}
	msg, err := s.messageInQueue(ctx, q, messageID)
	if err != nil {
		return err
	}

	if err := s.store.Messages.Delete(ctx, msg.ID); err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return ErrMessageNotFound
		}
		log.Error("failed to delete message", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	s.publish(ctx, domain.NewEvent(q.ID, domain.EventMessageDeleted, domain.IDPayload{ID: msg.ID}))
	log.Info("message deleted")
	return nil
}

// Upvote applies the configured vote mode. The broadcast carries the new
// count only; the voted flag is returned to the caller alone.
func (s *MessageService) Upvote(ctx context.Context, messageID uuid.UUID, userToken string) (*MessageView, error) {
	const op = "service.message.upvote"
	log := s.log.With(
		slog.String("op", op),
		slog.String("message_id", messageID.String()),
	)

	if userToken == "" {
		return nil, invalid("user_token", "is required")
	}

	msg, err := s.store.Messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	q, err := s.liveQueue(ctx, msg.QueueID)
	if err != nil {
		if errors.Is(err, ErrQueueNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	userID, err := s.userID(q, userToken)
	if err != nil {
		return nil, err
	}

	var (
		updated *domain.Message
		voted   bool
	)
	switch s.mode {
	case VoteStrict:
		updated, err = s.store.Messages.AddVote(ctx, msg.ID, userID, s.clock())
		voted = true
	default:
		updated, voted, err = s.store.Messages.ToggleVote(ctx, msg.ID, userID, s.clock())
	}
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyVoted):
			return nil, ErrAlreadyVoted
		case errors.Is(err, repository.ErrMessageNotFound):
			return nil, ErrMessageNotFound
		}
		log.Error("failed to record vote", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.publish(ctx, domain.NewEvent(q.ID, domain.EventMessageUpdated, updated))
	return &MessageView{Message: *updated, HasUserVoted: &voted}, nil
}

func (s *MessageService) messageInQueue(ctx context.Context, q *domain.Queue, messageID uuid.UUID) (*domain.Message, error) {
	msg, err := s.store.Messages.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repository.ErrMessageNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("service.message.get: %w", err)
	}
	if msg.QueueID != q.ID {
		return nil, ErrMessageNotFound
	}
	return msg, nil
}
