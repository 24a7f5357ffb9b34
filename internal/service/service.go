package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/filap/internal/domain"
	"github.com/immxrtalbeast/filap/internal/events"
	"github.com/immxrtalbeast/filap/internal/repository"
)

const (
	maxQueueNameLength  = 100
	maxMessageLength    = 2000
	maxAuthorNameLength = 100
	maxUserNameLength   = 100

	DefaultListLimit = 50
	MaxListLimit     = 100
)

type QueueInteractor interface {
	CreateQueue(ctx context.Context, in CreateQueueInput) (*domain.Queue, string, error)
	GetQueue(ctx context.Context, id uuid.UUID) (*domain.Queue, error)
	UpdateQueue(ctx context.Context, id uuid.UUID, hostSecret string, in UpdateQueueInput) (*domain.Queue, error)
	IssueUserToken(ctx context.Context, id uuid.UUID) (*UserToken, error)
	Stats(ctx context.Context) (domain.QueueStats, error)
}

type MessageInteractor interface {
	CreateMessage(ctx context.Context, queueID uuid.UUID, in CreateMessageInput) (*domain.Message, error)
	ListMessages(ctx context.Context, queueID uuid.UUID, in ListMessagesInput) (*MessageList, error)
	UpdateMessage(ctx context.Context, queueID, messageID uuid.UUID, in UpdateMessageInput) (*domain.Message, error)
	DeleteMessage(ctx context.Context, queueID, messageID uuid.UUID, hostSecret string) error
	Upvote(ctx context.Context, messageID uuid.UUID, userToken string) (*MessageView, error)
}

type HandRaiseInteractor interface {
	ToggleHandRaise(ctx context.Context, queueID uuid.UUID, in ToggleHandRaiseInput) (*domain.HandRaise, bool, error)
	ListHandRaises(ctx context.Context, queueID uuid.UUID, includeCompleted bool) (*HandRaiseList, error)
	Position(ctx context.Context, queueID uuid.UUID, userToken string) (*Position, error)
	SetCompleted(ctx context.Context, queueID, handRaiseID uuid.UUID, in SetCompletedInput) (*domain.HandRaise, error)
}

// SecretHasher issues and checks host secrets.
type SecretHasher interface {
	Generate() (string, error)
	Hash(secret string) string
	Verify(secret, hash string) bool
}

// Tokens issues per-queue user tokens and resolves them to user ids.
type Tokens interface {
	Issue(queueID uuid.UUID, expiresAt time.Time) (string, uuid.UUID, error)
	Parse(token string, queueID uuid.UUID) (uuid.UUID, error)
}

// Deps are shared by every service. Now defaults to time.Now.
type Deps struct {
	Store     *repository.Store
	Secrets   SecretHasher
	Tokens    Tokens
	Publisher events.Publisher
	Log       *slog.Logger
	Now       func() time.Time
}

type base struct {
	store     *repository.Store
	secrets   SecretHasher
	tokens    Tokens
	publisher events.Publisher
	log       *slog.Logger
	now       func() time.Time
}

func newBase(d Deps) base {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return base{
		store:     d.Store,
		secrets:   d.Secrets,
		tokens:    d.Tokens,
		publisher: d.Publisher,
		log:       d.Log,
		now:       d.Now,
	}
}

// clock truncates to microseconds so values survive a SQL round trip intact.
func (b *base) clock() time.Time {
	return b.now().UTC().Truncate(time.Microsecond)
}

// liveQueue loads a queue that exists and has not expired. Expired queues are
// indistinguishable from missing ones.
func (b *base) liveQueue(ctx context.Context, id uuid.UUID) (*domain.Queue, error) {
	q, err := b.store.Queues.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrQueueNotFound) {
			return nil, ErrQueueNotFound
		}
		return nil, err
	}
	if q.IsExpired(b.now().UTC()) {
		return nil, ErrQueueNotFound
	}
	return q, nil
}

// checkHost verifies a host secret for actions that report a wrong secret as
// unauthorized.
func (b *base) checkHost(q *domain.Queue, secret string) error {
	if secret == "" {
		return ErrMissingSecret
	}
	if !b.secrets.Verify(secret, q.HostSecretHash) {
		return ErrInvalidSecret
	}
	return nil
}

func (b *base) userID(q *domain.Queue, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, invalid("user_token", "is required")
	}
	id, err := b.tokens.Parse(token, q.ID)
	if err != nil {
		return uuid.Nil, ErrInvalidUserToken
	}
	return id, nil
}

func (b *base) publish(ctx context.Context, ev domain.Event) {
	events.PublishLogged(context.WithoutCancel(ctx), b.publisher, b.log, ev)
}

func tooLong(s string, max int) bool {
	return utf8.RuneCountInString(s) > max
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
