package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/filap/internal/domain"
	"github.com/immxrtalbeast/filap/internal/identity"
	"github.com/immxrtalbeast/filap/internal/repository"
	"github.com/immxrtalbeast/filap/internal/service"
	"github.com/immxrtalbeast/filap/lib/logger/slogdiscard"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) Types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]domain.EventType, 0, len(r.events))
	for _, ev := range r.events {
		res = append(res, ev.Type)
	}
	return res
}

func (r *recorder) Last() domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func (r *recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

type suite struct {
	clock      *fakeClock
	events     *recorder
	queues     *service.QueueService
	messages   *service.MessageService
	handRaises *service.HandRaiseService
}

func newSuite(t *testing.T, mode service.VoteMode) *suite {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	tokens, err := identity.NewTokenIssuer("test-signing-key", "filap-test", clock.Now)
	require.NoError(t, err)

	rec := &recorder{}
	deps := service.Deps{
		Store:     repository.NewInMemoryStore(),
		Secrets:   identity.NewSecretHasher("pepper"),
		Tokens:    tokens,
		Publisher: rec,
		Log:       slogdiscard.NewDiscardLogger(),
		Now:       clock.Now,
	}

	return &suite{
		clock:      clock,
		events:     rec,
		queues:     service.NewQueueService(deps, 24*time.Hour),
		messages:   service.NewMessageService(deps, mode),
		handRaises: service.NewHandRaiseService(deps),
	}
}

func (s *suite) createQueue(t *testing.T) (*domain.Queue, string) {
	t.Helper()
	q, secret, err := s.queues.CreateQueue(context.Background(), service.CreateQueueInput{})
	require.NoError(t, err)
	return q, secret
}

func (s *suite) token(t *testing.T, queueID uuid.UUID) string {
	t.Helper()
	tok, err := s.queues.IssueUserToken(context.Background(), queueID)
	require.NoError(t, err)
	return tok.Token
}

func (s *suite) post(t *testing.T, queueID uuid.UUID, token, text string) *domain.Message {
	t.Helper()
	msg, err := s.messages.CreateMessage(context.Background(), queueID, service.CreateMessageInput{
		Text:      text,
		UserToken: token,
	})
	require.NoError(t, err)
	return msg
}

func ptr[T any](v T) *T {
	return &v
}
