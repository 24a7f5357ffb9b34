package service_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/filap/internal/domain"
	"github.com/immxrtalbeast/filap/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *suite) raise(t *testing.T, queueID uuid.UUID, name, token string) *domain.HandRaise {
	t.Helper()
	hr, raised, err := s.handRaises.ToggleHandRaise(context.Background(), queueID, service.ToggleHandRaiseInput{
		UserName:  ptr(name),
		UserToken: token,
	})
	require.NoError(t, err)
	require.True(t, raised)
	return hr
}

func (s *suite) position(t *testing.T, queueID uuid.UUID, token string) *service.Position {
	t.Helper()
	pos, err := s.handRaises.Position(context.Background(), queueID, token)
	require.NoError(t, err)
	return pos
}

func TestHandRaisePositions(t *testing.T) {
	s := newSuite(t, service.VoteToggle)
	ctx := context.Background()
	q, secret := s.createQueue(t)
	alice, bob := s.token(t, q.ID), s.token(t, q.ID)

	aliceRaise := s.raise(t, q.ID, "Alice", alice)
	pos := s.position(t, q.ID, alice)
	assert.True(t, pos.HasRaisedHand)
	assert.Equal(t, 1, *pos.Position)

	s.raise(t, q.ID, "Bob", bob)
	assert.Equal(t, 2, *s.position(t, q.ID, bob).Position)

	done, err := s.handRaises.SetCompleted(ctx, q.ID, aliceRaise.ID, service.SetCompletedInput{Completed: ptr(true), HostSecret: secret})
	require.NoError(t, err)
	assert.True(t, done.Completed)
	assert.NotNil(t, done.CompletedAt)

	assert.Equal(t, 1, *s.position(t, q.ID, bob).Position)
	gone := s.position(t, q.ID, alice)
	assert.False(t, gone.HasRaisedHand)
	assert.Nil(t, gone.Position)

	assert.Equal(t, []domain.EventType{
		domain.EventHandRaiseNew,
		domain.EventHandRaiseNew,
		domain.EventHandRaiseUpdated,
	}, s.events.Types())
}

func TestSameInstantRaisesKeepOrder(t *testing.T) {
	s := newSuite(t, service.VoteToggle)
	q, _ := s.createQueue(t)

	tokens := make([]string, 5)
	for i := range tokens {
		tokens[i] = s.token(t, q.ID)
		s.raise(t, q.ID, "user", tokens[i])
	}
	for i, tok := range tokens {
		assert.Equal(t, i+1, *s.position(t, q.ID, tok).Position)
	}
}

func TestToggleLowersHand(t *testing.T) {
	s := newSuite(t, service.VoteToggle)
	ctx := context.Background()
	q, _ := s.createQueue(t)
	tok := s.token(t, q.ID)
	raised := s.raise(t, q.ID, "Alice", tok)

	hr, up, err := s.handRaises.ToggleHandRaise(ctx, q.ID, service.ToggleHandRaiseInput{UserToken: tok})
	require.NoError(t, err)
	assert.False(t, up)
	assert.Equal(t, raised.ID, hr.ID)

	ev := s.events.Last()
	assert.Equal(t, domain.EventHandRaiseRemoved, ev.Type)
	assert.Equal(t, domain.IDPayload{ID: raised.ID}, ev.Data)
	assert.False(t, s.position(t, q.ID, tok).HasRaisedHand)
}

func TestToggleHandRaiseValidation(t *testing.T) {
	s := newSuite(t, service.VoteToggle)
	ctx := context.Background()
	q, _ := s.createQueue(t)
	tok := s.token(t, q.ID)

	_, _, err := s.handRaises.ToggleHandRaise(ctx, q.ID, service.ToggleHandRaiseInput{UserToken: tok})
	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "user_name", verr.Field)

	_, _, err = s.handRaises.ToggleHandRaise(ctx, q.ID, service.ToggleHandRaiseInput{UserName: ptr(strings.Repeat("n", 101)), UserToken: tok})
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	_, _, err = s.handRaises.ToggleHandRaise(ctx, q.ID, service.ToggleHandRaiseInput{UserName: ptr("Alice")})
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	_, _, err = s.handRaises.ToggleHandRaise(ctx, uuid.New(), service.ToggleHandRaiseInput{UserName: ptr("Alice"), UserToken: tok})
	assert.ErrorIs(t, err, service.ErrQueueNotFound)

	assert.Empty(t, s.events.Types())
}

func TestListHandRaises(t *testing.T) {
	s := newSuite(t, service.VoteToggle)
	ctx := context.Background()
	q, secret := s.createQueue(t)

	first := s.raise(t, q.ID, "A", s.token(t, q.ID))
	s.clock.Advance(time.Second)
	second := s.raise(t, q.ID, "B", s.token(t, q.ID))
	s.clock.Advance(time.Second)
	third := s.raise(t, q.ID, "C", s.token(t, q.ID))

	_, err := s.handRaises.SetCompleted(ctx, q.ID, third.ID, service.SetCompletedInput{Completed: ptr(true), HostSecret: secret})
	require.NoError(t, err)
	s.clock.Advance(time.Second)
	_, err = s.handRaises.SetCompleted(ctx, q.ID, first.ID, service.SetCompletedInput{Completed: ptr(true), HostSecret: secret})
	require.NoError(t, err)

	list, err := s.handRaises.ListHandRaises(ctx, q.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, list.TotalActive)
	assert.Equal(t, 2, list.TotalCompleted)
	require.Len(t, list.Active, 1)
	assert.Equal(t, second.ID, list.Active[0].ID)
	assert.Equal(t, 1, list.Active[0].Position)
	assert.Empty(t, list.Completed)

	list, err = s.handRaises.ListHandRaises(ctx, q.ID, true)
	require.NoError(t, err)
	require.Len(t, list.Completed, 2)
	assert.Equal(t, third.ID, list.Completed[0].ID)
	assert.Equal(t, first.ID, list.Completed[1].ID)
}

func TestUncompleteRestoresPosition(t *testing.T) {
	s := newSuite(t, service.VoteToggle)
	ctx := context.Background()
	q, secret := s.createQueue(t)
	alice, bob := s.token(t, q.ID), s.token(t, q.ID)

	a := s.raise(t, q.ID, "Alice", alice)
	s.raise(t, q.ID, "Bob", bob)

	_, err := s.handRaises.SetCompleted(ctx, q.ID, a.ID, service.SetCompletedInput{Completed: ptr(true), HostSecret: secret})
	require.NoError(t, err)
	reopened, err := s.handRaises.SetCompleted(ctx, q.ID, a.ID, service.SetCompletedInput{Completed: ptr(false), HostSecret: secret})
	require.NoError(t, err)
	assert.False(t, reopened.Completed)
	assert.Nil(t, reopened.CompletedAt)

	assert.Equal(t, 1, *s.position(t, q.ID, alice).Position)
	assert.Equal(t, 2, *s.position(t, q.ID, bob).Position)
}

func TestUncompleteConflictsWithActiveRaise(t *testing.T) {
	s := newSuite(t, service.VoteToggle)
	ctx := context.Background()
	q, secret := s.createQueue(t)
	alice := s.token(t, q.ID)

	old := s.raise(t, q.ID, "Alice", alice)
	_, err := s.handRaises.SetCompleted(ctx, q.ID, old.ID, service.SetCompletedInput{Completed: ptr(true), HostSecret: secret})
	require.NoError(t, err)
	s.raise(t, q.ID, "Alice", alice)

	_, err = s.handRaises.SetCompleted(ctx, q.ID, old.ID, service.SetCompletedInput{Completed: ptr(false), HostSecret: secret})
	assert.ErrorIs(t, err, service.ErrActiveHandRaise)
	assert.ErrorIs(t, err, service.ErrConflict)
}

func TestSetCompletedAuthorization(t *testing.T) {
	s := newSuite(t, service.VoteToggle)
	ctx := context.Background()
	q, secret := s.createQueue(t)
	other, otherSecret := s.createQueue(t)
	hr := s.raise(t, q.ID, "Alice", s.token(t, q.ID))

	_, err := s.handRaises.SetCompleted(ctx, q.ID, hr.ID, service.SetCompletedInput{Completed: ptr(true)})
	assert.ErrorIs(t, err, service.ErrUnauthorized)
	_, err = s.handRaises.SetCompleted(ctx, q.ID, hr.ID, service.SetCompletedInput{Completed: ptr(true), HostSecret: "wrong"})
	assert.ErrorIs(t, err, service.ErrUnauthorized)
	_, err = s.handRaises.SetCompleted(ctx, q.ID, hr.ID, service.SetCompletedInput{HostSecret: secret})
	assert.ErrorIs(t, err, service.ErrInvalidInput)
	_, err = s.handRaises.SetCompleted(ctx, other.ID, hr.ID, service.SetCompletedInput{Completed: ptr(true), HostSecret: otherSecret})
	assert.ErrorIs(t, err, service.ErrHandRaiseNotFound)
	_, err = s.handRaises.SetCompleted(ctx, q.ID, uuid.New(), service.SetCompletedInput{Completed: ptr(true), HostSecret: secret})
	assert.ErrorIs(t, err, service.ErrHandRaiseNotFound)
}

func TestPositionRequiresToken(t *testing.T) {
	s := newSuite(t, service.VoteToggle)
	ctx := context.Background()
	q, _ := s.createQueue(t)

	_, err := s.handRaises.Position(ctx, q.ID, "")
	assert.ErrorIs(t, err, service.ErrInvalidInput)
	_, err = s.handRaises.Position(ctx, q.ID, "forged")
	assert.ErrorIs(t, err, service.ErrInvalidUserToken)
}
