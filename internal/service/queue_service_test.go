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

func TestCreateQueue(t *testing.T) {
	s := newSuite(t, service.VoteToggle)
	ctx := context.Background()

	q, secret, err := s.queues.CreateQueue(ctx, service.CreateQueueInput{
		Name:             ptr("  Town hall  "),
		DefaultSortOrder: "newest",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, secret)
	assert.NotEqual(t, secret, q.HostSecretHash)
	require.NotNil(t, q.Name)
	assert.Equal(t, "Town hall", *q.Name)
	assert.Equal(t, domain.SortNewest, q.DefaultSortOrder)
	assert.Equal(t, 24*time.Hour, q.ExpiresAt.Sub(q.CreatedAt))

	got, err := s.queues.GetQueue(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, q.ID, got.ID)
}

func TestCreateQueueDefaults(t *testing.T) {
	s := newSuite(t, service.VoteToggle)

	q, _, err := s.queues.CreateQueue(context.Background(), service.CreateQueueInput{Name: ptr("   ")})
	require.NoError(t, err)
	assert.Nil(t, q.Name)
	assert.Equal(t, domain.SortVotes, q.DefaultSortOrder)
}

func TestCreateQueueValidation(t *testing.T) {
	s := newSuite(t, service.VoteToggle)
	ctx := context.Background()

	_, _, err := s.queues.CreateQueue(ctx, service.CreateQueueInput{Name: ptr(strings.Repeat("x", 101))})
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	_, _, err = s.queues.CreateQueue(ctx, service.CreateQueueInput{DefaultSortOrder: "oldest"})
	var verr *service.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "default_sort_order", verr.Field)
}

func TestGetQueueExpired(t *testing.T) {
	s := newSuite(t, service.VoteToggle)
	ctx := context.Background()
	q, _ := s.createQueue(t)

	s.clock.Advance(24*time.Hour - time.Second)
	_, err := s.queues.GetQueue(ctx, q.ID)
	require.NoError(t, err)

	s.clock.Advance(time.Second)
	_, err = s.queues.GetQueue(ctx, q.ID)
	assert.ErrorIs(t, err, service.ErrQueueNotFound)

	_, err = s.queues.GetQueue(ctx, uuid.New())
	assert.ErrorIs(t, err, service.ErrNotFound)
}

func TestUpdateQueue(t *testing.T) {
	s := newSuite(t, service.VoteToggle)
	ctx := context.Background()
	q, secret := s.createQueue(t)

	updated, err := s.queues.UpdateQueue(ctx, q.ID, secret, service.UpdateQueueInput{
		Name:             ptr("Renamed"),
		DefaultSortOrder: ptr("votes"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.Name)
	assert.Equal(t, "Renamed", *updated.Name)

	ev := s.events.Last()
	assert.Equal(t, domain.EventQueueUpdated, ev.Type)
	assert.Equal(t, map[string]any{"id": q.ID, "name": "Renamed"}, ev.Data)
}

func TestUpdateQueueWithoutChangesPublishesNothing(t *testing.T) {
	s := newSuite(t, service.VoteToggle)
	q, secret := s.createQueue(t)

	_, err := s.queues.UpdateQueue(context.Background(), q.ID, secret, service.UpdateQueueInput{
		DefaultSortOrder: ptr("votes"),
	})
	require.NoError(t, err)
	assert.Empty(t, s.events.Types())
}

func TestUpdateQueueAuthorization(t *testing.T) {
	s := newSuite(t, service.VoteToggle)
	ctx := context.Background()
	q, _ := s.createQueue(t)
	in := service.UpdateQueueInput{Name: ptr("x")}

	_, err := s.queues.UpdateQueue(ctx, q.ID, "", in)
	assert.ErrorIs(t, err, service.ErrUnauthorized)

	_, err = s.queues.UpdateQueue(ctx, q.ID, "wrong", in)
	assert.ErrorIs(t, err, service.ErrForbidden)

	_, err = s.queues.UpdateQueue(ctx, q.ID, "wrong", service.UpdateQueueInput{})
	assert.ErrorIs(t, err, service.ErrInvalidInput)
}

func TestIssueUserToken(t *testing.T) {
	s := newSuite(t, service.VoteToggle)
	ctx := context.Background()
	q, _ := s.createQueue(t)

	a, err := s.queues.IssueUserToken(ctx, q.ID)
	require.NoError(t, err)
	b, err := s.queues.IssueUserToken(ctx, q.ID)
	require.NoError(t, err)

	assert.NotEqual(t, a.UserID, b.UserID)
	assert.Equal(t, q.ExpiresAt, a.ExpiresAt)

	_, err = s.queues.IssueUserToken(ctx, uuid.New())
	assert.ErrorIs(t, err, service.ErrQueueNotFound)
}

func TestQueueStats(t *testing.T) {
	s := newSuite(t, service.VoteToggle)
	q, _ := s.createQueue(t)
	s.createQueue(t)
	s.post(t, q.ID, s.token(t, q.ID), "hello")

	stats, err := s.queues.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.QueueStats{ActiveQueues: 2, TotalMessages: 1}, stats)
}
