package domain_test

import (
	"testing"
	"time"

	"github.com/immxrtalbeast/filap/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSortOrder(t *testing.T) {
	order, err := domain.ParseSortOrder("votes")
	require.NoError(t, err)
	assert.Equal(t, domain.SortVotes, order)

	order, err = domain.ParseSortOrder("newest")
	require.NoError(t, err)
	assert.Equal(t, domain.SortNewest, order)

	for _, bad := range []string{"", "oldest", "VOTES"} {
		_, err := domain.ParseSortOrder(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidSortOrder, bad)
	}
}

func TestQueueExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	q := domain.NewQueue(nil, "", "hash", now, time.Hour)

	assert.Equal(t, domain.SortVotes, q.DefaultSortOrder)
	assert.True(t, q.ExpiresAt.After(q.CreatedAt))
	assert.False(t, q.IsExpired(now))
	assert.False(t, q.IsExpired(now.Add(59*time.Minute)))
	assert.True(t, q.IsExpired(now.Add(time.Hour)))

	var missing *domain.Queue
	assert.True(t, missing.IsExpired(now))
}

func TestNewMessageDefaultsAuthor(t *testing.T) {
	now := time.Now().UTC()
	q := domain.NewQueue(nil, domain.SortNewest, "hash", now, time.Hour)

	m := domain.NewMessage(q.ID, q.ID, "hello", "", now)
	assert.Equal(t, domain.DefaultAuthorName, m.AuthorName)
	assert.Zero(t, m.VoteCount)
	assert.False(t, m.IsRead)
}

func TestHandRaiseCompletion(t *testing.T) {
	now := time.Now().UTC()
	q := domain.NewQueue(nil, domain.SortVotes, "hash", now, time.Hour)
	h := domain.NewHandRaise(q.ID, q.ID, "Alice", now)
	assert.True(t, h.IsActive())

	h.MarkCompleted(true, now.Add(time.Second))
	assert.False(t, h.IsActive())
	require.NotNil(t, h.CompletedAt)
	assert.Equal(t, now.Add(time.Second), *h.CompletedAt)

	h.MarkCompleted(false, now.Add(2*time.Second))
	assert.True(t, h.IsActive())
	assert.Nil(t, h.CompletedAt)
}

func TestNextRaisedAtIsStrictlyIncreasing(t *testing.T) {
	last := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, last.Add(time.Second), domain.NextRaisedAt(last, last.Add(time.Second)))
	assert.Equal(t, last.Add(time.Microsecond), domain.NextRaisedAt(last, last))
	assert.Equal(t, last.Add(time.Microsecond), domain.NextRaisedAt(last, last.Add(-time.Minute)))
	assert.Equal(t, last, domain.NextRaisedAt(time.Time{}, last))
}
