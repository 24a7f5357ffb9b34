package repository_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/filap/internal/domain"
	"github.com/immxrtalbeast/filap/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func stores(t *testing.T) map[string]func(t *testing.T) *repository.Store {
	return map[string]func(t *testing.T) *repository.Store{
		"memory": func(t *testing.T) *repository.Store {
			return repository.NewInMemoryStore()
		},
		"sqlite": func(t *testing.T) *repository.Store {
			dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
			db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
			require.NoError(t, err)
			sqlDB, err := db.DB()
			require.NoError(t, err)
			t.Cleanup(func() { _ = sqlDB.Close() })
			require.NoError(t, repository.Migrate(db))
			return repository.NewGormStore(db)
		},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, s *repository.Store)) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, newStore(t))
		})
	}
}

func createQueue(t *testing.T, s *repository.Store, ttl time.Duration) *domain.Queue {
	t.Helper()
	q := domain.NewQueue(nil, domain.SortVotes, "hash", base, ttl)
	require.NoError(t, s.Queues.Create(context.Background(), q))
	return q
}

func createMessage(t *testing.T, s *repository.Store, queueID uuid.UUID, text string, at time.Time) *domain.Message {
	t.Helper()
	m := domain.NewMessage(queueID, uuid.New(), text, "", at)
	require.NoError(t, s.Messages.Create(context.Background(), m))
	return m
}

func TestQueueRepository(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *repository.Store) {
		ctx := context.Background()
		q := createQueue(t, s, time.Hour)

		got, err := s.Queues.GetByID(ctx, q.ID)
		require.NoError(t, err)
		assert.Equal(t, q.ID, got.ID)
		assert.Nil(t, got.Name)
		assert.Equal(t, "hash", got.HostSecretHash)
		assert.True(t, got.ExpiresAt.Equal(base.Add(time.Hour)))

		name := "Town hall"
		order := domain.SortNewest
		updated, err := s.Queues.Update(ctx, q.ID, domain.QueuePatch{Name: &name, DefaultSortOrder: &order})
		require.NoError(t, err)
		require.NotNil(t, updated.Name)
		assert.Equal(t, name, *updated.Name)
		assert.Equal(t, domain.SortNewest, updated.DefaultSortOrder)

		empty := ""
		updated, err = s.Queues.Update(ctx, q.ID, domain.QueuePatch{Name: &empty})
		require.NoError(t, err)
		assert.Nil(t, updated.Name)

		_, err = s.Queues.Update(ctx, uuid.New(), domain.QueuePatch{Name: &name})
		assert.ErrorIs(t, err, repository.ErrQueueNotFound)

		require.NoError(t, s.Queues.Delete(ctx, q.ID))
		_, err = s.Queues.GetByID(ctx, q.ID)
		assert.ErrorIs(t, err, repository.ErrQueueNotFound)
		assert.ErrorIs(t, s.Queues.Delete(ctx, q.ID), repository.ErrQueueNotFound)
	})
}

func TestDeleteExpiredCascadesAndStats(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *repository.Store) {
		ctx := context.Background()
		short := createQueue(t, s, time.Minute)
		long := createQueue(t, s, time.Hour)

		m := createMessage(t, s, short.ID, "old", base)
		createMessage(t, s, long.ID, "a", base)
		createMessage(t, s, long.ID, "b", base.Add(time.Second))
		hr, _, err := s.HandRaises.Toggle(ctx, short.ID, uuid.New(), "Alice", base)
		require.NoError(t, err)

		stats, err := s.Queues.Stats(ctx, base)
		require.NoError(t, err)
		assert.Equal(t, domain.QueueStats{ActiveQueues: 2, TotalMessages: 3}, stats)

		now := base.Add(2 * time.Minute)
		stats, err = s.Queues.Stats(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, domain.QueueStats{ActiveQueues: 1, TotalMessages: 2}, stats)

		ids, err := s.Queues.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{short.ID}, ids)

		_, err = s.Queues.GetByID(ctx, short.ID)
		assert.ErrorIs(t, err, repository.ErrQueueNotFound)
		_, err = s.Messages.GetByID(ctx, m.ID)
		assert.ErrorIs(t, err, repository.ErrMessageNotFound)
		_, err = s.HandRaises.GetByID(ctx, hr.ID)
		assert.ErrorIs(t, err, repository.ErrHandRaiseNotFound)

		_, err = s.Queues.GetByID(ctx, long.ID)
		assert.NoError(t, err)

		ids, err = s.Queues.DeleteExpired(ctx, now)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func TestMessageCreateRequiresQueue(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *repository.Store) {
		m := domain.NewMessage(uuid.New(), uuid.New(), "orphan", "", base)
		err := s.Messages.Create(context.Background(), m)
		assert.ErrorIs(t, err, repository.ErrQueueNotFound)
	})
}

func TestMessageListOrderingAndPaging(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *repository.Store) {
		ctx := context.Background()
		q := createQueue(t, s, time.Hour)

		first := createMessage(t, s, q.ID, "first", base)
		second := createMessage(t, s, q.ID, "second", base.Add(time.Second))
		third := createMessage(t, s, q.ID, "third", base.Add(2*time.Second))

		_, _, err := s.Messages.ToggleVote(ctx, third.ID, uuid.New(), base)
		require.NoError(t, err)
		_, _, err = s.Messages.ToggleVote(ctx, third.ID, uuid.New(), base)
		require.NoError(t, err)
		_, _, err = s.Messages.ToggleVote(ctx, second.ID, uuid.New(), base)
		require.NoError(t, err)

		msgs, total, err := s.Messages.List(ctx, q.ID, domain.MessageListOptions{Sort: domain.SortVotes, Limit: 50})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, msgs, 3)
		assert.Equal(t, []uuid.UUID{third.ID, second.ID, first.ID}, ids(msgs))
		assert.Equal(t, []int{2, 1, 0}, []int{msgs[0].VoteCount, msgs[1].VoteCount, msgs[2].VoteCount})

		msgs, _, err = s.Messages.List(ctx, q.ID, domain.MessageListOptions{Sort: domain.SortNewest, Limit: 50})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{third.ID, second.ID, first.ID}, ids(msgs))

		msgs, total, err = s.Messages.List(ctx, q.ID, domain.MessageListOptions{Sort: domain.SortNewest, Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Equal(t, []uuid.UUID{second.ID}, ids(msgs))

		msgs, total, err = s.Messages.List(ctx, q.ID, domain.MessageListOptions{Sort: domain.SortVotes, Limit: 10, Offset: 5})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Empty(t, msgs)
	})
}

func TestVotesTiesBreakByAge(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *repository.Store) {
		ctx := context.Background()
		q := createQueue(t, s, time.Hour)

		older := createMessage(t, s, q.ID, "older", base)
		newer := createMessage(t, s, q.ID, "newer", base.Add(time.Minute))

		msgs, _, err := s.Messages.List(ctx, q.ID, domain.MessageListOptions{Sort: domain.SortVotes, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{older.ID, newer.ID}, ids(msgs))
	})
}

func TestToggleVote(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *repository.Store) {
		ctx := context.Background()
		q := createQueue(t, s, time.Hour)
		m := createMessage(t, s, q.ID, "hello", base)
		voter := uuid.New()

		got, voted, err := s.Messages.ToggleVote(ctx, m.ID, voter, base)
		require.NoError(t, err)
		assert.True(t, voted)
		assert.Equal(t, 1, got.VoteCount)

		byVoter, err := s.Messages.VotedBy(ctx, voter, []uuid.UUID{m.ID})
		require.NoError(t, err)
		assert.True(t, byVoter[m.ID])

		got, voted, err = s.Messages.ToggleVote(ctx, m.ID, voter, base)
		require.NoError(t, err)
		assert.False(t, voted)
		assert.Equal(t, 0, got.VoteCount)

		byVoter, err = s.Messages.VotedBy(ctx, voter, []uuid.UUID{m.ID})
		require.NoError(t, err)
		assert.False(t, byVoter[m.ID])

		_, _, err = s.Messages.ToggleVote(ctx, uuid.New(), voter, base)
		assert.ErrorIs(t, err, repository.ErrMessageNotFound)
	})
}

func TestAddVoteRejectsDuplicates(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *repository.Store) {
		ctx := context.Background()
		q := createQueue(t, s, time.Hour)
		m := createMessage(t, s, q.ID, "hello", base)
		voter := uuid.New()

		got, err := s.Messages.AddVote(ctx, m.ID, voter, base)
		require.NoError(t, err)
		assert.Equal(t, 1, got.VoteCount)

		_, err = s.Messages.AddVote(ctx, m.ID, voter, base)
		assert.ErrorIs(t, err, repository.ErrAlreadyVoted)

		got, err = s.Messages.GetByID(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.VoteCount)
	})
}

func TestConcurrentToggleVotesFromDistinctUsers(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *repository.Store) {
		ctx := context.Background()
		q := createQueue(t, s, time.Hour)
		m := createMessage(t, s, q.ID, "hot", base)

		const voters = 20
		var wg sync.WaitGroup
		errs := make(chan error, voters)
		for i := 0; i < voters; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := s.Messages.ToggleVote(ctx, m.ID, uuid.New(), base)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := s.Messages.GetByID(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, voters, got.VoteCount)
	})
}

func TestMessageSetReadAndDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *repository.Store) {
		ctx := context.Background()
		q := createQueue(t, s, time.Hour)
		m := createMessage(t, s, q.ID, "hello", base)

		later := base.Add(time.Minute)
		got, err := s.Messages.SetRead(ctx, m.ID, true, later)
		require.NoError(t, err)
		assert.True(t, got.IsRead)
		assert.True(t, got.UpdatedAt.Equal(later))

		require.NoError(t, s.Messages.Delete(ctx, m.ID))
		_, err = s.Messages.GetByID(ctx, m.ID)
		assert.ErrorIs(t, err, repository.ErrMessageNotFound)
		assert.ErrorIs(t, s.Messages.Delete(ctx, m.ID), repository.ErrMessageNotFound)

		_, err = s.Messages.SetRead(ctx, m.ID, false, later)
		assert.ErrorIs(t, err, repository.ErrMessageNotFound)

		msgs, total, err := s.Messages.List(ctx, q.ID, domain.MessageListOptions{Sort: domain.SortVotes, Limit: 10})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, msgs)
	})
}

func TestHandRaiseToggleAndOrdering(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *repository.Store) {
		ctx := context.Background()
		q := createQueue(t, s, time.Hour)
		alice, bob := uuid.New(), uuid.New()

		a, raised, err := s.HandRaises.Toggle(ctx, q.ID, alice, "Alice", base)
		require.NoError(t, err)
		assert.True(t, raised)

		// Same timestamp: the later raise still sorts strictly after.
		b, raised, err := s.HandRaises.Toggle(ctx, q.ID, bob, "Bob", base)
		require.NoError(t, err)
		assert.True(t, raised)
		assert.True(t, b.RaisedAt.After(a.RaisedAt))

		list, err := s.HandRaises.List(ctx, q.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, a.ID, list[0].ID)
		assert.Equal(t, b.ID, list[1].ID)

		lowered, raised, err := s.HandRaises.Toggle(ctx, q.ID, alice, "", base.Add(time.Second))
		require.NoError(t, err)
		assert.False(t, raised)
		assert.Equal(t, a.ID, lowered.ID)

		_, err = s.HandRaises.GetByID(ctx, a.ID)
		assert.ErrorIs(t, err, repository.ErrHandRaiseNotFound)

		_, _, err = s.HandRaises.Toggle(ctx, uuid.New(), alice, "Alice", base)
		assert.ErrorIs(t, err, repository.ErrQueueNotFound)

		_, _, err = s.HandRaises.Toggle(ctx, q.ID, alice, "", base.Add(2*time.Second))
		assert.ErrorIs(t, err, repository.ErrNothingToLower)
	})
}

func TestHandRaiseSetCompleted(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *repository.Store) {
		ctx := context.Background()
		q := createQueue(t, s, time.Hour)
		alice := uuid.New()

		first, _, err := s.HandRaises.Toggle(ctx, q.ID, alice, "Alice", base)
		require.NoError(t, err)

		done, err := s.HandRaises.SetCompleted(ctx, first.ID, true, base.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, done.Completed)
		require.NotNil(t, done.CompletedAt)
		assert.True(t, done.CompletedAt.Equal(base.Add(time.Minute)))

		// A completed entry does not block a new raise.
		second, raised, err := s.HandRaises.Toggle(ctx, q.ID, alice, "Alice", base.Add(2*time.Minute))
		require.NoError(t, err)
		assert.True(t, raised)
		assert.NotEqual(t, first.ID, second.ID)

		_, err = s.HandRaises.SetCompleted(ctx, first.ID, false, base.Add(3*time.Minute))
		assert.ErrorIs(t, err, repository.ErrActiveHandRaiseExists)

		_, err = s.HandRaises.SetCompleted(ctx, second.ID, true, base.Add(4*time.Minute))
		require.NoError(t, err)
		reopened, err := s.HandRaises.SetCompleted(ctx, first.ID, false, base.Add(5*time.Minute))
		require.NoError(t, err)
		assert.False(t, reopened.Completed)
		assert.Nil(t, reopened.CompletedAt)

		_, err = s.HandRaises.SetCompleted(ctx, uuid.New(), true, base)
		assert.ErrorIs(t, err, repository.ErrHandRaiseNotFound)
	})
}

func TestContextCancelled(t *testing.T) {
	forEachStore(t, func(t *testing.T, s *repository.Store) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := s.Queues.GetByID(ctx, uuid.New())
		assert.ErrorIs(t, err, context.Canceled)
		_, _, err = s.Messages.ToggleVote(ctx, uuid.New(), uuid.New(), base)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func ids(msgs []*domain.Message) []uuid.UUID {
	res := make([]uuid.UUID, 0, len(msgs))
	for _, m := range msgs {
		res = append(res, m.ID)
	}
	return res
}

func TestSQLiteFileConcurrentWriters(t *testing.T) {
	dsn := repository.SQLiteDSN(filepath.Join(t.TempDir(), "filap.db"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(25)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repository.Migrate(db))
	s := repository.NewGormStore(db)

	ctx := context.Background()
	q := createQueue(t, s, time.Hour)
	m := createMessage(t, s, q.ID, "busy", base)

	const writers = 30
	var wg sync.WaitGroup
	errs := make(chan error, 2*writers)
	for i := 0; i < writers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, err := s.Messages.ToggleVote(ctx, m.ID, uuid.New(), base)
			errs <- err
		}()
		go func(i int) {
			defer wg.Done()
			_, _, err := s.HandRaises.Toggle(ctx, q.ID, uuid.New(), fmt.Sprintf("user-%d", i), base)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Messages.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, writers, got.VoteCount)

	list, err := s.HandRaises.List(ctx, q.ID)
	require.NoError(t, err)
	assert.Len(t, list, writers)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "filap.db?_txlock=immediate&_busy_timeout=5000", repository.SQLiteDSN("filap.db"))
	assert.Equal(t, "file:x?mode=memory&_txlock=immediate&_busy_timeout=5000", repository.SQLiteDSN("file:x?mode=memory"))
	assert.Equal(t, "x.db?_busy_timeout=100&_txlock=immediate", repository.SQLiteDSN("x.db?_busy_timeout=100"))
}
