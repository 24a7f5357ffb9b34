package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/filap/internal/domain"
	"github.com/immxrtalbeast/filap/internal/repository/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migrate creates or updates the tables used by the gorm repositories.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Queue{}, &model.Message{}, &model.Vote{}, &model.HandRaise{})
}

// SQLiteDSN adds immediate transactions and a busy timeout to a sqlite dsn
// unless the caller already set them.
func SQLiteDSN(dsn string) string {
	var params []string
	if !strings.Contains(dsn, "_txlock=") {
		params = append(params, "_txlock=immediate")
	}
	if !strings.Contains(dsn, "_busy_timeout=") {
		params = append(params, "_busy_timeout=5000")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

// NewGormStore returns repositories over db. Row locks are taken on postgres.
// A sqlite pool is capped at one connection so writers queue in the pool
// instead of failing with "database is locked".
func NewGormStore(db *gorm.DB) *Store {
	if db.Dialector.Name() == "sqlite" {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}
	base := gormBase{db: db, rowLocks: db.Dialector.Name() == "postgres"}
	return &Store{
		Queues:     &GormQueueRepository{base},
		Messages:   &GormMessageRepository{base},
		HandRaises: &GormHandRaiseRepository{base},
	}
}

type gormBase struct {
	db       *gorm.DB
	rowLocks bool
}

func (b gormBase) forUpdate(tx *gorm.DB) *gorm.DB {
	if b.rowLocks {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

type GormQueueRepository struct {
	gormBase
}

func (r *GormQueueRepository) Create(ctx context.Context, queue *domain.Queue) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if queue == nil {
		return errors.New("queue is nil")
	}

	if err := r.db.WithContext(ctx).Create(toModelQueue(queue)).Error; err != nil {
		return fmt.Errorf("repository.queue.create: %w", err)
	}
	return nil
}

func (r *GormQueueRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Queue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var q model.Queue
	err := r.db.WithContext(ctx).First(&q, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQueueNotFound
		}
		return nil, fmt.Errorf("repository.queue.get: %w", err)
	}
	return toDomainQueue(&q), nil
}

func (r *GormQueueRepository) Update(ctx context.Context, id uuid.UUID, patch domain.QueuePatch) (*domain.Queue, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if patch.Name != nil {
		if *patch.Name == "" {
			updates["name"] = gorm.Expr("NULL")
		} else {
			updates["name"] = *patch.Name
		}
	}
	if patch.DefaultSortOrder != nil {
		updates["default_sort_order"] = string(*patch.DefaultSortOrder)
	}

	var q model.Queue
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.forUpdate(tx).First(&q, "id = ?", id).Error; err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&model.Queue{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		return tx.First(&q, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQueueNotFound
		}
		return nil, fmt.Errorf("repository.queue.update: %w", err)
	}
	return toDomainQueue(&q), nil
}

func (r *GormQueueRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&model.Queue{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrQueueNotFound
		}
		return deleteQueueChildren(tx, []uuid.UUID{id})
	})
	if err != nil && !errors.Is(err, ErrQueueNotFound) {
		return fmt.Errorf("repository.queue.delete: %w", err)
	}
	return err
}

func (r *GormQueueRepository) DeleteExpired(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Queue{}).Where("expires_at <= ?", now).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("id IN ?", ids).Delete(&model.Queue{}).Error; err != nil {
			return err
		}
		return deleteQueueChildren(tx, ids)
	})
	if err != nil {
		return nil, fmt.Errorf("repository.queue.delete_expired: %w", err)
	}
	return ids, nil
}

// deleteQueueChildren cascades by hand so the result does not depend on the
// driver enforcing foreign keys.
func deleteQueueChildren(tx *gorm.DB, queueIDs []uuid.UUID) error {
	var msgIDs []uuid.UUID
	if err := tx.Model(&model.Message{}).Where("queue_id IN ?", queueIDs).Pluck("id", &msgIDs).Error; err != nil {
		return err
	}
	if len(msgIDs) > 0 {
		if err := tx.Where("message_id IN ?", msgIDs).Delete(&model.Vote{}).Error; err != nil {
			return err
		}
		if err := tx.Where("id IN ?", msgIDs).Delete(&model.Message{}).Error; err != nil {
			return err
		}
	}
	return tx.Where("queue_id IN ?", queueIDs).Delete(&model.HandRaise{}).Error
}

func (r *GormQueueRepository) Stats(ctx context.Context, now time.Time) (domain.QueueStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.QueueStats{}, err
	}

	var stats domain.QueueStats
	db := r.db.WithContext(ctx)
	if err := db.Model(&model.Queue{}).Where("expires_at > ?", now).Count(&stats.ActiveQueues).Error; err != nil {
		return domain.QueueStats{}, fmt.Errorf("repository.queue.stats: %w", err)
	}
	err := db.Model(&model.Message{}).
		Joins("JOIN queues ON queues.id = messages.queue_id").
		Where("queues.expires_at > ?", now).
		Count(&stats.TotalMessages).Error
	if err != nil {
		return domain.QueueStats{}, fmt.Errorf("repository.queue.stats: %w", err)
	}
	return stats, nil
}

type GormMessageRepository struct {
	gormBase
}

func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg == nil {
		return errors.New("message is nil")
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var q model.Queue
		if err := tx.Select("id").First(&q, "id = ?", msg.QueueID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQueueNotFound
			}
			return err
		}
		return tx.Create(toModelMessage(msg)).Error
	})
	if err != nil && !errors.Is(err, ErrQueueNotFound) {
		return fmt.Errorf("repository.message.create: %w", err)
	}
	return err
}

func (r *GormMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var m model.Message
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("repository.message.get: %w", err)
	}
	return toDomainMessage(&m), nil
}

func (r *GormMessageRepository) List(ctx context.Context, queueID uuid.UUID, opts domain.MessageListOptions) ([]*domain.Message, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	db := r.db.WithContext(ctx)

	var total int64
	if err := db.Model(&model.Message{}).Where("queue_id = ?", queueID).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("repository.message.list: %w", err)
	}

	query := db.Where("queue_id = ?", queueID)
	if opts.Sort == domain.SortNewest {
		query = query.Order("created_at DESC").Order("id ASC")
	} else {
		query = query.Order("vote_count DESC").Order("created_at ASC").Order("id ASC")
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		query = query.Offset(opts.Offset)
	}

	var rows []model.Message
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("repository.message.list: %w", err)
	}

	msgs := make([]*domain.Message, 0, len(rows))
	for i := range rows {
		msgs = append(msgs, toDomainMessage(&rows[i]))
	}
	return msgs, int(total), nil
}

func (r *GormMessageRepository) SetRead(ctx context.Context, id uuid.UUID, isRead bool, now time.Time) (*domain.Message, error) {
	return r.mutate(ctx, "repository.message.set_read", id, func(tx *gorm.DB, _ *model.Message) error {
		return tx.Model(&model.Message{}).Where("id = ?", id).
			Updates(map[string]any{"is_read": isRead, "updated_at": now}).Error
	})
}

func (r *GormMessageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&model.Message{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrMessageNotFound
		}
		return tx.Where("message_id = ?", id).Delete(&model.Vote{}).Error
	})
	if err != nil && !errors.Is(err, ErrMessageNotFound) {
		return fmt.Errorf("repository.message.delete: %w", err)
	}
	return err
}

func (r *GormMessageRepository) ToggleVote(ctx context.Context, id, voter uuid.UUID, now time.Time) (*domain.Message, bool, error) {
	var voted bool
	msg, err := r.mutate(ctx, "repository.message.toggle_vote", id, func(tx *gorm.DB, _ *model.Message) error {
		res := tx.Where("message_id = ? AND user_id = ?", id, voter).Delete(&model.Vote{})
		if res.Error != nil {
			return res.Error
		}

		delta := -1
		if res.RowsAffected == 0 {
			if err := tx.Create(&model.Vote{MessageID: id, UserID: voter, CreatedAt: now}).Error; err != nil {
				return err
			}
			delta = 1
			voted = true
		}

		return tx.Model(&model.Message{}).Where("id = ?", id).Updates(map[string]any{
			"vote_count": gorm.Expr("vote_count + ?", delta),
			"updated_at": now,
		}).Error
	})
	if err != nil {
		return nil, false, err
	}
	return msg, voted, nil
}

func (r *GormMessageRepository) AddVote(ctx context.Context, id, voter uuid.UUID, now time.Time) (*domain.Message, error) {
	return r.mutate(ctx, "repository.message.add_vote", id, func(tx *gorm.DB, _ *model.Message) error {
		var existing int64
		if err := tx.Model(&model.Vote{}).Where("message_id = ? AND user_id = ?", id, voter).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyVoted
		}
		if err := tx.Create(&model.Vote{MessageID: id, UserID: voter, CreatedAt: now}).Error; err != nil {
			return err
		}
		return tx.Model(&model.Message{}).Where("id = ?", id).Updates(map[string]any{
			"vote_count": gorm.Expr("vote_count + 1"),
			"updated_at": now,
		}).Error
	})
}

func (r *GormMessageRepository) VotedBy(ctx context.Context, voter uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := make(map[uuid.UUID]bool, len(ids))
	if len(ids) == 0 {
		return res, nil
	}

	var voted []uuid.UUID
	err := r.db.WithContext(ctx).Model(&model.Vote{}).
		Where("user_id = ? AND message_id IN ?", voter, ids).
		Pluck("message_id", &voted).Error
	if err != nil {
		return nil, fmt.Errorf("repository.message.voted_by: %w", err)
	}

	for _, id := range ids {
		res[id] = false
	}
	for _, id := range voted {
		res[id] = true
	}
	return res, nil
}

// mutate locks the message row, runs fn and returns the row as committed.
func (r *GormMessageRepository) mutate(ctx context.Context, op string, id uuid.UUID, fn func(tx *gorm.DB, m *model.Message) error) (*domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var m model.Message
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.forUpdate(tx).First(&m, "id = ?", id).Error; err != nil {
			return err
		}
		if err := fn(tx, &m); err != nil {
			return err
		}
		return tx.First(&m, "id = ?", id).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, ErrMessageNotFound
		case errors.Is(err, ErrAlreadyVoted):
			return nil, err
		default:
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return toDomainMessage(&m), nil
}

type GormHandRaiseRepository struct {
	gormBase
}

func (r *GormHandRaiseRepository) Toggle(ctx context.Context, queueID, userID uuid.UUID, userName string, now time.Time) (*domain.HandRaise, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var (
		hr     model.HandRaise
		raised bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var q model.Queue
		if err := r.forUpdate(tx).Select("id").First(&q, "id = ?", queueID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrQueueNotFound
			}
			return err
		}

		err := tx.Where("queue_id = ? AND user_id = ? AND completed = ?", queueID, userID, false).First(&hr).Error
		if err == nil {
			return tx.Where("id = ?", hr.ID).Delete(&model.HandRaise{}).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if userName == "" {
			return ErrNothingToLower
		}

		var last []model.HandRaise
		if err := tx.Where("queue_id = ?", queueID).Order("raised_at DESC").Limit(1).Find(&last).Error; err != nil {
			return err
		}
		var lastRaisedAt time.Time
		if len(last) > 0 {
			lastRaisedAt = last[0].RaisedAt
		}

		hr = *toModelHandRaise(domain.NewHandRaise(queueID, userID, userName, domain.NextRaisedAt(lastRaisedAt, now)))
		raised = true
		return tx.Create(&hr).Error
	})
	if err != nil {
		if errors.Is(err, ErrQueueNotFound) || errors.Is(err, ErrNothingToLower) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("repository.hand_raise.toggle: %w", err)
	}
	return toDomainHandRaise(&hr), raised, nil
}

func (r *GormHandRaiseRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.HandRaise, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var hr model.HandRaise
	if err := r.db.WithContext(ctx).First(&hr, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHandRaiseNotFound
		}
		return nil, fmt.Errorf("repository.hand_raise.get: %w", err)
	}
	return toDomainHandRaise(&hr), nil
}

func (r *GormHandRaiseRepository) List(ctx context.Context, queueID uuid.UUID) ([]*domain.HandRaise, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rows []model.HandRaise
	err := r.db.WithContext(ctx).Where("queue_id = ?", queueID).Order("raised_at ASC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("repository.hand_raise.list: %w", err)
	}

	res := make([]*domain.HandRaise, 0, len(rows))
	for i := range rows {
		res = append(res, toDomainHandRaise(&rows[i]))
	}
	return res, nil
}

func (r *GormHandRaiseRepository) SetCompleted(ctx context.Context, id uuid.UUID, completed bool, now time.Time) (*domain.HandRaise, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var hr model.HandRaise
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.forUpdate(tx).First(&hr, "id = ?", id).Error; err != nil {
			return err
		}

		if !completed && hr.Completed {
			var active int64
			err := tx.Model(&model.HandRaise{}).
				Where("queue_id = ? AND user_id = ? AND completed = ? AND id <> ?", hr.QueueID, hr.UserID, false, id).
				Count(&active).Error
			if err != nil {
				return err
			}
			if active > 0 {
				return ErrActiveHandRaiseExists
			}
		}

		d := toDomainHandRaise(&hr)
		d.MarkCompleted(completed, now)
		hr = *toModelHandRaise(d)

		return tx.Model(&model.HandRaise{}).Where("id = ?", id).Updates(map[string]any{
			"completed":    hr.Completed,
			"completed_at": hr.CompletedAt,
		}).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return nil, ErrHandRaiseNotFound
		case errors.Is(err, ErrActiveHandRaiseExists):
			return nil, err
		default:
			return nil, fmt.Errorf("repository.hand_raise.set_completed: %w", err)
		}
	}
	return toDomainHandRaise(&hr), nil
}

func toModelQueue(q *domain.Queue) *model.Queue {
	return &model.Queue{
		ID:               q.ID,
		Name:             q.Name,
		HostSecretHash:   q.HostSecretHash,
		DefaultSortOrder: string(q.DefaultSortOrder),
		CreatedAt:        q.CreatedAt,
		ExpiresAt:        q.ExpiresAt,
	}
}

func toDomainQueue(q *model.Queue) *domain.Queue {
	return &domain.Queue{
		ID:               q.ID,
		Name:             q.Name,
		HostSecretHash:   q.HostSecretHash,
		DefaultSortOrder: domain.SortOrder(q.DefaultSortOrder),
		CreatedAt:        q.CreatedAt.UTC(),
		ExpiresAt:        q.ExpiresAt.UTC(),
	}
}

func toModelMessage(m *domain.Message) *model.Message {
	return &model.Message{
		ID:         m.ID,
		QueueID:    m.QueueID,
		Text:       m.Text,
		AuthorName: m.AuthorName,
		AuthorID:   m.AuthorID,
		VoteCount:  m.VoteCount,
		IsRead:     m.IsRead,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func toDomainMessage(m *model.Message) *domain.Message {
	return &domain.Message{
		ID:         m.ID,
		QueueID:    m.QueueID,
		Text:       m.Text,
		AuthorName: m.AuthorName,
		AuthorID:   m.AuthorID,
		VoteCount:  m.VoteCount,
		IsRead:     m.IsRead,
		CreatedAt:  m.CreatedAt.UTC(),
		UpdatedAt:  m.UpdatedAt.UTC(),
	}
}

func toModelHandRaise(h *domain.HandRaise) *model.HandRaise {
	return &model.HandRaise{
		ID:          h.ID,
		QueueID:     h.QueueID,
		UserID:      h.UserID,
		UserName:    h.UserName,
		RaisedAt:    h.RaisedAt,
		Completed:   h.Completed,
		CompletedAt: h.CompletedAt,
	}
}

func toDomainHandRaise(h *model.HandRaise) *domain.HandRaise {
	res := &domain.HandRaise{
		ID:        h.ID,
		QueueID:   h.QueueID,
		UserID:    h.UserID,
		UserName:  h.UserName,
		RaisedAt:  h.RaisedAt.UTC(),
		Completed: h.Completed,
	}
	if h.CompletedAt != nil {
		t := h.CompletedAt.UTC()
		res.CompletedAt = &t
	}
	return res
}
