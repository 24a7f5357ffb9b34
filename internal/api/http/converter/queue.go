package converter

import (
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/filap/internal/domain"
	"github.com/immxrtalbeast/filap/internal/service"
)

type QueueResponse struct {
	ID               uuid.UUID        `json:"id"`
	Name             *string          `json:"name"`
	DefaultSortOrder domain.SortOrder `json:"default_sort_order"`
	CreatedAt        time.Time        `json:"created_at"`
	ExpiresAt        time.Time        `json:"expires_at"`
}

// CreatedQueueResponse is the only response that ever carries the host secret.
type CreatedQueueResponse struct {
	QueueResponse
	HostSecret string `json:"host_secret"`
}

type UserTokenResponse struct {
	UserToken string    `json:"user_token"`
	UserID    uuid.UUID `json:"user_id"`
	QueueID   uuid.UUID `json:"queue_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type StatsResponse struct {
	ActiveQueues      int64 `json:"active_queues"`
	TotalMessages     int64 `json:"total_messages"`
	ActiveSubscribers int   `json:"active_subscribers"`
}

func QueueToApi(q *domain.Queue) QueueResponse {
	return QueueResponse{
		ID:               q.ID,
		Name:             q.Name,
		DefaultSortOrder: q.DefaultSortOrder,
		CreatedAt:        q.CreatedAt,
		ExpiresAt:        q.ExpiresAt,
	}
}

func CreatedQueueToApi(q *domain.Queue, secret string) CreatedQueueResponse {
	return CreatedQueueResponse{QueueResponse: QueueToApi(q), HostSecret: secret}
}

func UserTokenToApi(t *service.UserToken) UserTokenResponse {
	return UserTokenResponse{
		UserToken: t.Token,
		UserID:    t.UserID,
		QueueID:   t.QueueID,
		ExpiresAt: t.ExpiresAt,
	}
}
