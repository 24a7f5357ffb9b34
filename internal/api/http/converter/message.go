package converter

import (
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/filap/internal/domain"
	"github.com/immxrtalbeast/filap/internal/service"
)

type MessageResponse struct {
	ID           uuid.UUID `json:"id"`
	QueueID      uuid.UUID `json:"queue_id"`
	Text         string    `json:"text"`
	AuthorName   string    `json:"author_name"`
	UserID       uuid.UUID `json:"user_id"`
	VoteCount    int       `json:"vote_count"`
	IsRead       bool      `json:"is_read"`
	HasUserVoted *bool     `json:"has_user_voted,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type MessageListResponse struct {
	Messages   []MessageResponse `json:"messages"`
	TotalCount int               `json:"total_count"`
	Limit      int               `json:"limit"`
	Offset     int               `json:"offset"`
	SortBy     domain.SortOrder  `json:"sort_by"`
}

func MessageToApi(m *domain.Message) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		QueueID:    m.QueueID,
		Text:       m.Text,
		AuthorName: m.AuthorName,
		UserID:     m.AuthorID,
		VoteCount:  m.VoteCount,
		IsRead:     m.IsRead,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

func MessageViewToApi(v *service.MessageView) MessageResponse {
	res := MessageToApi(&v.Message)
	res.HasUserVoted = v.HasUserVoted
	return res
}

func MessageListToApi(l *service.MessageList) MessageListResponse {
	msgs := make([]MessageResponse, 0, len(l.Messages))
	for i := range l.Messages {
		msgs = append(msgs, MessageViewToApi(&l.Messages[i]))
	}
	return MessageListResponse{
		Messages:   msgs,
		TotalCount: l.TotalCount,
		Limit:      l.Limit,
		Offset:     l.Offset,
		SortBy:     l.SortBy,
	}
}
