package domain

import (
	"time"

	"github.com/google/uuid"
)

const DefaultAuthorName = "Anonymous"

type Message struct {
	ID         uuid.UUID `json:"id"`
	QueueID    uuid.UUID `json:"queue_id"`
	Text       string    `json:"text"`
	AuthorName string    `json:"author_name"`
	AuthorID   uuid.UUID `json:"user_id"`
	VoteCount  int       `json:"vote_count"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func NewMessage(queueID, authorID uuid.UUID, text, authorName string, now time.Time) *Message {
	if authorName == "" {
		authorName = DefaultAuthorName
	}
	return &Message{
		ID:         uuid.New(),
		QueueID:    queueID,
		Text:       text,
		AuthorName: authorName,
		AuthorID:   authorID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MessageListOptions selects one page of a queue's messages.
type MessageListOptions struct {
	Sort   SortOrder
	Limit  int
	Offset int
}
