package domain

import (
	"time"

	"github.com/google/uuid"
)

// HandRaise is a request to speak. Uncompleted entries form a FIFO ordered by
// RaisedAt, and a user holds at most one of them per queue.
type HandRaise struct {
	ID          uuid.UUID  `json:"id"`
	QueueID     uuid.UUID  `json:"queue_id"`
	UserID      uuid.UUID  `json:"user_id"`
	UserName    string     `json:"user_name"`
	RaisedAt    time.Time  `json:"raised_at"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
}

func NewHandRaise(queueID, userID uuid.UUID, userName string, raisedAt time.Time) *HandRaise {
	return &HandRaise{
		ID:       uuid.New(),
		QueueID:  queueID,
		UserID:   userID,
		UserName: userName,
		RaisedAt: raisedAt,
	}
}

func (h *HandRaise) IsActive() bool {
	return !h.Completed
}

// MarkCompleted sets or clears the completion state.
func (h *HandRaise) MarkCompleted(completed bool, now time.Time) {
	h.Completed = completed
	if completed {
		t := now
		h.CompletedAt = &t
		return
	}
	h.CompletedAt = nil
}

// NextRaisedAt keeps raise times strictly increasing within a queue so that
// positions never tie.
func NextRaisedAt(last, now time.Time) time.Time {
	if now.After(last) {
		return now
	}
	return last.Add(time.Microsecond)
}
