package converter

import (
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/filap/internal/domain"
	"github.com/immxrtalbeast/filap/internal/service"
)

type HandRaiseResponse struct {
	ID          uuid.UUID  `json:"id"`
	QueueID     uuid.UUID  `json:"queue_id"`
	UserID      uuid.UUID  `json:"user_id"`
	UserName    string     `json:"user_name"`
	RaisedAt    time.Time  `json:"raised_at"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
	Position    *int       `json:"position,omitempty"`
}

type HandRaiseListResponse struct {
	Active         []HandRaiseResponse `json:"active_hand_raises"`
	Completed      []HandRaiseResponse `json:"completed_hand_raises"`
	TotalActive    int                 `json:"total_active"`
	TotalCompleted int                 `json:"total_completed"`
}

type PositionResponse struct {
	HasRaisedHand bool `json:"has_raised_hand"`
	Position      *int `json:"position"`
}

func HandRaiseToApi(h *domain.HandRaise) HandRaiseResponse {
	return HandRaiseResponse{
		ID:          h.ID,
		QueueID:     h.QueueID,
		UserID:      h.UserID,
		UserName:    h.UserName,
		RaisedAt:    h.RaisedAt,
		Completed:   h.Completed,
		CompletedAt: h.CompletedAt,
	}
}

func HandRaiseListToApi(l *service.HandRaiseList) HandRaiseListResponse {
	res := HandRaiseListResponse{
		Active:         make([]HandRaiseResponse, 0, len(l.Active)),
		Completed:      make([]HandRaiseResponse, 0, len(l.Completed)),
		TotalActive:    l.TotalActive,
		TotalCompleted: l.TotalCompleted,
	}
	for i := range l.Active {
		item := HandRaiseToApi(&l.Active[i].HandRaise)
		pos := l.Active[i].Position
		item.Position = &pos
		res.Active = append(res.Active, item)
	}
	for i := range l.Completed {
		res.Completed = append(res.Completed, HandRaiseToApi(&l.Completed[i]))
	}
	return res
}

func PositionToApi(p *service.Position) PositionResponse {
	return PositionResponse{HasRaisedHand: p.HasRaisedHand, Position: p.Position}
}
