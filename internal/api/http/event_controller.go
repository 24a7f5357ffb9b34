package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/filap/internal/domain"
	"github.com/immxrtalbeast/filap/internal/service"
)

// Streamer serves a live queue's events on an open connection.
type Streamer interface {
	ServeSSE(ctx context.Context, w http.ResponseWriter, q *domain.Queue) error
	ServeWS(w http.ResponseWriter, r *http.Request, q *domain.Queue) error
}

type EventController struct {
	queues  service.QueueInteractor
	streams Streamer
	log     *slog.Logger
}

func NewEventController(queues service.QueueInteractor, streams Streamer, log *slog.Logger) *EventController {
	return &EventController{queues: queues, streams: streams, log: log}
}

func (c *EventController) Events(ctx *gin.Context) {
	q, ok := c.liveQueue(ctx)
	if !ok {
		return
	}
	if err := c.streams.ServeSSE(ctx.Request.Context(), ctx.Writer, q); err != nil {
		writeError(ctx, c.log, err)
	}
}

func (c *EventController) Socket(ctx *gin.Context) {
	q, ok := c.liveQueue(ctx)
	if !ok {
		return
	}
	if err := c.streams.ServeWS(ctx.Writer, ctx.Request, q); err != nil {
		writeError(ctx, c.log, err)
	}
}

// liveQueue answers 404 before any stream is opened.
func (c *EventController) liveQueue(ctx *gin.Context) (*domain.Queue, bool) {
	id, err := pathID(ctx, "id", service.ErrQueueNotFound)
	if err != nil {
		writeError(ctx, c.log, err)
		return nil, false
	}
	q, err := c.queues.GetQueue(ctx.Request.Context(), id)
	if err != nil {
		writeError(ctx, c.log, err)
		return nil, false
	}
	return q, true
}
