package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/google/uuid"
	"github.com/immxrtalbeast/filap/internal/domain"
	"github.com/immxrtalbeast/filap/internal/events"
	"github.com/immxrtalbeast/filap/lib/logger/sl"
)

var ErrStreamingUnsupported = errors.New("response writer does not support flushing")

const heartbeatFrame = ": heartbeat\n\n"

// Subscriber is the part of the broadcaster a stream needs.
type Subscriber interface {
	Subscribe(queueID uuid.UUID) *events.Subscription
	Unsubscribe(sub *events.Subscription)
}

type Options struct {
	HeartbeatInterval time.Duration
	Retry             time.Duration
	Now               func() time.Time
}

// ConnectedPayload is the data of the first frame of every stream.
type ConnectedPayload struct {
	QueueID uuid.UUID `json:"queue_id"`
}

// Gateway serves live queue streams over SSE and WebSocket.
type Gateway struct {
	subs      Subscriber
	log       *slog.Logger
	heartbeat time.Duration
	retry     time.Duration
	now       func() time.Time
}

func New(subs Subscriber, log *slog.Logger, opts Options) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 20 * time.Second
	}
	if opts.Retry <= 0 {
		opts.Retry = 3 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gateway{
		subs:      subs,
		log:       log,
		heartbeat: opts.HeartbeatInterval,
		retry:     opts.Retry,
		now:       opts.Now,
	}
}

// ServeSSE streams the queue's events until ctx ends, the subscription is
// closed, a write fails or the queue expires. The caller has already
// checked that the queue is live.
func (g *Gateway) ServeSSE(ctx context.Context, w http.ResponseWriter, q *domain.Queue) error {
	log := g.log.With(
		slog.String("transport", "sse"),
		slog.String("queue_id", q.ID.String()),
	)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}
	log.Debug("stream connecting")

	hello, err := connectedFrame(q.ID)
	if err != nil {
		return err
	}

	sub := g.subs.Subscribe(q.ID)
	defer g.subs.Unsubscribe(sub)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	err = sse.Encode(w, sse.Event{
		Retry: uint(g.retry / time.Millisecond),
		Data:  string(hello),
	})
	if err != nil {
		log.Debug("stream closed", slog.String("reason", "write failed"), sl.Err(err))
		return nil
	}
	flusher.Flush()
	log.Info("stream open")

	heartbeat := time.NewTicker(g.heartbeat)
	defer heartbeat.Stop()
	expiry := time.NewTimer(q.ExpiresAt.Sub(g.now()))
	defer expiry.Stop()

	reason := "client disconnected"
	defer func() {
		log.Info("stream closed", slog.String("reason", reason))
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-expiry.C:
			reason = "queue expired"
			return nil
		case frame, ok := <-sub.Frames():
			if !ok {
				reason = "subscription closed"
				return nil
			}
			if err := sse.Encode(w, sse.Event{Data: string(frame)}); err != nil {
				reason = "write failed"
				return nil
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, heartbeatFrame); err != nil {
				reason = "write failed"
				return nil
			}
			flusher.Flush()
		}
	}
}

func connectedFrame(queueID uuid.UUID) ([]byte, error) {
	return events.Encode(domain.NewEvent(queueID, domain.EventConnected, ConnectedPayload{QueueID: queueID}))
}
