package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/filap/internal/domain"
	"github.com/immxrtalbeast/filap/lib/logger/sl"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWS upgrades the request and sends the same envelopes as ServeSSE,
// one text message per event. Client messages are read and discarded.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request, q *domain.Queue) error {
	log := g.log.With(
		slog.String("transport", "ws"),
		slog.String("queue_id", q.ID.String()),
	)

	hello, err := connectedFrame(q.ID)
	if err != nil {
		return err
	}

	log.Debug("stream connecting")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		log.Debug("upgrade failed", sl.Err(err))
		return nil
	}
	defer conn.Close()

	sub := g.subs.Subscribe(q.ID)
	defer g.subs.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go readPump(ctx, cancel, conn)

	if err := writeFrame(conn, hello); err != nil {
		return nil
	}
	log.Info("stream open")

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
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
			closeWith(conn, websocket.CloseGoingAway, "queue expired")
			return nil
		case frame, ok := <-sub.Frames():
			if !ok {
				reason = "subscription closed"
				closeWith(conn, websocket.CloseGoingAway, "")
				return nil
			}
			if err := writeFrame(conn, frame); err != nil {
				reason = "write failed"
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				reason = "ping failed"
				return nil
			}
		}
	}
}

func readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for ctx.Err() == nil {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeFrame(conn *websocket.Conn, frame []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func closeWith(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
