package sseclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/immxrtalbeast/filap/internal/domain"
	"github.com/r3labs/sse/v2"
	"gopkg.in/cenkalti/backoff.v1"
)

const DefaultReconnectDelay = 3 * time.Second

// ErrStreamGone means the queue no longer exists. Reconnecting cannot help.
var ErrStreamGone = errors.New("sseclient: stream not found")

type Envelope struct {
	Event domain.EventType `json:"event"`
	Data  json.RawMessage  `json:"data"`
}

// Client follows a queue's event stream and reconnects after a fixed delay
// when it drops. A retry hint from the server replaces the delay.
type Client struct {
	URL            string
	HTTPClient     *http.Client
	ReconnectDelay time.Duration
	// OnConnect runs after every successful (re)connect. Events missed while
	// disconnected are never replayed, so this is where state is refetched.
	OnConnect func(ctx context.Context)
	Log       *slog.Logger
}

// Run blocks until ctx is cancelled or the stream is gone for good. A pending
// reconnect is abandoned as soon as ctx ends.
func (c *Client) Run(ctx context.Context, handle func(Envelope)) error {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	delay := c.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}

	wait := &reconnectWait{
		ctx:      ctx,
		constant: backoff.NewConstantBackOff(delay),
		log:      log.With(slog.String("url", c.URL)),
	}

	client := sse.NewClient(c.URL)
	if c.HTTPClient != nil {
		client.Connection = c.HTTPClient
	}
	client.ReconnectStrategy = wait
	client.ResponseValidator = func(_ *sse.Client, resp *http.Response) error {
		switch {
		case resp.StatusCode == http.StatusNotFound:
			_ = resp.Body.Close()
			wait.gone = true
			return ErrStreamGone
		case resp.StatusCode != http.StatusOK:
			_ = resp.Body.Close()
			return fmt.Errorf("sseclient: unexpected status %d", resp.StatusCode)
		}
		if c.OnConnect != nil {
			c.OnConnect(ctx)
		}
		return nil
	}

	for {
		err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
			wait.hint(msg.Retry)
			dispatch(msg.Data, handle)
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return err
		}
		// The server ended the stream cleanly.
		if wait.NextBackOff() == backoff.Stop {
			return ctx.Err()
		}
	}
}

// reconnectWait is a constant backoff that does the waiting itself, so a
// pending reconnect ends with ctx. It stops for good once the stream is gone.
type reconnectWait struct {
	ctx      context.Context
	constant *backoff.ConstantBackOff
	gone     bool
	log      *slog.Logger
}

func (w *reconnectWait) NextBackOff() time.Duration {
	if w.gone || w.ctx.Err() != nil {
		return backoff.Stop
	}
	delay := w.constant.NextBackOff()
	w.log.Warn("stream interrupted, reconnecting", slog.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-w.ctx.Done():
		return backoff.Stop
	case <-timer.C:
		return 0
	}
}

func (w *reconnectWait) Reset() {}

func (w *reconnectWait) hint(retry []byte) {
	if len(retry) == 0 {
		return
	}
	if ms, err := strconv.Atoi(string(retry)); err == nil && ms > 0 {
		w.constant.Interval = time.Duration(ms) * time.Millisecond
	}
}

// dispatch drops payloads that are not JSON envelopes.
func dispatch(payload []byte, handle func(Envelope)) {
	if len(payload) == 0 {
		return
	}
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil || env.Event == "" {
		return
	}
	handle(env)
}
