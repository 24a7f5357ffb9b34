package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/filap/internal/domain"
	"github.com/immxrtalbeast/filap/lib/logger/sl"
	"github.com/redis/go-redis/v9"
)

type relayMessage struct {
	QueueID uuid.UUID       `json:"queue_id"`
	Frame   json.RawMessage `json:"frame"`
}

// RedisRelay publishes events through a Redis channel and delivers whatever
// arrives on it to the local broadcaster, so every instance sees every event.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	local   *Broadcaster
	log     *slog.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRedisRelay(rdb *redis.Client, channel string, local *Broadcaster, log *slog.Logger) *RedisRelay {
	if log == nil {
		log = slog.Default()
	}
	return &RedisRelay{
		rdb:     rdb,
		channel: channel,
		local:   local,
		log:     log.With(slog.String("component", "redis_relay")),
	}
}

func (r *RedisRelay) Publish(ctx context.Context, ev domain.Event) error {
	frame, err := Encode(ev)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(relayMessage{QueueID: ev.QueueID, Frame: frame})
	if err != nil {
		return fmt.Errorf("events.redis.publish: %w", err)
	}

	if err := r.rdb.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("events.redis.publish: %w", err)
	}
	return nil
}

// Start subscribes and waits for the confirmation before returning, then
// relays in the background until ctx is done or Close is called.
func (r *RedisRelay) Start(ctx context.Context) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("events.redis.subscribe: %w", err)
	}

	done := make(chan struct{})
	r.mu.Lock()
	r.pubsub = pubsub
	r.done = done
	r.mu.Unlock()

	go r.listen(ctx, pubsub, done)

	r.log.Info("relay subscribed", slog.String("channel", r.channel))
	return nil
}

func (r *RedisRelay) listen(ctx context.Context, pubsub *redis.PubSub, done chan struct{}) {
	defer close(done)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = pubsub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var rm relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &rm); err != nil {
				r.log.Warn("dropping malformed relay message", sl.Err(err))
				continue
			}
			r.local.Deliver(rm.QueueID, rm.Frame)
		}
	}
}

func (r *RedisRelay) Close() error {
	r.mu.Lock()
	pubsub, done := r.pubsub, r.done
	r.pubsub = nil
	r.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	return err
}
