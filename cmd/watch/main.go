// Command watch follows a queue's live event stream and prints every event.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/immxrtalbeast/filap/internal/sseclient"
	"github.com/immxrtalbeast/filap/lib/logger/sl"
	"github.com/immxrtalbeast/filap/lib/logger/slogpretty"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "base url of the queue server")
	queueID := flag.String("queue", "", "queue id to follow")
	delay := flag.Duration("reconnect", sseclient.DefaultReconnectDelay, "delay before reconnecting")
	flag.Parse()

	log := slog.New(slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{Level: slog.LevelInfo},
	}.NewPrettyHandler(os.Stderr))

	if *queueID == "" {
		log.Error("queue id is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	base := strings.TrimRight(*server, "/")
	httpClient := &http.Client{}

	client := &sseclient.Client{
		URL:            fmt.Sprintf("%s/api/queues/%s/events", base, *queueID),
		HTTPClient:     httpClient,
		ReconnectDelay: *delay,
		Log:            log,
		OnConnect: func(ctx context.Context) {
			log.Info("connected", slog.String("queue_id", *queueID))
		},
	}

	err := client.Run(ctx, func(env sseclient.Envelope) {
		fmt.Fprintf(os.Stdout, "%s %s %s\n", time.Now().Format(time.TimeOnly), env.Event, env.Data)
	})
	switch {
	case errors.Is(err, context.Canceled):
	case errors.Is(err, sseclient.ErrStreamGone):
		log.Info("queue is gone", slog.String("queue_id", *queueID))
	default:
		log.Error("watch stopped", sl.Err(err))
		os.Exit(1)
	}
}
