package http

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/immxrtalbeast/filap/internal/api/http/converter"
	"github.com/immxrtalbeast/filap/internal/service"
)

type SubscriberCounter interface {
	TotalSubscribers() int
}

type Cleaner interface {
	RunOnce(ctx context.Context) ([]uuid.UUID, error)
}

type SystemController struct {
	queues      service.QueueInteractor
	subscribers SubscriberCounter
	cleaner     Cleaner
	log         *slog.Logger
}

func NewSystemController(queues service.QueueInteractor, subscribers SubscriberCounter, cleaner Cleaner, log *slog.Logger) *SystemController {
	return &SystemController{queues: queues, subscribers: subscribers, cleaner: cleaner, log: log}
}

func (c *SystemController) Stats(ctx *gin.Context) {
	stats, err := c.queues.Stats(ctx.Request.Context())
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	res := converter.StatsResponse{
		ActiveQueues:  stats.ActiveQueues,
		TotalMessages: stats.TotalMessages,
	}
	if c.subscribers != nil {
		res.ActiveSubscribers = c.subscribers.TotalSubscribers()
	}
	ctx.JSON(http.StatusOK, res)
}

func (c *SystemController) Cleanup(ctx *gin.Context) {
	removed, err := c.cleaner.RunOnce(ctx.Request.Context())
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "cleanup completed", "cleaned_queues": len(removed)})
}

// adminOnly guards operator endpoints with a static token.
func adminOnly(token string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		got := ctx.GetHeader(headerAdminToken)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "details": "admin token is required"})
			return
		}
		ctx.Next()
	}
}
