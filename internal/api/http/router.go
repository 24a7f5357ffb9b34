package http

import (
	"log/slog"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Controllers struct {
	Queues     *QueueController
	Messages   *MessageController
	HandRaises *HandRaiseController
	Events     *EventController
	System     *SystemController
}

type RouterConfig struct {
	AllowOrigins []string
	// AdminToken enables the cleanup endpoint when set.
	AdminToken string
}

func SetupRouter(log *slog.Logger, cfg RouterConfig, c Controllers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	config := cors.DefaultConfig()
	if len(cfg.AllowOrigins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = cfg.AllowOrigins
	}
	config.AllowHeaders = []string{
		"Content-Type",
		"Origin",
		"Accept",
		"Cache-Control",
		headerQueueSecret,
		headerUserToken,
		headerAdminToken,
	}
	config.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	router.Use(cors.New(config))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	if c.Queues != nil {
		api.POST("/queues", c.Queues.CreateQueue)
		api.GET("/queues/:id", c.Queues.GetQueue)
		api.PATCH("/queues/:id", c.Queues.UpdateQueue)
		api.POST("/queues/:id/user-token", c.Queues.IssueUserToken)
	}

	if c.Messages != nil {
		api.GET("/queues/:id/messages", c.Messages.ListMessages)
		api.POST("/queues/:id/messages", c.Messages.CreateMessage)
		api.PATCH("/queues/:id/messages/:messageID", c.Messages.UpdateMessage)
		api.DELETE("/queues/:id/messages/:messageID", c.Messages.DeleteMessage)
		api.POST("/messages/:messageID/upvote", c.Messages.Upvote)
	}

	if c.HandRaises != nil {
		api.POST("/queues/:id/handraise", c.HandRaises.ToggleHandRaise)
		api.GET("/queues/:id/handraises", c.HandRaises.ListHandRaises)
		api.PATCH("/queues/:id/handraises/:handRaiseID", c.HandRaises.UpdateHandRaise)
		api.GET("/queues/:id/user-position", c.HandRaises.UserPosition)
	}

	if c.Events != nil {
		api.GET("/queues/:id/events", c.Events.Events)
		api.GET("/queues/:id/ws", c.Events.Socket)
	}

	if c.System != nil {
		system := api.Group("/system")
		system.GET("/stats", c.System.Stats)
		if cfg.AdminToken != "" && c.System.cleaner != nil {
			system.POST("/cleanup", adminOnly(cfg.AdminToken), c.System.Cleanup)
		}
	}

	return router
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		level := slog.LevelInfo
		if ctx.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		log.Log(ctx.Request.Context(), level, "request",
			slog.String("method", ctx.Request.Method),
			slog.String("path", ctx.Request.URL.Path),
			slog.Int("status", ctx.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}
