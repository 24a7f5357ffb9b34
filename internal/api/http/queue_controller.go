package http

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/filap/internal/api/http/converter"
	"github.com/immxrtalbeast/filap/internal/service"
)

type QueueController struct {
	queues service.QueueInteractor
	log    *slog.Logger
}

func NewQueueController(queues service.QueueInteractor, log *slog.Logger) *QueueController {
	return &QueueController{queues: queues, log: log}
}

func (c *QueueController) CreateQueue(ctx *gin.Context) {
	type request struct {
		Name             *string `json:"name"`
		DefaultSortOrder string  `json:"default_sort_order"`
	}
	var req request
	if err := bindOptionalJSON(ctx, &req); err != nil {
		badRequest(ctx, err)
		return
	}

	q, secret, err := c.queues.CreateQueue(ctx.Request.Context(), service.CreateQueueInput{
		Name:             req.Name,
		DefaultSortOrder: req.DefaultSortOrder,
	})
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusCreated, converter.CreatedQueueToApi(q, secret))
}

func (c *QueueController) GetQueue(ctx *gin.Context) {
	id, err := pathID(ctx, "id", service.ErrQueueNotFound)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	q, err := c.queues.GetQueue(ctx.Request.Context(), id)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.QueueToApi(q))
}

// nullableString tells an explicit null apart from an absent field.
type nullableString struct {
	Set   bool
	Value string
}

func (n *nullableString) UnmarshalJSON(b []byte) error {
	n.Set = true
	if bytes.Equal(b, []byte("null")) {
		n.Value = ""
		return nil
	}
	return json.Unmarshal(b, &n.Value)
}

func (c *QueueController) UpdateQueue(ctx *gin.Context) {
	type request struct {
		Name             nullableString `json:"name"`
		DefaultSortOrder *string        `json:"default_sort_order"`
	}
	id, err := pathID(ctx, "id", service.ErrQueueNotFound)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	var req request
	if err := bindOptionalJSON(ctx, &req); err != nil {
		badRequest(ctx, err)
		return
	}

	in := service.UpdateQueueInput{DefaultSortOrder: req.DefaultSortOrder}
	if req.Name.Set {
		in.Name = &req.Name.Value
	}
	q, err := c.queues.UpdateQueue(ctx.Request.Context(), id, hostSecret(ctx), in)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.QueueToApi(q))
}

func (c *QueueController) IssueUserToken(ctx *gin.Context) {
	id, err := pathID(ctx, "id", service.ErrQueueNotFound)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	tok, err := c.queues.IssueUserToken(ctx.Request.Context(), id)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusCreated, converter.UserTokenToApi(tok))
}
