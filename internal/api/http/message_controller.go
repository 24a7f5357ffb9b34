package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/filap/internal/api/http/converter"
	"github.com/immxrtalbeast/filap/internal/service"
)

type MessageController struct {
	messages service.MessageInteractor
	log      *slog.Logger
}

func NewMessageController(messages service.MessageInteractor, log *slog.Logger) *MessageController {
	return &MessageController{messages: messages, log: log}
}

type listMessagesQuery struct {
	Sort   string `form:"sort" binding:"omitempty,oneof=votes newest"`
	Limit  *int   `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset *int   `form:"offset" binding:"omitempty,min=0"`
}

func (c *MessageController) ListMessages(ctx *gin.Context) {
	queueID, err := pathID(ctx, "id", service.ErrQueueNotFound)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	var query listMessagesQuery
	if err := bindQuery(ctx, &query); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	limit := service.DefaultListLimit
	if query.Limit != nil {
		limit = *query.Limit
	}
	offset := 0
	if query.Offset != nil {
		offset = *query.Offset
	}

	list, err := c.messages.ListMessages(ctx.Request.Context(), queueID, service.ListMessagesInput{
		Sort:      query.Sort,
		Limit:     limit,
		Offset:    offset,
		UserToken: userToken(ctx, ""),
	})
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.MessageListToApi(list))
}

func (c *MessageController) CreateMessage(ctx *gin.Context) {
	type request struct {
		Text       string  `json:"text" binding:"required"`
		AuthorName *string `json:"author_name"`
		UserToken  string  `json:"user_token"`
	}
	queueID, err := pathID(ctx, "id", service.ErrQueueNotFound)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	var req request
	if err := bindOptionalJSON(ctx, &req); err != nil {
		badRequest(ctx, err)
		return
	}

	msg, err := c.messages.CreateMessage(ctx.Request.Context(), queueID, service.CreateMessageInput{
		Text:       req.Text,
		AuthorName: req.AuthorName,
		UserToken:  userToken(ctx, req.UserToken),
	})
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusCreated, converter.MessageToApi(msg))
}

func (c *MessageController) UpdateMessage(ctx *gin.Context) {
	type request struct {
		IsRead    *bool  `json:"is_read" binding:"required"`
		UserToken string `json:"user_token"`
	}
	queueID, err := pathID(ctx, "id", service.ErrQueueNotFound)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	messageID, err := pathID(ctx, "messageID", service.ErrMessageNotFound)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	var req request
	if err := bindOptionalJSON(ctx, &req); err != nil {
		badRequest(ctx, err)
		return
	}

	msg, err := c.messages.UpdateMessage(ctx.Request.Context(), queueID, messageID, service.UpdateMessageInput{
		IsRead:     req.IsRead,
		HostSecret: hostSecret(ctx),
		UserToken:  userToken(ctx, req.UserToken),
	})
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.MessageToApi(msg))
}

func (c *MessageController) DeleteMessage(ctx *gin.Context) {
	queueID, err := pathID(ctx, "id", service.ErrQueueNotFound)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	messageID, err := pathID(ctx, "messageID", service.ErrMessageNotFound)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	if err := c.messages.DeleteMessage(ctx.Request.Context(), queueID, messageID, hostSecret(ctx)); err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}

func (c *MessageController) Upvote(ctx *gin.Context) {
	type request struct {
		UserToken string `json:"user_token"`
	}
	messageID, err := pathID(ctx, "messageID", service.ErrMessageNotFound)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	var req request
	if err := bindOptionalJSON(ctx, &req); err != nil {
		badRequest(ctx, err)
		return
	}

	view, err := c.messages.Upvote(ctx.Request.Context(), messageID, userToken(ctx, req.UserToken))
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.MessageViewToApi(view))
}
