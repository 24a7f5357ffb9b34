package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/immxrtalbeast/filap/internal/api/http/converter"
	"github.com/immxrtalbeast/filap/internal/service"
)

type HandRaiseController struct {
	handRaises service.HandRaiseInteractor
	log        *slog.Logger
}

func NewHandRaiseController(handRaises service.HandRaiseInteractor, log *slog.Logger) *HandRaiseController {
	return &HandRaiseController{handRaises: handRaises, log: log}
}

// ToggleHandRaise answers 201 with the entry when a hand was raised and an
// empty 200 when it was lowered.
func (c *HandRaiseController) ToggleHandRaise(ctx *gin.Context) {
	type request struct {
		UserName  *string `json:"user_name"`
		UserToken string  `json:"user_token"`
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

	hr, raised, err := c.handRaises.ToggleHandRaise(ctx.Request.Context(), queueID, service.ToggleHandRaiseInput{
		UserName:  req.UserName,
		UserToken: userToken(ctx, req.UserToken),
	})
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	if !raised {
		ctx.Status(http.StatusOK)
		return
	}
	ctx.JSON(http.StatusCreated, converter.HandRaiseToApi(hr))
}

func (c *HandRaiseController) ListHandRaises(ctx *gin.Context) {
	queueID, err := pathID(ctx, "id", service.ErrQueueNotFound)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	include := strings.EqualFold(ctx.Query("include_completed"), "true")

	list, err := c.handRaises.ListHandRaises(ctx.Request.Context(), queueID, include)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.HandRaiseListToApi(list))
}

func (c *HandRaiseController) UpdateHandRaise(ctx *gin.Context) {
	type request struct {
		Completed *bool `json:"completed" binding:"required"`
	}
	queueID, err := pathID(ctx, "id", service.ErrQueueNotFound)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	handRaiseID, err := pathID(ctx, "handRaiseID", service.ErrHandRaiseNotFound)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	var req request
	if err := bindOptionalJSON(ctx, &req); err != nil {
		badRequest(ctx, err)
		return
	}

	hr, err := c.handRaises.SetCompleted(ctx.Request.Context(), queueID, handRaiseID, service.SetCompletedInput{
		Completed:  req.Completed,
		HostSecret: hostSecret(ctx),
	})
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.HandRaiseToApi(hr))
}

func (c *HandRaiseController) UserPosition(ctx *gin.Context) {
	queueID, err := pathID(ctx, "id", service.ErrQueueNotFound)
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}

	pos, err := c.handRaises.Position(ctx.Request.Context(), queueID, userToken(ctx, ""))
	if err != nil {
		writeError(ctx, c.log, err)
		return
	}
	ctx.JSON(http.StatusOK, converter.PositionToApi(pos))
}
