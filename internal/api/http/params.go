package http

import (
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
)

const (
	headerQueueSecret = "X-Queue-Secret"
	headerUserToken   = "X-User-Token"
	headerAdminToken  = "X-Admin-Token"
)

// pathID parses a uuid path parameter. Malformed ids cannot name anything
// that exists, so they are reported as not found.
func pathID(ctx *gin.Context, name string, notFound error) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Param(name))
	if err != nil {
		return uuid.Nil, notFound
	}
	return id, nil
}

func hostSecret(ctx *gin.Context) string {
	return ctx.GetHeader(headerQueueSecret)
}

// userToken prefers the header, then the query string, then the body field.
func userToken(ctx *gin.Context, body string) string {
	if tok := ctx.GetHeader(headerUserToken); tok != "" {
		return tok
	}
	if tok := ctx.Query("user_token"); tok != "" {
		return tok
	}
	return body
}

// bindOptionalJSON accepts an empty body as the zero value.
func bindOptionalJSON(ctx *gin.Context, dst any) error {
	if err := ctx.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// bindQuery binds and validates the query string. A key with an empty value
// is treated as absent.
func bindQuery(ctx *gin.Context, dst any) error {
	values := ctx.Request.URL.Query()
	for key, vs := range values {
		if len(vs) == 0 || vs[0] == "" {
			values.Del(key)
		}
	}
	req := ctx.Request.Clone(ctx.Request.Context())
	req.URL.RawQuery = values.Encode()
	return binding.Query.Bind(req, dst)
}
