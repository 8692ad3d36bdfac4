package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"classboard/pkg/types"
)

type ErrorResponse struct {
	Error    string         `json:"error"`
	Code     string         `json:"code,omitempty"`
	Existing *types.Session `json:"existing,omitempty"`
}

// statusFor maps an error kind to its HTTP status. A duplicate question is a
// conflict in the domain but is answered as a bad request.
func statusFor(e *types.Error) int {
	switch e.Kind {
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindConflict:
		if e.Code == types.CodeDuplicateQuestion {
			return http.StatusBadRequest
		}
		return http.StatusConflict
	case types.KindAuthorization:
		return http.StatusForbidden
	case types.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	ctx := c.Request.Context()

	if e, ok := types.AsError(err); ok {
		status := statusFor(e)
		if status >= http.StatusInternalServerError {
			slog.ErrorContext(ctx, "request failed", "error", err)
		}
		c.AbortWithStatusJSON(status, ErrorResponse{Error: e.Message, Code: e.Code, Existing: e.Existing})
		return
	}

	if errors.Is(err, context.DeadlineExceeded) {
		slog.WarnContext(ctx, "request timed out", "error", err)
		c.AbortWithStatusJSON(http.StatusGatewayTimeout, ErrorResponse{Error: "request timed out"})
		return
	}

	slog.ErrorContext(ctx, "request failed", "error", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "invalid_request"})
}
