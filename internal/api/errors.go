package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Kind    string            `json:"kind"`
	Message string            `json:"message"`
	Issues  []datasheet.Issue `json:"issues,omitempty"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind datasheet.Kind) int {
	switch kind {
	case datasheet.KindValidation:
		return http.StatusBadRequest
	case datasheet.KindNotFound:
		return http.StatusNotFound
	case datasheet.KindConflict:
		return http.StatusConflict
	case datasheet.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// abortWithError writes err as a JSON error body and stops the handler chain.
// Internal failures are reported without their cause.
func abortWithError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorResponse{Kind: "unavailable", Message: err.Error()})
		return
	}

	kind := datasheet.KindOf(err)
	resp := errorResponse{Kind: string(kind), Message: err.Error()}
	var typed *datasheet.Error
	if errors.As(err, &typed) {
		resp.Message = typed.Message
		resp.Issues = typed.Issues
	}
	if kind == datasheet.KindInternal {
		resp.Message = "internal error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(kind), resp)
}

// badRequest reports a body or query that could not be decoded.
func badRequest(c *gin.Context, err error) {
	abortWithError(c, datasheet.NewValidationError("", "malformed request: "+err.Error()))
}
