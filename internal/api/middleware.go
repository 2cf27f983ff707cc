package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/dyluth/lodge/internal/lifecycle"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/gin-gonic/gin"
)

// Request headers carrying the caller's identity.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderActorID  = "X-Actor-ID"
)

const scopeKey = "lodge_scope"

// requireScope rejects requests without a tenant and an actor and stores the
// resulting lifecycle.Scope in the gin context.
func requireScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		scope := lifecycle.Scope{
			TenantID: strings.TrimSpace(c.GetHeader(HeaderTenantID)),
			ActorID:  strings.TrimSpace(c.GetHeader(HeaderActorID)),
		}
		if scope.TenantID == "" || scope.ActorID == "" {
			abortWithError(c, datasheet.NewUnauthorizedError("", "the "+HeaderTenantID+" and "+HeaderActorID+" headers are required"))
			return
		}
		c.Set(scopeKey, scope)
		c.Next()
	}
}

// scopeOf returns the scope stored by requireScope.
func scopeOf(c *gin.Context) lifecycle.Scope {
	scope, _ := c.Get(scopeKey)
	s, _ := scope.(lifecycle.Scope)
	return s
}

// requireOperator rejects callers that do not hold operator rights.
func (s *Server) requireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := scopeOf(c).ActorID
		if !s.isOperator(actor) {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{
				Kind:    "forbidden",
				Message: "actor " + actor + " is not an operator",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := s.logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = s.logger.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("actor", c.GetHeader(HeaderActorID)).
			Msg("request")
	}
}
