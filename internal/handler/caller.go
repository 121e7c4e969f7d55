package handler

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/psds-microservice/ticket-chat-service/internal/errs"
	"github.com/psds-microservice/ticket-chat-service/internal/model"
)

// HeaderCallerID carries the authenticated user id, set by the gateway.
const HeaderCallerID = "X-Caller-ID"

const ctxCaller = "caller"

type UserLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// Caller resolves HeaderCallerID to a user and stores it on the context.
func Caller(users UserLookup, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.GetHeader(HeaderCallerID))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid " + HeaderCallerID})
			return
		}
		u, err := users.Get(c.Request.Context(), id)
		if err != nil {
			if errs.IsNotFound(err) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown caller"})
				return
			}
			writeError(c, log, err)
			c.Abort()
			return
		}
		c.Set(ctxCaller, u)
		c.Next()
	}
}

// RequireRole lets the request through only for the given roles.
func RequireRole(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := callerFrom(c)
		if u == nil || !slices.Contains(roles, u.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func callerFrom(c *gin.Context) *model.User {
	v, ok := c.Get(ctxCaller)
	if !ok {
		return nil
	}
	u, _ := v.(*model.User)
	return u
}

// canAccess reports whether u may act on a ticket owned by customerID.
func canAccess(u *model.User, customerID uuid.UUID) bool {
	return u != nil && (u.Role.IsStaff() || u.ID == customerID)
}
