package auth

import (
	"context"

	"github.com/gin-gonic/gin"
)

const (
	UserIDHeader    = "X-User-ID"
	RequestIDHeader = "X-Request-ID"

	// Anonymous is recorded as the actor when a request carries no user id.
	Anonymous = "anonymous"
	// System is the actor for changes driven by order events.
	System = "system"
)

type ctxKey int

const (
	userIDKey ctxKey = iota
	requestIDKey
)

// Middleware copies the caller identity headers into the request context.
// Authentication happens upstream at the gateway.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			userID = Anonymous
		}
		ctx := WithUserID(c.Request.Context(), userID)

		if rid := c.GetHeader(RequestIDHeader); rid != "" {
			ctx = context.WithValue(ctx, requestIDKey, rid)
			c.Set("request_id", rid)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func GetUserID(ctx context.Context) string {
	if val, ok := ctx.Value(userIDKey).(string); ok && val != "" {
		return val
	}
	return Anonymous
}

func GetRequestID(ctx context.Context) string {
	val, _ := ctx.Value(requestIDKey).(string)
	return val
}
