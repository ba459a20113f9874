package apperror

import (
	"errors"

	"github.com/gin-gonic/gin"
)

type body struct {
	Code    Kind   `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ErrorMiddleware renders the last error attached with c.Error. Wrapped causes
// are only exposed when exposeDetails is set (non-production).
func ErrorMiddleware(exposeDetails bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		appErr := &Error{Kind: KindPersistence, Message: "internal server error", Err: err}
		errors.As(err, &appErr)

		b := body{Code: appErr.Kind, Message: appErr.Message}
		if exposeDetails && appErr.Err != nil {
			b.Details = appErr.Err.Error()
		}
		c.AbortWithStatusJSON(HTTPStatus(appErr), gin.H{"error": b})
	}
}
