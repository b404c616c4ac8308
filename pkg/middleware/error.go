package middleware

import (
	"smallbiznis-affiliate/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Error renders the last error a handler attached with c.Error. BaseErrors
// keep their status and reason; anything else becomes a 500 without leaking
// the cause.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		if v, ok := errutil.As(err); ok {
			if v.Code.HTTPStatus() >= 500 {
				zap.L().Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
			}
			c.AbortWithStatusJSON(v.Code.HTTPStatus(), v.JSON())
			return
		}

		zap.L().Error("unhandled error", zap.String("path", c.FullPath()), zap.Error(err))
		internal := errutil.BaseError{Code: errutil.StatusInternal, Message: "internal error"}
		c.AbortWithStatusJSON(internal.Code.HTTPStatus(), internal.JSON())
	}
}
