package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/videoqa/pkg/utils/errors"
	"github.com/kart-io/videoqa/pkg/utils/response"
)

// RecoveryConfig defines the config for Recovery middleware.
type RecoveryConfig struct {
	// EnableStackTrace includes stack trace in error response (for development).
	EnableStackTrace bool

	// OnPanic is called when a panic occurs.
	// Can be used for logging or alerting.
	OnPanic func(c *gin.Context, err interface{}, stack []byte)
}

// DefaultRecoveryConfig is the default Recovery middleware config.
var DefaultRecoveryConfig = RecoveryConfig{
	EnableStackTrace: false,
	OnPanic:          logPanic,
}

// Recovery returns a middleware that recovers from panics.
// It converts panics to JSON error responses using the error code system.
func Recovery() gin.HandlerFunc {
	return RecoveryWithConfig(DefaultRecoveryConfig)
}

// RecoveryWithConfig returns a Recovery middleware with custom config.
func RecoveryWithConfig(config RecoveryConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()

				if config.OnPanic != nil {
					config.OnPanic(c, r, stack)
				}

				err := errors.ErrPanic
				if config.EnableStackTrace {
					err = err.WithMessage(fmt.Sprintf("panic: %v\n%s", r, string(stack)))
				}

				resp := response.Err(err).WithRequestID(GetRequestID(c))
				if c.Writer.Written() {
					// 流式响应已经开始，只能中断
					c.Abort()
					return
				}
				c.AbortWithStatusJSON(resp.HTTPStatus(), resp)
			}
		}()
		c.Next()
	}
}

func logPanic(c *gin.Context, err interface{}, stack []byte) {
	logger.Errorw("panic recovered",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", GetRequestID(c),
		"panic", fmt.Sprint(err),
		"stack", string(stack),
	)
}
