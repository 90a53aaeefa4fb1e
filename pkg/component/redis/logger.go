package redis

import (
	"context"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"
)

// loggingAdapter routes go-redis internal messages (reconnects, pool
// errors) to the unified logger.
type loggingAdapter struct{}

func (l *loggingAdapter) Printf(ctx context.Context, format string, v ...interface{}) {
	logger.Global().WithCtx(ctx, "component", "redis").Warnf(format, v...)
}

func init() {
	goredis.SetLogger(&loggingAdapter{})
}
