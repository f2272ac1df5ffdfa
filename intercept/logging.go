package intercept

import (
	"time"

	"go.uber.org/zap"
)

// Logging returns a handler that logs every invocation before and after
// the rest of the pipeline runs. Failures are logged at warn level.
func Logging(logger *zap.Logger) Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return HandlerFunc(func(inv *Invocation, next Next) *Return {
		fields := []zap.Field{
			zap.String("invocation", inv.ID.String()),
			zap.Stringer("interface", inv.Interface),
			zap.String("method", inv.Method),
		}
		logger.Debug("invocation started", append(fields, zap.Int("args", len(inv.Args)))...)

		start := time.Now()
		ret := next(inv)
		fields = append(fields, zap.Duration("duration", time.Since(start)))
		if ret.Failed() {
			logger.Warn("invocation failed", append(fields, zap.Error(ret.Err))...)
		} else {
			logger.Debug("invocation completed", fields...)
		}
		return ret
	})
}
