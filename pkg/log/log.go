package log

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// InitLogs returns the process-wide logger. Callers set the level once
// the service config has been parsed.
func InitLogs() *logrus.Logger {
	log := logrus.New()

	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return log
}

// WithReqIDFromCtx returns a logger tagged with the request id assigned by
// chi's middleware.RequestID.
func WithReqIDFromCtx(ctx context.Context, inner logrus.FieldLogger) logrus.FieldLogger {
	return inner.WithField("request_id", middleware.GetReqID(ctx))
}
