package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

func InitSentry(dsn, environment, release string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
	})
}

// CaptureError reports err to Sentry with the given tags and logs it.
func CaptureError(logger *Logger, event string, err error, fields map[string]any) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("event", event)
		for key, value := range fields {
			scope.SetExtra(key, value)
		}
		sentry.CaptureException(err)
	})

	logFields := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		logFields[key] = value
	}
	logFields["error"] = err.Error()
	logger.Error(event, logFields)
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
