package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/mihaimyh/gobilling/pkg/billing"
)

const requestIDHeader = "X-Request-ID"

// fieldLogger prefixes every entry with request-scoped fields.
type fieldLogger struct {
	base   billing.Logger
	fields []billing.Field
}

func (l *fieldLogger) with(fields ...billing.Field) *fieldLogger {
	merged := make([]billing.Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &fieldLogger{base: l.base, fields: merged}
}

func (l *fieldLogger) all(fields []billing.Field) []billing.Field {
	if len(l.fields) == 0 {
		return fields
	}
	return append(append([]billing.Field{}, l.fields...), fields...)
}

func (l *fieldLogger) Debug(msg string, fields ...billing.Field) { l.base.Debug(msg, l.all(fields)...) }
func (l *fieldLogger) Info(msg string, fields ...billing.Field)  { l.base.Info(msg, l.all(fields)...) }
func (l *fieldLogger) Warn(msg string, fields ...billing.Field)  { l.base.Warn(msg, l.all(fields)...) }
func (l *fieldLogger) Error(msg string, fields ...billing.Field) { l.base.Error(msg, l.all(fields)...) }

type loggerKey struct{}

func withLogger(ctx context.Context, l *fieldLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func loggerFrom(ctx context.Context, fallback billing.Logger) *fieldLogger {
	if l, ok := ctx.Value(loggerKey{}).(*fieldLogger); ok {
		return l
	}
	return &fieldLogger{base: fallback}
}

// requestLogger assigns a request id, echoes it in X-Request-ID and logs one entry per request.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		logger := &fieldLogger{
			base:   h.config.Logger,
			fields: []billing.Field{{Key: "request_id", Value: requestID}},
		}
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r.WithContext(withLogger(r.Context(), logger)))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logger.Debug("billing request",
			billing.Field{Key: "method", Value: r.Method},
			billing.Field{Key: "path", Value: r.URL.Path},
			billing.Field{Key: "status", Value: status},
			billing.Field{Key: "duration", Value: time.Since(start)},
		)
	})
}
