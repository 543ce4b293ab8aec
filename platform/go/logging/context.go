package logging

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type ctxKey struct{}

// WithLogger stores the provided logger on the context.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext retrieves the logger from context, if present.
func FromContext(ctx context.Context) (*zap.Logger, bool) {
	logger, ok := ctx.Value(ctxKey{}).(*zap.Logger)
	return logger, ok
}

// FromRequest pulls the request-scoped logger, falling back to the provided default.
func FromRequest(r *http.Request, fallback *zap.Logger) *zap.Logger {
	if logger, ok := FromContext(r.Context()); ok {
		return logger
	}
	if fallback == nil {
		return zap.NewNop()
	}
	return fallback
}

// requestLog lets inner middleware add fields (client_id, user_id) to the completion entry.
type requestLog struct {
	fields []zap.Field
}

type requestLogKey struct{}

// AddRequestFields appends fields to the current request's logger and to its completion entry.
func AddRequestFields(r *http.Request, fields ...zap.Field) *http.Request {
	ctx := r.Context()
	if rl, ok := ctx.Value(requestLogKey{}).(*requestLog); ok {
		rl.fields = append(rl.fields, fields...)
	}
	if logger, ok := FromContext(ctx); ok {
		ctx = WithLogger(ctx, logger.With(fields...))
	}
	return r.WithContext(ctx)
}

// RequestLogger returns an HTTP middleware that enriches the base logger with request scoped fields,
// stores it on the context, and emits a completion log once the handler finishes.
func RequestLogger(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			logger := base
			if requestID := middleware.GetReqID(r.Context()); requestID != "" {
				logger = logger.With(zap.String("request_id", requestID))
			}
			logger = logger.With(
				zap.String("http_method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)

			rl := &requestLog{}
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ctx := context.WithValue(WithLogger(r.Context(), logger), requestLogKey{}, rl)

			next.ServeHTTP(ww, r.WithContext(ctx))

			fields := append([]zap.Field{
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			}, rl.fields...)
			logger.Info("request completed", fields...)
		})
	}
}
