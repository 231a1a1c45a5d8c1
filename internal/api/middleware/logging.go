// logging.go — access-лог open-dist через slog.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// accessEntry — поля записи access-лога, которые заполняются
// внутренними middleware (например, аутентификацией загрузки).
type accessEntry struct {
	userID string
}

type accessEntryKey struct{}

// annotateUser сообщает access-логу пользователя, выполнившего запрос.
func annotateUser(ctx context.Context, userID string) {
	if e, ok := ctx.Value(accessEntryKey{}).(*accessEntry); ok {
		e.userID = userID
	}
}

// RequestLogger пишет одну запись на запрос. Уровень по статусу:
// INFO до 4xx, WARN для 4xx, ERROR для 5xx.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			entry := &accessEntry{}

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), accessEntryKey{}, entry)))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("route", routePattern(r)),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", ww.BytesWritten()),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("request_id", chimw.GetReqID(r.Context())),
			}
			if r.ContentLength > 0 {
				attrs = append(attrs, slog.Int64("request_bytes", r.ContentLength))
			}
			if entry.userID != "" {
				attrs = append(attrs, slog.String("user_id", entry.userID))
			}
			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}
