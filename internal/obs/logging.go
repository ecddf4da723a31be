package obs

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/shopping-optimizer/internal/common"
)

// NewLogger builds the process logger. format "console" gives human output,
// anything else JSON lines; an unknown level means info.
func NewLogger(format, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stdout
	if f := strings.ToLower(strings.TrimSpace(format)); f == "console" || f == "text" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).With().Timestamp().Str("service", instrumentationName).Logger()
}

// LoggerFrom prefers the request-scoped logger on ctx over fallback.
func LoggerFrom(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return fallback
	}
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return fallback
}

// RequestLogger emits one "http_request" line per request and hands
// handlers a child logger tagged with request_id and trace_id.
type RequestLogger struct {
	Logger zerolog.Logger
}

func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		lc := l.Logger.With().Str("request_id", middleware.GetReqID(ctx))
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			lc = lc.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
		scoped := lc.Logger()

		rec := newResponseRecorder(w)
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(scoped.WithContext(ctx)))

		evt := scoped.WithLevel(levelForStatus(rec.status)).
			Str("method", r.Method).
			Str("route", routeLabel(r, r.URL.Path)).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Int64("bytes", rec.bytes).
			Str("remote_addr", r.RemoteAddr)
		if user, ok := common.UserID(ctx); ok {
			evt = evt.Str("user_id", user)
		}
		evt.Msg("http_request")
	})
}

func levelForStatus(status int) zerolog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}
