package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/micnode/internal/logging"
)

// quietRoutes are polled by dashboards and only logged at debug on success.
var quietRoutes = map[string]bool{
	"GET /api/status":  true,
	"GET /api/health":  true,
	"GET /api/devices": true,
}

// HTTPLoggingMiddleware logs each request once it completed.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	next(ctx)

	u := ctx.URL()
	status := ctx.Status()
	attrs := []slog.Attr{
		slog.String("method", ctx.Method()),
		slog.String("path", u.Path),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if u.RawQuery != "" {
		attrs = append(attrs, slog.String("query", u.RawQuery))
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}

	logging.GetLogger("api").LogAttrs(ctx.Context(), requestLevel(ctx.Method(), u.Path, status), "HTTP request completed", attrs...)
}

func requestLevel(method, path string, status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	case method == http.MethodOptions || quietRoutes[method+" "+path]:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
