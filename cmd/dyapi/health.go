package dyapi

import (
	"context"
	"net/http"
	"time"

	"github.com/edgeflare/dyapi/pkg/httputil"
	pg "github.com/edgeflare/dyapi/pkg/pgx"
	"go.uber.org/zap"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler answers 200 with the request ID, or 503 when the database
// does not answer a ping.
func healthHandler(conn pg.Conn) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, _ := httputil.RequestID(r)
		if p, ok := conn.(pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				httputil.Logger(r, logger).Warn("health check failed", zap.Error(err))
				httputil.Error(w, http.StatusServiceUnavailable, "database unavailable")
				return
			}
		}
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok", "request_id": reqID})
	})
}
