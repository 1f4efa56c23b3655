package middleware

import (
	"context"
	"net/http"

	"github.com/edgeflare/dyapi/pkg/httputil"
	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-Id"

// RequestID stores a request ID in the context and echoes it in the
// response. An ID already in the context or a valid UUID in the request
// header is reused; otherwise a new one is generated.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, ok := httputil.RequestID(r)
		if !ok {
			if h := r.Header.Get(RequestIDHeader); uuid.Validate(h) == nil {
				reqID = h
			} else {
				reqID = uuid.New().String()
			}
		}

		ctx := context.WithValue(r.Context(), httputil.RequestIDCtxKey, reqID)
		w.Header().Set(RequestIDHeader, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
