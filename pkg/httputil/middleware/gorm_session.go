package middleware

import (
	"net/http"

	"github.com/edgeflare/dyapi/pkg/httputil"
	"github.com/edgeflare/dyapi/pkg/storage/gormsession"
	"gorm.io/gorm"
)

// GormSession attaches a session derived from db and bound to the request
// context, so storages built with gormsession.FromContext run on it.
func GormSession(db *gorm.DB) httputil.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := db.Session(&gorm.Session{NewDB: true, Context: r.Context()})
			next.ServeHTTP(w, r.WithContext(gormsession.WithSession(r.Context(), session)))
		})
	}
}
