// Package gormsession stores entities through an existing GORM model.
//
// The model type is declared by the application and mapped to an entity name
// with Register. Each operation obtains a request-scoped *gorm.DB from a
// SessionFunc and runs inside its own transaction.
package gormsession

import (
	"context"

	"gorm.io/gorm"
)

// SessionFunc returns the session an operation runs on.
type SessionFunc func(ctx context.Context) *gorm.DB

type sessionKey struct{}

// WithSession returns a copy of ctx carrying db.
func WithSession(ctx context.Context, db *gorm.DB) context.Context {
	return context.WithValue(ctx, sessionKey{}, db)
}

// Session returns the session stored in ctx by WithSession.
func Session(ctx context.Context) (*gorm.DB, bool) {
	db, ok := ctx.Value(sessionKey{}).(*gorm.DB)
	return db, ok && db != nil
}

// FromContext returns a SessionFunc that prefers the session carried by the
// context and falls back to root. The result is always bound to ctx.
func FromContext(root *gorm.DB) SessionFunc {
	return func(ctx context.Context) *gorm.DB {
		if db, ok := Session(ctx); ok {
			return db.WithContext(ctx)
		}
		return root.WithContext(ctx)
	}
}
