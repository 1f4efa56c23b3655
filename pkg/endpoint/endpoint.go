// Package endpoint turns a storage handle into HTTP handlers.
//
// Each handler validates its inputs against the synthesized schemas, calls
// one storage operation and translates domain errors into status codes. The
// translation happens here and nowhere else.
package endpoint

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/edgeflare/dyapi/pkg/httputil"
	"github.com/edgeflare/dyapi/pkg/metrics"
	"github.com/edgeflare/dyapi/pkg/schema"
	"github.com/edgeflare/dyapi/pkg/storage"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Operation names used in logs and metric labels.
const (
	OpCreate     = "create"
	OpList       = "list"
	OpGet        = "get"
	OpUpdate     = "update"
	OpDelete     = "delete"
	OpUpsertMany = "upsert_many"
)

// Error messages of the translated domain errors.
const (
	MsgValidation    = "Validation error"
	MsgAlreadyExists = "Entity already exists"
	MsgNotFound      = "Entity not found"
	MsgInternal      = "Internal server error"
	MsgTooLarge      = "Request body too large"
)

// Endpoints holds the handlers of one entity. It keeps no per-request state
// and is safe for concurrent use.
type Endpoints struct {
	name         string
	set          *schema.Set
	store        storage.Storage
	logger       *zap.Logger
	metrics      *metrics.CRUD
	maxBodyBytes int64
}

// Option configures Endpoints.
type Option func(*Endpoints)

// WithLogger sets the logger used when no request-scoped logger exists.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Endpoints) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records every request in m.
func WithMetrics(m *metrics.CRUD) Option {
	return func(e *Endpoints) { e.metrics = m }
}

// WithName sets the entity name used in logs and metric labels.
func WithName(name string) Option {
	return func(e *Endpoints) { e.name = name }
}

// WithMaxBodyBytes overrides DefaultMaxBodyBytes.
func WithMaxBodyBytes(n int64) Option {
	return func(e *Endpoints) { e.maxBodyBytes = n }
}

// New returns the handlers for set backed by store.
func New(set *schema.Set, store storage.Storage, opts ...Option) *Endpoints {
	e := &Endpoints{
		name:         set.Entity.Name(),
		set:          set,
		store:        store,
		logger:       zap.NewNop(),
		maxBodyBytes: DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create stores the entity in the body and answers 201 with it.
func (e *Endpoints) Create() http.Handler {
	return e.handle(OpCreate, http.StatusCreated, func(r *http.Request) (any, error) {
		rec, err := e.set.Entity.DecodeJSON(r.Body)
		if err != nil {
			return nil, err
		}
		return e.store.Create(r.Context(), rec)
	})
}

// List answers a page of entities matching the query filter.
func (e *Endpoints) List() http.Handler {
	return e.handle(OpList, http.StatusOK, func(r *http.Request) (any, error) {
		q := r.URL.Query()
		filter, filterErr := e.set.Query.DecodeValues(schema.LocQuery, queryLookup(q))
		page, pageErr := storage.ParsePagination(q)
		if err := joinValidation(e.set.Query.Name(), filterErr, pageErr); err != nil {
			return nil, err
		}
		data, total, err := e.store.List(r.Context(), filter, page, e.set.Entity)
		if err != nil {
			return nil, err
		}
		if data == nil {
			data = []schema.Record{}
		}
		return storage.Page{Pagination: page, Data: data, Total: total}, nil
	})
}

// Get answers the entity addressed by the path.
func (e *Endpoints) Get() http.Handler {
	return e.handle(OpGet, http.StatusOK, func(r *http.Request) (any, error) {
		key, err := e.path(r)
		if err != nil {
			return nil, err
		}
		return e.store.Get(r.Context(), key, e.set.Entity)
	})
}

// Update replaces the body fields of the entity addressed by the path.
func (e *Endpoints) Update() http.Handler {
	return e.handle(OpUpdate, http.StatusOK, func(r *http.Request) (any, error) {
		key, pathErr := e.path(r)
		body, bodyErr := e.set.Body.DecodeJSON(r.Body)
		if err := joinValidation(e.set.Body.Name(), pathErr, bodyErr); err != nil {
			return nil, err
		}
		return e.store.Update(r.Context(), key, body, e.set.Entity)
	})
}

// Delete removes the entity addressed by the path and answers true. A
// missing entity is 404.
func (e *Endpoints) Delete() http.Handler {
	return e.handle(OpDelete, http.StatusOK, func(r *http.Request) (any, error) {
		key, err := e.path(r)
		if err != nil {
			return nil, err
		}
		deleted, err := e.store.Delete(r.Context(), key)
		if err != nil {
			return nil, err
		}
		if !deleted {
			return nil, storage.ErrNotFound
		}
		return true, nil
	})
}

// UpsertMany inserts or overwrites the listed entities. ok is false when the
// storage cannot upsert.
func (e *Endpoints) UpsertMany() (h http.Handler, ok bool) {
	up, ok := e.store.(storage.Upserter)
	if !ok {
		return nil, false
	}
	return e.handle(OpUpsertMany, http.StatusOK, func(r *http.Request) (any, error) {
		recs, err := e.set.Entity.DecodeJSONList(r.Body)
		if err != nil {
			return nil, err
		}
		return up.UpsertMany(r.Context(), recs, e.set.Entity)
	}), true
}

func (e *Endpoints) handle(op string, success int, fn func(*http.Request) (any, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		code := success
		defer func() { e.metrics.Observe(e.name, op, code, time.Since(start)) }()
		if r.Body != nil && e.maxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, e.maxBodyBytes)
		}

		result, err := fn(r)
		if err != nil {
			code = e.writeError(w, r, op, err)
			return
		}
		httputil.JSON(w, success, result)
	})
}

// writeError translates err and returns the status code written.
func (e *Endpoints) writeError(w http.ResponseWriter, r *http.Request, op string, err error) int {
	var verr *schema.ValidationError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		httputil.Error(w, http.StatusRequestEntityTooLarge, MsgTooLarge)
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &verr):
		httputil.ErrorWithDetails(w, http.StatusUnprocessableEntity, MsgValidation, verr.Errors)
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrAlreadyExists):
		httputil.Error(w, http.StatusBadRequest, MsgAlreadyExists)
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		httputil.Error(w, http.StatusNotFound, MsgNotFound)
		return http.StatusNotFound
	default:
		httputil.Logger(r, e.logger).Error("storage operation failed",
			zap.String("entity", e.name),
			zap.String("operation", op),
			zap.Error(err),
		)
		e.metrics.StorageError(e.name, op)
		httputil.Error(w, http.StatusInternalServerError, MsgInternal)
		return http.StatusInternalServerError
	}
}

func (e *Endpoints) path(r *http.Request) (schema.Record, error) {
	return e.set.Path.DecodeValues(schema.LocPath, func(name string) (string, bool) {
		v := r.PathValue(name)
		return v, v != ""
	})
}

func queryLookup(q url.Values) func(string) (string, bool) {
	return func(name string) (string, bool) {
		if !q.Has(name) {
			return "", false
		}
		return q.Get(name), true
	}
}

// joinValidation merges validation failures from several inputs into one
// error. Non-validation errors are returned as they are.
func joinValidation(name string, errs ...error) error {
	merged := &schema.ValidationError{Schema: name}
	for _, err := range errs {
		if err == nil {
			continue
		}
		var verr *schema.ValidationError
		if !errors.As(err, &verr) {
			return err
		}
		merged.Errors = append(merged.Errors, verr.Errors...)
	}
	if len(merged.Errors) == 0 {
		return nil
	}
	return merged
}
