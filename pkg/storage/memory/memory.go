// Package memory implements an in-process storage backend.
//
// Rows are kept per entity, keyed by the values of the path fields. It is
// meant for development servers and tests; nothing survives a restart.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/edgeflare/dyapi/pkg/entity"
	"github.com/edgeflare/dyapi/pkg/schema"
	"github.com/edgeflare/dyapi/pkg/storage"
	"github.com/spf13/cast"
)

// Store holds the rows of one entity.
type Store struct {
	cfg  entity.Config
	keys []string
	rows []schema.Record
	mu   sync.RWMutex
}

var (
	_ storage.Storage  = (*Store)(nil)
	_ storage.Upserter = (*Store)(nil)
)

// New returns an empty store for cfg.
func New(cfg entity.Config) *Store {
	return &Store{cfg: cfg, keys: entity.FieldNames(cfg.PathFields())}
}

func (s *Store) Create(_ context.Context, e schema.Record) (schema.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exists(e) {
		return nil, storage.ErrAlreadyExists
	}
	s.insert(clone(e))
	return e, nil
}

func (s *Store) Get(_ context.Context, filter schema.Record, shape *schema.Schema) (schema.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, row := range s.rows {
		if matches(row, filter) {
			return shape.Project(row), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *Store) Update(ctx context.Context, filter, e schema.Record, shape *schema.Schema) (schema.Record, error) {
	s.mu.Lock()
	prev := s.rows
	next := make([]schema.Record, 0, len(prev))
	var updated []schema.Record
	for _, row := range prev {
		if !matches(row, filter) {
			next = append(next, row)
			continue
		}
		r := clone(row)
		for k, v := range e {
			r[k] = v
		}
		updated = append(updated, r)
	}
	// re-insert so rows stay ordered and unique after a key change
	s.rows = next
	for _, row := range updated {
		if s.exists(row) {
			s.rows = prev
			s.mu.Unlock()
			return nil, storage.ErrAlreadyExists
		}
		s.insert(row)
	}
	s.mu.Unlock()

	return s.Get(ctx, filter, shape)
}

func (s *Store) Delete(_ context.Context, filter schema.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.rows)
	s.rows = slices.DeleteFunc(s.rows, func(row schema.Record) bool {
		return matches(row, filter)
	})
	return len(s.rows) < n, nil
}

func (s *Store) List(_ context.Context, filter schema.Record, page storage.Pagination, shape *schema.Schema) ([]schema.Record, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []schema.Record
	for _, row := range s.rows {
		if matches(row, filter) {
			matched = append(matched, row)
		}
	}
	start, end := page.Window(len(matched))
	out := make([]schema.Record, 0, end-start)
	for _, row := range matched[start:end] {
		out = append(out, shape.Project(row))
	}
	return out, len(matched), nil
}

// UpsertMany inserts new entities and overwrites existing ones with the same
// path key.
func (s *Store) UpsertMany(_ context.Context, entities []schema.Record, shape *schema.Schema) ([]schema.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]schema.Record, 0, len(entities))
	for _, e := range entities {
		if i := s.indexOf(s.key(e)); len(s.keys) > 0 && i >= 0 {
			s.rows[i] = clone(e)
		} else {
			s.insert(clone(e))
		}
		out = append(out, shape.Project(e))
	}
	return out, nil
}

func (s *Store) key(row schema.Record) []any {
	k := make([]any, len(s.keys))
	for i, name := range s.keys {
		k[i] = row[name]
	}
	return k
}

// exists reports whether a row with the same key as row is stored. Without
// path fields there is no key and rows are never considered duplicates.
func (s *Store) exists(row schema.Record) bool {
	return len(s.keys) > 0 && s.indexOf(s.key(row)) >= 0
}

// indexOf returns the position of the row with key k or -1.
func (s *Store) indexOf(k []any) int {
	i, found := slices.BinarySearchFunc(s.rows, k, func(row schema.Record, k []any) int {
		return compareKeys(s.key(row), k)
	})
	if !found {
		return -1
	}
	return i
}

// insert keeps rows sorted by key ascending.
func (s *Store) insert(row schema.Record) {
	k := s.key(row)
	i, _ := slices.BinarySearchFunc(s.rows, k, func(r schema.Record, k []any) int {
		return compareKeys(s.key(r), k)
	})
	s.rows = slices.Insert(s.rows, i, row)
}

func matches(row, filter schema.Record) bool {
	for k, v := range filter {
		if !equal(row[k], v) {
			return false
		}
	}
	return true
}

func equal(a, b any) bool {
	return compare(a, b) == 0
}

func compareKeys(a, b []any) int {
	for i := range a {
		if c := compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return 0
}

// compare orders nil first. Values of the same type compare natively, mixed
// numeric types numerically and everything else by its string form.
func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case int64:
		if y, ok := b.(int64); ok {
			return cmp.Compare(x, y)
		}
	case float64:
		if y, ok := b.(float64); ok {
			return cmp.Compare(x, y)
		}
	case string:
		if y, ok := b.(string); ok {
			return cmp.Compare(x, y)
		}
	}
	_, aStr := a.(string)
	_, bStr := b.(string)
	if !aStr && !bStr {
		fa, errA := cast.ToFloat64E(a)
		fb, errB := cast.ToFloat64E(b)
		if errA == nil && errB == nil {
			return cmp.Compare(fa, fb)
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func clone(r schema.Record) schema.Record {
	out := make(schema.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Manager hands out one Store per entity name.
type Manager struct {
	stores map[string]*Store
	mu     sync.Mutex
}

var _ storage.Manager = (*Manager)(nil)

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{stores: make(map[string]*Store)}
}

// Storage returns the store for cfg, creating it on first use. A different
// Config registered under an existing name is rejected.
func (m *Manager) Storage(cfg entity.Config) (storage.Storage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.stores[cfg.Name]; ok {
		if !s.cfg.Equal(cfg) {
			return nil, fmt.Errorf("memory: %q: %w", cfg.Name, storage.ErrTableExists)
		}
		return s, nil
	}
	s := New(cfg)
	m.stores[cfg.Name] = s
	return s, nil
}
