package pgtable

import (
	"fmt"
	"sync"

	"github.com/edgeflare/dyapi/pkg/entity"
	pg "github.com/edgeflare/dyapi/pkg/pgx"
	"github.com/edgeflare/dyapi/pkg/storage"
	"go.uber.org/zap"
)

// Manager builds and memoizes one table Storage per entity name.
type Manager struct {
	conn   pg.Conn
	md     *Metadata
	schema string
	logger *zap.Logger
	stores map[string]*managed
	mu     sync.Mutex
}

type managed struct {
	cfg entity.Config
	s   *Storage
}

var _ storage.Manager = (*Manager)(nil)

// Option configures a Manager.
type Option func(*Manager)

// WithSchema places tables in the given PostgreSQL schema.
func WithSchema(name string) Option {
	return func(m *Manager) { m.schema = name }
}

// WithLogger sets the logger used for table registration.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// NewManager returns a Manager that registers table definitions in md. A nil
// md gets a fresh registry.
func NewManager(conn pg.Conn, md *Metadata, opts ...Option) *Manager {
	if md == nil {
		md = NewMetadata()
	}
	m := &Manager{
		conn:   conn,
		md:     md,
		schema: DefaultSchema,
		logger: zap.NewNop(),
		stores: make(map[string]*managed),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Metadata returns the registry the manager's tables are recorded in.
func (m *Manager) Metadata() *Metadata { return m.md }

// Storage returns the table storage for cfg, building and registering the
// table on first use. The same name with a different Config fails with
// storage.ErrTableExists.
func (m *Manager) Storage(cfg entity.Config) (storage.Storage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ms, ok := m.stores[cfg.Name]; ok {
		if !ms.cfg.Equal(cfg) {
			return nil, fmt.Errorf("pgtable: %q: %w", cfg.Name, storage.ErrTableExists)
		}
		return ms.s, nil
	}

	t, err := BuildTable(cfg, m.schema)
	if err != nil {
		return nil, fmt.Errorf("pgtable: %w", err)
	}
	if t, err = m.md.Register(t); err != nil {
		return nil, fmt.Errorf("pgtable: %w", err)
	}
	s := New(m.conn, t)
	m.stores[cfg.Name] = &managed{cfg: cfg, s: s}
	m.logger.Debug("registered table", zap.String("table", t.Identifier()), zap.Strings("unique", t.Unique))
	return s, nil
}
