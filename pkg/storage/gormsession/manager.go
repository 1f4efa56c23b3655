package gormsession

import (
	"errors"
	"fmt"
	"sync"

	"github.com/edgeflare/dyapi/pkg/entity"
	"github.com/edgeflare/dyapi/pkg/storage"
)

// ErrModelNotRegistered is returned for entity names without a model.
var ErrModelNotRegistered = errors.New("gormsession: no model registered")

type factory func(SessionFunc, entity.Config) storage.Storage

// Manager maps entity names to GORM models and memoizes their storages.
type Manager struct {
	session SessionFunc
	models  map[string]factory
	stores  map[string]managed
	mu      sync.Mutex
}

type managed struct {
	cfg entity.Config
	s   storage.Storage
}

var _ storage.Manager = (*Manager)(nil)

// NewManager returns a Manager whose storages run on session.
func NewManager(session SessionFunc) *Manager {
	return &Manager{
		session: session,
		models:  make(map[string]factory),
		stores:  make(map[string]managed),
	}
}

// Register maps the entity name to model T.
func Register[T any](m *Manager, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[name] = func(session SessionFunc, cfg entity.Config) storage.Storage {
		return New[T](session, cfg)
	}
}

// Storage returns the storage of cfg. The model must have been registered
// under cfg.Name.
func (m *Manager) Storage(cfg entity.Config) (storage.Storage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ms, ok := m.stores[cfg.Name]; ok {
		if !ms.cfg.Equal(cfg) {
			return nil, fmt.Errorf("gormsession: %q: %w", cfg.Name, storage.ErrTableExists)
		}
		return ms.s, nil
	}
	newStorage, ok := m.models[cfg.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrModelNotRegistered, cfg.Name)
	}
	s := newStorage(m.session, cfg)
	m.stores[cfg.Name] = managed{cfg: cfg, s: s}
	return s, nil
}
