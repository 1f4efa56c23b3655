package gormsession

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgeflare/dyapi/pkg/entity"
	"github.com/edgeflare/dyapi/pkg/schema"
	"github.com/edgeflare/dyapi/pkg/storage"
	"github.com/mitchellh/mapstructure"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Storage persists entities of config cfg as GORM models of type T. Column
// names of T must equal the entity's field names, and T's json tags map
// fields to record keys.
type Storage[T any] struct {
	session SessionFunc
	cfg     entity.Config
	entity  *schema.Schema
	keys    []string
}

// New returns the Storage of cfg backed by model T.
func New[T any](session SessionFunc, cfg entity.Config) *Storage[T] {
	return &Storage[T]{
		session: session,
		cfg:     cfg,
		entity:  schema.NewSet(cfg).Entity,
		keys:    entity.FieldNames(cfg.PathFields()),
	}
}

var (
	_ storage.Storage  = (*Storage[struct{}])(nil)
	_ storage.Upserter = (*Storage[struct{}])(nil)
)

func (s *Storage[T]) Create(ctx context.Context, e schema.Record) (schema.Record, error) {
	model, err := toModel[T](e)
	if err != nil {
		return nil, err
	}
	err = s.session(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(model).Error
	})
	if err != nil {
		return nil, s.wrap("create", err)
	}
	return toRecord(model, s.entity)
}

func (s *Storage[T]) Get(ctx context.Context, filter schema.Record, shape *schema.Schema) (schema.Record, error) {
	var rec schema.Record
	err := s.session(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		rec, err = s.first(tx, filter, shape)
		return err
	})
	if err != nil {
		return nil, s.wrap("get", err)
	}
	return rec, nil
}

func (s *Storage[T]) Update(ctx context.Context, filter, e schema.Record, shape *schema.Schema) (schema.Record, error) {
	var rec schema.Record
	err := s.session(ctx).Transaction(func(tx *gorm.DB) error {
		if len(e) > 0 {
			if err := s.where(tx.Model(new(T)), filter).Updates(map[string]any(e)).Error; err != nil {
				return err
			}
		}
		var err error
		rec, err = s.first(tx, filter, shape)
		if errors.Is(err, storage.ErrNotFound) {
			// a key change keeps the write; the caller still gets not found
			return nil
		}
		return err
	})
	if err != nil {
		return nil, s.wrap("update", err)
	}
	if rec == nil {
		return nil, s.wrap("update", storage.ErrNotFound)
	}
	return rec, nil
}

func (s *Storage[T]) Delete(ctx context.Context, filter schema.Record) (bool, error) {
	var deleted bool
	err := s.session(ctx).Transaction(func(tx *gorm.DB) error {
		res := s.where(tx, filter).Delete(new(T))
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, s.wrap("delete", err)
	}
	return deleted, nil
}

func (s *Storage[T]) List(ctx context.Context, filter schema.Record, page storage.Pagination, shape *schema.Schema) ([]schema.Record, int, error) {
	var (
		out   []schema.Record
		total int64
	)
	err := s.session(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.where(tx.Model(new(T)), filter).Count(&total).Error; err != nil {
			return err
		}
		var models []*T
		err := s.order(s.where(tx, filter)).Limit(page.Limit).Offset(page.Offset).Find(&models).Error
		if err != nil {
			return err
		}
		out = make([]schema.Record, 0, len(models))
		for _, m := range models {
			rec, err := toRecord(m, shape)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, 0, s.wrap("list", err)
	}
	return out, int(total), nil
}

// UpsertMany inserts entities, updating every non-key column of rows whose
// primary key already exists.
func (s *Storage[T]) UpsertMany(ctx context.Context, entities []schema.Record, shape *schema.Schema) ([]schema.Record, error) {
	if len(entities) == 0 {
		return []schema.Record{}, nil
	}
	models := make([]*T, len(entities))
	for i, e := range entities {
		m, err := toModel[T](e)
		if err != nil {
			return nil, err
		}
		models[i] = m
	}
	err := s.session(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&models).Error
	})
	if err != nil {
		return nil, s.wrap("upsert", err)
	}
	out := make([]schema.Record, len(models))
	for i, m := range models {
		rec, err := toRecord(m, shape)
		if err != nil {
			return nil, err
		}
		out[i] = rec
	}
	return out, nil
}

func (s *Storage[T]) first(tx *gorm.DB, filter schema.Record, shape *schema.Schema) (schema.Record, error) {
	model := new(T)
	if err := s.where(tx, filter).First(model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return toRecord(model, shape)
}

func (s *Storage[T]) where(tx *gorm.DB, filter schema.Record) *gorm.DB {
	if len(filter) == 0 {
		return tx
	}
	return tx.Where(map[string]any(filter))
}

// order sorts by the path fields, which are the model's key.
func (s *Storage[T]) order(tx *gorm.DB) *gorm.DB {
	for _, k := range s.keys {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: k}})
	}
	return tx
}

func (s *Storage[T]) wrap(op string, err error) error {
	if storage.IsUniqueViolation(err) {
		return fmt.Errorf("%s %s: %w: %v", op, s.cfg.Name, storage.ErrAlreadyExists, err)
	}
	return fmt.Errorf("%s %s: %w", op, s.cfg.Name, err)
}

func toModel[T any](rec schema.Record) (*T, error) {
	model := new(T)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  model,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(map[string]any(rec)); err != nil {
		return nil, fmt.Errorf("decode %T: %w", model, err)
	}
	return model, nil
}

// toRecord flattens model into a record projected onto shape.
func toRecord(model any, shape *schema.Schema) (schema.Record, error) {
	var m map[string]any
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &m,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(model); err != nil {
		return nil, fmt.Errorf("encode %T: %w", model, err)
	}
	return shape.Normalize(shape.Project(m))
}
