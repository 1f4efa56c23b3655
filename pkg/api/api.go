// Package api assembles the route groups of every configured entity into one
// tree that can be mounted on a router and described as an OpenAPI document.
package api

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/edgeflare/dyapi/pkg/crud"
	"github.com/edgeflare/dyapi/pkg/endpoint"
	"github.com/edgeflare/dyapi/pkg/entity"
	"github.com/edgeflare/dyapi/pkg/httputil"
	"github.com/edgeflare/dyapi/pkg/storage"
)

// Tree is the assembled API. It is immutable once built.
type Tree struct {
	groups []*crud.Group
}

// New validates configs and builds one group per entity in declared order.
// Any invalid config, unsupported field type or table collision aborts the
// whole assembly.
func New(configs []entity.Config, manager storage.Manager, opts ...endpoint.Option) (*Tree, error) {
	if err := entity.ValidateAll(configs); err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}
	t := &Tree{groups: make([]*crud.Group, 0, len(configs))}
	for _, cfg := range configs {
		g, err := crud.New(cfg, manager, opts...)
		if err != nil {
			return nil, fmt.Errorf("api: %w", err)
		}
		t.groups = append(t.groups, g)
	}
	return t, nil
}

// Groups returns the entity groups in declared order.
func (t *Tree) Groups() []*crud.Group {
	return slices.Clone(t.groups)
}

// Mount registers every route as "METHOD /<entity><pattern>" on r.
func (t *Tree) Mount(r *httputil.Router) {
	for _, g := range t.groups {
		for _, route := range g.Routes {
			r.Handle(route.MethodPattern("/"+g.Name), route.Handler)
		}
	}
}

// Handler returns a router with the tree mounted and no middleware.
func (t *Tree) Handler() http.Handler {
	r := httputil.NewRouter()
	t.Mount(r)
	return r
}
