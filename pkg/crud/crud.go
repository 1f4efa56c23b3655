// Package crud binds one entity's schemas, storage and handlers into a route
// group.
package crud

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/edgeflare/dyapi/pkg/endpoint"
	"github.com/edgeflare/dyapi/pkg/entity"
	"github.com/edgeflare/dyapi/pkg/schema"
	"github.com/edgeflare/dyapi/pkg/storage"
	"github.com/go-openapi/inflect"
)

var rules = inflect.NewDefaultRuleset()

// ErrInvalidPathField rejects path field names that cannot be route
// wildcards.
var ErrInvalidPathField = errors.New("path field name must be an identifier")

// ErrReservedPathField rejects path field names that collide with the list
// pagination parameters.
var ErrReservedPathField = errors.New("path field name is reserved for pagination")

// Input is where a route reads one of its inputs from.
type Input struct {
	Location string // schema.LocPath, schema.LocQuery or schema.LocBody
	Schema   *schema.Schema
	List     bool // body is an array of Schema
}

// Route is one method and pattern of a group, relative to the group prefix.
type Route struct {
	Operation string
	Method    string
	Pattern   string
	Handler   http.Handler
	Inputs    []Input
	// Response is the returned entity shape; nil for boolean responses.
	Response     *schema.Schema
	ResponseKind ResponseKind
	Status       int
	Summary      string
}

// ResponseKind describes how Response is wrapped.
type ResponseKind int

const (
	ResponseEntity ResponseKind = iota
	ResponsePage
	ResponseList
	ResponseBool
)

// Group is the route group of one entity. Name is the route prefix.
type Group struct {
	Name   string
	Tags   []string
	Set    *schema.Set
	Routes []Route
}

// PathTemplate joins "{field}" placeholders of the path fields with "/".
func PathTemplate(fields []entity.Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = "{" + f.Name + "}"
	}
	return strings.Join(parts, "/")
}

// New builds the group for cfg, obtaining its storage from manager.
func New(cfg entity.Config, manager storage.Manager, opts ...endpoint.Option) (*Group, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	for _, f := range cfg.PathFields() {
		if !isIdentifier(f.Name) {
			return nil, fmt.Errorf("crud %s: path field %q: %w", cfg.Name, f.Name, ErrInvalidPathField)
		}
		if f.Name == "offset" || f.Name == "limit" {
			return nil, fmt.Errorf("crud %s: path field %q: %w", cfg.Name, f.Name, ErrReservedPathField)
		}
	}
	store, err := manager.Storage(cfg)
	if err != nil {
		return nil, fmt.Errorf("crud %s: %w", cfg.Name, err)
	}

	set := schema.NewSet(cfg)
	ep := endpoint.New(set, store, append([]endpoint.Option{endpoint.WithName(cfg.Name)}, opts...)...)
	title := rules.Humanize(cfg.Name)

	g := &Group{Name: cfg.Name, Tags: cfg.APITags, Set: set}
	g.Routes = append(g.Routes,
		Route{
			Operation:    endpoint.OpCreate,
			Method:       http.MethodPost,
			Pattern:      "/{$}",
			Handler:      ep.Create(),
			Inputs:       []Input{{Location: schema.LocBody, Schema: set.Entity}},
			Response:     set.Entity,
			ResponseKind: ResponseEntity,
			Status:       http.StatusCreated,
			Summary:      "Create " + title,
		},
		Route{
			Operation:    endpoint.OpList,
			Method:       http.MethodGet,
			Pattern:      "/{$}",
			Handler:      ep.List(),
			Inputs:       []Input{{Location: schema.LocQuery, Schema: set.Query}},
			Response:     set.Entity,
			ResponseKind: ResponsePage,
			Status:       http.StatusOK,
			Summary:      "List " + rules.Pluralize(title),
		},
	)

	if path := PathTemplate(cfg.PathFields()); path != "" {
		pattern := "/" + path
		pathInput := Input{Location: schema.LocPath, Schema: set.Path}
		g.Routes = append(g.Routes,
			Route{
				Operation:    endpoint.OpGet,
				Method:       http.MethodGet,
				Pattern:      pattern,
				Handler:      ep.Get(),
				Inputs:       []Input{pathInput},
				Response:     set.Entity,
				ResponseKind: ResponseEntity,
				Status:       http.StatusOK,
				Summary:      "Get " + title,
			},
			Route{
				Operation:    endpoint.OpUpdate,
				Method:       http.MethodPut,
				Pattern:      pattern,
				Handler:      ep.Update(),
				Inputs:       []Input{pathInput, {Location: schema.LocBody, Schema: set.Body}},
				Response:     set.Entity,
				ResponseKind: ResponseEntity,
				Status:       http.StatusOK,
				Summary:      "Update " + title,
			},
			Route{
				Operation:    endpoint.OpDelete,
				Method:       http.MethodDelete,
				Pattern:      pattern,
				Handler:      ep.Delete(),
				Inputs:       []Input{pathInput},
				ResponseKind: ResponseBool,
				Status:       http.StatusOK,
				Summary:      "Delete " + title,
			},
		)
	}

	if h, ok := ep.UpsertMany(); ok {
		g.Routes = append(g.Routes, Route{
			Operation:    endpoint.OpUpsertMany,
			Method:       http.MethodPost,
			Pattern:      "/upsert_many",
			Handler:      h,
			Inputs:       []Input{{Location: schema.LocBody, Schema: set.Entity, List: true}},
			Response:     set.Entity,
			ResponseKind: ResponseList,
			Status:       http.StatusOK,
			Summary:      "Upsert " + rules.Pluralize(title),
		})
	}
	return g, nil
}

// MethodPattern returns the mux pattern of r under prefix.
func (r Route) MethodPattern(prefix string) string {
	return r.Method + " " + prefix + r.Pattern
}

// OperationID returns a stable identifier such as "createProduct".
func (r Route) OperationID(entityName string) string {
	return rules.CamelizeDownFirst(r.Operation + "_" + entityName)
}

func isIdentifier(s string) bool {
	for i, c := range s {
		if !unicode.IsLetter(c) && c != '_' && (i == 0 || !unicode.IsDigit(c)) {
			return false
		}
	}
	return s != ""
}
