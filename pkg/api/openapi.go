package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/edgeflare/dyapi/pkg/crud"
	"github.com/edgeflare/dyapi/pkg/endpoint"
	"github.com/edgeflare/dyapi/pkg/httputil"
	"github.com/edgeflare/dyapi/pkg/schema"
	"github.com/edgeflare/dyapi/pkg/storage"
	"gopkg.in/yaml.v3"
)

const (
	errorSchema      = "ErrorResponse"
	validationSchema = "ValidationErrorResponse"
	fieldErrorSchema = "FieldError"
)

// Info is the metadata of the OpenAPI document.
type Info struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Version     string `json:"version" yaml:"version"`
	// BaseURL becomes the single server entry when set.
	BaseURL string `json:"-" yaml:"-"`
}

// OpenAPI returns the OpenAPI 3.1 document describing every mounted route.
func (t *Tree) OpenAPI(info Info) map[string]any {
	paths := make(map[string]any)
	schemas := map[string]any{
		errorSchema:      errorResponseSchema(),
		validationSchema: validationResponseSchema(),
		fieldErrorSchema: fieldErrorObject(),
	}
	var tags []map[string]any
	seenTags := make(map[string]bool)

	for _, g := range t.groups {
		for _, tag := range g.Tags {
			if !seenTags[tag] {
				seenTags[tag] = true
				tags = append(tags, map[string]any{"name": tag})
			}
		}
		for _, s := range []*schema.Schema{g.Set.Entity, g.Set.Body} {
			schemas[s.Name()] = s.JSONSchema()
		}
		schemas[pageName(g.Set.Entity)] = pageSchema(g.Set.Entity)

		for _, r := range g.Routes {
			path := openAPIPath(g.Name, r.Pattern)
			item, _ := paths[path].(map[string]any)
			if item == nil {
				item = make(map[string]any)
				paths[path] = item
			}
			item[strings.ToLower(r.Method)] = operation(g, r)
		}
	}

	doc := map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":       info.Title,
			"description": info.Description,
			"version":     info.Version,
		},
		"paths":      paths,
		"components": map[string]any{"schemas": schemas},
	}
	if info.BaseURL != "" {
		doc["servers"] = []map[string]any{{"url": strings.TrimSuffix(info.BaseURL, "/")}}
	}
	if len(tags) > 0 {
		doc["tags"] = tags
	}
	return doc
}

// OpenAPIHandler serves the document as JSON, or as YAML when the request
// path ends in ".yaml".
func (t *Tree) OpenAPIHandler(info Info) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := t.OpenAPI(info)
		if strings.HasSuffix(r.URL.Path, ".yaml") {
			out, err := yaml.Marshal(doc)
			if err != nil {
				httputil.Error(w, http.StatusInternalServerError, err.Error())
				return
			}
			httputil.Blob(w, http.StatusOK, out, "application/yaml")
			return
		}
		httputil.JSON(w, http.StatusOK, doc)
	})
}

// openAPIPath turns a mux pattern into an OpenAPI path template.
func openAPIPath(prefix, pattern string) string {
	return "/" + prefix + strings.TrimSuffix(pattern, "{$}")
}

func operation(g *crud.Group, r crud.Route) map[string]any {
	op := map[string]any{
		"operationId": r.OperationID(g.Name),
		"summary":     r.Summary,
		"responses":   responses(r),
	}
	if len(g.Tags) > 0 {
		op["tags"] = g.Tags
	}

	var params []map[string]any
	for _, in := range r.Inputs {
		switch in.Location {
		case schema.LocPath, schema.LocQuery:
			params = append(params, parameters(in)...)
		case schema.LocBody:
			body := ref(in.Schema.Name())
			if in.List {
				body = map[string]any{"type": "array", "items": body}
			}
			op["requestBody"] = map[string]any{
				"required": true,
				"content":  jsonContent(body),
			}
		}
	}
	if r.Operation == endpoint.OpList {
		params = append(params, paginationParameters()...)
	}
	if len(params) > 0 {
		op["parameters"] = params
	}
	return op
}

func parameters(in crud.Input) []map[string]any {
	members := in.Schema.Members()
	params := make([]map[string]any, len(members))
	for i, m := range members {
		params[i] = map[string]any{
			"name":     m.Name,
			"in":       in.Location,
			"required": !m.Optional,
			"schema":   map[string]any{"type": schema.JSONType(m.Type)},
		}
	}
	return params
}

func paginationParameters() []map[string]any {
	return []map[string]any{
		{
			"name":        "offset",
			"in":          "query",
			"description": "Number of entities to skip",
			"schema":      map[string]any{"type": "integer", "minimum": 0, "default": storage.DefaultOffset},
		},
		{
			"name":        "limit",
			"in":          "query",
			"description": "Maximum number of entities returned",
			"schema":      map[string]any{"type": "integer", "minimum": 1, "default": storage.DefaultLimit},
		},
	}
}

func responses(r crud.Route) map[string]any {
	var body map[string]any
	switch r.ResponseKind {
	case crud.ResponseEntity:
		body = ref(r.Response.Name())
	case crud.ResponsePage:
		body = ref(pageName(r.Response))
	case crud.ResponseList:
		body = map[string]any{"type": "array", "items": ref(r.Response.Name())}
	case crud.ResponseBool:
		body = map[string]any{"type": "boolean"}
	}

	out := map[string]any{
		strconv.Itoa(r.Status): map[string]any{
			"description": http.StatusText(r.Status),
			"content":     jsonContent(body),
		},
		"422": errorResponse(endpoint.MsgValidation, validationSchema),
		"500": errorResponse(endpoint.MsgInternal, errorSchema),
	}
	switch r.Operation {
	case endpoint.OpCreate:
		out["400"] = errorResponse(endpoint.MsgAlreadyExists, errorSchema)
	case endpoint.OpGet, endpoint.OpUpdate, endpoint.OpDelete:
		out["404"] = errorResponse(endpoint.MsgNotFound, errorSchema)
	}
	for _, in := range r.Inputs {
		if in.Location == schema.LocBody {
			out["413"] = errorResponse(endpoint.MsgTooLarge, errorSchema)
		}
	}
	return out
}

func errorResponse(description, name string) map[string]any {
	return map[string]any{"description": description, "content": jsonContent(ref(name))}
}

func jsonContent(s map[string]any) map[string]any {
	return map[string]any{"application/json": map[string]any{"schema": s}}
}

func ref(name string) map[string]any {
	return map[string]any{"$ref": fmt.Sprintf("#/components/schemas/%s", name)}
}

func pageName(s *schema.Schema) string { return s.Name() + "Page" }

func pageSchema(s *schema.Schema) map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pagination": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"offset": map[string]any{"type": "integer"},
					"limit":  map[string]any{"type": "integer"},
				},
				"required": []string{"offset", "limit"},
			},
			"data":  map[string]any{"type": "array", "items": ref(s.Name())},
			"total": map[string]any{"type": "integer"},
		},
		"required": []string{"pagination", "data", "total"},
	}
}

func errorResponseSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
			"code":    map[string]any{"type": "integer"},
		},
		"required": []string{"message", "code"},
	}
}

func validationResponseSchema() map[string]any {
	s := errorResponseSchema()
	s["properties"].(map[string]any)["details"] = map[string]any{"type": "array", "items": ref(fieldErrorSchema)}
	return s
}

func fieldErrorObject() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"loc":  map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"msg":  map[string]any{"type": "string"},
			"type": map[string]any{"type": "string"},
		},
		"required": []string{"loc", "msg", "type"},
	}
}
