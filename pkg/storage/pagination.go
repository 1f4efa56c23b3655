package storage

import (
	"net/url"
	"strconv"

	"github.com/edgeflare/dyapi/pkg/schema"
)

const (
	DefaultOffset = 0
	DefaultLimit  = 10
)

// Pagination selects a window of a list result.
type Pagination struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// DefaultPagination returns offset 0, limit 10.
func DefaultPagination() Pagination {
	return Pagination{Offset: DefaultOffset, Limit: DefaultLimit}
}

// Page is the list response container.
type Page struct {
	Pagination Pagination      `json:"pagination"`
	Data       []schema.Record `json:"data"`
	Total      int             `json:"total"`
}

// ParsePagination reads offset and limit from query parameters, applying
// defaults for absent values. Offset must be >= 0 and limit >= 1.
func ParsePagination(q url.Values) (Pagination, error) {
	p := DefaultPagination()
	verr := &schema.ValidationError{Schema: "Pagination"}

	if q.Has("offset") {
		v, err := strconv.Atoi(q.Get("offset"))
		switch {
		case err != nil:
			verr.Errors = append(verr.Errors, schema.FieldError{Loc: []string{schema.LocQuery, "offset"}, Message: "Input should be a valid integer", Type: "int_parsing"})
		case v < 0:
			verr.Errors = append(verr.Errors, schema.FieldError{Loc: []string{schema.LocQuery, "offset"}, Message: "Input should be greater than or equal to 0", Type: "greater_than_equal"})
		default:
			p.Offset = v
		}
	}
	if q.Has("limit") {
		v, err := strconv.Atoi(q.Get("limit"))
		switch {
		case err != nil:
			verr.Errors = append(verr.Errors, schema.FieldError{Loc: []string{schema.LocQuery, "limit"}, Message: "Input should be a valid integer", Type: "int_parsing"})
		case v < 1:
			verr.Errors = append(verr.Errors, schema.FieldError{Loc: []string{schema.LocQuery, "limit"}, Message: "Input should be greater than or equal to 1", Type: "greater_than_equal"})
		default:
			p.Limit = v
		}
	}
	if len(verr.Errors) > 0 {
		return p, verr
	}
	return p, nil
}

// Window clamps the pagination to n items and returns the slice bounds.
func (p Pagination) Window(n int) (start, end int) {
	start = min(max(p.Offset, 0), n)
	end = min(start+p.Limit, n)
	return start, end
}
