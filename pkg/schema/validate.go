package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/edgeflare/dyapi/pkg/entity"
	"github.com/spf13/cast"
)

// Input locations reported in field errors.
const (
	LocBody  = "body"
	LocPath  = "path"
	LocQuery = "query"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// FieldError describes one invalid input value.
type FieldError struct {
	Loc     []string `json:"loc"`
	Message string   `json:"msg"`
	Type    string   `json:"type"`
}

// ValidationError lists every input value rejected by a schema.
type ValidationError struct {
	Schema string       `json:"-"`
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fmt.Sprintf("%s: %s", strings.Join(fe.Loc, "."), fe.Message)
	}
	return fmt.Sprintf("%s: %s", e.Schema, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func (e *ValidationError) add(msg, typ string, loc ...string) {
	e.Errors = append(e.Errors, FieldError{Loc: loc, Message: msg, Type: typ})
}

func (e *ValidationError) orNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Validate checks raw against the schema and returns the converted record.
// Required members must be present and non-null. Keys unknown to the schema
// are dropped.
func (s *Schema) Validate(loc string, raw map[string]any) (Record, error) {
	return s.validate(raw, loc)
}

func (s *Schema) validate(raw map[string]any, loc ...string) (Record, error) {
	verr := &ValidationError{Schema: s.name}
	rec := make(Record, len(s.members))
	for _, m := range s.members {
		floc := append(append([]string{}, loc...), m.Name)
		v, ok := raw[m.Name]
		if !ok || v == nil {
			if !m.Optional {
				verr.add("Field required", "missing", floc...)
			}
			continue
		}
		cv, err := convertJSON(m.Type, v)
		if err != nil {
			verr.add(err.Error(), m.Type.String()+"_type", floc...)
			continue
		}
		rec[m.Name] = cv
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return rec, nil
}

// DecodeJSON reads a JSON object from r and validates it as a body. Errors
// reading r are returned as they are.
func (s *Schema) DecodeJSON(r io.Reader) (Record, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	v, err := parseJSON(body)
	if err != nil {
		return nil, s.invalidJSON(err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		verr := &ValidationError{Schema: s.name}
		verr.add("Input should be a valid object", "object_type", LocBody)
		return nil, verr
	}
	return s.validate(obj, LocBody)
}

// DecodeJSONList reads a JSON array of objects from r and validates each one.
func (s *Schema) DecodeJSONList(r io.Reader) ([]Record, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	v, err := parseJSON(body)
	if err != nil {
		return nil, s.invalidJSON(err)
	}
	items, ok := v.([]any)
	if !ok {
		verr := &ValidationError{Schema: s.name}
		verr.add("Input should be a valid list", "list_type", LocBody)
		return nil, verr
	}
	verr := &ValidationError{Schema: s.name}
	out := make([]Record, 0, len(items))
	for i, item := range items {
		idx := strconv.Itoa(i)
		obj, ok := item.(map[string]any)
		if !ok {
			verr.add("Input should be a valid object", "object_type", LocBody, idx)
			continue
		}
		rec, err := s.validate(obj, LocBody, idx)
		if err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				verr.Errors = append(verr.Errors, ve.Errors...)
			}
			continue
		}
		out = append(out, rec)
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeValues validates textual values, such as path segments or query
// parameters, looked up by member name.
func (s *Schema) DecodeValues(loc string, lookup func(name string) (string, bool)) (Record, error) {
	verr := &ValidationError{Schema: s.name}
	rec := make(Record, len(s.members))
	for _, m := range s.members {
		raw, ok := lookup(m.Name)
		if !ok {
			if !m.Optional {
				verr.add("Field required", "missing", loc, m.Name)
			}
			continue
		}
		v, err := convertText(m.Type, raw)
		if err != nil {
			verr.add(err.Error(), m.Type.String()+"_parsing", loc, m.Name)
			continue
		}
		rec[m.Name] = v
	}
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Normalize coerces values returned by a storage backend to the member types.
// Null values are kept as nil.
func (s *Schema) Normalize(rec Record) (Record, error) {
	out := make(Record, len(rec))
	for k, v := range rec {
		m, ok := s.Member(k)
		if !ok || v == nil {
			out[k] = v
			continue
		}
		var err error
		switch m.Type {
		case entity.String:
			out[k], err = cast.ToStringE(v)
		case entity.Integer:
			out[k], err = cast.ToInt64E(v)
		case entity.Float:
			out[k], err = cast.ToFloat64E(v)
		default:
			out[k] = v
		}
		if err != nil {
			return nil, fmt.Errorf("schema %s: member %s: %w", s.name, k, err)
		}
	}
	return out, nil
}

func (s *Schema) invalidJSON(err error) error {
	verr := &ValidationError{Schema: s.name}
	verr.add("Invalid JSON: "+err.Error(), "json_invalid", LocBody)
	return verr
}

// parseJSON decodes one JSON value from body.
func parseJSON(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty body")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func convertJSON(t entity.ValueType, v any) (any, error) {
	if _, ok := v.(bool); ok {
		return nil, fmt.Errorf("Input should be a valid %s", t)
	}
	switch t {
	case entity.String:
		s, ok := v.(string)
		if !ok {
			return nil, errors.New("Input should be a valid string")
		}
		return s, nil
	case entity.Integer:
		switch n := v.(type) {
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return i, nil
			}
			f, err := n.Float64()
			if err != nil || !integral(f) {
				return nil, errors.New("Input should be a valid integer")
			}
			return int64(f), nil
		case float64:
			if !integral(n) {
				return nil, errors.New("Input should be a valid integer")
			}
			return int64(n), nil
		case string:
			return nil, errors.New("Input should be a valid integer")
		}
		i, err := cast.ToInt64E(v)
		if err != nil {
			return nil, errors.New("Input should be a valid integer")
		}
		return i, nil
	case entity.Float:
		switch n := v.(type) {
		case json.Number:
			f, err := n.Float64()
			if err != nil {
				return nil, errors.New("Input should be a valid number")
			}
			return f, nil
		case string:
			return nil, errors.New("Input should be a valid number")
		}
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, errors.New("Input should be a valid number")
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", t)
	}
}

func convertText(t entity.ValueType, s string) (any, error) {
	switch t {
	case entity.String:
		return s, nil
	case entity.Integer:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errors.New("Input should be a valid integer, unable to parse string as an integer")
		}
		return i, nil
	case entity.Float:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errors.New("Input should be a valid number, unable to parse string as a number")
		}
		return f, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", t)
	}
}

func integral(f float64) bool {
	return f == math.Trunc(f) && f >= math.MinInt64 && f <= math.MaxInt64
}
