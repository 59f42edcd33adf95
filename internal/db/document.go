package db

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when no document has the requested id.
var ErrNotFound = errors.New("document not found")

// Op is a comparison operator usable in a Query.
type Op string

// Supported operators.
const (
	OpEq  Op = "=="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

var sqlOps = map[Op]string{
	OpEq:  "=",
	OpNe:  "<>",
	OpLt:  "<",
	OpLte: "<=",
	OpGt:  ">",
	OpGte: ">=",
}

// ParseOp validates an operator string.
func ParseOp(s string) (Op, error) {
	op := Op(strings.TrimSpace(s))
	if _, ok := sqlOps[op]; !ok {
		return "", fmt.Errorf("unsupported query operator %q", s)
	}
	return op, nil
}

// Query selects documents whose Field compares to Value with Op.
// Field is a dotted path of JSON keys, for example "scores.zero_echo_score".
type Query struct {
	Field string
	Op    Op
	Value any
	Limit int
}

// Field is one partial update: a dotted document path and its new value.
type Field struct {
	Path  string
	Value any
}

// updatableFields are the top-level document keys a partial update may touch.
// id, source_url and created_at are immutable.
var updatableFields = map[string]bool{
	"state":          true,
	"title":          true,
	"source":         true,
	"extracted_text": true,
	"published_at":   true,
	"raw_analysis":   true,
	"scores":         true,
	"classification": true,
	"release":        true,
	"updated_at":     true,
	"cache_location": true,
}

// FieldPath validates a dotted update path and splits it into keys.
func FieldPath(field string) ([]string, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, errors.New("empty field path")
	}
	path := strings.Split(field, ".")
	for _, p := range path {
		if p == "" {
			return nil, fmt.Errorf("invalid field path %q", field)
		}
	}
	if !updatableFields[path[0]] {
		return nil, fmt.Errorf("field %q cannot be updated", path[0])
	}
	return path, nil
}

// queryPath splits a query field. Any key may be queried.
func queryPath(field string) ([]string, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		return nil, errors.New("empty query field")
	}
	path := strings.Split(field, ".")
	for _, p := range path {
		if p == "" {
			return nil, fmt.Errorf("invalid query field %q", field)
		}
	}
	return path, nil
}
