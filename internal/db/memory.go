package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonathan/zeroecho/internal/errs"
	"github.com/jonathan/zeroecho/internal/types"
)

// MemoryStore is an in-process document store with the same semantics as
// DocumentStore. Documents are kept as JSON so partial updates behave alike.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
	// failure, when set, is returned by every operation.
	failure error
	// writes counts Put and UpdateFields calls.
	writes int
	runs   map[string]RunRecord
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

// SetFailure makes every subsequent call fail with err. nil restores service.
func (m *MemoryStore) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = err
}

// Writes returns how many mutating calls succeeded.
func (m *MemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Ping reports the injected failure, if any.
func (m *MemoryStore) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.unavailable("ping")
}

func (m *MemoryStore) unavailable(op string) error {
	if m.failure == nil {
		return nil
	}
	return errs.Wrap(errs.StoreUnavailable, op, m.failure)
}

// Get implements the remote store contract.
func (m *MemoryStore) Get(_ context.Context, id string) (*types.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.unavailable("get"); err != nil {
		return nil, err
	}
	doc, ok := m.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return decode(doc)
}

// Put implements the remote store contract.
func (m *MemoryStore) Put(_ context.Context, article *types.Article) error {
	doc, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("failed to marshal article %s: %w", article.ID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable("put"); err != nil {
		return err
	}
	m.docs[article.ID] = doc
	m.writes++
	return nil
}

// UpdateField implements the remote store contract.
func (m *MemoryStore) UpdateField(ctx context.Context, id, field string, value any, updatedAt time.Time) error {
	return m.UpdateFields(ctx, id, updatedAt, Field{Path: field, Value: value})
}

// UpdateFields applies every field and the updated_at stamp as one write.
func (m *MemoryStore) UpdateFields(_ context.Context, id string, updatedAt time.Time, fields ...Field) error {
	if len(fields) == 0 {
		return errors.New("no fields to update")
	}
	paths := make([][]string, len(fields))
	values := make([]any, len(fields))
	for i, f := range fields {
		path, err := FieldPath(f.Path)
		if err != nil {
			return err
		}
		encoded, err := json.Marshal(f.Value)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", f.Path, err)
		}
		if err := json.Unmarshal(encoded, &values[i]); err != nil {
			return err
		}
		paths[i] = path
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.unavailable("update fields"); err != nil {
		return err
	}
	doc, ok := m.docs[id]
	if !ok {
		return ErrNotFound
	}

	var tree map[string]any
	if err := json.Unmarshal(doc, &tree); err != nil {
		return errs.Wrap(errs.ParseMalformed, "update fields", err)
	}
	for i, path := range paths {
		setPath(tree, path, values[i])
	}
	tree["updated_at"] = updatedAt.UTC().Format(time.RFC3339Nano)

	updated, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	m.docs[id] = updated
	m.writes++
	return nil
}

// Query implements the remote store contract.
func (m *MemoryStore) Query(_ context.Context, q Query) ([]*types.Article, error) {
	path, err := queryPath(q.Field)
	if err != nil {
		return nil, err
	}
	if _, ok := sqlOps[q.Op]; !ok {
		return nil, fmt.Errorf("unsupported query operator %q", q.Op)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.unavailable("query"); err != nil {
		return nil, err
	}

	var matches []*types.Article
	for _, doc := range m.docs {
		var tree map[string]any
		if err := json.Unmarshal(doc, &tree); err != nil {
			continue
		}
		got, ok := getPath(tree, path)
		if !ok || !compare(got, q.Op, q.Value) {
			continue
		}
		a, err := decode(doc)
		if err != nil {
			return nil, err
		}
		matches = append(matches, a)
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		}
		return matches[i].ID < matches[j].ID
	})
	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}
	return matches, nil
}

func setPath(tree map[string]any, path []string, value any) {
	node := tree
	for _, key := range path[:len(path)-1] {
		child, ok := node[key].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[key] = child
		}
		node = child
	}
	node[path[len(path)-1]] = value
}

func getPath(tree map[string]any, path []string) (any, bool) {
	var node any = tree
	for _, key := range path {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// compare mirrors the SQL semantics: numeric, boolean and time comparisons
// when the query value has that type, text comparison otherwise.
func compare(got any, op Op, want any) bool {
	switch w := want.(type) {
	case int, int32, int64, float32, float64:
		g, ok := got.(float64)
		if !ok {
			return false
		}
		return cmpOrdered(g, types.ToFloat(w), op)
	case bool:
		g, ok := got.(bool)
		if !ok {
			return false
		}
		switch op {
		case OpEq:
			return g == w
		case OpNe:
			return g != w
		default:
			return false
		}
	case time.Time:
		s, ok := got.(string)
		if !ok {
			return false
		}
		g, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return false
		}
		return cmpOrdered(g.UnixNano(), w.UnixNano(), op)
	default:
		g, ok := got.(string)
		if !ok {
			g = strings.TrimSpace(fmt.Sprint(got))
		}
		return cmpOrdered(g, fmt.Sprint(w), op)
	}
}

func cmpOrdered[T int64 | float64 | string](a, b T, op Op) bool {
	switch op {
	case OpEq:
		return a == b
	case OpNe:
		return a != b
	case OpLt:
		return a < b
	case OpLte:
		return a <= b
	case OpGt:
		return a > b
	case OpGte:
		return a >= b
	default:
		return false
	}
}
