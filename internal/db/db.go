// Package db provides the durable article document store.
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jonathan/zeroecho/internal/errs"
	"github.com/jonathan/zeroecho/internal/types"
)

// DefaultTable is the table holding article documents.
const DefaultTable = "articles"

const schemaSQL = `CREATE TABLE IF NOT EXISTS %[1]s (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS %[1]s_state_idx ON %[1]s ((doc->>'state'));`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// DocumentStore keeps one JSONB document per article in PostgreSQL.
type DocumentStore struct {
	pool      *pgxpool.Pool
	table     string
	runsTable string
}

// Connect establishes a connection pool to the database and ensures the schema.
func Connect(ctx context.Context, databaseURL string) (*DocumentStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errs.Wrap(errs.StoreUnavailable, "connect", fmt.Errorf("failed to ping database: %w", err))
	}

	store := &DocumentStore{pool: pool, table: DefaultTable, runsTable: RunsTable}
	for _, ddl := range []string{fmt.Sprintf(schemaSQL, store.table), fmt.Sprintf(runsSchemaSQL, store.runsTable)} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	return store, nil
}

// Close closes the connection pool
func (s *DocumentStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks that the database is reachable.
func (s *DocumentStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return errs.Wrap(errs.StoreUnavailable, "ping", err)
	}
	return nil
}

// Get loads the article with the given id.
func (s *DocumentStore) Get(ctx context.Context, id string) (*types.Article, error) {
	query, args, err := buildGet(s.table, id)
	if err != nil {
		return nil, err
	}

	var doc []byte
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errs.Wrap(errs.StoreUnavailable, "get", err)
	}
	return decode(doc)
}

// Put writes the whole article, replacing any existing document.
func (s *DocumentStore) Put(ctx context.Context, article *types.Article) error {
	doc, err := json.Marshal(article)
	if err != nil {
		return fmt.Errorf("failed to marshal article %s: %w", article.ID, err)
	}
	query, args, err := buildPut(s.table, article.ID, doc)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return errs.Wrap(errs.StoreUnavailable, "put", err)
	}
	return nil
}

// UpdateField sets one field of a document and stamps updated_at, atomically.
func (s *DocumentStore) UpdateField(ctx context.Context, id, field string, value any, updatedAt time.Time) error {
	return s.UpdateFields(ctx, id, updatedAt, Field{Path: field, Value: value})
}

// UpdateFields sets several fields of a document and stamps updated_at in a
// single statement. The rest of the document is left as it is.
func (s *DocumentStore) UpdateFields(ctx context.Context, id string, updatedAt time.Time, fields ...Field) error {
	query, args, err := buildUpdateFields(s.table, id, updatedAt.UTC(), fields)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return errs.Wrap(errs.StoreUnavailable, "update fields", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Query returns documents matching q ordered by created_at then id.
func (s *DocumentStore) Query(ctx context.Context, q Query) ([]*types.Article, error) {
	query, args, err := buildQuery(s.table, q)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, "query", err)
	}
	defer rows.Close()

	var articles []*types.Article
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		a, err := decode(doc)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.StoreUnavailable, "query", err)
	}
	return articles, nil
}

func decode(doc []byte) (*types.Article, error) {
	var a types.Article
	if err := json.Unmarshal(doc, &a); err != nil {
		return nil, errs.Wrap(errs.ParseMalformed, "decode article", err)
	}
	return &a, nil
}

func buildGet(table, id string) (string, []any, error) {
	return psql.Select("doc").From(table).Where(sq.Eq{"id": id}).ToSql()
}

func buildPut(table, id string, doc []byte) (string, []any, error) {
	return psql.Insert(table).
		Columns("id", "doc", "updated_at").
		Values(id, doc, sq.Expr("NOW()")).
		Suffix("ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()").
		ToSql()
}

func buildUpdateFields(table, id string, updatedAt time.Time, fields []Field) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, errors.New("no fields to update")
	}
	expr := "doc"
	args := make([]any, 0, 2*len(fields)+1)
	for _, f := range fields {
		path, err := FieldPath(f.Path)
		if err != nil {
			return "", nil, err
		}
		valueJSON, err := json.Marshal(f.Value)
		if err != nil {
			return "", nil, fmt.Errorf("failed to marshal %s: %w", f.Path, err)
		}
		expr = "jsonb_set(" + expr + ", ?::text[], ?::jsonb, true)"
		args = append(args, path, string(valueJSON))
	}
	stampJSON, err := json.Marshal(updatedAt)
	if err != nil {
		return "", nil, err
	}
	expr = "jsonb_set(" + expr + ", '{updated_at}', ?::jsonb, true)"
	args = append(args, string(stampJSON))

	return psql.Update(table).
		Set("doc", sq.Expr(expr, args...)).
		Set("updated_at", updatedAt).
		Where(sq.Eq{"id": id}).
		ToSql()
}

func buildQuery(table string, q Query) (string, []any, error) {
	path, err := queryPath(q.Field)
	if err != nil {
		return "", nil, err
	}
	op, ok := sqlOps[q.Op]
	if !ok {
		return "", nil, fmt.Errorf("unsupported query operator %q", q.Op)
	}

	builder := psql.Select("doc").From(table)
	switch v := q.Value.(type) {
	case int, int32, int64, float32, float64:
		builder = builder.Where(sq.Expr("(doc #>> ?::text[])::numeric "+op+" ?", path, v))
	case bool:
		builder = builder.Where(sq.Expr("(doc #>> ?::text[])::boolean "+op+" ?", path, v))
	case time.Time:
		builder = builder.Where(sq.Expr("(doc #>> ?::text[])::timestamptz "+op+" ?", path, v))
	default:
		builder = builder.Where(sq.Expr("doc #>> ?::text[] "+op+" ?", path, fmt.Sprint(v)))
	}

	builder = builder.OrderBy("(doc->>'created_at')::timestamptz", "id")
	if q.Limit > 0 {
		builder = builder.Limit(uint64(q.Limit))
	}
	return builder.ToSql()
}
