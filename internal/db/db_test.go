package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGet(t *testing.T) {
	query, args, err := buildGet(DefaultTable, "abc")
	require.NoError(t, err)
	assert.Equal(t, "SELECT doc FROM articles WHERE id = $1", query)
	assert.Equal(t, []any{"abc"}, args)
}

func TestBuildPut(t *testing.T) {
	query, args, err := buildPut(DefaultTable, "abc", []byte(`{"id":"abc"}`))
	require.NoError(t, err)
	assert.Contains(t, query, "INSERT INTO articles (id,doc,updated_at) VALUES ($1,$2,NOW())")
	assert.Contains(t, query, "ON CONFLICT (id) DO UPDATE")
	assert.Len(t, args, 2)
}

func TestBuildUpdateFields(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	query, args, err := buildUpdateFields(DefaultTable, "abc", now, []Field{{Path: "scores.zero_echo_score", Value: 6.5}})
	require.NoError(t, err)

	assert.Contains(t, query, "jsonb_set(jsonb_set(doc, $1::text[], $2::jsonb, true), '{updated_at}', $3::jsonb, true)")
	assert.Contains(t, query, "updated_at = $4")
	assert.Contains(t, query, "WHERE id = $5")
	require.Len(t, args, 5)
	assert.Equal(t, []string{"scores", "zero_echo_score"}, args[0])
	assert.Equal(t, "6.5", args[1])
	assert.Equal(t, `"2026-10-16T12:00:00Z"`, args[2])
	assert.Equal(t, now, args[3])
	assert.Equal(t, "abc", args[4])
}

func TestBuildUpdateFields_Chain(t *testing.T) {
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	query, args, err := buildUpdateFields(DefaultTable, "abc", now, []Field{
		{Path: "extracted_text", Value: "body"},
		{Path: "state", Value: "EXTRACTED"},
	})
	require.NoError(t, err)

	assert.Contains(t, query,
		"jsonb_set(jsonb_set(jsonb_set(doc, $1::text[], $2::jsonb, true), $3::text[], $4::jsonb, true), '{updated_at}', $5::jsonb, true)")
	require.Len(t, args, 7)
	assert.Equal(t, []string{"extracted_text"}, args[0])
	assert.Equal(t, `"body"`, args[1])
	assert.Equal(t, []string{"state"}, args[2])
	assert.Equal(t, `"EXTRACTED"`, args[3])
}

func TestBuildUpdateFields_Invalid(t *testing.T) {
	now := time.Now().UTC()

	_, _, err := buildUpdateFields(DefaultTable, "abc", now, []Field{{Path: "id", Value: "x"}})
	assert.Error(t, err)

	_, _, err = buildUpdateFields(DefaultTable, "abc", now, nil)
	assert.Error(t, err)
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name      string
		q         Query
		wantWhere string
		wantLimit bool
	}{
		{
			name:      "text equality",
			q:         Query{Field: "state", Op: OpEq, Value: "SCORED"},
			wantWhere: "WHERE doc #>> $1::text[] = $2",
		},
		{
			name:      "numeric comparison",
			q:         Query{Field: "scores.zero_echo_score", Op: OpGte, Value: 5.0, Limit: 10},
			wantWhere: "WHERE (doc #>> $1::text[])::numeric >= $2",
			wantLimit: true,
		},
		{
			name:      "not equal",
			q:         Query{Field: "state", Op: OpNe, Value: "REJECTED"},
			wantWhere: "WHERE doc #>> $1::text[] <> $2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, _, err := buildQuery(DefaultTable, tt.q)
			require.NoError(t, err)
			assert.Contains(t, query, tt.wantWhere)
			assert.Contains(t, query, "ORDER BY (doc->>'created_at')::timestamptz, id")
			if tt.wantLimit {
				assert.Contains(t, query, "LIMIT 10")
			}
		})
	}

	_, _, err := buildQuery(DefaultTable, Query{Field: "state", Op: "like", Value: "x"})
	assert.Error(t, err)
}

func TestParseOp(t *testing.T) {
	for _, s := range []string{"==", "!=", "<", "<=", ">", ">="} {
		op, err := ParseOp(s)
		require.NoError(t, err)
		assert.Equal(t, Op(s), op)
	}
	_, err := ParseOp("=")
	assert.Error(t, err)
}
