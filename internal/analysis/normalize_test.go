package analysis

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/zeroecho/internal/errs"
)

func TestDecodeBatch(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    int
		wantErr bool
	}{
		{"bare array", `[{"id": "a"}, {"id": "b"}]`, 2, false},
		{"results envelope", `{"results": [{"id": "a"}]}`, 1, false},
		{"articles envelope", `{"articles": [{"id": "a"}, 3]}`, 2, false},
		{"single object", `{"id": "a", "impact_events": []}`, 1, false},
		{"empty array", `[]`, 0, false},
		{"scalar", `"nope"`, 0, true},
		{"garbage", `not json`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := DecodeBatch([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errs.NetworkTransient, errs.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Len(t, items, tt.want)
		})
	}
}

func TestDecodeBatch_KeepsNumbersExact(t *testing.T) {
	items, err := DecodeBatch([]byte(`[{"id": 12, "impact_events": [{"value": 1.5}]}]`))
	require.NoError(t, err)

	obj := items[0].(map[string]any)
	assert.Equal(t, json.Number("12"), obj["id"])
}

func TestNormalizeItem_Aliases(t *testing.T) {
	tests := []struct {
		name string
		item map[string]any
	}{
		{"canonical", map[string]any{"id": "a1"}},
		{"Article_ID", map[string]any{"Article_ID": "a1"}},
		{"article_id", map[string]any{"article_id": "a1"}},
		{"articleId", map[string]any{"articleId": " a1 "}},
		{"canonical wins over alias", map[string]any{"id": "a1", "article_id": "zzz"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, obj, err := normalizeItem(tt.item)
			require.NoError(t, err)
			assert.Equal(t, "a1", id)
			assert.Equal(t, "a1", obj["id"])
			for _, alias := range IDAliases[1:] {
				assert.NotContains(t, obj, alias)
			}
		})
	}
}

func TestNormalizeItem_NumericID(t *testing.T) {
	id, _, err := normalizeItem(map[string]any{"Article_ID": json.Number("42")})
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestNormalizeItem_Malformed(t *testing.T) {
	tests := []struct {
		name string
		item any
	}{
		{"string", "a1"},
		{"number", 3.0},
		{"list", []any{"a1"}},
		{"no id", map[string]any{"impact_events": []any{}}},
		{"blank id", map[string]any{"id": "  "}},
		{"object id", map[string]any{"id": map[string]any{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := normalizeItem(tt.item)
			require.Error(t, err)
			assert.Equal(t, errs.ParseMalformed, errs.KindOf(err))
		})
	}
}

func TestNormalizeItem_DoesNotMutateInput(t *testing.T) {
	item := map[string]any{"Article_ID": "a1", "penalties": []any{}}
	_, _, err := normalizeItem(item)
	require.NoError(t, err)
	assert.Contains(t, item, "Article_ID")
	assert.NotContains(t, item, "id")
}
