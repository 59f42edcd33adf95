package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jonathan/zeroecho/internal/errs"
)

// IDAliases are the id keys upstream services have been seen to emit, canonical first.
var IDAliases = []string{"id", "Article_ID", "article_id", "articleId"}

// envelopeKeys are object keys that may wrap the batch array.
var envelopeKeys = []string{"results", "items", "articles", "data"}

// DecodeBatch parses a response body into batch elements. A bare array, an
// object wrapping the array under a known key, or a single object are accepted.
// A body that does not decode at all is NETWORK_TRANSIENT so the whole batch
// is retried; problems with individual elements are reported by normalizeItem.
func DecodeBatch(body []byte) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, errs.Wrap(errs.NetworkTransient, "decode analysis batch", err)
	}

	switch v := doc.(type) {
	case []any:
		return v, nil
	case map[string]any:
		for _, key := range envelopeKeys {
			if list, ok := v[key].([]any); ok {
				return list, nil
			}
		}
		return []any{v}, nil
	default:
		return nil, errs.New(errs.NetworkTransient, "decode analysis batch", fmt.Sprintf("unexpected top-level %T", doc))
	}
}

// normalizeItem maps id aliases onto "id" and returns the item as an object.
// Non-object items and items without a usable id are PARSE_MALFORMED.
func normalizeItem(item any) (string, map[string]any, error) {
	obj, ok := item.(map[string]any)
	if !ok {
		return "", nil, errs.New(errs.ParseMalformed, "normalize", fmt.Sprintf("batch item is %T, not an object", item))
	}

	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}

	var id string
	for _, alias := range IDAliases {
		raw, present := obj[alias]
		if !present {
			continue
		}
		delete(out, alias)
		if id == "" {
			id = idString(raw)
		}
	}
	if id == "" {
		return "", nil, errs.New(errs.ParseMalformed, "normalize", "batch item has no id")
	}
	out["id"] = id
	return id, out, nil
}

func idString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return ""
	}
}
