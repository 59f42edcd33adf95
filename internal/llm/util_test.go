package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanJSONBlock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"json code block", "```json\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"generic code block", "```\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"plain JSON", `{"key": "value"}`, `{"key": "value"}`},
		{"array batch", "```json\n[{\"id\": \"a\"}, {\"id\": \"b\"}]\n```", `[{"id": "a"}, {"id": "b"}]`},
		{"preamble", "Here is the analysis:\n{\"id\": \"a\"}", `{"id": "a"}`},
		{"trailing text", "[1, 2]\n\nLet me know if you need more.", `[1, 2]`},
		{"escaped quotes", `Result: {"m": "He said \"}\""}`, `{"m": "He said \"}\""}`},
		{"no json at all", "sorry, I cannot help", "sorry, I cannot help"},
		{"unbalanced", `{"key": "value"`, `{"key": "value"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CleanJSONBlock(tt.input))
		})
	}
}

func TestExtractBalanced(t *testing.T) {
	tests := []struct {
		name     string
		fn       func(string) string
		input    string
		expected string
	}{
		{"nested object", extractJSONObject, `{"a": {"b": 1}} tail`, `{"a": {"b": 1}}`},
		{"braces in string", extractJSONObject, `{"t": "Hello {name}!"}`, `{"t": "Hello {name}!"}`},
		{"object not at start", extractJSONObject, `x {}`, ""},
		{"empty", extractJSONObject, "", ""},
		{"nested arrays", extractJSONArray, `[[1, 2], [3]] extra`, `[[1, 2], [3]]`},
		{"array of objects", extractJSONArray, `[{"id": 1}, {"id": 2}]`, `[{"id": 1}, {"id": 2}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.fn(tt.input))
		})
	}
}
