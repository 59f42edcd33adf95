package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildBatchPrompt(t *testing.T) {
	prompt := BuildBatchPrompt(ArticleAnalysisSchema(), []PromptItem{
		{ID: "a1", Title: "Rates cut", Text: "The central bank cut rates."},
		{ID: "b2", Title: "Merger", Text: "Two firms merged."},
	})

	assert.Contains(t, prompt, "Return ONLY a JSON array")
	assert.Contains(t, prompt, `"impact_events": [{"label"`)
	assert.Contains(t, prompt, "(required)")
	assert.Contains(t, prompt, "Article id: a1\nTitle: Rates cut")
	assert.Contains(t, prompt, "Article id: b2")
	assert.Less(t, strings.Index(prompt, "a1"), strings.Index(prompt, "b2"))
}

func TestBuildBatchPrompt_TruncatesLongText(t *testing.T) {
	long := strings.Repeat("x", MaxItemChars+500)
	prompt := BuildBatchPrompt(ExtractionSchema{Description: "d"}, []PromptItem{{ID: "a", Text: long}})

	assert.NotContains(t, prompt, strings.Repeat("x", MaxItemChars+1))
	assert.Contains(t, prompt, strings.Repeat("x", MaxItemChars))
}
