package llm

import (
	"fmt"
	"strings"
)

// ExtractionSchema describes the JSON object the model must return per item.
type ExtractionSchema struct {
	Name        string
	Description string
	Fields      []SchemaField
}

// SchemaField defines a single field in the extraction output.
type SchemaField struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// PromptItem is one article in a batch prompt.
type PromptItem struct {
	ID    string
	Title string
	Text  string
}

// MaxItemChars caps the article text sent per item.
const MaxItemChars = 12000

// BuildBatchPrompt asks for a JSON array with one object per item, each
// carrying the item's id and the schema fields.
func BuildBatchPrompt(schema ExtractionSchema, items []PromptItem) string {
	var sb strings.Builder

	sb.WriteString(schema.Description)
	sb.WriteString("\n\n")

	sb.WriteString("Return ONLY a JSON array. Each element must be an object of this exact structure:\n{\n")
	sb.WriteString("  \"id\": \"string\" (required) // the id of the article being analyzed")
	for _, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = "string"
		}
		sb.WriteString(",\n")
		sb.WriteString(fmt.Sprintf("  \"%s\": %s", field.Name, typeHint))
		if field.Required {
			sb.WriteString(" (required)")
		}
		if field.Description != "" {
			sb.WriteString(fmt.Sprintf(" // %s", field.Description))
		}
	}
	sb.WriteString("\n}\n\n")

	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("- Produce exactly one element per article and copy its id verbatim.\n")
	sb.WriteString("- All numeric values are numbers, never strings.\n")
	sb.WriteString("- Return ONLY the JSON array, no markdown, no explanation.\n\n")

	for _, item := range items {
		text := item.Text
		if len(text) > MaxItemChars {
			text = text[:MaxItemChars]
		}
		sb.WriteString(fmt.Sprintf("Article id: %s\nTitle: %s\n\"\"\"\n%s\n\"\"\"\n\n", item.ID, item.Title, text))
	}

	return sb.String()
}

// ArticleAnalysisSchema is the extraction schema for editorial signal analysis.
func ArticleAnalysisSchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "ArticleAnalysis",
		Description: `You are a news editor rating articles for a low-noise briefing.
For each article identify the entities and events that carry real-world impact,
penalize hype and speculation, and rate the editorial dimensions on a 0-10 scale.`,
		Fields: []SchemaField{
			{
				Name:        "impact_entities",
				Type:        `[{"label": "string", "value": number, "rationale": "string"}]`,
				Description: "Organizations, people or places and how much weight they carry",
			},
			{
				Name:        "impact_events",
				Type:        `[{"label": "string", "value": number, "rationale": "string"}]`,
				Description: "Concrete events with their impact magnitude",
				Required:    true,
			},
			{
				Name:        "penalties",
				Type:        `[{"label": "string", "value": number, "rationale": "string"}]`,
				Description: "Deductions for clickbait, rumor or redundancy",
			},
			{
				Name:        "modifiers",
				Type:        `[{"label": "string", "value": number, "rationale": "string"}]`,
				Description: "Signed final adjustments",
			},
			{
				Name:        "zes",
				Type:        `{"Signal": {"impact": n, "novelty": n, "evidence": n}, "Noise": {"hype": n, "speculation": n, "redundancy": n}, "Utility": {"actionability": n, "longevity": n, "relevance": n}, "Fine_Adjustment": {"source_credibility": n, "clarity": n}}`,
				Description: "Dimension ratings from 0 to 10",
				Required:    true,
			},
		},
	}
}
