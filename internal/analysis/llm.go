package analysis

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/jonathan/zeroecho/internal/errs"
	"github.com/jonathan/zeroecho/internal/llm"
)

// LLMBackend asks a language model for the analysis batch.
type LLMBackend struct {
	client llm.Client
	tier   llm.ModelTier
	schema llm.ExtractionSchema
}

// NewLLMBackend wraps client. The lite tier is used unless tier is set.
func NewLLMBackend(client llm.Client, tier llm.ModelTier) *LLMBackend {
	if tier == "" {
		tier = llm.TierLite
	}
	return &LLMBackend{client: client, tier: tier, schema: llm.ArticleAnalysisSchema()}
}

// Name identifies the backend in logs and breaker state.
func (b *LLMBackend) Name() string {
	return "llm:" + b.client.GetModel(b.tier)
}

// Call builds one prompt for the batch and decodes the model's JSON answer.
func (b *LLMBackend) Call(ctx context.Context, reqs []Request) ([]any, error) {
	items := make([]llm.PromptItem, len(reqs))
	for i, r := range reqs {
		items[i] = llm.PromptItem{ID: r.ID, Title: r.Title, Text: r.Text}
	}

	text, err := b.client.GenerateJSON(ctx, llm.BuildBatchPrompt(b.schema, items), b.tier)
	if err != nil {
		return nil, classifyLLMError(err)
	}
	return DecodeBatch([]byte(text))
}

func classifyLLMError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500 {
			return errs.Wrap(errs.NetworkTransient, "llm generate", err)
		}
		return errs.Wrap(errs.PolicyBlocked, "llm generate", err)
	}
	return errs.Wrap(errs.NetworkTransient, "llm generate", err)
}
