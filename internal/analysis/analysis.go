// Package analysis is the boundary to the external article analysis service.
// Backends return raw batch items; Service normalizes, validates and decodes
// them into per-article RawAnalysis values.
package analysis

import (
	"context"

	"github.com/jonathan/zeroecho/internal/types"
)

// Request is one article submitted for analysis.
type Request struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text"`
}

// Client analyzes a batch of articles. Every requested id appears in exactly
// one of the returned maps.
type Client interface {
	Analyze(ctx context.Context, reqs []Request) (map[string]*types.RawAnalysis, map[string]error)
}

// Backend performs one round trip to an analysis provider and returns the
// decoded batch elements as loosely typed values.
type Backend interface {
	Name() string
	Call(ctx context.Context, reqs []Request) ([]any, error)
}
