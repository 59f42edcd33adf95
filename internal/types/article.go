// Package types provides type definitions for structured data used throughout the zeroecho pipeline.
package types

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Article is one discovered piece of content moving through the editorial pipeline.
type Article struct {
	ID             string       `json:"id" yaml:"id"`
	State          State        `json:"state" yaml:"state"`
	SourceURL      string       `json:"source_url" yaml:"source_url"`
	Source         string       `json:"source,omitempty" yaml:"source,omitempty"`
	Title          string       `json:"title,omitempty" yaml:"title,omitempty"`
	ExtractedText  string       `json:"extracted_text,omitempty" yaml:"extracted_text,omitempty"`
	PublishedAt    *time.Time   `json:"published_at,omitempty" yaml:"published_at,omitempty"`
	RawAnalysis    *RawAnalysis `json:"raw_analysis,omitempty" yaml:"raw_analysis,omitempty"`
	Scores         *Scores      `json:"scores,omitempty" yaml:"scores,omitempty"`
	Classification string       `json:"classification,omitempty" yaml:"classification,omitempty"`
	Release        *Release     `json:"release,omitempty" yaml:"release,omitempty"`
	CreatedAt      time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" yaml:"updated_at"`
	CacheLocation  string       `json:"cache_location,omitempty" yaml:"cache_location,omitempty"`
}

// Scores holds the numeric outputs derived from RawAnalysis. Never hand-edited.
type Scores struct {
	ImpactScore   float64 `json:"impact_score" yaml:"impact_score"`
	ZeroEchoScore float64 `json:"zero_echo_score" yaml:"zero_echo_score"`
}

// Release records the edition an article was released in.
type Release struct {
	Edition    string    `json:"edition" yaml:"edition"`
	ReleasedAt time.Time `json:"released_at" yaml:"released_at"`
}

// NewArticle creates a COLLECTED article whose id is derived from sourceURL.
func NewArticle(sourceURL string) *Article {
	return &Article{
		ID:        ArticleID(sourceURL),
		State:     StateCollected,
		SourceURL: strings.TrimSpace(sourceURL),
	}
}

// ArticleID derives the content-addressed article id for a URL.
// The URL is normalized first so trivially different spellings share one id.
func ArticleID(rawURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(NormalizeURL(rawURL))).String()
}

// NormalizeURL lowercases scheme and host, drops the fragment and a trailing slash.
// Unparseable input is returned trimmed so it still hashes deterministically.
func NormalizeURL(rawURL string) string {
	trimmed := strings.TrimSpace(rawURL)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return trimmed
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.RawFragment = ""
	if len(parsed.Path) > 1 {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}
	if parsed.Path == "/" {
		parsed.Path = ""
	}
	return parsed.String()
}

// Clone returns a deep copy so callers cannot mutate registry-owned records.
func (a *Article) Clone() *Article {
	if a == nil {
		return nil
	}
	c := *a
	if a.PublishedAt != nil {
		t := *a.PublishedAt
		c.PublishedAt = &t
	}
	if a.RawAnalysis != nil {
		c.RawAnalysis = a.RawAnalysis.Clone()
	}
	if a.Scores != nil {
		s := *a.Scores
		c.Scores = &s
	}
	if a.Release != nil {
		r := *a.Release
		c.Release = &r
	}
	return &c
}

// Summary is the manifest projection of an article.
type Summary struct {
	State     State     `json:"state" yaml:"state"`
	Title     string    `json:"title,omitempty" yaml:"title,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Summarize projects the article into its manifest entry.
func (a *Article) Summarize() Summary {
	return Summary{
		State:     a.State,
		Title:     a.Title,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}
