package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArticleID_Deterministic(t *testing.T) {
	urls := []string{
		"https://example.com/news/1",
		"http://example.org/a?b=c",
		"https://news.example.net/2026/10/16/story",
	}

	for _, u := range urls {
		t.Run(u, func(t *testing.T) {
			first := ArticleID(u)
			second := ArticleID(u)
			assert.Equal(t, first, second)
			assert.NotEmpty(t, first)
		})
	}

	assert.NotEqual(t, ArticleID("https://example.com/a"), ArticleID("https://example.com/b"))
}

func TestArticleID_NormalizesTrivialDifferences(t *testing.T) {
	base := ArticleID("https://example.com/news/1")

	assert.Equal(t, base, ArticleID("HTTPS://EXAMPLE.COM/news/1"))
	assert.Equal(t, base, ArticleID("https://example.com/news/1/"))
	assert.Equal(t, base, ArticleID("https://example.com/news/1#comments"))
	assert.Equal(t, base, ArticleID("  https://example.com/news/1  "))
}

func TestNewArticle(t *testing.T) {
	a := NewArticle("https://example.com/x")

	assert.Equal(t, StateCollected, a.State)
	assert.Equal(t, ArticleID("https://example.com/x"), a.ID)
	assert.Equal(t, "https://example.com/x", a.SourceURL)
}

func TestArticleClone_IsDeep(t *testing.T) {
	published := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	a := &Article{
		ID:          "id-1",
		PublishedAt: &published,
		RawAnalysis: &RawAnalysis{
			ImpactEvents: []SignalItem{{Label: "merger", Value: 3}},
			Dimensions:   &ZESDimensions{Signal: map[string]float64{"novelty": 4}},
		},
		Scores:  &Scores{ImpactScore: 3},
		Release: &Release{Edition: "e1"},
	}

	c := a.Clone()
	require.NotNil(t, c)
	c.RawAnalysis.ImpactEvents[0].Value = 99
	c.RawAnalysis.Dimensions.Signal["novelty"] = 0
	c.Scores.ImpactScore = 7
	*c.PublishedAt = published.Add(time.Hour)
	c.Release.Edition = "e2"

	assert.Equal(t, 3.0, a.RawAnalysis.ImpactEvents[0].Value)
	assert.Equal(t, 4.0, a.RawAnalysis.Dimensions.Signal["novelty"])
	assert.Equal(t, 3.0, a.Scores.ImpactScore)
	assert.True(t, a.PublishedAt.Equal(published))
	assert.Equal(t, "e1", a.Release.Edition)

	var nilArticle *Article
	assert.Nil(t, nilArticle.Clone())
}

func TestSummarize(t *testing.T) {
	now := time.Now().UTC()
	created := now.Add(-time.Hour)
	a := &Article{State: StateScored, Title: "Headline", CreatedAt: created, UpdatedAt: now}

	s := a.Summarize()
	assert.Equal(t, StateScored, s.State)
	assert.Equal(t, "Headline", s.Title)
	assert.Equal(t, created, s.CreatedAt)
	assert.Equal(t, now, s.UpdatedAt)
}
