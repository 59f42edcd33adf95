package fetch

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectPlatform(t *testing.T) {
	tests := []struct {
		url      string
		expected Platform
	}{
		{"https://example.substack.com/p/rates", PlatformSubstack},
		{"https://substack.com/home/post/p-123", PlatformSubstack},
		{"https://medium.com/@writer/story-abc", PlatformMedium},
		{"https://engineering.medium.com/story", PlatformMedium},
		{"https://newsdesk.wordpress.com/2026/10/16/story/", PlatformWordPress},
		{"https://daily.ghost.io/story/", PlatformGhost},
		{"https://news.example.com/story", PlatformUnknown},
		{"https://notsubstack.com/p/x", PlatformUnknown},
		{"::not a url", PlatformUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetectPlatform(tt.url))
		})
	}
}

func TestDetectGenerator(t *testing.T) {
	tests := []struct {
		generator string
		expected  Platform
	}{
		{"WordPress 6.6.2", PlatformWordPress},
		{"Ghost 5.82", PlatformGhost},
		{"Hugo 0.120", PlatformUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.generator, func(t *testing.T) {
			html := `<html><head><meta name="generator" content="` + tt.generator + `"></head><body></body></html>`
			doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, detectGenerator(doc))
		})
	}
}

func TestPlatformContentSelectors(t *testing.T) {
	selectors := PlatformContentSelectors(PlatformWordPress)
	assert.Equal(t, ".entry-content", selectors[0])
	assert.Contains(t, selectors, "article")

	assert.Equal(t, DefaultTextSelectors(), PlatformContentSelectors(PlatformUnknown))
}

func TestPlatformNoiseSelectors(t *testing.T) {
	assert.Contains(t, PlatformNoiseSelectors(PlatformSubstack), ".subscription-widget-wrap")
	assert.Nil(t, PlatformNoiseSelectors(PlatformUnknown))
}
