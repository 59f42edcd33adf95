package crawling

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/zeroecho/internal/errs"
)

const rssFeed = `<?xml version="1.0"?>
<rss version="2.0"><channel>
<title>Example Wire</title>
<item><title>Rates cut</title><link>https://example.com/news/rates</link><pubDate>Thu, 15 Oct 2026 08:00:00 GMT</pubDate></item>
<item><title>Oil rises</title><link>https://example.com/news/oil</link></item>
<item><title>Rates cut (dup)</title><link>https://example.com/news/rates/</link></item>
</channel></rss>`

func feedServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rss":
			w.Header().Set("Content-Type", "application/rss+xml")
			_, _ = w.Write([]byte(rssFeed))
		case "/garbage":
			_, _ = w.Write([]byte("this is not a feed"))
		case "/section":
			_, _ = w.Write([]byte(`<html><body><main>
<a href="/news/a">A</a><a href="/news/b">B</a><a href="/about">About</a>
</main></body></html>`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestDiscover_ParsesAndIsolatesFailures(t *testing.T) {
	server := feedServer()
	defer server.Close()

	engine := newTestEngine(t, server, nil)
	entries, errList := engine.Discover(context.Background(), []string{
		server.URL + "/rss",
		server.URL + "/garbage",
		server.URL + "/gone",
	})

	require.Len(t, entries, 2)
	assert.Equal(t, "https://example.com/news/rates", entries[0].URL)
	assert.Equal(t, "Rates cut", entries[0].Title)
	assert.Equal(t, "Example Wire", entries[0].Source)
	require.NotNil(t, entries[0].PublishedAt)
	assert.Equal(t, 15, entries[0].PublishedAt.Day())
	assert.Nil(t, entries[1].PublishedAt)

	require.Len(t, errList, 2)
	var feedErr *FeedError
	require.ErrorAs(t, errList[0], &feedErr)
	assert.Equal(t, server.URL+"/garbage", feedErr.FeedURL)
	assert.Equal(t, errs.ParseMalformed, errs.KindOf(errList[0]))
	assert.Equal(t, errs.PolicyBlocked, errs.KindOf(errList[1]))
}

func TestDiscover_NoFeeds(t *testing.T) {
	engine := NewEngine(Config{})
	entries, errList := engine.Discover(context.Background(), nil)
	assert.Empty(t, entries)
	require.Len(t, errList, 1)
}

func TestDiscoverSections(t *testing.T) {
	server := feedServer()
	defer server.Close()

	engine := newTestEngine(t, server, nil)
	entries, errList := engine.DiscoverSections(context.Background(), []Section{
		{URL: server.URL + "/section", PathPrefixes: []string{"/news/"}},
		{URL: server.URL + "/missing"},
	})

	require.Len(t, entries, 2)
	assert.Equal(t, server.URL+"/news/a", entries[0].URL)
	assert.Len(t, errList, 1)
}
