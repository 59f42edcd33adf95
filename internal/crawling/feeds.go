package crawling

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/jonathan/zeroecho/internal/errs"
	"github.com/jonathan/zeroecho/internal/fetch"
	"github.com/jonathan/zeroecho/internal/retry"
	"github.com/jonathan/zeroecho/internal/types"
)

// FeedEntry is an article URL announced by a source feed or section page.
type FeedEntry struct {
	URL         string
	Title       string
	Source      string
	PublishedAt *time.Time
}

// Section is an HTML index page listing article links.
type Section struct {
	URL          string
	PathPrefixes []string
}

// Discover reads RSS/Atom feeds and returns their entries, deduplicated by
// article id. One failing feed does not affect the others; its error is
// returned alongside the entries that were found.
func (e *Engine) Discover(ctx context.Context, feedURLs []string) ([]FeedEntry, []error) {
	if len(feedURLs) == 0 {
		return nil, []error{errNoFeeds}
	}

	parser := gofeed.NewParser()
	parser.Client = e.httpClient()
	parser.UserAgent = e.userAgent()

	var (
		entries []FeedEntry
		errList []error
		seen    = make(map[string]bool)
	)
	for _, feedURL := range feedURLs {
		if ctx.Err() != nil {
			errList = append(errList, &FeedError{FeedURL: feedURL, Cause: ctx.Err()})
			continue
		}

		feed, err := retry.DoValue(ctx, e.cfg.Retry, func(ctx context.Context) (*gofeed.Feed, error) {
			feed, err := parser.ParseURLWithContext(feedURL, ctx)
			if err != nil {
				return nil, classifyFeedError(err)
			}
			return feed, nil
		}, nil)
		if err != nil {
			e.cfg.Logger.Warn("feed discovery failed", zap.String("feed", feedURL), zap.Error(err))
			errList = append(errList, &FeedError{FeedURL: feedURL, Cause: err})
			continue
		}

		source := strings.TrimSpace(feed.Title)
		for _, item := range feed.Items {
			link := strings.TrimSpace(item.Link)
			if link == "" {
				continue
			}
			id := types.ArticleID(link)
			if seen[id] {
				continue
			}
			seen[id] = true

			entry := FeedEntry{URL: link, Title: strings.TrimSpace(item.Title), Source: source}
			switch {
			case item.PublishedParsed != nil:
				t := item.PublishedParsed.UTC()
				entry.PublishedAt = &t
			case item.UpdatedParsed != nil:
				t := item.UpdatedParsed.UTC()
				entry.PublishedAt = &t
			}
			entries = append(entries, entry)
		}
		e.cfg.Logger.Debug("feed discovered", zap.String("feed", feedURL), zap.Int("items", len(feed.Items)))
	}
	return entries, errList
}

// DiscoverSections scrapes article links from HTML section pages.
func (e *Engine) DiscoverSections(ctx context.Context, sections []Section) ([]FeedEntry, []error) {
	var (
		entries []FeedEntry
		errList []error
		seen    = make(map[string]bool)
	)
	for _, section := range sections {
		res, err := retry.DoValue(ctx, e.cfg.Retry, func(ctx context.Context) (*fetch.Result, error) {
			return fetch.URL(ctx, section.URL, e.cfg.Fetch)
		}, nil)
		if err != nil {
			errList = append(errList, &FeedError{FeedURL: section.URL, Cause: err})
			continue
		}
		links, err := ExtractArticleLinks(res.HTML, section.URL, section.PathPrefixes)
		if err != nil {
			errList = append(errList, &FeedError{FeedURL: section.URL, Cause: err})
			continue
		}
		for _, link := range links {
			id := types.ArticleID(link)
			if seen[id] {
				continue
			}
			seen[id] = true
			entries = append(entries, FeedEntry{URL: link, Source: section.URL})
		}
	}
	return entries, errList
}

func classifyFeedError(err error) error {
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= http.StatusInternalServerError {
			return errs.Wrap(errs.NetworkTransient, "feed", err)
		}
		return errs.Wrap(errs.PolicyBlocked, "feed", err)
	}
	if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
		return errs.Wrap(errs.ParseMalformed, "feed", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.NetworkTransient, "feed", err)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return errs.Wrap(errs.NetworkTransient, "feed", err)
	}
	return errs.Wrap(errs.ParseMalformed, "feed", err)
}

func (e *Engine) httpClient() *http.Client {
	if e.cfg.Fetch.Client != nil {
		return e.cfg.Fetch.Client
	}
	return &http.Client{Timeout: e.cfg.Fetch.Timeout}
}

func (e *Engine) userAgent() string {
	if e.cfg.Fetch.UserAgent != "" {
		return e.cfg.Fetch.UserAgent
	}
	return fetch.DefaultUserAgent
}
