// Package crawling fetches article pages in parallel under politeness rules
// and discovers new article URLs from source feeds and section pages.
package crawling

import "fmt"

// CrawlError represents a general crawling failure
type CrawlError struct {
	Message string
	Cause   error
}

func (e *CrawlError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("crawl error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("crawl error: %s", e.Message)
}

func (e *CrawlError) Unwrap() error {
	return e.Cause
}

// LinkExtractionError represents a failure in extracting links from HTML
type LinkExtractionError struct {
	Message string
	Cause   error
}

func (e *LinkExtractionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("link extraction error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("link extraction error: %s", e.Message)
}

func (e *LinkExtractionError) Unwrap() error {
	return e.Cause
}

// FeedError represents a failure reading one source feed
type FeedError struct {
	FeedURL string
	Cause   error
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("feed error for %s: %v", e.FeedURL, e.Cause)
}

func (e *FeedError) Unwrap() error {
	return e.Cause
}
