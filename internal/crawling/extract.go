package crawling

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ExtractArticleLinks returns same-domain links from a section page, in
// document order and without duplicates. Links inside navigation, header
// and footer are ignored. When pathPrefixes is non-empty only paths starting
// with one of them are kept.
func ExtractArticleLinks(htmlContent string, baseURL string, pathPrefixes []string) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, &LinkExtractionError{
			Message: "failed to parse base URL",
			Cause:   err,
		}
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, &LinkExtractionError{
			Message: fmt.Sprintf("invalid base URL: %s (must have scheme and host)", baseURL),
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, &LinkExtractionError{
			Message: "failed to parse HTML",
			Cause:   err,
		}
	}
	doc.Find("nav, header, footer").Remove()

	linkSet := make(map[string]bool)
	links := make([]string, 0)

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		linkURL, err := url.Parse(strings.TrimSpace(href))
		if err != nil || href == "" {
			return
		}

		absoluteURL := base.ResolveReference(linkURL)
		if !strings.EqualFold(absoluteURL.Host, base.Host) {
			return
		}
		if absoluteURL.Scheme != "http" && absoluteURL.Scheme != "https" {
			return
		}
		absoluteURL.Fragment = ""

		path := strings.TrimSuffix(absoluteURL.Path, "/")
		if path == "" || !hasPrefix(path, pathPrefixes) {
			return
		}

		urlString := strings.TrimSuffix(absoluteURL.String(), "/")
		if !linkSet[urlString] {
			linkSet[urlString] = true
			links = append(links, urlString)
		}
	})

	return links, nil
}

func hasPrefix(path string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
