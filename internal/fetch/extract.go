package fetch

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page is the structured content extracted from an article's HTML.
type Page struct {
	Title string
	Text  string
	// PublishedRaw is the publication timestamp exactly as the page states it.
	PublishedRaw string
	Platform     Platform
}

// noiseSelector removes page furniture before text extraction.
const noiseSelector = "nav, footer, header, aside, script, style, noscript, form, iframe, " +
	".ad, .advertisement, .ads, .sidebar, .cookie-banner, .popup, .newsletter, .related, .share"

// publishedSelectors are tried in order to find the publication time.
var publishedSelectors = []struct {
	selector string
	attr     string
}{
	{`meta[property="article:published_time"]`, "content"},
	{`meta[name="article:published_time"]`, "content"},
	{`meta[itemprop="datePublished"]`, "content"},
	{`meta[name="pubdate"]`, "content"},
	{`meta[name="publish-date"]`, "content"},
	{`meta[name="date"]`, "content"},
	{`meta[name="dc.date"]`, "content"},
	{`time[datetime]`, "datetime"},
}

// Extract parses HTML into title, main text and publication time.
func Extract(html string) (*Page, error) {
	return ExtractFor(html, "")
}

// ExtractFor is Extract with platform-specific selectors chosen from the page
// URL or, failing that, the page's generator meta tag.
func ExtractFor(html, pageURL string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	platform := DetectPlatform(pageURL)
	if platform == PlatformUnknown {
		platform = detectGenerator(doc)
	}

	page := &Page{
		Title:        extractTitle(doc),
		PublishedRaw: extractPublished(doc),
		Platform:     platform,
	}
	for _, selector := range PlatformNoiseSelectors(platform) {
		doc.Find(selector).Remove()
	}
	page.Text = mainText(doc, PlatformContentSelectors(platform))
	return page, nil
}

// ExtractMainText parses HTML and returns the main body text.
// It removes noise elements, then finds content using contentSelectors.
// If no content selectors match, it falls back to the body element.
func ExtractMainText(html string, contentSelectors []string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	return mainText(doc, contentSelectors), nil
}

func mainText(doc *goquery.Document, contentSelectors []string) string {
	doc.Find(noiseSelector).Remove()

	var content *goquery.Selection
	for _, selector := range contentSelectors {
		if selection := doc.Find(selector); selection.Length() > 0 {
			content = selection.First()
			break
		}
	}
	if content == nil {
		content = doc.Find("body")
	}
	return cleanWhitespace(content.Text())
}

// DefaultTextSelectors returns selectors for news article bodies.
func DefaultTextSelectors() []string {
	return []string{
		"article",
		"[itemprop='articleBody']",
		".article-body",
		".story-body",
		".post-content",
		"main",
		".content",
		"#content",
	}
}

func extractTitle(doc *goquery.Document) string {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		return strings.TrimSpace(og)
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

func extractPublished(doc *goquery.Document) string {
	for _, candidate := range publishedSelectors {
		if v, ok := doc.Find(candidate.selector).First().Attr(candidate.attr); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// cleanWhitespace trims every line and drops blank ones.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
