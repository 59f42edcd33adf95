// Package fetch - platform.go provides publishing platform detection and platform-specific selectors.
package fetch

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Platform represents a known publishing platform.
type Platform string

const (
	// PlatformSubstack is the Substack newsletter platform
	PlatformSubstack Platform = "substack"
	// PlatformMedium is the Medium blogging platform
	PlatformMedium Platform = "medium"
	// PlatformWordPress is a WordPress site, hosted or self-run
	PlatformWordPress Platform = "wordpress"
	// PlatformGhost is a Ghost publication
	PlatformGhost Platform = "ghost"
	// PlatformUnknown is an unrecognized platform
	PlatformUnknown Platform = "unknown"
)

// DetectPlatform identifies the publishing platform from a URL.
func DetectPlatform(urlStr string) Platform {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return PlatformUnknown
	}

	host := strings.ToLower(parsed.Hostname())
	switch {
	case host == "substack.com" || strings.HasSuffix(host, ".substack.com"):
		return PlatformSubstack
	case host == "medium.com" || strings.HasSuffix(host, ".medium.com"):
		return PlatformMedium
	case strings.HasSuffix(host, ".wordpress.com"):
		return PlatformWordPress
	case strings.HasSuffix(host, ".ghost.io"):
		return PlatformGhost
	default:
		return PlatformUnknown
	}
}

// detectGenerator recognizes self-hosted platforms from the generator meta tag.
func detectGenerator(doc *goquery.Document) Platform {
	generator, _ := doc.Find(`meta[name="generator"]`).First().Attr("content")
	generator = strings.ToLower(generator)
	switch {
	case strings.Contains(generator, "wordpress"):
		return PlatformWordPress
	case strings.Contains(generator, "ghost"):
		return PlatformGhost
	case strings.Contains(generator, "substack"):
		return PlatformSubstack
	default:
		return PlatformUnknown
	}
}

// PlatformContentSelectors returns content selectors optimized for a specific
// platform, followed by the generic news selectors.
func PlatformContentSelectors(platform Platform) []string {
	var specific []string
	switch platform {
	case PlatformSubstack:
		specific = []string{".available-content .body", ".post-content", ".body.markup"}
	case PlatformMedium:
		specific = []string{"article section", "[data-testid='storyContent']"}
	case PlatformWordPress:
		specific = []string{".entry-content", ".post-entry", "article .content"}
	case PlatformGhost:
		specific = []string{".gh-content", ".post-full-content", ".kg-card-markdown"}
	}
	return append(specific, DefaultTextSelectors()...)
}

// PlatformNoiseSelectors returns noise exclusion selectors for a specific platform.
func PlatformNoiseSelectors(platform Platform) []string {
	switch platform {
	case PlatformSubstack:
		return []string{".subscription-widget-wrap", ".subscribe-widget", ".post-footer", ".comments-section"}
	case PlatformMedium:
		return []string{".pw-multi-vote-count", "[data-testid='headerClapButton']", ".speechify-ignore"}
	case PlatformWordPress:
		return []string{".sharedaddy", ".jp-relatedposts", ".comments-area", ".wp-block-buttons"}
	case PlatformGhost:
		return []string{".gh-subscribe", ".gh-post-upgrade-cta", ".footer-cta"}
	default:
		return nil
	}
}
