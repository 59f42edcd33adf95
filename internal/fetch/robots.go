package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// DefaultRobotsTTL is how long a parsed robots.txt is reused for a host.
const DefaultRobotsTTL = 24 * time.Hour

const maxRobotsBytes = 512 * 1024

// Robots checks URLs against each host's robots.txt and caches the rules.
// A missing, unreachable or unparseable robots.txt allows everything.
type Robots struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	now       func() time.Time

	mu    sync.RWMutex
	hosts map[string]*robotsEntry
}

type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

// NewRobots creates a robots.txt checker.
func NewRobots(client *http.Client, userAgent string, ttl time.Duration) *Robots {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if ttl <= 0 {
		ttl = DefaultRobotsTTL
	}
	return &Robots{
		client:    client,
		userAgent: userAgent,
		ttl:       ttl,
		now:       time.Now,
		hosts:     make(map[string]*robotsEntry),
	}
}

// Allowed reports whether rawURL may be fetched.
func (r *Robots) Allowed(ctx context.Context, rawURL string) (bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false, fmt.Errorf("robots: parse url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	if host == "" {
		return false, fmt.Errorf("robots: empty host in url %q", rawURL)
	}

	entry := r.entry(ctx, parsed.Scheme, host)
	if entry.data == nil {
		return true, nil
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	return entry.data.TestAgent(path, r.userAgent), nil
}

// CrawlDelay returns the Crawl-delay robots.txt declares for host, or 0.
func (r *Robots) CrawlDelay(host string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.hosts[strings.ToLower(host)]
	if !ok || entry.data == nil {
		return 0
	}
	group := entry.data.FindGroup(r.userAgent)
	if group == nil {
		return 0
	}
	return group.CrawlDelay
}

func (r *Robots) entry(ctx context.Context, scheme, host string) *robotsEntry {
	r.mu.RLock()
	entry, ok := r.hosts[host]
	r.mu.RUnlock()
	if ok && r.now().Sub(entry.fetchedAt) <= r.ttl {
		return entry
	}

	entry = &robotsEntry{fetchedAt: r.now(), data: r.load(ctx, scheme, host)}

	r.mu.Lock()
	r.hosts[host] = entry
	r.mu.Unlock()
	return entry
}

// load fetches and parses robots.txt. nil means allow all.
func (r *Robots) load(ctx context.Context, scheme, host string) *robotstxt.RobotsData {
	if scheme == "" {
		scheme = "https"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scheme+"://"+host+"/robots.txt", http.NoBody)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil
	}
	return data
}
