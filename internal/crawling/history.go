package crawling

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/zeroecho/internal/types"
)

// DefaultCooldown suppresses refetching a URL seen within this window.
const DefaultCooldown = 6 * time.Hour

type historyEntry struct {
	URL    string    `yaml:"url"`
	SeenAt time.Time `yaml:"seen_at"`
}

// History remembers when each URL was last fetched. It is backed by an
// append-only YAML sequence file; an empty path keeps it in memory only.
type History struct {
	path     string
	cooldown time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
}

// OpenHistory loads the history file at path, creating its directory if needed.
func OpenHistory(path string, cooldown time.Duration) (*History, error) {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	h := &History{path: path, cooldown: cooldown, seen: make(map[string]time.Time)}
	if path == "" {
		return h, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &CrawlError{Message: "failed to create history directory", Cause: err}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return h, nil
	}
	if err != nil {
		return nil, &CrawlError{Message: "failed to read history", Cause: err}
	}

	var entries []historyEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, &CrawlError{Message: fmt.Sprintf("failed to parse history %s", path), Cause: err}
	}
	for _, e := range entries {
		key := types.NormalizeURL(e.URL)
		if e.SeenAt.After(h.seen[key]) {
			h.seen[key] = e.SeenAt
		}
	}
	return h, nil
}

// RecentlySeen reports whether url was fetched within the cooldown of now.
func (h *History) RecentlySeen(url string, now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	last, ok := h.seen[types.NormalizeURL(url)]
	return ok && now.Sub(last) < h.cooldown
}

// LastSeen returns when url was last fetched.
func (h *History) LastSeen(url string) (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	last, ok := h.seen[types.NormalizeURL(url)]
	return last, ok
}

// Record marks url as fetched at t and appends it to the history file.
func (h *History) Record(url string, t time.Time) error {
	key := types.NormalizeURL(url)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen[key] = t

	if h.path == "" {
		return nil
	}
	chunk, err := yaml.Marshal([]historyEntry{{URL: key, SeenAt: t.UTC()}})
	if err != nil {
		return &CrawlError{Message: "failed to encode history entry", Cause: err}
	}
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &CrawlError{Message: "failed to open history", Cause: err}
	}
	if _, err := f.Write(chunk); err != nil {
		_ = f.Close()
		return &CrawlError{Message: "failed to append history", Cause: err}
	}
	return f.Close()
}

// Len returns the number of distinct URLs remembered.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}
