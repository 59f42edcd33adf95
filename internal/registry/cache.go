package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/zeroecho/internal/types"
)

const (
	manifestName = "manifest.yaml"
	recordExt    = ".yaml"
	dateLayout   = "2006-01-02"
)

// manifest maps article id to its summary for one partition.
type manifest map[string]types.Summary

// partitionCache stores article records under <root>/<env>/<date>/<id>.yaml
// with a manifest.yaml per partition.
type partitionCache struct {
	root  string
	env   string
	locks *keyedMutex
}

func newPartitionCache(root, env string) (*partitionCache, error) {
	if err := os.MkdirAll(filepath.Join(root, env), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache root: %w", err)
	}
	return &partitionCache{root: root, env: env, locks: newKeyedMutex()}, nil
}

// location returns the partition an article belongs to.
func (c *partitionCache) location(a *types.Article) string {
	return c.env + "/" + a.CreatedAt.UTC().Format(dateLayout)
}

func (c *partitionCache) dir(location string) string {
	return filepath.Join(c.root, filepath.FromSlash(location))
}

// write stores the record and updates its partition manifest.
func (c *partitionCache) write(a *types.Article) error {
	location := a.CacheLocation
	if location == "" {
		location = c.location(a)
	}
	dir := c.dir(location)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create partition %s: %w", location, err)
	}

	data, err := yaml.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode article %s: %w", a.ID, err)
	}
	if err := writeAtomic(filepath.Join(dir, a.ID+recordExt), data); err != nil {
		return err
	}

	unlock := c.locks.Lock(location)
	defer unlock()
	m, err := c.readManifest(location)
	if err != nil {
		return err
	}
	m[a.ID] = a.Summarize()
	return c.writeManifest(location, m)
}

func (c *partitionCache) readRecord(path string) (*types.Article, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var a types.Article
	if err := yaml.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return &a, nil
}

// find looks the id up through the manifests first, then by file name.
func (c *partitionCache) find(id string) (*types.Article, error) {
	locations, err := c.partitions()
	if err != nil {
		return nil, err
	}
	for _, location := range locations {
		m, err := c.readManifest(location)
		if err != nil {
			continue
		}
		if _, ok := m[id]; ok {
			if a, err := c.readRecord(filepath.Join(c.dir(location), id+recordExt)); err == nil {
				return a, nil
			}
		}
	}

	matches, err := filepath.Glob(filepath.Join(c.root, c.env, "*", id+recordExt))
	if err != nil {
		return nil, err
	}
	for _, path := range matches {
		if a, err := c.readRecord(path); err == nil {
			return a, nil
		}
	}
	return nil, fs.ErrNotExist
}

// byState returns cached records whose manifest entry has the given state,
// oldest first. A positive limit stops reading records once that many are
// loaded; partitions are named by creation day, so later ones hold nothing older.
func (c *partitionCache) byState(state types.State, limit int) ([]*types.Article, error) {
	locations, err := c.partitions()
	if err != nil {
		return nil, err
	}
	var out []*types.Article
	for _, location := range locations {
		m, err := c.readManifest(location)
		if err != nil {
			continue
		}
		ids := make([]string, 0, len(m))
		for id, summary := range m {
			if summary.State == state {
				ids = append(ids, id)
			}
		}
		sort.Slice(ids, func(i, j int) bool {
			a, b := m[ids[i]], m[ids[j]]
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return ids[i] < ids[j]
		})
		for _, id := range ids {
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
			if a, err := c.readRecord(filepath.Join(c.dir(location), id+recordExt)); err == nil {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

// partitions lists partition locations, oldest first.
func (c *partitionCache) partitions() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(c.root, c.env))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list partitions: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse(dateLayout, e.Name()); err != nil {
			continue
		}
		out = append(out, c.env+"/"+e.Name())
	}
	sort.Strings(out)
	return out, nil
}

func (c *partitionCache) readManifest(location string) (manifest, error) {
	data, err := os.ReadFile(filepath.Join(c.dir(location), manifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", location, err)
	}
	m := manifest{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", location, err)
	}
	return m, nil
}

func (c *partitionCache) writeManifest(location string, m manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest %s: %w", location, err)
	}
	return writeAtomic(filepath.Join(c.dir(location), manifestName), data)
}

// rebuild regenerates every manifest from the records on disk.
func (c *partitionCache) rebuild() (int, error) {
	locations, err := c.partitions()
	if err != nil {
		return 0, err
	}
	for _, location := range locations {
		if err := c.rebuildOne(location); err != nil {
			return 0, err
		}
	}
	return len(locations), nil
}

func (c *partitionCache) rebuildOne(location string) error {
	unlock := c.locks.Lock(location)
	defer unlock()

	entries, err := os.ReadDir(c.dir(location))
	if err != nil {
		return fmt.Errorf("failed to list partition %s: %w", location, err)
	}
	m := manifest{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == manifestName || !strings.HasSuffix(name, recordExt) {
			continue
		}
		a, err := c.readRecord(filepath.Join(c.dir(location), name))
		if err != nil || a.ID == "" {
			continue
		}
		m[a.ID] = a.Summarize()
	}
	return c.writeManifest(location, m)
}

// writeAtomic writes data to a temp file in the target directory and renames
// it into place so readers never observe a partial file.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
