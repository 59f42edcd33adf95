// Package registry is the single owner of persistent article state. It keeps
// an in-memory index and a local partition cache in front of a remote
// document store that acts as the system of record.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/zeroecho/internal/db"
	"github.com/jonathan/zeroecho/internal/errs"
	"github.com/jonathan/zeroecho/internal/retry"
	"github.com/jonathan/zeroecho/internal/types"
)

// DefaultEnvironment is the partition namespace when none is configured.
const DefaultEnvironment = "development"

var (
	// ErrNotInitialized is returned by every call on a closed registry.
	ErrNotInitialized = errors.New("registry not initialized")
	// ErrNotFound is returned when no tier knows the article.
	ErrNotFound = errors.New("article not found")
)

// RemoteStore is the durable document store behind the registry.
type RemoteStore interface {
	Get(ctx context.Context, id string) (*types.Article, error)
	Put(ctx context.Context, article *types.Article) error
	UpdateFields(ctx context.Context, id string, updatedAt time.Time, fields ...db.Field) error
	Query(ctx context.Context, q db.Query) ([]*types.Article, error)
}

// Pinger is implemented by stores that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Registry.
type Options struct {
	CacheRoot   string
	Environment string
	Remote      RemoteStore
	Retry       *retry.Policy
	Logger      *zap.Logger
	Now         func() time.Time
}

// Registry tracks per-article state across the index, the local partition
// cache and the remote store.
type Registry struct {
	cache    *partitionCache
	remote   RemoteStore
	retry    *retry.Policy
	logger   *zap.Logger
	now      func() time.Time
	degraded bool
	locks    *keyedMutex

	mu     sync.RWMutex
	index  map[string]*types.Article
	closed bool
}

// New creates a registry. When the remote store cannot be reached the
// registry still starts, serving reads from the cache and failing writes
// with STORE_UNAVAILABLE.
func New(ctx context.Context, opts Options) (*Registry, error) {
	if opts.CacheRoot == "" {
		return nil, errors.New("registry: cache root is required")
	}
	if opts.Remote == nil {
		return nil, errors.New("registry: remote store is required")
	}
	if opts.Environment == "" {
		opts.Environment = DefaultEnvironment
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry == nil {
		opts.Retry = retry.DefaultPolicy()
	}

	cache, err := newPartitionCache(opts.CacheRoot, opts.Environment)
	if err != nil {
		return nil, err
	}

	r := &Registry{
		cache:  cache,
		remote: opts.Remote,
		retry:  opts.Retry,
		logger: opts.Logger.With(zap.String("environment", opts.Environment)),
		now:    opts.Now,
		locks:  newKeyedMutex(),
		index:  make(map[string]*types.Article),
	}

	if p, ok := opts.Remote.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			r.degraded = true
			r.logger.Warn("remote store unreachable, running cache-only", zap.Error(err))
		}
	}
	return r, nil
}

// Close releases the index. Every later call returns ErrNotInitialized.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrNotInitialized
	}
	r.closed = true
	r.index = nil
	return nil
}

// Degraded reports whether the registry runs without its remote store.
func (r *Registry) Degraded() bool {
	return r.degraded
}

func (r *Registry) checkOpen() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrNotInitialized
	}
	return nil
}

// Get returns the article with the given id, loading it lazily from the
// cache or the remote store.
func (r *Registry) Get(ctx context.Context, id string) (*types.Article, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	a, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

// lookup resolves id through index, cache and remote. The result is owned by
// the index and must not be mutated.
func (r *Registry) lookup(ctx context.Context, id string) (*types.Article, error) {
	r.mu.RLock()
	a, ok := r.index[id]
	r.mu.RUnlock()
	if ok {
		return a, nil
	}

	if cached, err := r.cache.find(id); err == nil {
		r.register(cached)
		return cached, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn("cache lookup failed", zap.String("article_id", id), zap.Error(err))
	}

	if r.degraded {
		return nil, ErrNotFound
	}
	remote, err := retry.DoValue(ctx, r.retry, func(ctx context.Context) (*types.Article, error) {
		return r.remote.Get(ctx, id)
	}, nil)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errs.WithArticle(errs.Wrap(errs.StoreUnavailable, "get", err), id)
	}
	if err := r.cache.write(r.located(remote)); err != nil {
		r.logger.Warn("failed to cache remote record", zap.String("article_id", id), zap.Error(err))
	}
	r.register(remote)
	return remote, nil
}

func (r *Registry) register(a *types.Article) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.index != nil {
		r.index[a.ID] = a
	}
}

func (r *Registry) located(a *types.Article) *types.Article {
	if a.CacheLocation == "" {
		a.CacheLocation = r.cache.location(a)
	}
	return a
}

// FindByState returns up to limit articles in state, ordered by created_at
// then id. Remote results win over local copies; cached articles the remote
// no longer reports in this state are verified before being returned. A
// positive limit bounds the remote query, the cache scan and the number of
// local candidates verified.
func (r *Registry) FindByState(ctx context.Context, state types.State, limit int) ([]*types.Article, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	if state == "" {
		return nil, errors.New("registry: state is required")
	}

	local := make(map[string]*types.Article)

	r.mu.RLock()
	for id, a := range r.index {
		if a.State == state {
			local[id] = a
		}
	}
	r.mu.RUnlock()

	cached, err := r.cache.byState(state, limit)
	if err != nil {
		r.logger.Warn("manifest scan failed", zap.Error(err))
	}
	for _, a := range cached {
		if _, ok := local[a.ID]; !ok {
			local[a.ID] = a
		}
	}

	candidates := make(map[string]*types.Article, len(local))
	for _, a := range oldestFirst(local, limit) {
		candidates[a.ID] = a
	}

	if !r.degraded {
		remote, err := retry.DoValue(ctx, r.retry, func(ctx context.Context) ([]*types.Article, error) {
			return r.remote.Query(ctx, db.Query{Field: "state", Op: db.OpEq, Value: string(state), Limit: limit})
		}, nil)
		if err != nil {
			r.logger.Warn("remote query failed, using local state", zap.Error(err))
		} else {
			confirmed := make(map[string]bool, len(remote))
			for _, a := range remote {
				confirmed[a.ID] = true
				candidates[a.ID] = a
				r.register(a)
			}
			for id := range candidates {
				if !confirmed[id] {
					r.verify(ctx, id, state, candidates)
				}
			}
		}
	}

	found := oldestFirst(candidates, limit)
	out := make([]*types.Article, len(found))
	for i, a := range found {
		out[i] = a.Clone()
	}
	return out, nil
}

// oldestFirst sorts articles by created_at then id and keeps at most limit
// of them when limit is positive.
func oldestFirst(articles map[string]*types.Article, limit int) []*types.Article {
	out := make([]*types.Article, 0, len(articles))
	for _, a := range articles {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// verify asks the remote about a locally known candidate. A remote record in
// another state replaces the local one and drops the candidate; a record the
// remote does not know is kept.
func (r *Registry) verify(ctx context.Context, id string, state types.State, candidates map[string]*types.Article) {
	remote, err := r.remote.Get(ctx, id)
	if err != nil {
		return
	}
	if remote.State != state {
		delete(candidates, id)
		r.register(remote)
		if err := r.cache.write(r.located(remote)); err != nil {
			r.logger.Warn("failed to refresh cached record", zap.String("article_id", id), zap.Error(err))
		}
	}
}

// Upsert writes the whole article through every tier: remote first, then
// the local partition, then the index. It returns the stored record.
func (r *Registry) Upsert(ctx context.Context, article *types.Article) (*types.Article, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	if article == nil {
		return nil, errors.New("registry: nil article")
	}
	a := article.Clone()
	if a.ID == "" {
		if a.SourceURL == "" {
			return nil, errors.New("registry: article needs an id or source url")
		}
		a.ID = types.ArticleID(a.SourceURL)
	}
	if a.State == "" {
		a.State = types.StateCollected
	}

	unlock := r.locks.Lock(a.ID)
	defer unlock()

	now := r.now().UTC()
	existing, err := r.lookup(ctx, a.ID)
	switch {
	case err == nil:
		if !types.CanTransition(existing.State, a.State) {
			return nil, conflict("upsert", a.ID, existing.State, a.State)
		}
		a.CreatedAt = existing.CreatedAt
		a.CacheLocation = existing.CacheLocation
	case errors.Is(err, ErrNotFound):
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
	default:
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = now
	r.located(a)

	if err := r.persist(ctx, a, func(ctx context.Context) error {
		return r.remote.Put(ctx, a)
	}); err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

// persist runs the remote write, then stores a in the cache and index.
func (r *Registry) persist(ctx context.Context, a *types.Article, remoteWrite func(context.Context) error) error {
	if r.degraded {
		return &errs.Error{Kind: errs.StoreUnavailable, Op: "write", ArticleID: a.ID, Message: "remote store unavailable"}
	}
	if err := retry.Do(ctx, r.retry, remoteWrite, nil); err != nil {
		if errs.KindOf(err) == "" {
			err = errs.Wrap(errs.StoreUnavailable, "write", err)
		}
		return errs.WithArticle(err, a.ID)
	}
	// The remote holds the record now; a failed cache write is repaired by
	// the next read-through or by RebuildManifests.
	if err := r.cache.write(a); err != nil {
		r.logger.Error("remote write succeeded but cache write failed", zap.String("article_id", a.ID), zap.Error(err))
	}
	r.register(a)
	return nil
}

// update applies mutate to a copy of the article and writes the fields it
// reports as changed, with the new updated_at, in one remote call. No fields
// means nothing changed. A remote that lost the record gets the full copy.
func (r *Registry) update(ctx context.Context, id string, mutate func(a *types.Article) ([]db.Field, error)) (*types.Article, error) {
	if err := r.checkOpen(); err != nil {
		return nil, err
	}
	unlock := r.locks.Lock(id)
	defer unlock()

	current, err := r.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	a := current.Clone()
	fields, err := mutate(a)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return a, nil
	}
	a.UpdatedAt = r.now().UTC()
	r.located(a)

	err = r.persist(ctx, a, func(ctx context.Context) error {
		err := r.remote.UpdateFields(ctx, id, a.UpdatedAt, fields...)
		if errors.Is(err, db.ErrNotFound) {
			r.logger.Warn("remote record missing, restoring full document", zap.String("article_id", id))
			return r.remote.Put(ctx, a)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	r.logger.Debug("article updated", zap.String("article_id", id), zap.Int("fields", len(fields)))
	return a.Clone(), nil
}

func conflict(op, id string, from, to types.State) error {
	return &errs.Error{
		Kind:      errs.StateConflict,
		Op:        op,
		ArticleID: id,
		Message:   fmt.Sprintf("%s -> %s is not a legal transition", from, to),
	}
}

// RebuildManifests regenerates every partition manifest from its records.
func (r *Registry) RebuildManifests(_ context.Context) (int, error) {
	if err := r.checkOpen(); err != nil {
		return 0, err
	}
	return r.cache.rebuild()
}
