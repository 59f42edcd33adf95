package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jonathan/zeroecho/internal/db"
	"github.com/jonathan/zeroecho/internal/errs"
	"github.com/jonathan/zeroecho/internal/retry"
	"github.com/jonathan/zeroecho/internal/types"
)

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func noWaitRetry() *retry.Policy {
	return &retry.Policy{
		MaxRetries: 2,
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}
}

func newTestRegistry(t *testing.T, root string, remote RemoteStore) *Registry {
	t.Helper()
	clock := fixedNow
	var mu sync.Mutex
	r, err := New(context.Background(), Options{
		CacheRoot:   root,
		Environment: "test",
		Remote:      remote,
		Retry:       noWaitRetry(),
		Logger:      zaptest.NewLogger(t),
		Now: func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			clock = clock.Add(time.Second)
			return clock
		},
	})
	require.NoError(t, err)
	return r
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), Options{Remote: db.NewMemoryStore()})
	assert.Error(t, err)

	_, err = New(context.Background(), Options{CacheRoot: t.TempDir()})
	assert.Error(t, err)
}

func TestRegistry_UpsertGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	remote := db.NewMemoryStore()
	r := newTestRegistry(t, root, remote)

	published := time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)
	in := types.NewArticle("https://example.com/news/1")
	in.Title = "Rates cut"
	in.PublishedAt = &published

	stored, err := r.Upsert(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, in.ID, stored.ID)
	assert.Equal(t, "test/2026-10-16", stored.CacheLocation)
	assert.False(t, stored.CreatedAt.IsZero())

	got, err := r.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, got)

	fromRemote, err := remote.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, fromRemote)

	// A fresh registry over the same cache resolves the record from disk.
	fresh := newTestRegistry(t, root, db.NewMemoryStore())
	fromCache, err := fresh.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, stored, fromCache)

	_, err = os.Stat(filepath.Join(root, "test", "2026-10-16", in.ID+".yaml"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "test", "2026-10-16", "manifest.yaml"))
	assert.NoError(t, err)
}

func TestRegistry_GetNotFound(t *testing.T) {
	r := newTestRegistry(t, t.TempDir(), db.NewMemoryStore())
	_, err := r.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_GetLoadsFromRemote(t *testing.T) {
	ctx := context.Background()
	remote := db.NewMemoryStore()
	a := types.NewArticle("https://example.com/remote-only")
	a.CreatedAt = fixedNow
	a.UpdatedAt = fixedNow
	require.NoError(t, remote.Put(ctx, a))

	root := t.TempDir()
	r := newTestRegistry(t, root, remote)
	got, err := r.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = os.Stat(filepath.Join(root, "test", "2026-10-16", a.ID+".yaml"))
	assert.NoError(t, err, "remote record is cached on read")
}

func TestRegistry_SetStateChangesOnlyState(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, t.TempDir(), db.NewMemoryStore())

	in := types.NewArticle("https://example.com/news/2")
	in.State = types.StateExtracted
	in.ExtractedText = "body"
	in.Title = "Headline"
	stored, err := r.Upsert(ctx, in)
	require.NoError(t, err)

	updated, err := r.SetState(ctx, in.ID, types.StateAnalyzed)
	require.NoError(t, err)
	assert.Equal(t, types.StateAnalyzed, updated.State)

	got, err := r.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateAnalyzed, got.State)

	got.State = stored.State
	got.UpdatedAt = stored.UpdatedAt
	assert.Equal(t, stored, got)
}

func TestRegistry_IllegalTransitionIsRejected(t *testing.T) {
	ctx := context.Background()
	remote := db.NewMemoryStore()
	r := newTestRegistry(t, t.TempDir(), remote)

	in := types.NewArticle("https://example.com/news/3")
	in.State = types.StatePublished
	_, err := r.Upsert(ctx, in)
	require.NoError(t, err)
	writes := remote.Writes()

	_, err = r.SetState(ctx, in.ID, types.StateCollected)
	require.Error(t, err)
	assert.Equal(t, errs.StateConflict, errs.KindOf(err))

	got, err := r.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatePublished, got.State)
	assert.Equal(t, writes, remote.Writes())

	regress := got.Clone()
	regress.State = types.StateCollected
	_, err = r.Upsert(ctx, regress)
	assert.Equal(t, errs.StateConflict, errs.KindOf(err))
}

func TestRegistry_SameStateIsNoop(t *testing.T) {
	ctx := context.Background()
	remote := db.NewMemoryStore()
	r := newTestRegistry(t, t.TempDir(), remote)

	in := types.NewArticle("https://example.com/news/4")
	_, err := r.Upsert(ctx, in)
	require.NoError(t, err)
	writes := remote.Writes()

	_, err = r.SetState(ctx, in.ID, types.StateCollected)
	require.NoError(t, err)
	assert.Equal(t, writes, remote.Writes())
}

func TestRegistry_SetContentIsOneRemoteWrite(t *testing.T) {
	ctx := context.Background()
	remote := db.NewMemoryStore()
	r := newTestRegistry(t, t.TempDir(), remote)

	in := types.NewArticle("https://example.com/news/content")
	_, err := r.Upsert(ctx, in)
	require.NoError(t, err)
	writes := remote.Writes()

	published := fixedNow.Add(-2 * time.Hour)
	updated, err := r.SetContent(ctx, in.ID, Content{Title: "Headline", ExtractedText: "body", PublishedAt: &published})
	require.NoError(t, err)
	assert.Equal(t, writes+1, remote.Writes())
	assert.Equal(t, types.StateExtracted, updated.State)

	fromRemote, err := remote.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateExtracted, fromRemote.State)
	assert.Equal(t, "Headline", fromRemote.Title)
	assert.Equal(t, "body", fromRemote.ExtractedText)
	require.NotNil(t, fromRemote.PublishedAt)
	assert.True(t, fromRemote.PublishedAt.Equal(published))
}

func TestRegistry_PartialUpdateStampsSameTimeEverywhere(t *testing.T) {
	ctx := context.Background()
	remote := db.NewMemoryStore()
	r := newTestRegistry(t, t.TempDir(), remote)

	in := types.NewArticle("https://example.com/news/stamp")
	in.State = types.StateScored
	_, err := r.Upsert(ctx, in)
	require.NoError(t, err)

	updated, err := r.SetClassification(ctx, in.ID, "featured")
	require.NoError(t, err)

	fromRemote, err := remote.Get(ctx, in.ID)
	require.NoError(t, err)
	assert.True(t, fromRemote.UpdatedAt.Equal(updated.UpdatedAt),
		"remote %s, local %s", fromRemote.UpdatedAt, updated.UpdatedAt)
	assert.Equal(t, types.StateClassified, fromRemote.State)
	assert.Equal(t, "featured", fromRemote.Classification)
}

func TestRegistry_TypedSettersWalkTheStateMachine(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, t.TempDir(), db.NewMemoryStore())

	in := types.NewArticle("https://example.com/news/5")
	_, err := r.Upsert(ctx, in)
	require.NoError(t, err)

	published := fixedNow.Add(-time.Hour)
	_, err = r.SetContent(ctx, in.ID, Content{Title: "T", ExtractedText: "text", PublishedAt: &published})
	require.NoError(t, err)

	raw := &types.RawAnalysis{ImpactEvents: []types.SignalItem{{Label: "e", Value: 3}}}
	_, err = r.SetAnalysis(ctx, in.ID, raw)
	require.NoError(t, err)

	_, err = r.SetScores(ctx, in.ID, types.Scores{ImpactScore: 3, ZeroEchoScore: 6}, types.StateScored)
	require.NoError(t, err)

	_, err = r.SetClassification(ctx, in.ID, "notable")
	require.NoError(t, err)

	_, err = r.SetState(ctx, in.ID, types.StatePublished)
	require.NoError(t, err)

	final, err := r.SetRelease(ctx, in.ID, types.Release{Edition: "ed-1", ReleasedAt: fixedNow})
	require.NoError(t, err)

	assert.Equal(t, types.StateReleased, final.State)
	assert.Equal(t, "T", final.Title)
	assert.Equal(t, "text", final.ExtractedText)
	require.NotNil(t, final.PublishedAt)
	assert.True(t, final.PublishedAt.Equal(published))
	assert.Equal(t, 3.0, final.RawAnalysis.ImpactEvents[0].Value)
	assert.Equal(t, 6.0, final.Scores.ZeroEchoScore)
	assert.Equal(t, "notable", final.Classification)
	assert.Equal(t, "ed-1", final.Release.Edition)

	_, err = r.SetAnalysis(ctx, in.ID, raw)
	assert.Equal(t, errs.StateConflict, errs.KindOf(err))
}

func TestRegistry_FindByState(t *testing.T) {
	ctx := context.Background()
	remote := db.NewMemoryStore()
	r := newTestRegistry(t, t.TempDir(), remote)

	var ids []string
	for i := 0; i < 4; i++ {
		a := types.NewArticle(fmt.Sprintf("https://example.com/find/%d", i))
		a.State = types.StateAnalyzed
		stored, err := r.Upsert(ctx, a)
		require.NoError(t, err)
		ids = append(ids, stored.ID)
	}

	found, err := r.FindByState(ctx, types.StateAnalyzed, 0)
	require.NoError(t, err)
	require.Len(t, found, 4)
	for i, a := range found {
		assert.Equal(t, ids[i], a.ID, "ordered by created_at")
	}

	limited, err := r.FindByState(ctx, types.StateAnalyzed, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	// The remote moved one article on without this registry noticing.
	require.NoError(t, remote.UpdateField(ctx, ids[0], "state", types.StateScored, fixedNow))

	found, err = r.FindByState(ctx, types.StateAnalyzed, 0)
	require.NoError(t, err)
	assert.Len(t, found, 3)

	scored, err := r.FindByState(ctx, types.StateScored, 0)
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, ids[0], scored[0].ID)

	_, err = r.FindByState(ctx, "", 0)
	assert.Error(t, err)
}

// countingRemote records the queries and point reads a registry sends.
type countingRemote struct {
	RemoteStore
	mu      sync.Mutex
	queries []db.Query
	gets    int
}

func (c *countingRemote) Get(ctx context.Context, id string) (*types.Article, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	return c.RemoteStore.Get(ctx, id)
}

func (c *countingRemote) Query(ctx context.Context, q db.Query) ([]*types.Article, error) {
	c.mu.Lock()
	c.queries = append(c.queries, q)
	c.mu.Unlock()
	return c.RemoteStore.Query(ctx, q)
}

func TestRegistry_FindByStateLimitBoundsTheWork(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	r := newTestRegistry(t, root, db.NewMemoryStore())

	var ids []string
	for i := 0; i < 5; i++ {
		a := types.NewArticle(fmt.Sprintf("https://example.com/bounded/%d", i))
		a.State = types.StateAnalyzed
		stored, err := r.Upsert(ctx, a)
		require.NoError(t, err)
		ids = append(ids, stored.ID)
	}

	remote := &countingRemote{RemoteStore: db.NewMemoryStore()}
	fresh := newTestRegistry(t, root, remote)

	found, err := fresh.FindByState(ctx, types.StateAnalyzed, 2)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, ids[0], found[0].ID)
	assert.Equal(t, ids[1], found[1].ID)

	require.Len(t, remote.queries, 1)
	assert.Equal(t, 2, remote.queries[0].Limit)
	assert.Equal(t, 2, remote.gets, "only the kept local candidates are verified")
}

func TestRegistry_FindByStateLimitMergesOldestAcrossTiers(t *testing.T) {
	ctx := context.Background()
	remote := db.NewMemoryStore()
	r := newTestRegistry(t, t.TempDir(), remote)

	tests := []struct {
		name    string
		url     string
		created time.Time
		local   bool
	}{
		{name: "remote oldest", url: "https://example.com/tier/a", created: fixedNow.Add(-3 * time.Hour)},
		{name: "local middle", url: "https://example.com/tier/b", created: fixedNow.Add(-2 * time.Hour), local: true},
		{name: "remote newer", url: "https://example.com/tier/c", created: fixedNow.Add(-time.Hour)},
		{name: "local newest", url: "https://example.com/tier/d", created: fixedNow.Add(-30 * time.Minute), local: true},
	}
	var want []string
	for _, tt := range tests {
		a := types.NewArticle(tt.url)
		a.State = types.StateExtracted
		a.CreatedAt = tt.created
		a.UpdatedAt = tt.created
		if tt.local {
			stored, err := r.Upsert(ctx, a)
			require.NoError(t, err, tt.name)
			want = append(want, stored.ID)
			continue
		}
		require.NoError(t, remote.Put(ctx, a), tt.name)
		want = append(want, a.ID)
	}

	found, err := r.FindByState(ctx, types.StateExtracted, 2)
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, want[0], found[0].ID)
	assert.Equal(t, want[1], found[1].ID)
}

func TestRegistry_FindByStateUsesManifestsAfterRestart(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	r := newTestRegistry(t, root, db.NewMemoryStore())

	a := types.NewArticle("https://example.com/manifest")
	a.State = types.StateScored
	_, err := r.Upsert(ctx, a)
	require.NoError(t, err)

	fresh := newTestRegistry(t, root, db.NewMemoryStore())
	found, err := fresh.FindByState(ctx, types.StateScored, 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, a.ID, found[0].ID)
}

func TestRegistry_DegradedMode(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	healthy := newTestRegistry(t, root, db.NewMemoryStore())
	a := types.NewArticle("https://example.com/degraded")
	_, err := healthy.Upsert(ctx, a)
	require.NoError(t, err)

	down := db.NewMemoryStore()
	down.SetFailure(errors.New("connection refused"))
	r := newTestRegistry(t, root, down)
	require.True(t, r.Degraded())

	got, err := r.Get(ctx, a.ID)
	require.NoError(t, err, "reads are served from the cache")
	assert.Equal(t, a.ID, got.ID)

	_, err = r.SetState(ctx, a.ID, types.StateExtracted)
	assert.Equal(t, errs.StoreUnavailable, errs.KindOf(err))

	_, err = r.Upsert(ctx, types.NewArticle("https://example.com/other"))
	assert.Equal(t, errs.StoreUnavailable, errs.KindOf(err))

	got, err = r.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateCollected, got.State, "failed write leaves state unchanged")
}

func TestRegistry_RemoteOutageDuringWrite(t *testing.T) {
	ctx := context.Background()
	remote := db.NewMemoryStore()
	r := newTestRegistry(t, t.TempDir(), remote)

	a := types.NewArticle("https://example.com/outage")
	_, err := r.Upsert(ctx, a)
	require.NoError(t, err)

	remote.SetFailure(errors.New("timeout"))
	_, err = r.SetState(ctx, a.ID, types.StateExtracted)
	require.Error(t, err)
	assert.Equal(t, errs.StoreUnavailable, errs.KindOf(err))

	remote.SetFailure(nil)
	got, err := r.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateCollected, got.State)
}

func TestRegistry_RestoresMissingRemoteRecord(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	r := newTestRegistry(t, root, db.NewMemoryStore())
	a := types.NewArticle("https://example.com/restore")
	_, err := r.Upsert(ctx, a)
	require.NoError(t, err)

	emptyRemote := db.NewMemoryStore()
	fresh := newTestRegistry(t, root, emptyRemote)
	_, err = fresh.SetState(ctx, a.ID, types.StateExtracted)
	require.NoError(t, err)

	restored, err := emptyRemote.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateExtracted, restored.State)
}

func TestRegistry_ConcurrentWritersSameID(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, t.TempDir(), db.NewMemoryStore())
	a := types.NewArticle("https://example.com/race")
	_, err := r.Upsert(ctx, a)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, results[i] = r.SetState(ctx, a.ID, types.StateExtracted)
		}()
	}
	wg.Wait()

	for _, err := range results {
		assert.NoError(t, err)
	}
	got, err := r.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateExtracted, got.State)
	assert.Zero(t, r.locks.size())
}

func TestRegistry_Close(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t, t.TempDir(), db.NewMemoryStore())
	require.NoError(t, r.Close())

	_, err := r.Get(ctx, "x")
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = r.FindByState(ctx, types.StateCollected, 0)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = r.Upsert(ctx, types.NewArticle("https://example.com/x"))
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = r.SetState(ctx, "x", types.StateExtracted)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, r.Close(), ErrNotInitialized)
}

func TestRegistry_RebuildManifests(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	r := newTestRegistry(t, root, db.NewMemoryStore())

	a := types.NewArticle("https://example.com/rebuild")
	a.State = types.StateClassified
	_, err := r.Upsert(ctx, a)
	require.NoError(t, err)

	manifestPath := filepath.Join(root, "test", "2026-10-16", "manifest.yaml")
	require.NoError(t, os.Remove(manifestPath))

	n, err := r.RebuildManifests(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	m, err := r.cache.readManifest("test/2026-10-16")
	require.NoError(t, err)
	require.Contains(t, m, a.ID)
	assert.Equal(t, types.StateClassified, m[a.ID].State)
}
