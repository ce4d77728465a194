package resolve

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/padlock/pkg/metadata"
)

// memo caches registry lookups for the duration of one resolution run.
// Results, including failures, are recorded at most once per package
// name; concurrent requests for the same name collapse into a single
// fetch. Failures stay memoized because the run treats each one as
// terminal for that attempt.
type memo struct {
	src metadata.Source
	sf  singleflight.Group

	mu      sync.RWMutex
	results map[string]memoResult

	// g carries background prefetches; nil when prefetching is off.
	g    *errgroup.Group
	gctx context.Context
}

type memoResult struct {
	releases []metadata.Release
	err      error
}

func newMemo(src metadata.Source) *memo {
	return &memo{src: src, results: map[string]memoResult{}}
}

func (m *memo) get(name string) (memoResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.results[name]
	return r, ok
}

func (m *memo) put(name string, releases []metadata.Release, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[name] = memoResult{releases: releases, err: err}
}

// fetch returns the memoized releases for name, performing the
// registry lookup on first use.
func (m *memo) fetch(ctx context.Context, name string) ([]metadata.Release, error) {
	name = metadata.NormalizeName(name)
	if r, ok := m.get(name); ok {
		return r.releases, r.err
	}

	v, err, _ := m.sf.Do(name, func() (any, error) {
		if r, ok := m.get(name); ok {
			return r.releases, r.err
		}
		releases, err := m.src.FetchVersions(ctx, name)
		m.put(name, releases, err)
		return releases, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]metadata.Release), nil
}

// prefetch warms the memo for the given names with at most limit
// concurrent lookups. Failures are left memoized for the solver to
// surface when (and if) it actually needs the package.
func (m *memo) prefetch(ctx context.Context, names []string, limit int) {
	m.g, m.gctx = errgroup.WithContext(ctx)
	m.g.SetLimit(limit)
	for _, name := range names {
		m.prefetchOne(ctx, name)
	}
}

// prefetchOne schedules a background lookup for name. No-op when
// prefetching is disabled.
func (m *memo) prefetchOne(_ context.Context, name string) {
	if m.g == nil {
		return
	}
	m.g.Go(func() error {
		_, _ = m.fetch(m.gctx, name)
		return nil
	})
}

// wait drains outstanding prefetches so no lookup outlives the run.
func (m *memo) wait() {
	if m.g != nil {
		_ = m.g.Wait()
	}
}
