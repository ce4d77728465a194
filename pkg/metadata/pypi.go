package metadata

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/padlock/pkg/cache"
	"github.com/matzehuels/padlock/pkg/errors"
	"github.com/matzehuels/padlock/pkg/httputil"
	"github.com/matzehuels/padlock/pkg/integrity"
	"github.com/matzehuels/padlock/pkg/observability"
	"github.com/matzehuels/padlock/pkg/pep440"
)

const (
	// DefaultBaseURL is the public PyPI JSON API.
	DefaultBaseURL = "https://pypi.org"

	// DefaultMaxVersions caps how many releases per package are fully
	// hydrated (dependency metadata requires one request per release).
	// Newest releases are preferred, matching the selection policy.
	DefaultMaxVersions = 25

	// DefaultCacheTTL is how long registry responses stay cached.
	DefaultCacheTTL = 24 * time.Hour

	// hydrateWorkers bounds concurrent per-release metadata requests.
	hydrateWorkers = 8
)

// PyPIOptions configures a [PyPI] source.
type PyPIOptions struct {
	BaseURL     string               // registry endpoint (default: pypi.org)
	MaxVersions int                  // releases to hydrate per package
	CacheTTL    time.Duration        // response cache duration
	Cache       cache.Cache          // response cache backend (nil: no caching)
	Logger      func(string, ...any) // progress/skip callback (optional)
}

// PyPI implements [Source] against the PyPI JSON API.
type PyPI struct {
	client      *httputil.Client
	base        string
	maxVersions int
	logf        func(string, ...any)
}

// NewPyPI creates a PyPI-backed metadata source.
func NewPyPI(opts PyPIOptions) *PyPI {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.MaxVersions <= 0 {
		opts.MaxVersions = DefaultMaxVersions
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Logger == nil {
		opts.Logger = func(string, ...any) {}
	}
	return &PyPI{
		client:      httputil.NewClient(nil, opts.Cache, opts.CacheTTL),
		base:        opts.BaseURL,
		maxVersions: opts.MaxVersions,
		logf:        opts.Logger,
	}
}

// Wire shapes of the PyPI JSON API.
type pypiIndex struct {
	Releases map[string][]pypiFile `json:"releases"`
}

type pypiRelease struct {
	Info struct {
		Summary        string   `json:"summary"`
		RequiresDist   []string `json:"requires_dist"`
		RequiresPython string   `json:"requires_python"`
	} `json:"info"`
	URLs []pypiFile `json:"urls"`
}

type pypiFile struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Digests  struct {
		SHA256 string `json:"sha256"`
	} `json:"digests"`
	Yanked bool `json:"yanked"`
}

// FetchVersions returns the package's releases newest-first, each
// hydrated with its declared dependencies. Release keys the registry
// publishes with unparsable version numbers are skipped (logged, not
// fatal); malformed dependency metadata on a hydrated release is an
// INVALID_VERSION error, never coerced.
func (p *PyPI) FetchVersions(ctx context.Context, name string) (releases []Release, err error) {
	name = NormalizeName(name)

	observability.Registry().OnFetch(ctx, name)
	start := time.Now()
	defer func() {
		observability.Registry().OnFetchComplete(ctx, name, time.Since(start), err)
	}()

	index, err := p.fetchIndex(ctx, name)
	if err != nil {
		return nil, err
	}

	versions := make([]pep440.Version, 0, len(index.Releases))
	for raw, files := range index.Releases {
		if len(files) == 0 || allYanked(files) {
			continue
		}
		v, err := pep440.Parse(raw)
		if err != nil {
			p.logf("skipping unparsable version %s of %s", raw, name)
			continue
		}
		versions = append(versions, v)
	}
	slices.SortFunc(versions, func(a, b pep440.Version) int { return b.Compare(a) })
	if len(versions) > p.maxVersions {
		versions = versions[:p.maxVersions]
	}

	releases = make([]Release, len(versions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateWorkers)
	for i, v := range versions {
		g.Go(func() error {
			rel, err := p.fetchRelease(gctx, name, v)
			if err != nil {
				return err
			}
			releases[i] = rel
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return releases, nil
}

// FetchArtifact downloads one distribution file of a release. Used by
// the integrity verifier only; responses are never cached.
func (p *PyPI) FetchArtifact(ctx context.Context, name string, version pep440.Version, filename string) ([]byte, error) {
	name = NormalizeName(name)

	index, err := p.fetchIndex(ctx, name)
	if err != nil {
		return nil, err
	}

	for raw, files := range index.Releases {
		v, err := pep440.Parse(raw)
		if err != nil || !v.Equal(version) {
			continue
		}
		for _, f := range files {
			if f.Filename != filename {
				continue
			}
			data, err := httputil.NewClient(nil, nil, 0).Get(ctx, f.URL, true)
			if err != nil {
				return nil, errors.Wrap(errors.ErrCodeMetadataUnavailable, err,
					"download %s for %s %s", filename, name, version)
			}
			return data, nil
		}
	}
	return nil, errors.New(errors.ErrCodeMetadataUnavailable,
		"no artifact %s recorded for %s %s", filename, name, version)
}

func (p *PyPI) fetchIndex(ctx context.Context, name string) (*pypiIndex, error) {
	url := fmt.Sprintf("%s/pypi/%s/json", p.base, name)
	body, err := p.client.Get(ctx, url, false)
	if err != nil {
		if stderrors.Is(err, httputil.ErrNotFound) {
			return nil, errors.New(errors.ErrCodePackageNotFound, "package %s not found", name)
		}
		return nil, errors.Wrap(errors.ErrCodeMetadataUnavailable, err, "fetch %s", name)
	}

	var index pypiIndex
	if err := json.Unmarshal(body, &index); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMetadataUnavailable, err, "decode index for %s", name)
	}
	return &index, nil
}

func (p *PyPI) fetchRelease(ctx context.Context, name string, v pep440.Version) (Release, error) {
	url := fmt.Sprintf("%s/pypi/%s/%s/json", p.base, name, v)
	body, err := p.client.Get(ctx, url, false)
	if err != nil {
		return Release{}, errors.Wrap(errors.ErrCodeMetadataUnavailable, err, "fetch %s %s", name, v)
	}

	var raw pypiRelease
	if err := json.Unmarshal(body, &raw); err != nil {
		return Release{}, errors.Wrap(errors.ErrCodeMetadataUnavailable, err, "decode release %s %s", name, v)
	}

	rel := Release{Version: v, Summary: raw.Info.Summary}

	for _, req := range raw.Info.RequiresDist {
		dep, err := ParseRequirement(req)
		if err != nil {
			return Release{}, errors.Wrap(errors.ErrCodeInvalidVersion, err,
				"dependency %q of %s %s", req, name, v)
		}
		rel.Dependencies = append(rel.Dependencies, dep)
	}

	if raw.Info.RequiresPython != "" {
		set, err := pep440.ParseSet(raw.Info.RequiresPython)
		if err != nil {
			return Release{}, errors.Wrap(errors.ErrCodeInvalidVersion, err,
				"requires-python of %s %s", name, v)
		}
		rel.RequiresPython = set
	}

	for _, f := range raw.URLs {
		if f.Digests.SHA256 == "" {
			continue
		}
		rel.Artifacts = append(rel.Artifacts, integrity.ArtifactHash{
			Filename:  f.Filename,
			Algorithm: integrity.AlgoSHA256,
			Digest:    f.Digests.SHA256,
		})
	}

	return rel, nil
}

func allYanked(files []pypiFile) bool {
	for _, f := range files {
		if !f.Yanked {
			return false
		}
	}
	return true
}
