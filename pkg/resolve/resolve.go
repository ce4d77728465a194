// Package resolve turns direct dependency declarations into a fully
// pinned transitive closure.
//
// The search is a depth-first backtracking constraint solver: it picks
// the unassigned package with the fewest remaining candidates, tries
// that package's candidates newest first, and undoes the choice when a
// later edge contradicts it. Given identical registry metadata and
// environment facts, two runs produce identical results; metadata
// requests are the only concurrent part and never touch search state.
package resolve

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/padlock/pkg/errors"
	"github.com/matzehuels/padlock/pkg/integrity"
	"github.com/matzehuels/padlock/pkg/marker"
	"github.com/matzehuels/padlock/pkg/metadata"
	"github.com/matzehuels/padlock/pkg/pep440"
)

// DefaultMaxAttempts bounds the number of search nodes visited before
// the solver gives up on a pathological constraint set.
const DefaultMaxAttempts = 100_000

// Category classifies why a package is in the closure.
type Category string

const (
	CategoryMain Category = "main"
	CategoryDev  Category = "dev"
)

// Root is one direct declaration from the manifest.
type Root struct {
	Dependency metadata.Dependency
	Category   Category
	// Optional marks declarations that only apply when a project
	// extra is requested.
	Optional bool
}

// Options tunes a resolution run. The zero value is usable.
type Options struct {
	// Env supplies the marker facts and active extras the run
	// evaluates dependency conditions against.
	Env marker.Environment
	// MaxAttempts overrides DefaultMaxAttempts when positive.
	MaxAttempts int
	// Prefetch bounds concurrent metadata requests issued ahead of
	// the search. Zero disables prefetching.
	Prefetch int
	// Logger receives progress lines. Nil discards them.
	Logger func(format string, args ...any)
}

// Package is one pinned entry of a resolution.
type Package struct {
	Name           string
	Version        pep440.Version
	Summary        string
	Category       Category
	Optional       bool
	RequiresPython pep440.SpecifierSet
	// Dependencies maps each marker-active dependency of the pinned
	// release to the constraint it declared.
	Dependencies map[string]pep440.SpecifierSet
	// Extras maps each activated extra to the dependency names it
	// pulled in.
	Extras    map[string][]string
	Artifacts []integrity.ArtifactHash
}

// Resolution is a consistent assignment of one version per package.
type Resolution struct {
	// Packages is sorted by name. Exactly one entry exists per
	// normalized package name.
	Packages []*Package
}

// Get returns the pinned entry for a normalized name, or nil.
func (r *Resolution) Get(name string) *Package {
	for _, p := range r.Packages {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Edge records who demanded a package, for conflict diagnostics.
type Edge struct {
	// From is "root" for direct declarations, otherwise the
	// demanding "name version" pair.
	From       string
	Dependency metadata.Dependency
}

func (e Edge) String() string {
	return fmt.Sprintf("%s requires %s %s", e.From, e.Dependency.Name, e.Dependency.Constraint)
}

// Conflict is the set of edges that could not be satisfied together.
type Conflict struct {
	Package string
	Edges   []Edge
}

func (c Conflict) String() string {
	lines := make([]string, len(c.Edges))
	for i, e := range c.Edges {
		lines[i] = e.String()
	}
	return fmt.Sprintf("no version of %s satisfies: %s", c.Package, strings.Join(lines, "; "))
}

// UnresolvableError reports an exhausted search with the conflicting
// edge set it discovered.
type UnresolvableError struct {
	Conflict Conflict
}

func (e *UnresolvableError) Error() string { return e.Conflict.String() }

// Resolve computes a pinned closure for the given roots, or reports
// why none exists. A deadline or cancellation on ctx aborts the search
// with a TIMEOUT error; partial assignments are never returned.
func Resolve(ctx context.Context, src metadata.Source, roots []Root, opts Options) (*Resolution, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = func(string, ...any) {}
	}
	if opts.Env.Facts == nil {
		opts.Env = marker.NewEnvironment(nil)
	}

	s := &solver{
		memo: newMemo(src),
		env:  opts.Env,
		max:  opts.MaxAttempts,
		logf: opts.Logger,
	}

	if opts.Prefetch > 0 {
		names := make([]string, 0, len(roots))
		for _, r := range roots {
			names = append(names, r.Dependency.Name)
		}
		s.memo.prefetch(ctx, names, opts.Prefetch)
		defer s.memo.wait()
	}

	st := newState()
	for _, r := range roots {
		if r.Dependency.Marker != nil && !r.Dependency.Marker.Eval(s.env) {
			continue
		}
		if _, err := st.demand(Edge{From: "root", Dependency: r.Dependency}); err != nil {
			return nil, s.unresolvable(err)
		}
	}

	final, err := s.solve(ctx, st)
	if err != nil {
		return nil, s.unresolvable(err)
	}

	return s.assemble(final, roots)
}

// unresolvable converts the search's internal dead-end signal into the
// public UNRESOLVABLE error carrying the most informative conflict the
// run discovered; anything else passes through unchanged.
func (s *solver) unresolvable(err error) error {
	ce, ok := asConflict(err)
	if !ok {
		return err
	}
	conflict := ce.conflict
	if s.last != nil {
		conflict = *s.last
	}
	return errors.Wrap(errors.ErrCodeUnresolvable,
		&UnresolvableError{Conflict: conflict},
		"no consistent version assignment exists")
}

// assemble converts a complete search state into the public result,
// classifying each package by how the roots reach it.
func (s *solver) assemble(st *state, roots []Root) (*Resolution, error) {
	categories, optionals := classify(st, roots, s.env)

	names := make([]string, 0, len(st.assigned))
	for name := range st.assigned {
		names = append(names, name)
	}
	slices.Sort(names)

	res := &Resolution{Packages: make([]*Package, 0, len(names))}
	for _, name := range names {
		rel := st.assigned[name]

		pkg := &Package{
			Name:           name,
			Version:        rel.Version,
			Summary:        rel.Summary,
			Category:       categories[name],
			Optional:       optionals[name],
			RequiresPython: rel.RequiresPython,
			Dependencies:   map[string]pep440.SpecifierSet{},
			Artifacts:      rel.Artifacts,
		}

		env := s.envFor(st, name)
		for _, dep := range rel.Dependencies {
			if dep.Marker != nil && !dep.Marker.Eval(env) {
				continue
			}
			pkg.Dependencies[dep.Name] = dep.Constraint
		}
		pkg.Extras = extrasMap(rel, st.extras[name], s.env)

		res.Packages = append(res.Packages, pkg)
	}
	return res, nil
}

// classify walks the closure from the roots three times, in rising
// precedence order dev < main, optional last, so that a package shared
// by a main and a dev root ends up categorized main, and a package
// reachable without any extra is never marked optional.
func classify(st *state, roots []Root, env marker.Environment) (map[string]Category, map[string]bool) {
	categories := make(map[string]Category, len(st.assigned))
	optionals := make(map[string]bool, len(st.assigned))

	walk := func(from []Root) map[string]bool {
		seen := map[string]bool{}
		var visit func(name string)
		visit = func(name string) {
			if seen[name] {
				return
			}
			rel, ok := st.assigned[name]
			if !ok {
				return
			}
			seen[name] = true
			pkgEnv := envWithExtras(env, st.extras[name])
			for _, dep := range rel.Dependencies {
				if dep.Marker != nil && !dep.Marker.Eval(pkgEnv) {
					continue
				}
				visit(dep.Name)
			}
		}
		for _, r := range from {
			visit(r.Dependency.Name)
		}
		return seen
	}

	filter := func(category Category, optional bool) []Root {
		var out []Root
		for _, r := range roots {
			if r.Category == category && r.Optional == optional {
				out = append(out, r)
			}
		}
		return out
	}

	for name := range walk(filter(CategoryDev, false)) {
		categories[name] = CategoryDev
	}
	for name := range walk(filter(CategoryMain, false)) {
		categories[name] = CategoryMain
	}
	for name := range st.assigned {
		if _, ok := categories[name]; !ok {
			// Reachable only through optional declarations.
			optionals[name] = true
			categories[name] = CategoryMain
		}
	}
	return categories, optionals
}

// envFor builds the marker environment a package's own dependency
// edges are evaluated against: the run's facts plus the extras the
// package was requested with.
func (s *solver) envFor(st *state, name string) marker.Environment {
	return envWithExtras(s.env, st.extras[name])
}

func envWithExtras(env marker.Environment, extras map[string]bool) marker.Environment {
	for extra := range extras {
		env = env.WithExtra(extra)
	}
	return env
}

// extrasMap reports, for each extra the package was requested with,
// the dependency names that extra activates.
func extrasMap(rel metadata.Release, extras map[string]bool, base marker.Environment) map[string][]string {
	if len(extras) == 0 {
		return nil
	}
	names := make([]string, 0, len(extras))
	for extra := range extras {
		names = append(names, extra)
	}
	slices.Sort(names)

	out := make(map[string][]string, len(names))
	for _, extra := range names {
		plain := base
		with := base.WithExtra(extra)
		var deps []string
		for _, dep := range rel.Dependencies {
			if dep.Marker == nil {
				continue
			}
			if dep.Marker.Eval(with) && !dep.Marker.Eval(plain) {
				deps = append(deps, dep.Name)
			}
		}
		slices.Sort(deps)
		out[extra] = deps
	}
	return out
}
