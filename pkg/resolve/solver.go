package resolve

import (
	"context"
	"slices"

	"github.com/matzehuels/padlock/pkg/errors"
	"github.com/matzehuels/padlock/pkg/marker"
	"github.com/matzehuels/padlock/pkg/metadata"
	"github.com/matzehuels/padlock/pkg/pep440"
)

// solver holds the per-run collaborators and search bookkeeping. The
// search itself carries its state explicitly so that backtracking is a
// matter of discarding a child state, never undoing shared mutation.
type solver struct {
	memo     *memo
	env      marker.Environment
	max      int
	attempts int
	logf     func(string, ...any)

	// last holds the most informative dead end seen so far. The edge
	// count is the yardstick: a conflict citing two contradicting
	// demands beats one citing a lone exhausted root.
	last *Conflict
}

func (s *solver) remember(c Conflict) {
	if s.last == nil || len(c.Edges) > len(s.last.Edges) {
		s.last = &c
	}
}

// state is one node of the search: a partial assignment plus the
// accumulated constraint and demand bookkeeping per package name.
type state struct {
	assigned map[string]metadata.Release
	cons     map[string]pep440.SpecifierSet
	edges    map[string][]Edge
	extras   map[string]map[string]bool
}

func newState() *state {
	return &state{
		assigned: map[string]metadata.Release{},
		cons:     map[string]pep440.SpecifierSet{},
		edges:    map[string][]Edge{},
		extras:   map[string]map[string]bool{},
	}
}

func (st *state) clone() *state {
	child := &state{
		assigned: make(map[string]metadata.Release, len(st.assigned)),
		cons:     make(map[string]pep440.SpecifierSet, len(st.cons)),
		edges:    make(map[string][]Edge, len(st.edges)),
		extras:   make(map[string]map[string]bool, len(st.extras)),
	}
	for k, v := range st.assigned {
		child.assigned[k] = v
	}
	for k, v := range st.cons {
		child.cons[k] = v
	}
	for k, v := range st.edges {
		child.edges[k] = slices.Clone(v)
	}
	for k, v := range st.extras {
		inner := make(map[string]bool, len(v))
		for e := range v {
			inner[e] = true
		}
		child.extras[k] = inner
	}
	return child
}

// conflictError signals a dead end to the enclosing search node. It
// never escapes the package; Resolve converts it to UnresolvableError.
type conflictError struct {
	conflict Conflict
}

func (e *conflictError) Error() string { return e.conflict.String() }

// demand narrows the accumulated constraint on an edge's target and
// records the edge for diagnostics. grew reports whether the edge
// activated extras the target had not been requested with before. A
// conflictError means the target is already pinned to a version the
// edge rejects.
func (st *state) demand(e Edge) (grew bool, err error) {
	name := e.Dependency.Name
	st.cons[name] = st.cons[name].Intersect(e.Dependency.Constraint)
	st.edges[name] = append(st.edges[name], e)

	for _, extra := range e.Dependency.Extras {
		if st.extras[name] == nil {
			st.extras[name] = map[string]bool{}
		}
		if !st.extras[name][extra] {
			st.extras[name][extra] = true
			grew = true
		}
	}

	if rel, ok := st.assigned[name]; ok && !e.Dependency.Constraint.Matches(rel.Version) {
		return grew, &conflictError{Conflict{Package: name, Edges: slices.Clone(st.edges[name])}}
	}
	return grew, nil
}

// solve runs the depth-first search to completion, returning the final
// state or an error. conflictError means this subtree has no solution.
func (s *solver) solve(ctx context.Context, st *state) (*state, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeTimeout, err, "resolution aborted")
	}
	s.attempts++
	if s.attempts > s.max {
		conflict := Conflict{}
		if s.last != nil {
			conflict = *s.last
		}
		return nil, errors.Wrap(errors.ErrCodeUnresolvable,
			&UnresolvableError{Conflict: conflict},
			"search budget of %d attempts exhausted", s.max)
	}

	name, candidates, err := s.pick(ctx, st)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return st, nil // every demanded package is pinned
	}
	if len(candidates) == 0 {
		return nil, s.deadEnd(Conflict{Package: name, Edges: slices.Clone(st.edges[name])})
	}

	for _, rel := range candidates {
		child := st.clone()
		child.assigned[name] = rel
		s.logf("trying %s %s", name, rel.Version)

		if err := s.apply(ctx, child, name); err != nil {
			if ce, ok := asConflict(err); ok {
				s.remember(ce.conflict)
				continue
			}
			return nil, err
		}

		final, err := s.solve(ctx, child)
		if err != nil {
			if ce, ok := asConflict(err); ok {
				s.remember(ce.conflict)
				continue
			}
			return nil, err
		}
		return final, nil
	}

	return nil, s.deadEnd(Conflict{Package: name, Edges: slices.Clone(st.edges[name])})
}

func (s *solver) deadEnd(c Conflict) error {
	s.remember(c)
	return &conflictError{conflict: c}
}

func asConflict(err error) (*conflictError, bool) {
	ce, ok := err.(*conflictError)
	return ce, ok
}

// apply walks the marker-active dependency edges of the release just
// assigned to name, narrowing constraints on their targets. When an
// edge grows the extras of an already-assigned target, that target's
// edges are re-walked so the newly activated conditional dependencies
// join the closure.
func (s *solver) apply(ctx context.Context, st *state, name string) error {
	rel := st.assigned[name]
	from := name + " " + rel.Version.String()
	env := s.envFor(st, name)

	for _, dep := range rel.Dependencies {
		if dep.Marker != nil && !dep.Marker.Eval(env) {
			continue
		}
		grew, err := st.demand(Edge{From: from, Dependency: dep})
		if err != nil {
			return err
		}
		if _, ok := st.assigned[dep.Name]; ok {
			if grew {
				if err := s.apply(ctx, st, dep.Name); err != nil {
					return err
				}
			}
			continue
		}
		s.memo.prefetchOne(ctx, dep.Name)
	}
	return nil
}

// pick chooses the next package to assign: the demanded, unassigned
// package with the fewest remaining candidates, names tie-breaking
// alphabetically for determinism. Empty name means the assignment is
// complete. The returned candidates are newest first.
func (s *solver) pick(ctx context.Context, st *state) (string, []metadata.Release, error) {
	pending := make([]string, 0, len(st.edges))
	for name := range st.edges {
		if _, ok := st.assigned[name]; !ok {
			pending = append(pending, name)
		}
	}
	if len(pending) == 0 {
		return "", nil, nil
	}
	slices.Sort(pending)

	var (
		best     string
		bestCand []metadata.Release
	)
	for _, name := range pending {
		cand, err := s.candidates(ctx, st, name)
		if err != nil {
			return "", nil, err
		}
		if best == "" || len(cand) < len(bestCand) {
			best, bestCand = name, cand
			if len(cand) == 0 {
				break // cannot get more constrained than impossible
			}
		}
	}
	return best, bestCand, nil
}

// candidates lists the releases of name admitted by its accumulated
// constraint, newest first. Pre-releases are held back unless the
// constraint explicitly names one, falling back to them only when no
// stable release qualifies.
func (s *solver) candidates(ctx context.Context, st *state, name string) ([]metadata.Release, error) {
	releases, err := s.memo.fetch(ctx, name)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Wrap(errors.ErrCodeTimeout, ctxErr, "resolution aborted")
		}
		return nil, err
	}

	set := st.cons[name]
	matched := make([]metadata.Release, 0, len(releases))
	for _, rel := range releases {
		if !set.Matches(rel.Version) {
			continue
		}
		if !s.pythonCompatible(rel) {
			continue
		}
		matched = append(matched, rel)
	}

	if !allowsPrerelease(set) {
		stable := make([]metadata.Release, 0, len(matched))
		for _, rel := range matched {
			if !rel.Version.IsPrerelease() {
				stable = append(stable, rel)
			}
		}
		if len(stable) > 0 {
			return stable, nil
		}
	}
	return matched, nil
}

// pythonCompatible checks a release's supported-interpreter constraint
// against the environment's interpreter version, when both are known.
func (s *solver) pythonCompatible(rel metadata.Release) bool {
	if rel.RequiresPython.IsAny() {
		return true
	}
	fact, ok := s.env.Facts["python_full_version"]
	if !ok {
		fact, ok = s.env.Facts["python_version"]
	}
	if !ok {
		return true
	}
	v, err := pep440.Parse(fact)
	if err != nil {
		return true
	}
	return rel.RequiresPython.Matches(v)
}

func allowsPrerelease(set pep440.SpecifierSet) bool {
	for _, clause := range set.Clauses() {
		if v, err := pep440.Parse(clause.Operand); err == nil && v.IsPrerelease() {
			return true
		}
	}
	return false
}
