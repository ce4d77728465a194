package pep440

import (
	"slices"
	"strings"

	"github.com/matzehuels/padlock/pkg/errors"
)

// Op is a comparator operator of a version specifier clause.
type Op string

// Supported comparator operators, longest spelling first for parsing.
const (
	OpCompatible Op = "~="  // compatible release
	OpArbitrary  Op = "===" // arbitrary (string) equality
	OpEq         Op = "=="
	OpNe         Op = "!="
	OpGe         Op = ">="
	OpLe         Op = "<="
	OpGt         Op = ">"
	OpLt         Op = "<"
)

// parse order matters: "===" before "==", ">=" before ">".
var opOrder = []Op{OpArbitrary, OpCompatible, OpEq, OpNe, OpGe, OpLe, OpGt, OpLt}

// Specifier is a single comparator clause such as ">=1.2" or "!=1.3.*".
type Specifier struct {
	Op      Op
	Operand string // raw operand, may end in ".*" for wildcard clauses

	version  Version // parsed operand (wildcard suffix stripped)
	wildcard bool
}

// ParseSpecifier parses a single clause. A bare version is treated as an
// exact pin ("1.2.3" means "==1.2.3").
func ParseSpecifier(text string) (Specifier, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Specifier{}, errors.New(errors.ErrCodeInvalidConstraint, "empty specifier")
	}

	op := OpEq
	for _, candidate := range opOrder {
		if strings.HasPrefix(s, string(candidate)) {
			op = candidate
			s = strings.TrimSpace(strings.TrimPrefix(s, string(candidate)))
			break
		}
	}
	if s == "" {
		return Specifier{}, errors.New(errors.ErrCodeInvalidConstraint, "specifier %q has no version operand", text)
	}

	spec := Specifier{Op: op, Operand: s}

	if strings.HasSuffix(s, ".*") {
		if op != OpEq && op != OpNe {
			return Specifier{}, errors.New(errors.ErrCodeInvalidConstraint, "wildcard not allowed with %s in %q", op, text)
		}
		spec.wildcard = true
		s = strings.TrimSuffix(s, ".*")
	}

	if op == OpArbitrary {
		// Arbitrary equality compares raw strings; no version parse.
		return spec, nil
	}

	v, err := Parse(s)
	if err != nil {
		return Specifier{}, errors.Wrap(errors.ErrCodeInvalidConstraint, err, "specifier %q", text)
	}
	if op == OpCompatible && len(v.Release) < 2 {
		return Specifier{}, errors.New(errors.ErrCodeInvalidConstraint, "~= requires at least two release segments in %q", text)
	}
	spec.version = v

	return spec, nil
}

// Matches reports whether v satisfies the clause.
func (s Specifier) Matches(v Version) bool {
	switch s.Op {
	case OpArbitrary:
		return v.String() == s.Operand
	case OpEq:
		if s.wildcard {
			return s.prefixMatch(v)
		}
		return v.Equal(s.version)
	case OpNe:
		if s.wildcard {
			return !s.prefixMatch(v)
		}
		return !v.Equal(s.version)
	case OpGe:
		return v.Compare(s.version) >= 0
	case OpLe:
		return v.Compare(s.version) <= 0
	case OpGt:
		// ">V" must not match a post-release of V itself.
		if s.version.Post == nil && v.Post != nil && sameReleasePoint(v, s.version) {
			return false
		}
		return v.Compare(s.version) > 0
	case OpLt:
		// "<V" must not match a pre-release of V itself.
		if !s.version.IsPrerelease() && v.IsPrerelease() && sameReleasePoint(v, s.version) {
			return false
		}
		return v.Compare(s.version) < 0
	case OpCompatible:
		// ~=X.Y.Z is >=X.Y.Z with the X.Y series fixed.
		if v.Compare(s.version) < 0 {
			return false
		}
		prefix := s.version.Release[:len(s.version.Release)-1]
		return v.Epoch == s.version.Epoch && releaseHasPrefix(v.Release, prefix)
	default:
		return false
	}
}

// prefixMatch implements "==X.Y.*": the epoch must match and the release
// tuple must start with the operand's release segments.
func (s Specifier) prefixMatch(v Version) bool {
	return v.Epoch == s.version.Epoch && releaseHasPrefix(v.Release, s.version.Release)
}

// sameReleasePoint reports whether a and b share epoch and (zero-padded)
// release segments, ignoring pre/post/dev/local.
func sameReleasePoint(a, b Version) bool {
	return a.Epoch == b.Epoch && cmpRelease(a.Release, b.Release) == 0
}

func releaseHasPrefix(release, prefix []int) bool {
	for i, want := range prefix {
		got := 0
		if i < len(release) {
			got = release[i]
		}
		if got != want {
			return false
		}
	}
	return true
}

// String returns the clause in canonical "op operand" form.
func (s Specifier) String() string { return string(s.Op) + s.Operand }

// SpecifierSet is a conjunction of clauses. The empty set matches every
// version ("any").
type SpecifierSet struct {
	clauses []Specifier
}

// Any returns the specifier set that matches every version.
func Any() SpecifierSet { return SpecifierSet{} }

// ParseSet parses a comma-separated conjunction of clauses. The empty
// string and "*" both denote the any-version set.
func ParseSet(text string) (SpecifierSet, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || trimmed == "*" {
		return Any(), nil
	}

	var set SpecifierSet
	for _, part := range strings.Split(trimmed, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		spec, err := ParseSpecifier(part)
		if err != nil {
			return SpecifierSet{}, err
		}
		set.clauses = append(set.clauses, spec)
	}
	set.normalize()
	return set, nil
}

// MustParseSet parses text and panics on error. For tests and literals.
func MustParseSet(text string) SpecifierSet {
	set, err := ParseSet(text)
	if err != nil {
		panic(err)
	}
	return set
}

// Matches reports whether v satisfies every clause in the set.
func (s SpecifierSet) Matches(v Version) bool {
	for _, clause := range s.clauses {
		if !clause.Matches(v) {
			return false
		}
	}
	return true
}

// IsAny reports whether the set has no clauses.
func (s SpecifierSet) IsAny() bool { return len(s.clauses) == 0 }

// Clauses returns the clauses in canonical order.
func (s SpecifierSet) Clauses() []Specifier { return slices.Clone(s.clauses) }

// String renders the set as a comma-joined conjunction, or "*" for the
// any-version set.
func (s SpecifierSet) String() string {
	if s.IsAny() {
		return "*"
	}
	parts := make([]string, len(s.clauses))
	for i, c := range s.clauses {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

// Intersect returns the conjunction of s and other. Clauses are unioned
// and deduplicated, which makes the operation associative and
// commutative; satisfiability of the result is not checked here, an
// unsatisfiable set simply matches no version.
func (s SpecifierSet) Intersect(other SpecifierSet) SpecifierSet {
	out := SpecifierSet{clauses: slices.Concat(s.clauses, other.clauses)}
	out.normalize()
	return out
}

// normalize sorts clauses and drops duplicates so that equal sets have
// equal representations regardless of construction order.
func (s *SpecifierSet) normalize() {
	slices.SortFunc(s.clauses, func(a, b Specifier) int {
		if c := strings.Compare(a.Operand, b.Operand); c != 0 {
			return c
		}
		return strings.Compare(string(a.Op), string(b.Op))
	})
	s.clauses = slices.CompactFunc(s.clauses, func(a, b Specifier) bool {
		return a.Op == b.Op && a.Operand == b.Operand
	})
}
