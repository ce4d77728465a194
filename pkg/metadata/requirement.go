package metadata

import (
	"strings"

	"github.com/matzehuels/padlock/pkg/errors"
	"github.com/matzehuels/padlock/pkg/marker"
	"github.com/matzehuels/padlock/pkg/pep440"
)

// Dependency is one declared dependency edge as a registry (or a
// manifest) states it: a target package, a version constraint, an
// optional environment marker, and the extras requested of the target.
type Dependency struct {
	Name       string // normalized target package name
	Constraint pep440.SpecifierSet
	Marker     marker.Expr // nil when unconditional
	Extras     []string    // extras activated on the target
}

// ParseRequirement parses a PEP 508 dependency string such as
//
//	requests[socks,security] (>=2.7.9,<3) ; python_version >= "3.6"
//
// into a [Dependency]. The requirement name is normalized; parentheses
// around the specifier are optional. Malformed input is rejected with
// an INVALID_CONSTRAINT (or INVALID_MARKER) error.
func ParseRequirement(text string) (Dependency, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Dependency{}, errors.New(errors.ErrCodeInvalidConstraint, "empty requirement")
	}

	var dep Dependency

	// Split off the marker first: everything after the first ";".
	if i := strings.Index(s, ";"); i >= 0 {
		expr, err := marker.Parse(strings.TrimSpace(s[i+1:]))
		if err != nil {
			return Dependency{}, err
		}
		dep.Marker = expr
		s = strings.TrimSpace(s[:i])
	}

	// Name runs until the first extras bracket, space, or operator rune.
	nameEnd := len(s)
	for i, r := range s {
		if r == '[' || r == '(' || r == ' ' || strings.ContainsRune("<>=!~", r) {
			nameEnd = i
			break
		}
	}
	name := strings.TrimSpace(s[:nameEnd])
	if name == "" {
		return Dependency{}, errors.New(errors.ErrCodeInvalidConstraint, "requirement %q has no package name", text)
	}
	dep.Name = NormalizeName(name)
	s = strings.TrimSpace(s[nameEnd:])

	// Optional extras: [a,b].
	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return Dependency{}, errors.New(errors.ErrCodeInvalidConstraint, "unterminated extras in %q", text)
		}
		for _, extra := range strings.Split(s[1:end], ",") {
			if e := strings.TrimSpace(extra); e != "" {
				dep.Extras = append(dep.Extras, strings.ToLower(e))
			}
		}
		s = strings.TrimSpace(s[end+1:])
	}

	// Optional specifier, with or without surrounding parentheses.
	s = strings.TrimSuffix(strings.TrimPrefix(s, "("), ")")
	set, err := pep440.ParseSet(s)
	if err != nil {
		return Dependency{}, err
	}
	dep.Constraint = set

	return dep, nil
}
