// Package pep440 implements PEP 440 version identifiers and version
// specifiers as used by Python package registries.
//
// A [Version] is an ordered value: epoch, release segments, and optional
// pre-release, post-release, dev-release, and local segments. The total
// order follows PEP 440, so for one release number
//
//	1.0.0.dev1 < 1.0.0a1 < 1.0.0b1 < 1.0.0rc1 < 1.0.0 < 1.0.0.post1
//
// A [SpecifierSet] is a conjunction of comparator clauses (">=1.2",
// "!=1.3.*", "~=2.1"). Sets can be intersected without re-deriving their
// clauses; intersection is associative and commutative.
package pep440

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/matzehuels/padlock/pkg/errors"
)

// Ordering sentinels. PEP 440 orders a missing pre/post/dev segment
// differently depending on which other segments are present, so the
// comparison keys use explicit minus/plus infinity ranks instead of
// zero values.
const (
	rankNegInf = -1 << 30
	rankPosInf = 1 << 30
)

// preLabels maps spelling variants to their canonical pre-release label.
var preLabels = map[string]string{
	"a": "a", "alpha": "a",
	"b": "b", "beta": "b",
	"c": "rc", "rc": "rc", "pre": "rc", "preview": "rc",
}

// preRank orders canonical pre-release labels.
var preRank = map[string]int{"a": 0, "b": 1, "rc": 2}

var versionRe = regexp.MustCompile(`(?i)^v?` +
	`(?:(\d+)!)?` + // 1: epoch
	`(\d+(?:\.\d+)*)` + // 2: release
	`(?:[-_.]?(a|b|c|rc|alpha|beta|pre|preview)[-_.]?(\d*))?` + // 3,4: pre
	`(?:(?:-(\d+))|(?:[-_.]?(post|rev|r)[-_.]?(\d*)))?` + // 5,6,7: post
	`(?:[-_.]?(dev)[-_.]?(\d*))?` + // 8,9: dev
	`(?:\+([a-zA-Z0-9]+(?:[-_.][a-zA-Z0-9]+)*))?$`) // 10: local

// Version is a parsed PEP 440 version identifier.
// The zero value is not a valid version; use [Parse].
type Version struct {
	Epoch   int
	Release []int
	Pre     *PreRelease
	Post    *int
	Dev     *int
	Local   string

	original string
}

// PreRelease is an optional pre-release segment (label plus number).
type PreRelease struct {
	Label  string // canonical: "a", "b", or "rc"
	Number int
}

// Parse parses text as a PEP 440 version. Surrounding whitespace and a
// leading "v" are tolerated; anything else malformed is rejected with an
// INVALID_VERSION error, never coerced.
func Parse(text string) (Version, error) {
	trimmed := strings.TrimSpace(text)
	m := versionRe.FindStringSubmatch(trimmed)
	if m == nil || trimmed == "" {
		return Version{}, errors.New(errors.ErrCodeInvalidVersion, "invalid version %q", text)
	}

	v := Version{original: trimmed}

	if m[1] != "" {
		v.Epoch, _ = strconv.Atoi(m[1])
	}
	for _, part := range strings.Split(m[2], ".") {
		n, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, errors.New(errors.ErrCodeInvalidVersion, "invalid release segment in %q", text)
		}
		v.Release = append(v.Release, n)
	}
	if m[3] != "" {
		n := 0
		if m[4] != "" {
			n, _ = strconv.Atoi(m[4])
		}
		v.Pre = &PreRelease{Label: preLabels[strings.ToLower(m[3])], Number: n}
	}
	switch {
	case m[5] != "": // implicit post: "1.0-2"
		n, _ := strconv.Atoi(m[5])
		v.Post = &n
	case m[6] != "": // explicit post: "1.0.post2", "1.0rev2"
		n := 0
		if m[7] != "" {
			n, _ = strconv.Atoi(m[7])
		}
		v.Post = &n
	}
	if m[8] != "" {
		n := 0
		if m[9] != "" {
			n, _ = strconv.Atoi(m[9])
		}
		v.Dev = &n
	}
	v.Local = strings.ToLower(m[10])

	return v, nil
}

// MustParse parses text and panics on error. For tests and literals.
func MustParse(text string) Version {
	v, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as originally written.
func (v Version) String() string { return v.original }

// Canonical returns the normalized form used for equality-insensitive
// comparisons ("1.0.0-alpha1" -> "1.0.0a1").
func (v Version) Canonical() string {
	var b strings.Builder
	if v.Epoch > 0 {
		fmt.Fprintf(&b, "%d!", v.Epoch)
	}
	parts := make([]string, len(v.Release))
	for i, n := range v.Release {
		parts[i] = strconv.Itoa(n)
	}
	b.WriteString(strings.Join(parts, "."))
	if v.Pre != nil {
		fmt.Fprintf(&b, "%s%d", v.Pre.Label, v.Pre.Number)
	}
	if v.Post != nil {
		fmt.Fprintf(&b, ".post%d", *v.Post)
	}
	if v.Dev != nil {
		fmt.Fprintf(&b, ".dev%d", *v.Dev)
	}
	if v.Local != "" {
		fmt.Fprintf(&b, "+%s", v.Local)
	}
	return b.String()
}

// IsPrerelease reports whether v carries a pre-release or dev segment.
func (v Version) IsPrerelease() bool { return v.Pre != nil || v.Dev != nil }

// Compare returns -1, 0, or +1 if v is less than, equal to, or greater
// than other under PEP 440 ordering.
func (v Version) Compare(other Version) int {
	if c := cmpInt(v.Epoch, other.Epoch); c != 0 {
		return c
	}
	if c := cmpRelease(v.Release, other.Release); c != 0 {
		return c
	}
	if c := cmpKeys(v.preKey(), other.preKey()); c != 0 {
		return c
	}
	if c := cmpInt(v.postKey(), other.postKey()); c != 0 {
		return c
	}
	if c := cmpInt(v.devKey(), other.devKey()); c != 0 {
		return c
	}
	return cmpLocal(v.Local, other.Local)
}

// LessThan reports whether v orders strictly before other.
func (v Version) LessThan(other Version) bool { return v.Compare(other) < 0 }

// Equal reports whether v and other denote the same version (local
// segments included).
func (v Version) Equal(other Version) bool { return v.Compare(other) == 0 }

// preKey ranks the pre-release segment. Per PEP 440 a version with only
// a dev segment sorts before any pre-release of the same release, and a
// final release sorts after all of them.
func (v Version) preKey() [2]int {
	switch {
	case v.Pre != nil:
		return [2]int{preRank[v.Pre.Label], v.Pre.Number}
	case v.Post == nil && v.Dev != nil:
		return [2]int{rankNegInf, 0}
	default:
		return [2]int{rankPosInf, 0}
	}
}

func (v Version) postKey() int {
	if v.Post == nil {
		return rankNegInf
	}
	return *v.Post
}

func (v Version) devKey() int {
	if v.Dev == nil {
		return rankPosInf
	}
	return *v.Dev
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpKeys(a, b [2]int) int {
	if c := cmpInt(a[0], b[0]); c != 0 {
		return c
	}
	return cmpInt(a[1], b[1])
}

// cmpRelease compares release tuples with implicit zero padding, so
// 1.0 == 1.0.0 and 1.2 < 1.10.
func cmpRelease(a, b []int) int {
	n := max(len(a), len(b))
	for i := range n {
		av, bv := 0, 0
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if c := cmpInt(av, bv); c != 0 {
			return c
		}
	}
	return 0
}

// cmpLocal compares local version segments: absent < present, numeric
// segments compare numerically and order after alphanumeric ones.
func cmpLocal(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}
	as := splitLocal(a)
	bs := splitLocal(b)
	n := min(len(as), len(bs))
	for i := range n {
		an, aNum := parseLocalSeg(as[i])
		bn, bNum := parseLocalSeg(bs[i])
		switch {
		case aNum && bNum:
			if c := cmpInt(an, bn); c != 0 {
				return c
			}
		case aNum != bNum:
			// Numeric segments order after alphanumeric ones.
			if aNum {
				return 1
			}
			return -1
		default:
			if c := strings.Compare(as[i], bs[i]); c != 0 {
				return c
			}
		}
	}
	return cmpInt(len(as), len(bs))
}

func splitLocal(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '-' || r == '_'
	})
}

func parseLocalSeg(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	return n, err == nil
}
