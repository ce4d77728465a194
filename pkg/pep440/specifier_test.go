package pep440

import (
	"testing"

	"github.com/matzehuels/padlock/pkg/errors"
)

func TestSpecifierMatches(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		version string
		want    bool
	}{
		{"EqExact", "==1.0.0", "1.0.0", true},
		{"EqPadded", "==1.0", "1.0.0", true},
		{"EqMiss", "==1.0.0", "1.0.1", false},
		{"BareIsPin", "1.2.3", "1.2.3", true},
		{"Ne", "!=1.0.0", "1.0.1", true},
		{"NeMiss", "!=1.0.0", "1.0.0", false},
		{"Ge", ">=2.7.9", "2.25.1", true},
		{"GeBoundary", ">=2.7.9", "2.7.9", true},
		{"GeMiss", ">=2.7.9", "2.7.8", false},
		{"Lt", "<2.0", "1.9.9", true},
		{"LtBoundary", "<2.0", "2.0", false},
		{"LtPre", "<2.0", "2.0a1", false},
		{"Gt", ">1.0", "1.1", true},
		{"GtPost", ">1.0", "1.0.post1", false},
		{"Le", "<=1.0", "1.0", true},
		{"WildcardEq", "==1.4.*", "1.4.7", true},
		{"WildcardEqMiss", "==1.4.*", "1.5.0", false},
		{"WildcardNe", "!=1.4.*", "1.5.0", true},
		{"WildcardNeMiss", "!=1.4.*", "1.4.2", false},
		{"Compatible", "~=2.2", "2.9", true},
		{"CompatibleMiss", "~=2.2", "3.0", false},
		{"CompatiblePatch", "~=1.4.5", "1.4.9", true},
		{"CompatiblePatchMiss", "~=1.4.5", "1.5.0", false},
		{"CompatibleBelow", "~=1.4.5", "1.4.4", false},
		{"Arbitrary", "===1.0+weird", "1.0+weird", true},
		{"ArbitraryMiss", "===1.0", "1.0.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec, err := ParseSpecifier(tt.spec)
			if err != nil {
				t.Fatalf("ParseSpecifier(%q): %v", tt.spec, err)
			}
			if got := spec.Matches(MustParse(tt.version)); got != tt.want {
				t.Errorf("%q matches %q = %v, want %v", tt.spec, tt.version, got, tt.want)
			}
		})
	}
}

func TestParseSpecifierInvalid(t *testing.T) {
	for _, in := range []string{"", ">=", ">=1.x", "~=1", ">1.0.*"} {
		t.Run(in, func(t *testing.T) {
			if _, err := ParseSpecifier(in); err == nil {
				t.Fatalf("ParseSpecifier(%q) succeeded, want error", in)
			} else if !errors.Is(err, errors.ErrCodeInvalidConstraint) {
				t.Errorf("error code = %v, want INVALID_CONSTRAINT", errors.GetCode(err))
			}
		})
	}
}

func TestSpecifierSet(t *testing.T) {
	set := MustParseSet(">=2.7.9, <3.0, !=2.8.*")

	tests := []struct {
		version string
		want    bool
	}{
		{"2.25.1", true},
		{"2.7.9", true},
		{"2.8.1", false},
		{"3.0", false},
		{"2.7.8", false},
	}
	for _, tt := range tests {
		if got := set.Matches(MustParse(tt.version)); got != tt.want {
			t.Errorf("set matches %q = %v, want %v", tt.version, got, tt.want)
		}
	}

	if !MustParseSet("*").IsAny() {
		t.Error(`ParseSet("*") should be the any-version set`)
	}
	if !MustParseSet("").Matches(MustParse("0.0.1")) {
		t.Error("empty set should match everything")
	}
}

func TestIntersect(t *testing.T) {
	a := MustParseSet(">=1.0")
	b := MustParseSet("<2.0")
	c := MustParseSet("!=1.5")

	// Commutative.
	if got, want := a.Intersect(b).String(), b.Intersect(a).String(); got != want {
		t.Errorf("a∩b = %q, b∩a = %q", got, want)
	}

	// Associative.
	left := a.Intersect(b).Intersect(c).String()
	right := a.Intersect(b.Intersect(c)).String()
	if left != right {
		t.Errorf("(a∩b)∩c = %q, a∩(b∩c) = %q", left, right)
	}

	// Idempotent: duplicate clauses collapse.
	if got, want := a.Intersect(a).String(), a.String(); got != want {
		t.Errorf("a∩a = %q, want %q", got, want)
	}

	// The result enforces all clauses.
	all := a.Intersect(b).Intersect(c)
	if all.Matches(MustParse("1.5")) {
		t.Error("1.5 should not match >=1.0,<2.0,!=1.5")
	}
	if !all.Matches(MustParse("1.9")) {
		t.Error("1.9 should match >=1.0,<2.0,!=1.5")
	}
}
