package pep440

import (
	"slices"
	"testing"

	"github.com/matzehuels/padlock/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string // canonical form
	}{
		{"Simple", "1.0.0", "1.0.0"},
		{"LeadingV", "v2.25.1", "2.25.1"},
		{"Epoch", "2!1.0", "2!1.0"},
		{"PreAlpha", "1.0.0a1", "1.0.0a1"},
		{"PreAlphaSpelled", "1.0.0-alpha1", "1.0.0a1"},
		{"PreBeta", "1.0b2", "1.0b2"},
		{"PreRC", "1.0rc3", "1.0rc3"},
		{"PreC", "1.0c3", "1.0rc3"},
		{"Post", "1.0.0.post1", "1.0.0.post1"},
		{"PostImplicit", "1.0-2", "1.0.post2"},
		{"PostRev", "1.0.rev4", "1.0.post4"},
		{"Dev", "1.0.dev1", "1.0.dev1"},
		{"PreAndDev", "1.0a1.dev2", "1.0a1.dev2"},
		{"Local", "1.0+ubuntu.1", "1.0+ubuntu.1"},
		{"Whitespace", "  1.2.3  ", "1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.in, err)
			}
			if got := v.Canonical(); got != tt.want {
				t.Errorf("Canonical() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, in := range []string{"", "abc", "1.0.x", "1..0", "==1.0", "1.0 2.0"} {
		t.Run(in, func(t *testing.T) {
			if _, err := Parse(in); err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", in)
			} else if !errors.Is(err, errors.ErrCodeInvalidVersion) {
				t.Errorf("Parse(%q) error code = %v, want INVALID_VERSION", in, errors.GetCode(err))
			}
		})
	}
}

func TestCompareOrdering(t *testing.T) {
	// Listed in strictly increasing order; every adjacent pair must
	// compare accordingly and the whole slice must sort back to itself.
	ordered := []string{
		"0.9",
		"1.0.dev1",
		"1.0.dev2",
		"1.0a1",
		"1.0a2",
		"1.0b1",
		"1.0rc1",
		"1.0",
		"1.0+local",
		"1.0.post1",
		"1.0.post2",
		"1.0.1",
		"1.2",
		"1.10",
		"2!0.1",
	}

	versions := make([]Version, len(ordered))
	for i, s := range ordered {
		versions[i] = MustParse(s)
	}

	for i := 0; i < len(versions)-1; i++ {
		if !versions[i].LessThan(versions[i+1]) {
			t.Errorf("%s < %s = false, want true", ordered[i], ordered[i+1])
		}
		if versions[i+1].LessThan(versions[i]) {
			t.Errorf("%s < %s = true, want false", ordered[i+1], ordered[i])
		}
	}

	shuffled := slices.Clone(versions)
	slices.Reverse(shuffled)
	slices.SortFunc(shuffled, Version.Compare)
	for i := range shuffled {
		if !shuffled[i].Equal(versions[i]) {
			t.Fatalf("sort order diverges at %d: got %s, want %s", i, shuffled[i], versions[i])
		}
	}
}

func TestCompareEqual(t *testing.T) {
	tests := []struct {
		a, b string
	}{
		{"1.0", "1.0.0"},
		{"1.0.0", "v1.0.0"},
		{"1.0-alpha1", "1.0a1"},
		{"1.0.post1", "1.0-1"},
	}
	for _, tt := range tests {
		if !MustParse(tt.a).Equal(MustParse(tt.b)) {
			t.Errorf("%s == %s = false, want true", tt.a, tt.b)
		}
	}
}

func TestIsPrerelease(t *testing.T) {
	if !MustParse("1.0a1").IsPrerelease() {
		t.Error("1.0a1 should be a pre-release")
	}
	if !MustParse("1.0.dev1").IsPrerelease() {
		t.Error("1.0.dev1 should be a pre-release")
	}
	if MustParse("1.0.post1").IsPrerelease() {
		t.Error("1.0.post1 should not be a pre-release")
	}
}
