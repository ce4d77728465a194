package metadata

import (
	"testing"

	"github.com/matzehuels/padlock/pkg/marker"
	"github.com/matzehuels/padlock/pkg/pep440"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"requests", "requests"},
		{"Django", "django"},
		{"zope.interface", "zope-interface"},
		{"ruamel.yaml.clib", "ruamel-yaml-clib"},
		{"backports.ssl_match_hostname", "backports-ssl-match-hostname"},
		{"typing_extensions", "typing-extensions"},
		{"Friendly--Bard", "friendly-bard"},
		{"  charset_normalizer  ", "charset-normalizer"},
	}
	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		name       string
		in         string
		wantName   string
		wantSet    string
		wantExtras []string
		wantMarker bool
	}{
		{
			name:     "BareName",
			in:       "requests",
			wantName: "requests",
			wantSet:  "*",
		},
		{
			name:     "SimpleConstraint",
			in:       "urllib3>=1.21.1,<3",
			wantName: "urllib3",
			wantSet:  ">=1.21.1,<3",
		},
		{
			name:     "ParenthesizedConstraint",
			in:       "idna (>=2.5,<4)",
			wantName: "idna",
			wantSet:  ">=2.5,<4",
		},
		{
			name:       "ExtrasAndMarker",
			in:         `requests[socks,security] (>=2.7.9) ; python_version >= "3.6"`,
			wantName:   "requests",
			wantSet:    ">=2.7.9",
			wantExtras: []string{"socks", "security"},
			wantMarker: true,
		},
		{
			name:       "MarkerWithoutConstraint",
			in:         `colorama ; sys_platform == "win32"`,
			wantName:   "colorama",
			wantSet:    "*",
			wantMarker: true,
		},
		{
			name:     "NameNormalized",
			in:       "Typing_Extensions>=4.0",
			wantName: "typing-extensions",
			wantSet:  ">=4.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dep, err := ParseRequirement(tt.in)
			if err != nil {
				t.Fatalf("ParseRequirement(%q): %v", tt.in, err)
			}
			if dep.Name != tt.wantName {
				t.Errorf("Name = %q, want %q", dep.Name, tt.wantName)
			}
			if got := dep.Constraint.String(); got != tt.wantSet {
				t.Errorf("Constraint = %q, want %q", got, tt.wantSet)
			}
			if len(dep.Extras) != len(tt.wantExtras) {
				t.Fatalf("Extras = %v, want %v", dep.Extras, tt.wantExtras)
			}
			for i := range tt.wantExtras {
				if dep.Extras[i] != tt.wantExtras[i] {
					t.Errorf("Extras = %v, want %v", dep.Extras, tt.wantExtras)
					break
				}
			}
			if (dep.Marker != nil) != tt.wantMarker {
				t.Errorf("Marker = %v, want present=%v", dep.Marker, tt.wantMarker)
			}
		})
	}
}

func TestParseRequirementMarkerEvaluates(t *testing.T) {
	dep, err := ParseRequirement(`tomli>=1.1.0 ; python_version < "3.11"`)
	if err != nil {
		t.Fatalf("ParseRequirement: %v", err)
	}

	old := marker.NewEnvironment(map[string]string{"python_version": "3.10"})
	if !dep.Marker.Eval(old) {
		t.Error("Eval(3.10) = false, want true")
	}
	current := marker.NewEnvironment(map[string]string{"python_version": "3.12"})
	if dep.Marker.Eval(current) {
		t.Error("Eval(3.12) = true, want false")
	}
}

func TestParseRequirementInvalid(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"[extra]",
		"pkg[unterminated",
		"pkg >= not.a.version",
		`pkg ; python_version >=`,
	}
	for _, in := range tests {
		if _, err := ParseRequirement(in); err == nil {
			t.Errorf("ParseRequirement(%q) should fail", in)
		}
	}
}

func TestParseRequirementConstraintMatches(t *testing.T) {
	dep, err := ParseRequirement("charset-normalizer (>=2,<4)")
	if err != nil {
		t.Fatalf("ParseRequirement: %v", err)
	}
	if !dep.Constraint.Matches(pep440.MustParse("3.3.2")) {
		t.Error("3.3.2 should satisfy >=2,<4")
	}
	if dep.Constraint.Matches(pep440.MustParse("4.0")) {
		t.Error("4.0 should not satisfy >=2,<4")
	}
}
