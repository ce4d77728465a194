package lockfile

import (
	"strings"
	"testing"

	"github.com/matzehuels/padlock/pkg/integrity"
	"github.com/matzehuels/padlock/pkg/manifest"
)

const manifestSample = `
[project]
name = "demo"
dependencies = [
    "requests>=2.25,<3",
    'colorama ; sys_platform == "win32"',
]

[project.optional-dependencies]
socks = ["pysocks>=1.5.6"]

[tool.padlock.group.dev]
dependencies = ["pytest>=7"]
`

func freshPair(t *testing.T) (*manifest.Manifest, *Lock) {
	t.Helper()
	m, err := manifest.Parse([]byte(manifestSample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	lock := &Lock{
		LockVersion: Version,
		Packages: []Package{
			{Name: "idna", Version: "3.1", Category: "main", PythonVersions: "*"},
			{Name: "pysocks", Version: "1.7.1", Category: "main", Optional: true, PythonVersions: "*"},
			{Name: "pytest", Version: "7.4.0", Category: "dev", PythonVersions: "*"},
			{
				Name: "requests", Version: "2.25.1", Category: "main", PythonVersions: "*",
				Dependencies: map[string]string{"idna": ">=2.5"},
			},
		},
		Metadata: Metadata{
			ContentHash: m.ContentHash(),
			Files: map[string][]integrity.ArtifactHash{
				"requests": {{Filename: "requests-2.25.1.tar.gz", Algorithm: "sha256", Digest: "aaa"}},
			},
		},
	}
	return m, lock
}

func TestValidateFresh(t *testing.T) {
	m, lock := freshPair(t)
	if v := Validate(m, lock); v.Status != StatusFresh {
		t.Errorf("Validate = %+v, want fresh", v)
	}
}

func TestValidateStale(t *testing.T) {
	t.Run("ManifestConstraintChanged", func(t *testing.T) {
		_, lock := freshPair(t)
		edited := strings.Replace(manifestSample, "requests>=2.25,<3", "requests>=2.26,<3", 1)
		m, err := manifest.Parse([]byte(edited))
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if v := Validate(m, lock); v.Status != StatusStale {
			t.Errorf("Validate = %+v, want stale", v)
		}
	})

	t.Run("PinViolatesDeclaration", func(t *testing.T) {
		m, lock := freshPair(t)
		// Content-hash still matches, but a hand-edited pin fell
		// outside the declared range.
		lock.Get("requests").Version = "2.20.0"
		v := Validate(m, lock)
		if v.Status != StatusStale {
			t.Fatalf("Validate = %+v, want stale", v)
		}
		if !strings.Contains(v.Reason, "requests") {
			t.Errorf("reason %q should name the violating pin", v.Reason)
		}
	})

	t.Run("DirectDependencyMissing", func(t *testing.T) {
		m, lock := freshPair(t)
		lock.Packages = lock.Packages[:3] // drops requests
		if v := Validate(m, lock); v.Status != StatusStale {
			t.Errorf("Validate = %+v, want stale", v)
		}
	})

	t.Run("OrphanedPackage", func(t *testing.T) {
		m, lock := freshPair(t)
		lock.Packages = append(lock.Packages, Package{
			Name: "leftover", Version: "0.1", Category: "main", PythonVersions: "*",
		})
		v := Validate(m, lock)
		if v.Status != StatusStale {
			t.Fatalf("Validate = %+v, want stale", v)
		}
		if !strings.Contains(v.Reason, "leftover") {
			t.Errorf("reason %q should name the orphan", v.Reason)
		}
	})
}

func TestValidateMarkerGatedAbsenceIsFresh(t *testing.T) {
	// colorama is declared for win32 only; its absence from a lock
	// produced elsewhere must not read as stale.
	m, lock := freshPair(t)
	if lock.Get("colorama") != nil {
		t.Fatal("fixture should not lock colorama")
	}
	if v := Validate(m, lock); v.Status != StatusFresh {
		t.Errorf("Validate = %+v, want fresh", v)
	}
}

func TestValidateCorrupt(t *testing.T) {
	m, lock := freshPair(t)
	lock.LockVersion = "9.0"
	if v := Validate(m, lock); v.Status != StatusCorrupt {
		t.Errorf("Validate = %+v, want corrupt", v)
	}
}
