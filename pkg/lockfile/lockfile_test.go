package lockfile

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/matzehuels/padlock/pkg/errors"
	"github.com/matzehuels/padlock/pkg/integrity"
	"github.com/matzehuels/padlock/pkg/marker"
	"github.com/matzehuels/padlock/pkg/metadata"
	"github.com/matzehuels/padlock/pkg/pep440"
	"github.com/matzehuels/padlock/pkg/resolve"
)

func sampleLock() *Lock {
	return &Lock{
		LockVersion: Version,
		Packages: []Package{
			{
				Name:           "idna",
				Version:        "3.1",
				Description:    "IDNA support",
				Category:       "main",
				PythonVersions: ">=3.5",
			},
			{
				Name:           "requests",
				Version:        "2.25.1",
				Category:       "main",
				PythonVersions: "*",
				Dependencies: map[string]string{
					"idna":    ">=2.5",
					"urllib3": ">=1.21.1,<1.27",
				},
				Extras: map[string][]string{
					"socks": {"pysocks"},
				},
			},
			{
				Name:           "urllib3",
				Version:        "1.26.5",
				Category:       "main",
				PythonVersions: "*",
			},
		},
		Metadata: Metadata{
			ContentHash: "0123abcd",
			Files: map[string][]integrity.ArtifactHash{
				"requests": {
					{Filename: "requests-2.25.1-py2.py3-none-any.whl", Algorithm: "sha256", Digest: "aaa"},
				},
				"idna": {
					{Filename: "idna-3.1-py3-none-any.whl", Algorithm: "sha256", Digest: "bbb"},
				},
				"urllib3": {
					{Filename: "urllib3-1.26.5-py2.py3-none-any.whl", Algorithm: "sha256", Digest: "ccc"},
				},
			},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	lock := sampleLock()

	data, err := Marshal(lock)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	parsed, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !reflect.DeepEqual(lock, parsed) {
		t.Errorf("round-trip mismatch:\nwant %+v\ngot  %+v", lock, parsed)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	first, err := Marshal(sampleLock())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(sampleLock())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(first) != string(second) {
		t.Error("identical locks must serialize to identical bytes")
	}
}

func TestReadWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFilename)
	lock := sampleLock()

	if err := Write(path, lock); err != nil {
		t.Fatalf("Write: %v", err)
	}
	loaded, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reflect.DeepEqual(lock, loaded) {
		t.Error("Read does not reproduce written lock")
	}

	// Leftover temp files would mean the write was not atomic.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}

func TestReadMissing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.lock"))
	if code := errors.GetCode(err); code != errors.ErrCodeCorruptLock {
		t.Errorf("code = %s, want %s", code, errors.ErrCodeCorruptLock)
	}
}

func TestUnmarshalCorrupt(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"NotTOML", "[[["},
		{"MissingLockVersion", "[[package]]\nname = \"a\"\nversion = \"1.0\"\ncategory = \"main\"\n"},
		{"UnsupportedVersion", "lock-version = \"9.0\"\n"},
		{"NamelessPackage", "lock-version = \"1.0\"\n[[package]]\nversion = \"1.0\"\ncategory = \"main\"\n"},
		{"BadVersion", "lock-version = \"1.0\"\n[[package]]\nname = \"a\"\nversion = \"oops\"\ncategory = \"main\"\n"},
		{"BadCategory", "lock-version = \"1.0\"\n[[package]]\nname = \"a\"\nversion = \"1.0\"\ncategory = \"weird\"\n"},
		{
			"DuplicatePackage",
			"lock-version = \"1.0\"\n" +
				"[[package]]\nname = \"a\"\nversion = \"1.0\"\ncategory = \"main\"\n" +
				"[[package]]\nname = \"a\"\nversion = \"2.0\"\ncategory = \"main\"\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal([]byte(tt.in))
			if code := errors.GetCode(err); code != errors.ErrCodeCorruptLock {
				t.Errorf("code = %s, want %s (err: %v)", code, errors.ErrCodeCorruptLock, err)
			}
		})
	}
}

// buildResolution runs the real solver against a fixture so Build
// tests exercise the same shapes production does.
func buildResolution(t *testing.T, artifacts []integrity.ArtifactHash) *resolve.Resolution {
	t.Helper()
	rel := metadata.Release{Version: pep440.MustParse("2.25.1"), Artifacts: artifacts}
	src := &staticSource{packages: map[string][]metadata.Release{"requests": {rel}}}

	dep, err := metadata.ParseRequirement("requests>=2")
	if err != nil {
		t.Fatal(err)
	}
	res, err := resolve.Resolve(context.Background(), src,
		[]resolve.Root{{Dependency: dep, Category: resolve.CategoryMain}},
		resolve.Options{Env: marker.NewEnvironment(nil)})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return res
}

type staticSource struct {
	packages map[string][]metadata.Release
}

func (s *staticSource) FetchVersions(_ context.Context, name string) ([]metadata.Release, error) {
	return s.packages[metadata.NormalizeName(name)], nil
}

func (s *staticSource) FetchArtifact(context.Context, string, pep440.Version, string) ([]byte, error) {
	return nil, errors.New(errors.ErrCodeMetadataUnavailable, "no artifacts in fixture")
}

func TestBuildPreservesRecordedHashes(t *testing.T) {
	wheel := integrity.ArtifactHash{Filename: "requests-2.25.1-py3-none-any.whl", Algorithm: "sha256", Digest: "aaa"}
	sdist := integrity.ArtifactHash{Filename: "requests-2.25.1.tar.gz", Algorithm: "sha256", Digest: "bbb"}

	first, err := Build(buildResolution(t, []integrity.ArtifactHash{wheel}), "hash1", nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	t.Run("AppendsNewPlatformArtifact", func(t *testing.T) {
		second, err := Build(buildResolution(t, []integrity.ArtifactHash{sdist}), "hash1", first)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		files := second.Metadata.Files["requests"]
		if len(files) != 2 {
			t.Fatalf("files = %v, want wheel plus sdist", files)
		}
	})

	t.Run("RejectsDigestChange", func(t *testing.T) {
		tampered := wheel
		tampered.Digest = "zzz"
		_, err := Build(buildResolution(t, []integrity.ArtifactHash{tampered}), "hash1", first)
		if code := errors.GetCode(err); code != errors.ErrCodeHashMismatch {
			t.Errorf("code = %s, want %s", code, errors.ErrCodeHashMismatch)
		}
	})

	t.Run("DifferentVersionStartsFresh", func(t *testing.T) {
		prev := first
		res := buildResolution(t, []integrity.ArtifactHash{sdist})
		res.Packages[0].Version = pep440.MustParse("2.26.0")
		next, err := Build(res, "hash2", prev)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if files := next.Metadata.Files["requests"]; len(files) != 1 {
			t.Errorf("files = %v, want only the new version's artifact", files)
		}
	})
}
