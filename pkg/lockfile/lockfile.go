// Package lockfile defines the persisted lock document, its TOML
// serialization, and the freshness validation against a manifest.
package lockfile

import (
	"bytes"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/padlock/pkg/errors"
	"github.com/matzehuels/padlock/pkg/integrity"
	"github.com/matzehuels/padlock/pkg/pep440"
	"github.com/matzehuels/padlock/pkg/resolve"
)

const (
	// Version is the lock-format version this build reads and writes.
	Version = "1.0"

	// DefaultFilename is the lock file padlock maintains.
	DefaultFilename = "padlock.lock"
)

// Lock is the persisted pinned closure of one manifest.
type Lock struct {
	LockVersion string    `toml:"lock-version"`
	Packages    []Package `toml:"package"`
	Metadata    Metadata  `toml:"metadata"`
}

// Package is one pinned entry.
type Package struct {
	Name        string `toml:"name"`
	Version     string `toml:"version"`
	Description string `toml:"description,omitempty"`
	Category    string `toml:"category"`
	Optional    bool   `toml:"optional"`
	// PythonVersions is the supported-interpreter constraint, "*"
	// when unconstrained.
	PythonVersions string `toml:"python-versions"`
	// Dependencies maps each dependency of the pinned release to the
	// constraint it declared.
	Dependencies map[string]string `toml:"dependencies,omitempty"`
	// Extras maps each activated extra to the dependencies it adds.
	Extras map[string][]string `toml:"extras,omitempty"`
}

// Metadata holds the manifest binding and the artifact digests.
type Metadata struct {
	ContentHash string `toml:"content-hash"`
	// Files records the known distribution artifacts per package
	// name. Entries are append-only across re-resolutions.
	Files map[string][]integrity.ArtifactHash `toml:"files"`
}

// Get returns the entry for a normalized package name, or nil.
func (l *Lock) Get(name string) *Package {
	for i := range l.Packages {
		if l.Packages[i].Name == name {
			return &l.Packages[i]
		}
	}
	return nil
}

// Build assembles a lock from a resolution. When prev is non-nil, its
// recorded artifact digests are carried forward: hashes are append-only
// for a (package, version) pair, and a digest disagreement for the same
// filename is a HASH_MISMATCH, never an overwrite.
func Build(res *resolve.Resolution, contentHash string, prev *Lock) (*Lock, error) {
	lock := &Lock{
		LockVersion: Version,
		Metadata: Metadata{
			ContentHash: contentHash,
			Files:       map[string][]integrity.ArtifactHash{},
		},
	}

	for _, p := range res.Packages {
		pkg := Package{
			Name:           p.Name,
			Version:        p.Version.String(),
			Description:    p.Summary,
			Category:       string(p.Category),
			Optional:       p.Optional,
			PythonVersions: p.RequiresPython.String(),
		}
		if len(p.Dependencies) > 0 {
			pkg.Dependencies = make(map[string]string, len(p.Dependencies))
			for name, set := range p.Dependencies {
				pkg.Dependencies[name] = set.String()
			}
		}
		if len(p.Extras) > 0 {
			pkg.Extras = p.Extras
		}
		lock.Packages = append(lock.Packages, pkg)

		recorded := p.Artifacts
		if prev != nil {
			if old := prev.Get(p.Name); old != nil && old.Version == pkg.Version {
				merged, err := integrity.Merge(prev.Metadata.Files[p.Name], p.Artifacts)
				if err != nil {
					return nil, errors.Wrap(errors.ErrCodeHashMismatch, err,
						"artifacts of %s %s", p.Name, pkg.Version)
				}
				recorded = merged
			}
		}
		if len(recorded) > 0 {
			lock.Metadata.Files[p.Name] = recorded
		}
	}

	slices.SortFunc(lock.Packages, func(a, b Package) int {
		return strings.Compare(a.Name, b.Name)
	})
	return lock, nil
}

// Marshal renders the lock as TOML. Packages are emitted in name
// order and map keys sort alphabetically, so the same lock value
// always produces the same bytes.
func Marshal(lock *Lock) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# This file is generated by padlock. Do not edit by hand.\n\n")
	if err := toml.NewEncoder(&buf).Encode(lock); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode lock")
	}
	return buf.Bytes(), nil
}

// Unmarshal parses lock bytes and checks structural invariants. Any
// violation is CORRUPT_LOCK; a corrupt lock is never repaired.
func Unmarshal(data []byte) (*Lock, error) {
	var lock Lock
	if err := toml.Unmarshal(data, &lock); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCorruptLock, err, "parse lock")
	}
	if err := checkStructure(&lock); err != nil {
		return nil, err
	}
	return &lock, nil
}

// Read loads and parses the lock at path. A missing file is reported
// distinctly so callers can treat it as "no lock yet".
func Read(path string) (*Lock, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCodeCorruptLock, err, "no lock file at %s", path)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCorruptLock, err, "read lock %s", path)
	}
	return Unmarshal(data)
}

// Write atomically replaces the lock at path: full bytes to a temp
// file in the same directory, then rename. Readers never observe a
// partially written lock.
func Write(path string, lock *Lock) error {
	data, err := Marshal(lock)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "create temp lock")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(errors.ErrCodeInternal, err, "write temp lock")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "close temp lock")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "replace lock %s", path)
	}
	return nil
}

func checkStructure(lock *Lock) error {
	if lock.LockVersion == "" {
		return errors.New(errors.ErrCodeCorruptLock, "lock has no lock-version field")
	}
	if major(lock.LockVersion) != major(Version) {
		return errors.New(errors.ErrCodeCorruptLock,
			"unsupported lock-version %s (this build understands %s)", lock.LockVersion, Version)
	}

	seen := map[string]bool{}
	for _, pkg := range lock.Packages {
		if pkg.Name == "" {
			return errors.New(errors.ErrCodeCorruptLock, "package entry without a name")
		}
		if seen[pkg.Name] {
			return errors.New(errors.ErrCodeCorruptLock, "duplicate package entry %s", pkg.Name)
		}
		seen[pkg.Name] = true

		if _, err := pep440.Parse(pkg.Version); err != nil {
			return errors.Wrap(errors.ErrCodeCorruptLock, err, "package %s", pkg.Name)
		}
		if pkg.Category != "main" && pkg.Category != "dev" {
			return errors.New(errors.ErrCodeCorruptLock,
				"package %s has unknown category %q", pkg.Name, pkg.Category)
		}
	}
	return nil
}

func major(version string) string {
	v, _, _ := strings.Cut(version, ".")
	return v
}
