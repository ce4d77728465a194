// Package metadata defines the registry collaborator the resolver
// queries, and ships the PyPI JSON API implementation of it.
//
// The resolution core only ever sees the [Source] interface: available
// versions with their declared dependencies, and raw artifact bytes for
// integrity checking. Everything network-shaped (caching, retries,
// endpoint details) stays behind this boundary.
package metadata

import (
	"context"
	"strings"

	"github.com/matzehuels/padlock/pkg/integrity"
	"github.com/matzehuels/padlock/pkg/pep440"
)

// Source retrieves package metadata from a registry.
//
// FetchVersions returns every known release of a package, newest first,
// each with its declared dependency edges. FetchArtifact downloads one
// distribution file of a pinned release; it exists for the integrity
// verifier, the resolver itself never calls it.
//
// Implementations report failures as METADATA_UNAVAILABLE (or
// PACKAGE_NOT_FOUND) structured errors and perform their own transient
// retries; callers treat any returned error as terminal for the attempt.
type Source interface {
	FetchVersions(ctx context.Context, name string) ([]Release, error)
	FetchArtifact(ctx context.Context, name string, version pep440.Version, filename string) ([]byte, error)
}

// Release is one published version of a package.
type Release struct {
	Version      pep440.Version
	Summary      string // informational only, carried into the lock
	Dependencies []Dependency
	// RequiresPython constrains supported interpreter versions.
	RequiresPython pep440.SpecifierSet
	// Artifacts lists the distribution files the registry advertises
	// for this release, with the digests it reports.
	Artifacts []integrity.ArtifactHash
}

// NormalizeName converts a package name to its canonical form.
// Applies lowercase and collapses runs of "-", "_" and "." to a single
// hyphen, following the PEP 503 normalization rules used by PyPI.
func NormalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	sep := false
	for _, r := range s {
		if r == '-' || r == '_' || r == '.' {
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('-')
		}
		sep = false
		b.WriteRune(r)
	}
	return b.String()
}
