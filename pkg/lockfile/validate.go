package lockfile

import (
	"fmt"

	"github.com/matzehuels/padlock/pkg/manifest"
	"github.com/matzehuels/padlock/pkg/pep440"
	"github.com/matzehuels/padlock/pkg/resolve"
)

// Status is the outcome of validating a lock against a manifest.
type Status string

const (
	// StatusFresh means the lock reproduces the manifest exactly.
	StatusFresh Status = "fresh"
	// StatusStale means the manifest diverged; the caller re-resolves.
	StatusStale Status = "stale"
	// StatusCorrupt means the lock is structurally invalid. Fatal,
	// never silently repaired.
	StatusCorrupt Status = "corrupt"
)

// Validation is a status with the first violation found.
type Validation struct {
	Status Status
	Reason string
}

func fresh() Validation { return Validation{Status: StatusFresh} }

func stale(format string, args ...any) Validation {
	return Validation{Status: StatusStale, Reason: fmt.Sprintf(format, args...)}
}

// Validate checks whether lock still reproduces m. Fresh requires all
// of: the stored content-hash matches the manifest's, every direct
// declaration is satisfied by its pinned version, and every locked
// package is reachable from a direct declaration (no orphans).
func Validate(m *manifest.Manifest, lock *Lock) Validation {
	if err := checkStructure(lock); err != nil {
		return Validation{Status: StatusCorrupt, Reason: err.Error()}
	}

	if lock.Metadata.ContentHash != m.ContentHash() {
		return stale("manifest content-hash changed")
	}

	roots := m.Roots()
	for _, root := range roots {
		dep := root.Dependency
		pkg := lock.Get(dep.Name)
		if pkg == nil {
			if dep.Marker != nil {
				// Environment-conditional declarations may be
				// legitimately absent on the platform that locked.
				continue
			}
			return stale("direct dependency %s is not locked", dep.Name)
		}
		pinned, err := pep440.Parse(pkg.Version)
		if err != nil {
			return Validation{Status: StatusCorrupt, Reason: err.Error()}
		}
		if !dep.Constraint.Matches(pinned) {
			return stale("locked %s %s no longer satisfies %s", dep.Name, pkg.Version, dep.Constraint)
		}
	}

	if orphan := findOrphan(lock, roots); orphan != "" {
		return stale("locked package %s is not reachable from any declaration", orphan)
	}

	return fresh()
}

// findOrphan returns a locked package no direct declaration reaches,
// or "" when the closure is tight. Reachability follows the recorded
// dependency constraints and extras activations.
func findOrphan(lock *Lock, roots []resolve.Root) string {
	reachable := map[string]bool{}
	var visit func(name string)
	visit = func(name string) {
		if reachable[name] {
			return
		}
		pkg := lock.Get(name)
		if pkg == nil {
			return
		}
		reachable[name] = true
		for dep := range pkg.Dependencies {
			visit(dep)
		}
		for _, deps := range pkg.Extras {
			for _, dep := range deps {
				visit(dep)
			}
		}
	}
	for _, root := range roots {
		visit(root.Dependency.Name)
	}

	for _, pkg := range lock.Packages {
		if !reachable[pkg.Name] {
			return pkg.Name
		}
	}
	return ""
}
