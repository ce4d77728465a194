// Package manifest loads a project's pyproject.toml and derives the
// resolver's root declarations plus the canonical content hash the
// lock's freshness check is anchored on.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/matzehuels/padlock/pkg/errors"
	"github.com/matzehuels/padlock/pkg/metadata"
	"github.com/matzehuels/padlock/pkg/pep440"
	"github.com/matzehuels/padlock/pkg/resolve"
)

// DefaultFilename is the manifest file padlock looks for.
const DefaultFilename = "pyproject.toml"

// Manifest is the parsed set of direct dependency declarations.
type Manifest struct {
	Name           string
	Version        string
	RequiresPython pep440.SpecifierSet

	// Dependencies are the unconditional main-group declarations.
	Dependencies []metadata.Dependency
	// Extras maps each project extra to the declarations it adds.
	Extras map[string][]metadata.Dependency
	// Groups maps each named dependency group (for example "dev") to
	// its declarations.
	Groups map[string][]metadata.Dependency
}

// document is the wire shape of the subset of pyproject.toml padlock
// reads: the standard [project] table plus padlock's own group table.
type document struct {
	Project struct {
		Name                 string              `toml:"name"`
		Version              string              `toml:"version"`
		RequiresPython       string              `toml:"requires-python"`
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Padlock struct {
			Group map[string]struct {
				Dependencies []string `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"padlock"`
	} `toml:"tool"`
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read manifest %s", path)
	}
	return Parse(data)
}

// Parse decodes manifest bytes. Declarations with malformed
// requirements, constraints or markers are rejected, never coerced.
func Parse(data []byte) (*Manifest, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse manifest")
	}
	if doc.Project.Name == "" {
		return nil, errors.New(errors.ErrCodeInvalidManifest, "manifest has no project.name")
	}

	m := &Manifest{
		Name:    metadata.NormalizeName(doc.Project.Name),
		Version: doc.Project.Version,
	}

	if doc.Project.RequiresPython != "" {
		set, err := pep440.ParseSet(doc.Project.RequiresPython)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "requires-python")
		}
		m.RequiresPython = set
	}

	var err error
	if m.Dependencies, err = parseGroup(doc.Project.Dependencies, "project.dependencies"); err != nil {
		return nil, err
	}

	if len(doc.Project.OptionalDependencies) > 0 {
		m.Extras = make(map[string][]metadata.Dependency, len(doc.Project.OptionalDependencies))
		for extra, reqs := range doc.Project.OptionalDependencies {
			deps, err := parseGroup(reqs, "optional-dependencies."+extra)
			if err != nil {
				return nil, err
			}
			m.Extras[strings.ToLower(extra)] = deps
		}
	}

	if len(doc.Tool.Padlock.Group) > 0 {
		m.Groups = make(map[string][]metadata.Dependency, len(doc.Tool.Padlock.Group))
		for group, g := range doc.Tool.Padlock.Group {
			deps, err := parseGroup(g.Dependencies, "group."+group)
			if err != nil {
				return nil, err
			}
			m.Groups[strings.ToLower(group)] = deps
		}
	}

	return m, nil
}

func parseGroup(reqs []string, where string) ([]metadata.Dependency, error) {
	deps := make([]metadata.Dependency, 0, len(reqs))
	for _, req := range reqs {
		dep, err := metadata.ParseRequirement(req)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "in %s", where)
		}
		deps = append(deps, dep)
	}
	return deps, nil
}

// Roots derives the resolver's direct declarations: the main group,
// every named group as dev, and every extra as an optional main
// declaration so the lock pins extras without forcing their install.
func (m *Manifest) Roots() []resolve.Root {
	var roots []resolve.Root
	for _, dep := range m.Dependencies {
		roots = append(roots, resolve.Root{Dependency: dep, Category: resolve.CategoryMain})
	}

	for _, group := range sortedKeys(m.Groups) {
		for _, dep := range m.Groups[group] {
			roots = append(roots, resolve.Root{Dependency: dep, Category: resolve.CategoryDev})
		}
	}

	for _, extra := range sortedKeys(m.Extras) {
		for _, dep := range m.Extras[extra] {
			roots = append(roots, resolve.Root{
				Dependency: dep,
				Category:   resolve.CategoryMain,
				Optional:   true,
			})
		}
	}
	return roots
}

// ContentHash computes the canonical digest of the declarations. Only
// resolution-relevant fields contribute, as sorted lines, so cosmetic
// manifest edits (reordering, formatting, descriptions) do not stale
// the lock while any constraint change does.
func (m *Manifest) ContentHash() string {
	var lines []string
	if !m.RequiresPython.IsAny() {
		lines = append(lines, "requires-python "+m.RequiresPython.String())
	}
	for _, dep := range m.Dependencies {
		lines = append(lines, declLine("main", dep))
	}
	for group, deps := range m.Groups {
		for _, dep := range deps {
			lines = append(lines, declLine("group:"+group, dep))
		}
	}
	for extra, deps := range m.Extras {
		for _, dep := range deps {
			lines = append(lines, declLine("extra:"+extra, dep))
		}
	}
	slices.Sort(lines)

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

func declLine(group string, dep metadata.Dependency) string {
	line := fmt.Sprintf("%s %s %s", group, dep.Name, dep.Constraint)
	if len(dep.Extras) > 0 {
		extras := slices.Clone(dep.Extras)
		slices.Sort(extras)
		line += " [" + strings.Join(extras, ",") + "]"
	}
	if dep.Marker != nil {
		line += " ; " + dep.Marker.String()
	}
	return line
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
