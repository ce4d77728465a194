package resolve

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/matzehuels/padlock/pkg/errors"
	"github.com/matzehuels/padlock/pkg/marker"
	"github.com/matzehuels/padlock/pkg/metadata"
	"github.com/matzehuels/padlock/pkg/pep440"
)

// fakeSource serves releases from a fixture map. Releases must be
// listed newest first, matching the Source contract.
type fakeSource struct {
	packages map[string][]metadata.Release
}

func (f *fakeSource) FetchVersions(_ context.Context, name string) ([]metadata.Release, error) {
	releases, ok := f.packages[metadata.NormalizeName(name)]
	if !ok {
		return nil, errors.New(errors.ErrCodePackageNotFound, "package %s not found", name)
	}
	return releases, nil
}

func (f *fakeSource) FetchArtifact(context.Context, string, pep440.Version, string) ([]byte, error) {
	return nil, errors.New(errors.ErrCodeMetadataUnavailable, "no artifacts in fixture")
}

func release(t *testing.T, version string, requirements ...string) metadata.Release {
	t.Helper()
	rel := metadata.Release{Version: pep440.MustParse(version)}
	for _, req := range requirements {
		dep, err := metadata.ParseRequirement(req)
		if err != nil {
			t.Fatalf("ParseRequirement(%q): %v", req, err)
		}
		rel.Dependencies = append(rel.Dependencies, dep)
	}
	return rel
}

func mainRoot(t *testing.T, req string) Root {
	t.Helper()
	dep, err := metadata.ParseRequirement(req)
	if err != nil {
		t.Fatalf("ParseRequirement(%q): %v", req, err)
	}
	return Root{Dependency: dep, Category: CategoryMain}
}

func testEnv() marker.Environment {
	return marker.NewEnvironment(map[string]string{
		"python_version":      "3.11",
		"python_full_version": "3.11.4",
		"sys_platform":        "linux",
		"os_name":             "posix",
	})
}

func resolveWith(t *testing.T, src metadata.Source, roots ...Root) (*Resolution, error) {
	t.Helper()
	return Resolve(context.Background(), src, roots, Options{Env: testEnv()})
}

func TestResolvePicksNewestCompatible(t *testing.T) {
	src := &fakeSource{packages: map[string][]metadata.Release{
		"requests": {
			release(t, "2.25.1"),
			release(t, "2.20.0"),
		},
	}}

	res, err := resolveWith(t, src, mainRoot(t, "requests>=2.7.9"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Packages) != 1 {
		t.Fatalf("got %d packages, want 1", len(res.Packages))
	}
	if got := res.Packages[0].Version.String(); got != "2.25.1" {
		t.Errorf("pinned %s, want 2.25.1", got)
	}
}

func TestResolveTransitiveClosure(t *testing.T) {
	src := &fakeSource{packages: map[string][]metadata.Release{
		"requests": {
			release(t, "2.25.1", "urllib3>=1.21.1,<1.27", "idna>=2.5"),
		},
		"urllib3": {release(t, "1.26.5"), release(t, "1.27")},
		"idna":    {release(t, "3.1")},
	}}

	res, err := resolveWith(t, src, mainRoot(t, "requests>=2"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Packages) != 3 {
		t.Fatalf("got %d packages, want 3: %v", len(res.Packages), names(res))
	}
	if pkg := res.Get("urllib3"); pkg == nil || pkg.Version.String() != "1.26.5" {
		t.Errorf("urllib3 = %v, want 1.26.5 (1.27 excluded by <1.27)", pkg)
	}
	if pkg := res.Get("requests"); pkg != nil {
		if got := pkg.Dependencies["urllib3"].String(); got != ">=1.21.1,<1.27" {
			t.Errorf("recorded constraint = %q", got)
		}
	}
}

func TestResolveConflictIsUnresolvable(t *testing.T) {
	src := &fakeSource{packages: map[string][]metadata.Release{
		"pkga": {release(t, "1.0", "dep>=2.0")},
		"pkgb": {release(t, "1.0", "dep<2.0")},
		"dep":  {release(t, "2.5"), release(t, "1.5")},
	}}

	_, err := resolveWith(t, src, mainRoot(t, "pkga==1.0"), mainRoot(t, "pkgb==1.0"))
	if code := errors.GetCode(err); code != errors.ErrCodeUnresolvable {
		t.Fatalf("code = %s, want %s (err: %v)", code, errors.ErrCodeUnresolvable, err)
	}

	var unres *UnresolvableError
	if !stderrors.As(err, &unres) {
		t.Fatalf("error %v should carry an UnresolvableError", err)
	}
	if unres.Conflict.Package != "dep" {
		t.Errorf("conflict package = %q, want dep", unres.Conflict.Package)
	}
	if len(unres.Conflict.Edges) == 0 {
		t.Error("conflict should cite the demanding edges")
	}
}

func TestResolveBacktracks(t *testing.T) {
	// The newest anchor release wants an old helper, but a second root
	// insists on the new helper. Only anchor 1.0 is compatible, so the
	// solver must abandon anchor 2.0 and retry.
	src := &fakeSource{packages: map[string][]metadata.Release{
		"anchor": {
			release(t, "2.0", "helper<1.0"),
			release(t, "1.0", "helper>=1.0"),
		},
		"helper": {release(t, "1.2"), release(t, "0.9")},
	}}

	res, err := resolveWith(t, src, mainRoot(t, "anchor"), mainRoot(t, "helper>=1.0"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := res.Get("anchor").Version.String(); got != "1.0" {
		t.Errorf("anchor = %s, want 1.0 after backtracking", got)
	}
	if got := res.Get("helper").Version.String(); got != "1.2" {
		t.Errorf("helper = %s, want 1.2", got)
	}
}

func TestResolveToleratesCycles(t *testing.T) {
	src := &fakeSource{packages: map[string][]metadata.Release{
		"ouro": {release(t, "1.0", "boros>=1.0")},
		"boros": {
			release(t, "1.0", "ouro>=1.0"),
		},
	}}

	res, err := resolveWith(t, src, mainRoot(t, "ouro"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Packages) != 2 {
		t.Fatalf("got %d packages, want 2: %v", len(res.Packages), names(res))
	}
}

func TestResolveDeterministic(t *testing.T) {
	src := &fakeSource{packages: map[string][]metadata.Release{
		"alpha": {release(t, "3.0", "shared>=1.0"), release(t, "2.0", "shared>=1.0")},
		"beta":  {release(t, "1.5", "shared<3.0"), release(t, "1.4")},
		"shared": {
			release(t, "2.9"), release(t, "2.0"), release(t, "1.0"),
		},
	}}
	roots := []Root{mainRoot(t, "alpha"), mainRoot(t, "beta")}

	first, err := Resolve(context.Background(), src, roots, Options{Env: testEnv()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := Resolve(context.Background(), src, roots, Options{Env: testEnv()})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if fingerprint(first) != fingerprint(second) {
		t.Errorf("runs diverged:\n%s\n%s", fingerprint(first), fingerprint(second))
	}
}

func TestResolveMarkerExcludesEdge(t *testing.T) {
	src := &fakeSource{packages: map[string][]metadata.Release{
		"app": {release(t, "1.0", `winhelper ; sys_platform == "win32"`, "idna>=2")},
		// winhelper is deliberately absent from the fixture: if the
		// marker leaked through, resolution would fail.
		"idna": {release(t, "3.1")},
	}}

	res, err := resolveWith(t, src, mainRoot(t, "app"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Get("winhelper") != nil {
		t.Error("win32-only dependency must not join a linux closure")
	}
	if res.Get("idna") == nil {
		t.Error("unconditional dependency missing")
	}
}

func TestResolveExtras(t *testing.T) {
	src := &fakeSource{packages: map[string][]metadata.Release{
		"web": {release(t, "1.0",
			`sockslib ; extra == "socks"`,
			"idna>=2",
		)},
		"sockslib": {release(t, "2.0")},
		"idna":     {release(t, "3.1")},
	}}

	t.Run("ExtraActivated", func(t *testing.T) {
		res, err := resolveWith(t, src, mainRoot(t, "web[socks]"))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if res.Get("sockslib") == nil {
			t.Fatal("extra-gated dependency missing from closure")
		}
		web := res.Get("web")
		if deps := web.Extras["socks"]; len(deps) != 1 || deps[0] != "sockslib" {
			t.Errorf("Extras[socks] = %v, want [sockslib]", deps)
		}
	})

	t.Run("ExtraInactive", func(t *testing.T) {
		res, err := resolveWith(t, src, mainRoot(t, "web"))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if res.Get("sockslib") != nil {
			t.Error("inactive extra must exclude its edges entirely")
		}
	})
}

func TestResolveCategories(t *testing.T) {
	src := &fakeSource{packages: map[string][]metadata.Release{
		"app":    {release(t, "1.0", "shared>=1")},
		"linter": {release(t, "2.0", "shared>=1")},
		"shared": {release(t, "1.1")},
	}}

	dev := mainRoot(t, "linter")
	dev.Category = CategoryDev

	res, err := resolveWith(t, src, mainRoot(t, "app"), dev)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := res.Get("linter").Category; got != CategoryDev {
		t.Errorf("linter category = %s, want dev", got)
	}
	// shared is reachable from both groups; main wins.
	if got := res.Get("shared").Category; got != CategoryMain {
		t.Errorf("shared category = %s, want main", got)
	}
	if res.Get("app").Optional || res.Get("shared").Optional {
		t.Error("non-optional roots must not produce optional packages")
	}
}

func TestResolvePrereleasePolicy(t *testing.T) {
	src := &fakeSource{packages: map[string][]metadata.Release{
		"lib": {release(t, "2.0a1"), release(t, "1.0")},
	}}

	t.Run("HeldBackByDefault", func(t *testing.T) {
		res, err := resolveWith(t, src, mainRoot(t, "lib"))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got := res.Get("lib").Version.String(); got != "1.0" {
			t.Errorf("pinned %s, want stable 1.0", got)
		}
	})

	t.Run("AdmittedWhenNamed", func(t *testing.T) {
		res, err := resolveWith(t, src, mainRoot(t, "lib>=2.0a1"))
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got := res.Get("lib").Version.String(); got != "2.0a1" {
			t.Errorf("pinned %s, want 2.0a1", got)
		}
	})
}

func TestResolveMissingPackage(t *testing.T) {
	src := &fakeSource{packages: map[string][]metadata.Release{}}

	_, err := resolveWith(t, src, mainRoot(t, "ghost>=1.0"))
	if code := errors.GetCode(err); code != errors.ErrCodePackageNotFound {
		t.Errorf("code = %s, want %s", code, errors.ErrCodePackageNotFound)
	}
}

func TestResolveTimeout(t *testing.T) {
	src := &fakeSource{packages: map[string][]metadata.Release{
		"requests": {release(t, "2.25.1")},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Resolve(ctx, src, []Root{mainRoot(t, "requests")}, Options{Env: testEnv()})
	if code := errors.GetCode(err); code != errors.ErrCodeTimeout {
		t.Errorf("code = %s, want %s (err: %v)", code, errors.ErrCodeTimeout, err)
	}
}

func TestResolveAttemptBudget(t *testing.T) {
	src := &fakeSource{packages: map[string][]metadata.Release{
		"top": {release(t, "1.0", "mid>=1"), release(t, "0.9", "mid>=1")},
		"mid": {release(t, "1.5", "bottom<1"), release(t, "1.0", "bottom<1")},
		"bottom": {
			release(t, "2.0"), release(t, "1.0"),
		},
	}}

	_, err := Resolve(context.Background(), src,
		[]Root{mainRoot(t, "top"), mainRoot(t, "bottom>=1")},
		Options{Env: testEnv(), MaxAttempts: 3})
	if code := errors.GetCode(err); code != errors.ErrCodeUnresolvable {
		t.Errorf("code = %s, want %s (err: %v)", code, errors.ErrCodeUnresolvable, err)
	}
}

func names(res *Resolution) []string {
	out := make([]string, len(res.Packages))
	for i, p := range res.Packages {
		out[i] = p.Name
	}
	return out
}

func fingerprint(res *Resolution) string {
	s := ""
	for _, p := range res.Packages {
		s += fmt.Sprintf("%s=%s[%s]\n", p.Name, p.Version, p.Category)
	}
	return s
}
