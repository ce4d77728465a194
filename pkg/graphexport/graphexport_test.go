package graphexport

import (
	"strings"
	"testing"

	"github.com/matzehuels/padlock/pkg/lockfile"
)

func sampleLock() *lockfile.Lock {
	return &lockfile.Lock{
		LockVersion: lockfile.Version,
		Packages: []lockfile.Package{
			{Name: "idna", Version: "3.1", Category: "main", PythonVersions: "*"},
			{
				Name: "requests", Version: "2.25.1", Category: "main", PythonVersions: "*",
				Dependencies: map[string]string{"idna": ">=2.5", "urllib3": "<1.27"},
			},
			{Name: "pytest", Version: "7.4.0", Category: "dev", PythonVersions: "*"},
			{Name: "urllib3", Version: "1.26.5", Category: "main", PythonVersions: "*"},
		},
	}
}

func TestToDOT(t *testing.T) {
	dot := ToDOT(sampleLock(), Options{Versions: true})

	for _, want := range []string{
		`"requests" [label="requests` + "\\n" + `2.25.1"]`,
		`"requests" -> "idna";`,
		`"requests" -> "urllib3";`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}
	if strings.Contains(dot, "pytest") {
		t.Error("dev packages excluded by default")
	}
}

func TestToDOTIncludeDev(t *testing.T) {
	dot := ToDOT(sampleLock(), Options{IncludeDev: true})
	if !strings.Contains(dot, `"pytest"`) {
		t.Error("IncludeDev should add dev packages")
	}
}

func TestToDOTDeterministic(t *testing.T) {
	first := ToDOT(sampleLock(), Options{})
	second := ToDOT(sampleLock(), Options{})
	if first != second {
		t.Error("DOT output should be stable across runs")
	}
}
