package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(orig) })
}

func TestResolveRepoRoot_Env(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("PLANSYNC_REPO", dir)

	if got := ResolveRepoRoot(); got != dir {
		t.Errorf("ResolveRepoRoot() = %q, want %q", got, dir)
	}
}

func TestResolveRepoRoot_WalksUp(t *testing.T) {
	for _, marker := range []string{".plansync.yaml", ".plans", ".git"} {
		t.Run(marker, func(t *testing.T) {
			t.Setenv("PLANSYNC_REPO", "")
			root, err := filepath.EvalSymlinks(t.TempDir())
			if err != nil {
				t.Fatal(err)
			}
			if marker == ".plansync.yaml" {
				writeTextFile(t, filepath.Join(root, marker), "")
			} else if err := os.Mkdir(filepath.Join(root, marker), 0o750); err != nil {
				t.Fatal(err)
			}
			nested := filepath.Join(root, "a", "b")
			if err := os.MkdirAll(nested, 0o750); err != nil {
				t.Fatal(err)
			}
			chdir(t, nested)

			if got := ResolveRepoRoot(); got != root {
				t.Errorf("ResolveRepoRoot() = %q, want %q", got, root)
			}
		})
	}
}

func TestVersionCmd(t *testing.T) {
	SetVersionInfo("1.2.3", "abc123", "2026-04-01")
	t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown") })

	out, err := executeRoot(t, "version")
	if err != nil {
		t.Fatalf("version error: %v", err)
	}
	for _, want := range []string{"plansync 1.2.3", "commit: abc123", "built:  2026-04-01"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRootCmd_RunsInitializer(t *testing.T) {
	saved := Initializer
	t.Cleanup(func() {
		Initializer = saved
		repoFlag, configFlag, validatePlan = "", "", ""
	})

	var gotRepo, gotConfig string
	calls := 0
	Initializer = func(repoRoot, configFile string) error {
		calls++
		gotRepo, gotConfig = repoRoot, configFile
		return errors.New("boom")
	}

	if _, err := executeRoot(t, "version"); err != nil {
		t.Fatalf("version must skip initialization: %v", err)
	}
	if calls != 0 {
		t.Errorf("initializer ran %d time(s) for version", calls)
	}

	_, err := executeRoot(t, "--repo", "/tmp/repo", "--config", "/tmp/c.yaml", "validate", "--plan", "x")
	if err == nil || err.Error() != "boom" {
		t.Fatalf("error = %v, want initializer error", err)
	}
	if gotRepo != "/tmp/repo" || gotConfig != "/tmp/c.yaml" {
		t.Errorf("initializer got (%q, %q)", gotRepo, gotConfig)
	}
}
