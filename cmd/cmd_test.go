package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zaptest"

	"github.com/kamusis/opsroute/internal/catalog"
	"github.com/kamusis/opsroute/internal/config"
)

func TestInstallStandIns(t *testing.T) {
	root := filepath.Join(t.TempDir(), "actions")

	installed, skipped, err := installStandIns(root, false)
	if err != nil {
		t.Fatalf("installStandIns: %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("unexpected skips on empty root: %v", skipped)
	}
	for _, id := range sortedIDs(catalog.Default()) {
		if _, err := os.Stat(filepath.Join(root, id+".sh")); err != nil {
			t.Fatalf("stand-in for %s missing: %v", id, err)
		}
	}

	// second run keeps existing files
	p := filepath.Join(root, installed[0])
	if err := os.WriteFile(p, []byte("custom\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	_, skipped, err = installStandIns(root, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(skipped) != len(installed) {
		t.Fatalf("expected every file skipped, got %v", skipped)
	}
	if b, _ := os.ReadFile(p); string(b) != "custom\n" {
		t.Fatalf("existing action overwritten without --force")
	}

	// force overwrites
	if _, _, err := installStandIns(root, true); err != nil {
		t.Fatal(err)
	}
	if b, _ := os.ReadFile(p); string(b) == "custom\n" {
		t.Fatalf("--force did not overwrite")
	}
}

func TestDescriptors(t *testing.T) {
	cfg := config.Default()
	ds := descriptors(cfg)
	if len(ds) != len(cfg.Actions) {
		t.Fatalf("got %d descriptors for %d actions", len(ds), len(cfg.Actions))
	}
	for i, d := range ds {
		a := cfg.Actions[i]
		if d.ID != a.ID || d.Interpreter != a.Interpreter || d.Path != a.Path {
			t.Fatalf("descriptor %d = %+v, action %+v", i, d, a)
		}
	}
}

func TestShortHash(t *testing.T) {
	if got := shortHash("abc"); got != "abc" {
		t.Fatalf("got %q", got)
	}
	if got := shortHash(strings.Repeat("f", 64)); len(got) != 12 {
		t.Fatalf("got %q", got)
	}
}

// TestBootstrap_RunsDefaultCatalogOffline wires the real components with the
// local provider against the installed stand-ins.
func TestBootstrap_RunsDefaultCatalogOffline(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("sh stand-ins are unix only")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"PROVIDER", "MODEL", "API_KEY", "BASE_URL"} {
		t.Setenv("OPSROUTE_EMBEDDINGS_"+k, "")
	}

	cfg := config.Default()
	cfg.ActionsRoot = filepath.Join(home, "actions")
	cfg.Audit.DBPath = filepath.Join(home, "history.db")
	cfg.Audit.LogPath = filepath.Join(home, "executions.jsonl")
	cfgPath := filepath.Join(home, "opsroute.yaml")
	if err := config.Save(cfg, cfgPath); err != nil {
		t.Fatal(err)
	}
	if _, _, err := installStandIns(cfg.ActionsRoot, false); err != nil {
		t.Fatal(err)
	}

	prev := flagConfig
	flagConfig = cfgPath
	t.Cleanup(func() { flagConfig = prev })

	c := &cobra.Command{}
	c.SetContext(withLogger(context.Background(), zaptest.NewLogger(t)))
	a, err := bootstrap(c, nil)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	text, err := a.service.Handle(c.Context(), "check cpu usage")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if text == "" || strings.HasPrefix(text, "action failed") || strings.HasPrefix(text, "no relevant") {
		t.Fatalf("unexpected result %q", text)
	}
	a.Close()

	if b, err := os.ReadFile(cfg.Audit.LogPath); err != nil || !bytes.Contains(b, []byte(`"action_id":"get_cpu_usage"`)) {
		t.Fatalf("execution log missing record: %v %s", err, b)
	}
}

func TestLoadConfig_MissingExplicitPath(t *testing.T) {
	prev := flagConfig
	flagConfig = filepath.Join(t.TempDir(), "missing.yaml")
	t.Cleanup(func() { flagConfig = prev })

	_, err := loadConfig()
	if err == nil || !strings.Contains(err.Error(), "opsroute init") {
		t.Fatalf("expected init hint, got %v", err)
	}
}

func sortedIDs(entries []catalog.Entry) []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range entries {
		if !seen[e.ActionID] {
			seen[e.ActionID] = true
			out = append(out, e.ActionID)
		}
	}
	sort.Strings(out)
	return out
}
