package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamusis/opsroute/internal/config"
	"github.com/kamusis/opsroute/internal/embeddings"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run pre-flight environment checks",
	Long: `Check that opsroute's config, actions and embeddings provider are usable.
Run this command when something seems wrong, or before filing a bug report.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	allOK := true
	failD := func(format string, args ...any) {
		printErr("", fmt.Sprintf(format, args...))
		allOK = false
	}

	printSection("opsroute doctor")
	fmt.Println()

	// ── Check 1: config parses ────────────────────────────────────────────────
	fmt.Println("[ config ]")
	cfgPath := configPathForDisplay()
	cfg, loadErr := config.Load(flagConfig)
	if loadErr != nil {
		failD("cannot load %s: %v", cfgPath, loadErr)
	} else {
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			printWarn("", fmt.Sprintf("%s not found — using built-in defaults (run 'opsroute init')", cfgPath))
		} else {
			printOK("", fmt.Sprintf("loaded %s — %d intent(s), %d action(s)", cfgPath, len(cfg.Intents), len(cfg.Actions)))
		}
	}
	fmt.Println()

	// ── Check 2: config is valid ──────────────────────────────────────────────
	fmt.Println("[ validation ]")
	valid := false
	if loadErr == nil {
		if err := cfg.Validate(); err != nil {
			failD("%v", err)
		} else {
			valid = true
			printOK("", "config is valid")
		}
	} else {
		printSkip("", "skipped (config not loaded)")
	}
	fmt.Println()

	// ── Check 3: actions ──────────────────────────────────────────────────────
	fmt.Println("[ actions ]")
	if valid {
		if st, err := os.Stat(cfg.ActionsRoot); err != nil || !st.IsDir() {
			failD("actions root %s is not a directory — run 'opsroute init'", cfg.ActionsRoot)
		} else {
			printOK("", fmt.Sprintf("actions root: %s", cfg.ActionsRoot))
		}
		reg, err := newRegistry(cfg)
		if err != nil {
			failD("%v", err)
		} else {
			checked := map[string]bool{}
			for _, id := range reg.IDs() {
				d, _ := reg.Lookup(id)
				if _, err := reg.Resolve(id); err != nil {
					if errors.Is(err, fs.ErrNotExist) {
						failD("[%s] %s not found", id, d.Path)
					} else {
						failD("[%s] %v", id, err)
					}
					continue
				}
				printOK(id, d.Path)
				if checked[d.Interpreter] {
					continue
				}
				checked[d.Interpreter] = true
				if p, err := exec.LookPath(d.Interpreter); err != nil {
					failD("interpreter %q not found on PATH", d.Interpreter)
				} else {
					printOK("", fmt.Sprintf("interpreter %s → %s", d.Interpreter, p))
				}
			}
		}
	} else {
		printSkip("", "skipped (config not valid)")
	}
	fmt.Println()

	// ── Check 4: embeddings provider ──────────────────────────────────────────
	fmt.Println("[ embeddings ]")
	if loadErr == nil {
		embCfg, err := embeddings.LoadConfig(cfg.Embeddings)
		if err != nil {
			failD("cannot read embeddings settings: %v", err)
		} else {
			checkEmbeddings(cmd.Context(), embCfg, failD)
		}
	} else {
		printSkip("", "skipped (config not loaded)")
	}
	fmt.Println()

	// ── Summary ───────────────────────────────────────────────────────────────
	fmt.Println("===================")
	if allOK {
		fmt.Println("✓  All checks passed. opsroute is ready to use.")
	} else {
		fmt.Fprintln(os.Stderr, "✗  One or more checks failed. See details above.")
		return fmt.Errorf("doctor found issues")
	}
	return nil
}

func checkEmbeddings(ctx context.Context, embCfg *embeddings.Config, failD func(string, ...any)) {
	if embCfg.Provider == "openai" && embCfg.APIKey == "" {
		failD("OPSROUTE_EMBEDDINGS_API_KEY is not set (environment or ~/.opsroute/.env)")
		return
	}
	prov, err := embeddings.NewFromConfig(ctx, embCfg)
	if err != nil {
		failD("%v", err)
		return
	}
	printOK("", fmt.Sprintf("provider %s (%s)", embCfg.Provider, prov.ModelID()))

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	start := time.Now()
	v, err := prov.Embed(ctx, "check cpu usage")
	if err != nil {
		failD("test embedding failed: %v", err)
		return
	}
	printOK("", fmt.Sprintf("test embedding: %d dims in %s", len(v), time.Since(start).Round(time.Millisecond)))
}
