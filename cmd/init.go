package cmd

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kamusis/opsroute/internal/catalog"
	"github.com/kamusis/opsroute/internal/config"
)

var flagInitForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create ~/.opsroute with a default config and stand-in actions",
	Long: `Initialize opsroute.

Writes, skipping anything that already exists:
  ~/.opsroute/opsroute.yaml   default config with the built-in intent catalog
  ~/.opsroute/.env            embeddings provider settings (secrets)
  <actions_root>/*.sh         stand-in actions for the built-in catalog`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&flagInitForce, "force", false, "Overwrite existing stand-in actions")
	rootCmd.AddCommand(initCmd)
}

func runInit(_ *cobra.Command, _ []string) error {
	// ── 1. ~/.opsroute ────────────────────────────────────────────────────────
	home, err := config.HomeDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", home, err)
	}
	printOK("", fmt.Sprintf("opsroute directory ready: %s", home))

	// ── 2. Config file ────────────────────────────────────────────────────────
	cfgPath := flagConfig
	if cfgPath == "" {
		if cfgPath, err = config.ConfigPath(); err != nil {
			return err
		}
	}
	if cfgPath, err = config.ExpandPath(cfgPath); err != nil {
		return err
	}
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.Save(config.Default(), cfgPath); err != nil {
			return err
		}
		printOK("", fmt.Sprintf("config written: %s", cfgPath))
	} else {
		printSkip("", fmt.Sprintf("config exists: %s", cfgPath))
	}

	// ── 3. .env template ──────────────────────────────────────────────────────
	wrote, err := config.EnsureDotEnvTemplate()
	if err != nil {
		return err
	}
	envPath, _ := config.DotEnvPath()
	if wrote {
		printOK("", fmt.Sprintf(".env template written: %s", envPath))
	} else {
		printSkip("", fmt.Sprintf(".env exists: %s", envPath))
	}

	// ── 4. Stand-in actions ──────────────────────────────────────────────────
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("cannot load config: %w", err)
	}
	installed, skipped, err := installStandIns(cfg.ActionsRoot, flagInitForce)
	if err != nil {
		return err
	}
	for _, name := range installed {
		printOK(name, "stand-in action installed")
	}
	for _, name := range skipped {
		printSkip(name, "exists")
	}

	fmt.Println()
	printInfo("", "next: 'opsroute doctor' to verify, then 'opsroute run \"check cpu usage\"'")
	return nil
}

// installStandIns copies the embedded stand-in scripts into root.
func installStandIns(root string, force bool) (installed, skipped []string, err error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, nil, fmt.Errorf("cannot create actions root %s: %w", root, err)
	}
	src := catalog.StandIns()
	err = fs.WalkDir(src, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		dst := filepath.Join(root, filepath.FromSlash(p))
		if _, statErr := os.Stat(dst); statErr == nil && !force {
			skipped = append(skipped, p)
			return nil
		}
		b, err := fs.ReadFile(src, p)
		if err != nil {
			return err
		}
		if err := os.WriteFile(dst, b, 0o755); err != nil {
			return fmt.Errorf("cannot write %s: %w", dst, err)
		}
		installed = append(installed, p)
		return nil
	})
	return installed, skipped, err
}
