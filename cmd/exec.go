package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamusis/opsroute/internal/executor"
)

var execCmd = &cobra.Command{
	Use:   "exec <action-id> [query]",
	Short: "Run one action directly, bypassing routing",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	ex := executor.New(reg, executor.Options{
		Timeout:        cfg.Executor.Timeout.Std(),
		KillGrace:      cfg.Executor.KillGrace.Std(),
		MaxOutputBytes: cfg.Executor.MaxOutputBytes,
		EnvAllow:       cfg.Executor.EnvAllow,
	}, loggerFrom(cmd))

	id := args[0]
	out := ex.Run(cmd.Context(), id, strings.Join(args[1:], " "))

	printSection("exec " + id)
	fmt.Printf("  status:    %s\n", out.Status)
	if len(out.Command) > 0 {
		fmt.Printf("  command:   %s\n", strings.Join(out.Command, " "))
		fmt.Printf("  exit code: %d\n", out.ExitCode)
		fmt.Printf("  duration:  %s\n", out.Duration.Round(time.Millisecond))
	}
	if out.Truncated {
		printWarn("", "output truncated")
	}
	if out.Output != "" {
		printBullet("Output:")
		fmt.Println(out.Output)
	}
	if out.RawError != "" {
		printBullet("Error:")
		fmt.Println(out.RawError)
	}
	if out.Status != executor.Success {
		return fmt.Errorf("action %s finished with status %s", id, out.Status)
	}
	return nil
}
