package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kamusis/opsroute/internal/config"
	"github.com/kamusis/opsroute/internal/logging"
)

var (
	flagConfig    string
	flagLogLevel  string
	flagLogFormat string
)

var rootCmd = &cobra.Command{
	Use:          "opsroute",
	Short:        "opsroute — route operator requests to remediation actions",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `opsroute maps free-form operator requests and alert messages to a fixed
catalog of remediation actions by semantic similarity, then runs the selected
action as an isolated child process with a timeout.

Configuration lives in ~/.opsroute/opsroute.yaml, secrets in ~/.opsroute/.env.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level, format := flagLogLevel, flagLogFormat
		if level == "" || format == "" {
			// best effort: a broken config is reported by the command itself
			if cfg, err := config.Load(flagConfig); err == nil {
				if level == "" {
					level = cfg.Log.Level
				}
				if format == "" {
					format = cfg.Log.Format
				}
			}
		}
		logger, err := logging.New(level, format)
		if err != nil {
			return err
		}
		cmd.SetContext(withLogger(cmd.Context(), logger))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, _ []string) {
		_ = loggerFrom(cmd).Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ~/.opsroute/opsroute.yaml; .toml selects TOML)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format: console or json (default from config)")
}

// Execute is called by main.go.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type loggerKey struct{}

func withLogger(ctx context.Context, l *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, l)
}

func loggerFrom(cmd *cobra.Command) *zap.Logger {
	if ctx := cmd.Context(); ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
			return l
		}
	}
	return zap.NewNop()
}
