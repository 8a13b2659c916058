package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kamusis/opsroute/internal/audit"
)

var flagHistoryN int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently handled requests from the history database",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&flagHistoryN, "limit", "n", 20, "Number of records to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Audit.DBPath == "" {
		return fmt.Errorf("history is disabled (audit.db_path is empty)")
	}
	if _, err := os.Stat(cfg.Audit.DBPath); os.IsNotExist(err) {
		printMiss("", fmt.Sprintf("no history yet: %s", cfg.Audit.DBPath))
		return nil
	}

	store, err := audit.OpenSQLite(cmd.Context(), cfg.Audit.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Recent(cmd.Context(), flagHistoryN)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		printMiss("", "no history yet")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTATUS\tACTION\tDISTANCE\tDURATION\tSERVER\tQUERY")
	for _, r := range records {
		action := r.ActionID
		if action == "" {
			action = "-"
		}
		server := r.Server
		if server == "" {
			server = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%s\t%s\t%s\n",
			r.Time.Local().Format(time.DateTime),
			r.Status,
			action,
			r.Distance,
			(time.Duration(r.DurationMS) * time.Millisecond).String(),
			server,
			shortHash(r.QueryHash))
	}
	return tw.Flush()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
