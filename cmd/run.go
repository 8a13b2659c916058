package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <query>",
	Short: "Route a query and run the selected action",
	Long: `Route a query to the nearest intent, run its action and print the result.

Action failures are reported as text and still exit 0. Only configuration
errors exit non-zero.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	text, err := a.service.Handle(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}
