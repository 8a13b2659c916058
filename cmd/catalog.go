package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List intents and the action registry",
	Args:  cobra.NoArgs,
	RunE:  runCatalog,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}

func runCatalog(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := newRegistry(cfg)
	if err != nil {
		return err
	}

	printSection("Intents")
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  #\tPHRASE\tACTION")
	for i, in := range cfg.Intents {
		fmt.Fprintf(tw, "  %d\t%s\t%s\n", i, in.Phrase, in.ActionID)
	}
	_ = tw.Flush()

	printSection("Actions")
	fmt.Printf("  root: %s\n", reg.Root())
	var present, missing int
	for _, id := range reg.IDs() {
		d, _ := reg.Lookup(id)
		inv, err := reg.Resolve(id)
		switch {
		case err == nil:
			present++
			printOK(id, fmt.Sprintf("%s %s", d.Interpreter, inv.Path))
		case errors.Is(err, fs.ErrNotExist):
			missing++
			printMiss(id, fmt.Sprintf("%s not found", d.Path))
		default:
			missing++
			printErr(id, err.Error())
		}
	}
	fmt.Printf("\n  %d intent(s) / %d action(s): %d present, %d missing\n",
		len(cfg.Intents), len(reg.IDs()), present, missing)
	return nil
}
