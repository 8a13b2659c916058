package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kamusis/opsroute/internal/config"
)

var flagRouteMaxDistance float64

var routeCmd = &cobra.Command{
	Use:   "route <query>",
	Short: "Show which action a query would be routed to, without running it",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRoute,
}

func init() {
	routeCmd.Flags().Float64Var(&flagRouteMaxDistance, "max-distance", 0, "Reject matches farther than this squared L2 distance (0 = always nearest; default from config)")
	rootCmd.AddCommand(routeCmd)
}

func runRoute(cmd *cobra.Command, args []string) error {
	a, err := bootstrap(cmd, func(cfg *config.Config) {
		if cmd.Flags().Changed("max-distance") {
			cfg.Router.MaxDistance = flagRouteMaxDistance
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	query := strings.Join(args, " ")
	m, err := a.router.Match(cmd.Context(), query)
	if err != nil {
		return err
	}

	printSection("Route")
	if !m.Found {
		printMiss("", fmt.Sprintf("no match (%s)", m.Reason))
		if m.Phrase != "" {
			printInfo("", fmt.Sprintf("nearest: %q → %s  (distance %.4f)", m.Phrase, a.index.Entry(m.Position).ActionID, m.Distance))
		}
		return nil
	}
	printOK(m.ActionID, fmt.Sprintf("%q  (distance %.4f)", m.Phrase, m.Distance))
	return nil
}
