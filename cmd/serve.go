package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kamusis/opsroute/internal/server"
)

var flagServeAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the alert webhook receiver",
	Long: `Start an HTTP server that accepts alert notifications.

Routes:
  GET  /          liveness banner
  GET  /healthz   intent count and embeddings model
  POST /alert     {"message": "..."} → route, run and report the result
  POST /match     {"query": "..."}   → routing decision only

The server stops gracefully on SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "", "Listen address (default from config, 127.0.0.1:5006)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := bootstrap(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Server.Addr
	if flagServeAddr != "" {
		addr = flagServeAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Options{
		Addr:            addr,
		MaxConcurrent:   a.cfg.Server.MaxConcurrent,
		ReadTimeout:     a.cfg.Server.ReadTimeout.Std(),
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout.Std(),
	}, a.service, a.router, server.Info{
		Intents: a.index.Len(),
		Model:   a.index.ModelID(),
	}, a.log)
	return srv.Run(ctx)
}
