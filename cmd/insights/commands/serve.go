package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"conversation-insights-go/internal/console"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local console API for a browser front end",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("port", "", "Listen port (default from PORT or 8080)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	a := fromCmd(cmd)
	port := a.cfg.Port
	if p, _ := cmd.Flags().GetString("port"); p != "" {
		port = p
	}

	a.shell.RefreshStats(cmd.Context())
	pterm.Info.Println(a.shell.Banner())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := console.NewHTTPServer(fmt.Sprintf(":%s", port), console.New(a.shell, a.log).Handler())
	if err := console.Serve(ctx, srv, a.log); err != nil {
		return err
	}
	a.shell.Wait()
	pterm.Success.Println("Server stopped cleanly")
	return nil
}
