package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"conversation-insights-go/internal/apperr"
)

func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the backend and show its analysis engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromCmd(cmd)
			h, ec, err := a.shell.Ping(cmd.Context())
			if err != nil {
				pterm.Error.Println(apperr.Display(err, "Backend unreachable"))
				return ErrReported
			}
			return a.out.Ping(h, ec)
		},
	}
}
