package commands

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show conversation counts per source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromCmd(cmd)
			st := a.shell.RefreshStats(cmd.Context())
			if !a.shell.Loaded() {
				pterm.Warning.Println("Could not reach the backend; counts unavailable")
				return ErrReported
			}
			return a.out.Stats(st, a.shell.Banner())
		},
	}
}
