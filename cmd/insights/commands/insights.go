package commands

import (
	"github.com/spf13/cobra"
)

func newInsightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Show aggregated insights",
		Long: `Fetch the aggregate summary and show the top pain points, media sources and
compelling points as bar charts followed by the full ranked lists.`,
		Args: cobra.NoArgs,
		RunE: runInsights,
	}
	cmd.Flags().String("source", "", sourceUsage(" (all when omitted)"))
	return cmd
}

func runInsights(cmd *cobra.Command, args []string) error {
	a := fromCmd(cmd)
	agg := a.shell.Insights

	source, err := parseSourceFlag(cmd)
	if err != nil {
		return err
	}
	err = withSpinner(a, "Loading insights...", func() error {
		_, err := agg.SetSource(cmd.Context(), source)
		return err
	})
	if perr := a.out.Insights(agg.State()); perr != nil {
		return perr
	}
	if err != nil {
		return ErrReported
	}
	return nil
}
