package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"conversation-insights-go/internal/types"
)

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one batch of transcript analysis",
		Long: `Ask the backend to analyze up to --limit not-yet-analyzed conversations.

Conversations already analyzed are skipped and reported. Run again to process
the next batch.

With --conversation the backend analyzes that one conversation instead, or
returns its stored analysis when there is one.`,
		Args: cobra.NoArgs,
		RunE: runAnalyze,
	}
	cmd.Flags().String("source", "", sourceUsage(" (all when omitted)"))
	cmd.Flags().String("limit", strconv.Itoa(types.DefaultAnalysisLimit), "Maximum conversations to analyze (1-1000)")
	cmd.Flags().Int("conversation", 0, "Analyze a single conversation by id")
	cmd.MarkFlagsMutuallyExclusive("conversation", "limit")
	cmd.MarkFlagsMutuallyExclusive("conversation", "source")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a := fromCmd(cmd)
	orch := a.shell.Analysis

	if cmd.Flags().Changed("conversation") {
		id, _ := cmd.Flags().GetInt("conversation")
		return runAnalyzeConversation(cmd, a, id)
	}

	source, err := parseSourceFlag(cmd)
	if err != nil {
		return err
	}
	orch.SetSource(source)
	raw, _ := cmd.Flags().GetString("limit")
	limit := orch.SetLimitInput(raw)
	a.log.WithField("limit", limit).WithField("source", source).Debug("limit sanitized")

	err = withSpinner(a, "Analyzing conversations...", func() error {
		_, err := orch.RunBatch(cmd.Context())
		return err
	})
	if perr := a.out.Analysis(orch.State()); perr != nil {
		return perr
	}
	if err != nil {
		return ErrReported
	}
	return nil
}

func runAnalyzeConversation(cmd *cobra.Command, a *app, id int) error {
	orch := a.shell.Analysis
	err := withSpinner(a, fmt.Sprintf("Analyzing conversation %d...", id), func() error {
		_, err := orch.AnalyzeConversation(cmd.Context(), id)
		return err
	})
	if perr := a.out.ConversationAnalysis(orch.State()); perr != nil {
		return perr
	}
	if err != nil {
		return ErrReported
	}
	return nil
}
