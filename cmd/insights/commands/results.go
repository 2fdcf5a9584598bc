package commands

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"conversation-insights-go/internal/apperr"
	"conversation-insights-go/internal/types"
)

func newResultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results",
		Short: "Browse stored per-conversation analyses",
	}
	cmd.AddCommand(newResultsListCmd())
	cmd.AddCommand(newResultsShowCmd())
	cmd.AddCommand(newResultsStatusCmd())
	return cmd
}

func newResultsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List analysis results one page at a time",
		Args:  cobra.NoArgs,
		RunE:  runResultsList,
	}
	cmd.Flags().String("source", "", sourceUsage(" (all when omitted)"))
	cmd.Flags().Int("skip", 0, "Results to skip")
	cmd.Flags().Int("limit", types.DefaultResultPageSize, "Page size (1-1000)")
	return cmd
}

func runResultsList(cmd *cobra.Command, args []string) error {
	a := fromCmd(cmd)
	br := a.shell.Results

	source, err := parseSourceFlag(cmd)
	if err != nil {
		return err
	}
	skip, _ := cmd.Flags().GetInt("skip")
	limit, _ := cmd.Flags().GetInt("limit")

	err = withSpinner(a, "Loading results...", func() error {
		_, err := br.Query(cmd.Context(), types.ResultListRequest{Source: source, Skip: skip, Limit: limit})
		return err
	})
	if perr := a.out.Results(br.State()); perr != nil {
		return perr
	}
	if err != nil {
		return ErrReported
	}
	return nil
}

func newResultsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show the findings of one analysis result",
		Long: `Show the pain points, media consumption and compelling points extracted from
one conversation. ID is a result id, or a conversation id with --conversation.`,
		Args: cobra.ExactArgs(1),
		RunE: runResultsShow,
	}
	cmd.Flags().Bool("conversation", false, "Treat ID as a conversation id")
	return cmd
}

func runResultsShow(cmd *cobra.Command, args []string) error {
	a := fromCmd(cmd)
	br := a.shell.Results

	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	byConversation, _ := cmd.Flags().GetBool("conversation")

	var detail types.ResultDetail
	err = withSpinner(a, "Loading result...", func() error {
		var err error
		if byConversation {
			detail, err = br.ShowConversation(cmd.Context(), id)
		} else {
			detail, err = br.Show(cmd.Context(), id)
		}
		return err
	})
	if err != nil {
		if perr := a.out.Results(br.State()); perr != nil {
			return perr
		}
		return ErrReported
	}
	return a.out.ResultDetail(detail)
}

func newResultsStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status CONVERSATION_ID",
		Short: "Report whether a conversation has been analyzed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := fromCmd(cmd)
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			st, err := a.shell.Analysis.Status(cmd.Context(), id)
			if err != nil {
				return errors.New(apperr.Display(err, "Failed to fetch analysis status"))
			}
			return a.out.AnalysisStatus(id, st)
		},
	}
}

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Newf("invalid id %q: must be an integer", raw)
	}
	return id, nil
}
