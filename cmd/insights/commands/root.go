// Package commands holds the cobra command tree of the insights CLI.
package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"conversation-insights-go/internal/config"
	"conversation-insights-go/internal/logger"
	"conversation-insights-go/internal/render"
	"conversation-insights-go/internal/shell"
	"conversation-insights-go/internal/types"
)

// ErrReported is returned by commands that already printed their failure.
var ErrReported = errors.New("failure already reported")

// app is what every subcommand works with once the root pre-run has loaded
// the configuration.
type app struct {
	cfg   config.Config
	log   *logger.Logger
	shell *shell.Shell
	out   *render.Printer
}

type appKey struct{}

func fromCmd(cmd *cobra.Command) *app {
	a, _ := cmd.Context().Value(appKey{}).(*app)
	return a
}

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "insights",
		Short: "Upload conversation transcripts, run analysis and browse insights",
		Long: `insights - client for the conversation insights backend.

Upload call transcripts (CSV, JSON or Excel exports), trigger batch analysis
and browse the aggregated pain points, media consumption and compelling points.

Examples:
  insights upload calls.csv --source gong   # Upload a Gong export
  insights analyze --limit 250              # Analyze up to 250 conversations
  insights insights --source planhat        # Show insights for Planhat calls
  insights results list --source gong       # Page through stored analyses
  insights results show 42 --conversation   # Findings for conversation 42
  insights stats                            # Conversation counts per source
  insights serve                            # Local console API on :8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := config.New(cfgFile)
			if err != nil {
				return err
			}
			flags := cmd.Root().PersistentFlags()
			for key, name := range map[string]string{
				config.KeyAPIBase:         "api-base",
				config.KeyOutput:          "output",
				config.KeyUploadTimeout:   "upload-timeout",
				config.KeyAnalysisTimeout: "analysis-timeout",
				config.KeyHTTPTimeout:     "timeout",
			} {
				if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
					return errors.Wrapf(err, "bind flag %s", name)
				}
			}
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}

			log := logger.New()
			a := &app{
				cfg:   cfg,
				log:   log,
				shell: shell.New(cfg, log),
				out:   render.New(cmd.OutOrStdout(), cfg.Output),
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, appKey{}, a))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (yaml, json or toml)")
	pf.String("api-base", "", "Backend API root (default http://localhost:8000/api)")
	pf.StringP("output", "o", "", "Output format: table, json, yaml")
	pf.Duration("upload-timeout", 0, "Upload timeout, never below 2m")
	pf.Duration("analysis-timeout", 0, "Timeout for analysis runs (0 waits for the backend)")
	pf.Duration("timeout", 0, "Timeout for other requests")

	root.AddCommand(newUploadCmd())
	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newInsightsCmd())
	root.AddCommand(newResultsCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newPingCmd())
	root.AddCommand(newServeCmd())
	return root
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		if !errors.Is(err, ErrReported) {
			pterm.Error.Println(err.Error())
		}
		return 1
	}
	return 0
}

// withSpinner shows a spinner on stderr while fn runs, unless output is meant
// for scripts.
func withSpinner(a *app, text string, fn func() error) error {
	if a.out.Structured() {
		return fn()
	}
	spinner, err := pterm.DefaultSpinner.WithWriter(os.Stderr).WithRemoveWhenDone().Start(text)
	if err != nil {
		return fn()
	}
	defer func() { _ = spinner.Stop() }()
	return fn()
}

func parseSourceFlag(cmd *cobra.Command) (types.Source, error) {
	raw, _ := cmd.Flags().GetString("source")
	return types.ParseSource(raw)
}

func sourceUsage(extra string) string {
	return fmt.Sprintf("Conversation source: gong, salesforce, planhat, other%s", extra)
}

// since is handed to log fields as milliseconds
func since(t time.Time) int64 { return time.Since(t).Milliseconds() }
