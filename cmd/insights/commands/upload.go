package commands

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"conversation-insights-go/internal/types"
)

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Upload a transcript export",
		Long: `Upload a CSV or JSON transcript export to the backend.

CSV files need a "transcript" column; JSON files need "transcript" or "text"
on each item. Excel workbooks are converted to CSV first. Without --format the
file type is taken from the extension, the way a drag-and-drop would.`,
		Args: cobra.ExactArgs(1),
		RunE: runUpload,
	}
	cmd.Flags().String("source", string(types.SourceGong), sourceUsage(""))
	cmd.Flags().String("format", "", "File type: csv or json (inferred from the name when omitted)")
	return cmd
}

func runUpload(cmd *cobra.Command, args []string) error {
	a := fromCmd(cmd)
	ctrl := a.shell.Ingestion

	source, err := parseSourceFlag(cmd)
	if err != nil {
		return err
	}
	if source.IsAll() {
		source = types.SourceGong
	}
	ctrl.SetSource(source)

	path := args[0]
	payload, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	file := types.File{Name: filepath.Base(path), Payload: payload}

	if cmd.Flags().Changed("format") {
		raw, _ := cmd.Flags().GetString("format")
		format, perr := types.ParseFormat(raw)
		if perr != nil {
			return perr
		}
		ctrl.SetFormat(format)
		err = ctrl.Select(file)
	} else {
		err = ctrl.Drop(file)
	}
	if err != nil {
		_ = a.out.Upload(ctrl.State())
		return ErrReported
	}

	start := time.Now()
	err = withSpinner(a, "Uploading "+file.Name+"...", func() error {
		_, err := ctrl.Submit(cmd.Context())
		return err
	})
	a.log.WithField("file", file.Name).WithField("duration_ms", since(start)).Debug("upload finished")

	// the post-upload stats refresh runs in the background
	a.shell.Wait()
	if perr := a.out.Upload(ctrl.State()); perr != nil {
		return perr
	}
	if err != nil {
		return ErrReported
	}
	if !a.out.Structured() {
		return a.out.Stats(a.shell.Stats(), a.shell.Banner())
	}
	return nil
}
