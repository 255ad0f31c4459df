package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"unihelp/internal/service"
)

func newIngestCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Index every PDF, text and markdown file under a directory",
		Long: `Extract, chunk and index every supported file under dir (recursively).
Without an argument the configured data directory is used. Running it twice
appends the documents again; use --force to rebuild the collection.

Examples:
  unihelp ingest
  unihelp ingest --force docs/Data`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.cfg.Ingest.DataDir
			if len(args) == 1 {
				dir = args[0]
			}
			summary, err := a.pipeline.IngestDirectory(cmd.Context(), dir, force)
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Clear the collection before indexing")
	return cmd
}

func newIngestFileCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest-file <path>",
		Short: "Index a single document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := a.pipeline.IngestFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}

func printSummary(w io.Writer, s service.IngestSummary) {
	fmt.Fprintf(w, "Status:          %s\n", s.Status)
	if s.Message != "" {
		fmt.Fprintf(w, "Message:         %s\n", s.Message)
	}
	fmt.Fprintf(w, "Files processed: %d\n", s.FilesProcessed)
	if s.FilesFailed > 0 {
		fmt.Fprintf(w, "Files failed:    %d\n", s.FilesFailed)
	}
	fmt.Fprintf(w, "Chunks created:  %d\n", s.ChunksCreated)
	fmt.Fprintf(w, "Chunks added:    %d\n", s.ChunksAdded)
	fmt.Fprintf(w, "Total points:    %d\n", s.TotalPoints)
}
