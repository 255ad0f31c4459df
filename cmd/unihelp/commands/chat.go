package commands

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"unihelp/internal/llm"
	"unihelp/internal/service"
	"unihelp/internal/tui"
)

func newChatCmd(a *app) *cobra.Command {
	var autoIngest bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive chat in the terminal",
		Long: `Open an interactive chat. With --auto-ingest, the configured data
directory is indexed first if the collection is empty.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			header := "UniHelp"
			if autoIngest {
				summary, ran, err := a.pipeline.EnsureIngested(ctx, a.cfg.Ingest.DataDir)
				if err != nil {
					return err
				}
				if ran {
					header = fmt.Sprintf("UniHelp (indexed %d chunks from %d files)", summary.ChunksAdded, summary.FilesProcessed)
				}
			}
			if info, err := a.store.CollectionInfo(ctx); err == nil {
				header += fmt.Sprintf("  %d passages", info.PointsCount)
			}
			chat := func(question string, history []llm.Message) (service.Answer, error) {
				return a.assistant.Chat(ctx, question, history)
			}
			_, err := tea.NewProgram(tui.New(chat, header), tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().BoolVar(&autoIngest, "auto-ingest", true, "Index the data directory when the collection is empty")
	return cmd
}
