package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the state of the vector collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, err := a.store.CollectionInfo(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Collection:  %s\n", info.Name)
			fmt.Fprintf(out, "Points:      %d\n", info.PointsCount)
			fmt.Fprintf(out, "Vector size: %d\n", info.VectorSize)
			if info.EmbeddingModel != "" {
				fmt.Fprintf(out, "Model:       %s\n", info.EmbeddingModel)
			}
			return nil
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every indexed point and recreate the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.store.ClearCollection(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Collection cleared.")
			return nil
		},
	}
}
