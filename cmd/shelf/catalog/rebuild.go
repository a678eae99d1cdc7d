package catalogcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/shelf/pkg/cliui"
)

const rebuildLongDesc string = `Re-embed every cataloged title and rebuild the vector index.

Run this after changing the embedding model or dimensions, or after
switching vector store providers.

Examples:
  shelf catalog rebuild
  shelf catalog rebuild --vector-store-provider qdrant --vector-store-target localhost:6334`

const rebuildShortDesc string = "Rebuild the vector index from the catalog"

func newRebuildCmd() *cobra.Command {
	var flags storeFlags

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: rebuildShortDesc,
		Long:  rebuildLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRebuild(cmd)
		},
	}
	addStoreFlags(cmd, &flags)

	return cmd
}

func runRebuild(cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	cat, _, err := openCatalog(ctx, cmd)
	if err != nil {
		return err
	}
	defer cat.Close()

	out := cmd.OutOrStdout()
	msg := fmt.Sprintf("Rebuilding index for %d titles", cat.Len())
	return cliui.Step(out, msg, func() error {
		return cat.Rebuild(ctx)
	})
}
