package catalogcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/shelf/pkg/cliui"
)

const listLongDesc string = `List every cataloged title in insertion order.

Examples:
  shelf catalog list`

const listShortDesc string = "List cataloged titles"

func newListCmd() *cobra.Command {
	var flags storeFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd)
		},
	}
	addStoreFlags(cmd, &flags)

	return cmd
}

func runList(cmd *cobra.Command) error {
	ctx := commandContext(cmd)

	cat, _, err := openCatalog(ctx, cmd)
	if err != nil {
		return err
	}
	defer cat.Close()

	out := cmd.OutOrStdout()
	records := cat.Records()
	if len(records) == 0 {
		fmt.Fprintln(out, "The catalog is empty.")
		return nil
	}

	for i, rec := range records {
		fmt.Fprintf(out, "%4d  %s  %s\n", i, rec.Title,
			cliui.DimStyle.Render(rec.CreatedAt.Format("2006-01-02")))
	}
	return nil
}
