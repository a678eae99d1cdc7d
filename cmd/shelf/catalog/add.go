package catalogcmder

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/shelf/pkg/catalog"
	"github.com/papercomputeco/shelf/pkg/cliui"
)

const addLongDesc string = `Add one or more titles to the catalog.

Each title is normalized first. A title that is already cataloged, or that
is a near duplicate of a cataloged book, reports the existing entry instead.

Examples:
  shelf catalog add "Clean Code"
  shelf catalog add "Designing Data-Intensive Applications" "Refactoring"`

const addShortDesc string = "Add titles to the catalog"

func newAddCmd() *cobra.Command {
	var flags storeFlags

	cmd := &cobra.Command{
		Use:   "add <title>...",
		Short: addShortDesc,
		Long:  addLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, args)
		},
	}
	addStoreFlags(cmd, &flags)

	return cmd
}

func runAdd(cmd *cobra.Command, titles []string) error {
	ctx := commandContext(cmd)

	cat, _, err := openCatalog(ctx, cmd)
	if err != nil {
		return err
	}
	defer cat.Close()

	out := cmd.OutOrStdout()
	var failed error
	for _, title := range titles {
		ins, err := cat.Insert(ctx, title)
		switch {
		case errors.Is(err, catalog.ErrUnusableTitle):
			fmt.Fprintf(out, "  %s %s %s\n", cliui.FailMark, title, cliui.DimStyle.Render("(too short to catalog)"))
			failed = errors.Join(failed, err)
		case err != nil:
			fmt.Fprintf(out, "  %s %s %s\n", cliui.FailMark, title, cliui.DimStyle.Render(err.Error()))
			failed = errors.Join(failed, err)
		case ins.Created:
			fmt.Fprintf(out, "  %s %s\n", cliui.SuccessMark, cliui.ValueStyle.Render(ins.Record.Title))
		default:
			fmt.Fprintf(out, "  %s %s %s\n", cliui.SuccessMark, cliui.ValueStyle.Render(ins.Record.Title),
				cliui.DimStyle.Render("(already cataloged)"))
		}
	}

	return failed
}
