package catalogcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/shelf/pkg/cliui"
)

const searchLongDesc string = `Look up the closest catalog entry for a title.

Shows the semantic and lexical scores and whether the match would count as
strong, weak or no match under the current thresholds.

Examples:
  shelf catalog search "clean cod"
  shelf catalog search "Designing Data Intensive Apps"`

const searchShortDesc string = "Find the closest catalog entry for a title"

func newSearchCmd() *cobra.Command {
	var flags storeFlags

	cmd := &cobra.Command{
		Use:   "search <title>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0])
		},
	}
	addStoreFlags(cmd, &flags)

	return cmd
}

func runSearch(cmd *cobra.Command, title string) error {
	ctx := commandContext(cmd)

	cat, _, err := openCatalog(ctx, cmd)
	if err != nil {
		return err
	}
	defer cat.Close()

	m, err := cat.FindBestMatch(ctx, title)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !m.Found() {
		fmt.Fprintf(out, "\n  %s %s\n\n", cliui.FailMark, cliui.DimStyle.Render("No catalog match."))
		return nil
	}

	fmt.Fprintf(out, "\n  %s %s\n\n", cliui.SuccessMark, cliui.ValueStyle.Render(m.Record.Title))
	fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("strength:"), m.Strength)
	fmt.Fprintf(out, "  %s %.3f\n", cliui.KeyStyle.Render("semantic:"), m.Semantic)
	fmt.Fprintf(out, "  %s %.3f\n", cliui.KeyStyle.Render("lexical: "), m.Lexical)
	fmt.Fprintf(out, "  %s %.3f\n\n", cliui.KeyStyle.Render("combined:"), m.Combined)
	return nil
}
