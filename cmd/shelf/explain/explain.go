// Package explaincmder provides the explain command describing a book from
// its metadata and the configured chat model.
package explaincmder

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/shelf/pkg/bootstrap"
	"github.com/papercomputeco/shelf/pkg/cliui"
	"github.com/papercomputeco/shelf/pkg/config"
	"github.com/papercomputeco/shelf/pkg/dotdir"
	"github.com/papercomputeco/shelf/pkg/explain"
	"github.com/papercomputeco/shelf/pkg/logger"
)

const explainLongDesc string = `Describe a book.

Looks the title up in Google Books and asks the configured explanation model
about it. When no model is configured, or the model fails, the answer is
built from the book's description instead.

Set GOOGLE_BOOKS_API_KEY, or store a key with "shelf auth google-books",
to raise the Google Books quota.

Examples:
  shelf explain "Clean Code"
  shelf explain "Dune" --question "Is this a good first science fiction book?"
  shelf explain "Refactoring" --explain-provider none`

const explainShortDesc string = "Describe a book"

var explainFlags = []string{
	config.FlagExplainProv,
}

type explainCommander struct {
	question        string
	explainProvider string
	raw             bool
}

func NewExplainCmd() *cobra.Command {
	cmder := &explainCommander{}

	cmd := &cobra.Command{
		Use:   "explain <title>",
		Short: explainShortDesc,
		Long:  explainLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			debug, _ := cmd.Flags().GetBool("debug")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, explainFlags)

			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			dir, err := dotdir.NewManager().Target(configDir)
			if err != nil {
				return fmt.Errorf("resolving config dir: %w", err)
			}

			explainer, err := bootstrap.NewExplainer(cfg, dir, logger.NewCLI(debug))
			if err != nil {
				return err
			}
			defer explainer.Close()

			return cmder.run(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), explainer, args[0])
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagExplainProv, &cmder.explainProvider)
	cmd.Flags().StringVarP(&cmder.question, "question", "q", "", "Question to ask about the book")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print markdown without rendering it")

	return cmd
}

func (c *explainCommander) run(ctx context.Context, out, status io.Writer, explainer *explain.Explainer, title string) error {
	var result *explain.Explanation
	err := cliui.Step(status, "Looking up "+title, func() error {
		var err error
		result, err = explainer.Explain(ctx, title, c.question)
		return err
	})
	if err != nil {
		return err
	}

	md := Markdown(result)
	if c.raw {
		fmt.Fprint(out, md)
		return nil
	}

	// RenderMarkdown hands back the plain markdown when it cannot render.
	rendered, _ := cliui.RenderMarkdown(md)
	fmt.Fprint(out, rendered)
	return nil
}

// Markdown formats an explanation for the terminal.
func Markdown(e *explain.Explanation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", e.Title)
	if len(e.Authors) > 0 {
		fmt.Fprintf(&b, "*%s*\n\n", strings.Join(e.Authors, ", "))
	}
	b.WriteString(e.Text)
	b.WriteString("\n")

	if v := e.Volume; v != nil {
		var facts []string
		if v.PublishedDate != "" {
			facts = append(facts, "Published "+v.PublishedDate)
		}
		if v.PageCount > 0 {
			facts = append(facts, fmt.Sprintf("%d pages", v.PageCount))
		}
		if len(v.Categories) > 0 {
			facts = append(facts, strings.Join(v.Categories, ", "))
		}
		if len(facts) > 0 {
			fmt.Fprintf(&b, "\n---\n\n%s\n", strings.Join(facts, " · "))
		}
	}

	if e.Source == explain.SourceFallback {
		b.WriteString("\n> Answered from book metadata.\n")
	}
	return b.String()
}
