// Package configcmder provides the config command for managing persistent
// shelf configuration stored in the .shelf/ directory.
package configcmder

import (
	"github.com/spf13/cobra"

	"github.com/papercomputeco/shelf/pkg/config"
)

const configLongDesc string = `Manage persistent shelf configuration.

Configuration is stored as config.toml in the .shelf/ directory and provides
default values for command flags. CLI flags and SHELF_ environment variables
take precedence over config file values.

Keys use dotted notation matching the TOML section structure, for example:
  storage.catalog_path, storage.ownership_provider, storage.ownership_target,
  embedding.provider, embedding.model, ocr.provider, ocr.model,
  match.semantic_threshold, ownership.fuzzy_threshold, stability.window

Run "shelf config list" for every key.

Examples:
  shelf config set ocr.provider openai
  shelf config set match.semantic_threshold 0.75
  shelf config get storage.ownership_provider
  shelf config list`

const configShortDesc string = "Manage persistent shelf configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}
