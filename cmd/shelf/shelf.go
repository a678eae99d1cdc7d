// Package shelfcmder
package shelfcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/shelf/cmd/shelf/auth"
	catalogcmder "github.com/papercomputeco/shelf/cmd/shelf/catalog"
	configcmder "github.com/papercomputeco/shelf/cmd/shelf/config"
	explaincmder "github.com/papercomputeco/shelf/cmd/shelf/explain"
	initcmder "github.com/papercomputeco/shelf/cmd/shelf/init"
	servecmder "github.com/papercomputeco/shelf/cmd/shelf/serve"
	versioncmder "github.com/papercomputeco/shelf/cmd/version"
)

const shelfLongDesc string = `Shelf identifies books from photos of their covers and keeps
track of which books each user already owns.

Run services using:
  shelf serve          Run the API and MCP server

Manage local state using:
  shelf init           Create a local .shelf/ directory
  shelf catalog        Add, search, list and rebuild the book catalog
  shelf config         Get and set configuration values
  shelf auth           Store API keys for hosted providers
  shelf explain        Describe a book`

const shelfShortDesc string = "Shelf - book recognition and ownership"

func NewShelfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "shelf",
		Short:         shelfShortDesc,
		Long:          shelfLongDesc,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .shelf/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(catalogcmder.NewCatalogCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(explaincmder.NewExplainCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
