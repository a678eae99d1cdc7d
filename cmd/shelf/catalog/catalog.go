// Package catalogcmder provides the catalog command for administering the
// global book catalog.
package catalogcmder

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/shelf/pkg/bootstrap"
	"github.com/papercomputeco/shelf/pkg/config"
	"github.com/papercomputeco/shelf/pkg/dotdir"
	"github.com/papercomputeco/shelf/pkg/logger"
)

const catalogLongDesc string = `Administer the global book catalog.

The catalog is shared by every user. Titles are normalized before they are
stored and near duplicates of existing books are not added twice.

Examples:
  shelf catalog add "Clean Code" "The Pragmatic Programmer"
  shelf catalog search "clean cod"
  shelf catalog list
  shelf catalog rebuild`

const catalogShortDesc string = "Administer the book catalog"

// catalogFlags are the registry keys bound by every catalog subcommand.
var catalogFlags = []string{
	config.FlagCatalog,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
}

func NewCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: catalogShortDesc,
		Long:  catalogLongDesc,
	}

	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newRebuildCmd())

	return cmd
}

// storeFlags receives the registered flag values for a subcommand.
type storeFlags struct {
	catalog             string
	vectorStoreProvider string
	vectorStoreTarget   string
	embeddingProvider   string
	embeddingTarget     string
	embeddingModel      string
}

func addStoreFlags(cmd *cobra.Command, f *storeFlags) {
	config.AddStringFlag(cmd, config.Flags, config.FlagCatalog, &f.catalog)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProv, &f.vectorStoreProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreTgt, &f.vectorStoreTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingProv, &f.embeddingProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingTgt, &f.embeddingTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingModel, &f.embeddingModel)
}

// openCatalog resolves config for cmd and opens the catalog it names.
func openCatalog(ctx context.Context, cmd *cobra.Command) (*bootstrap.Catalog, *slog.Logger, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	debug, _ := cmd.Flags().GetBool("debug")
	log := logger.NewCLI(debug)

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, catalogFlags)

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, nil, err
	}

	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving config dir: %w", err)
	}

	cat, err := bootstrap.OpenCatalog(ctx, cfg, dir, log)
	if err != nil {
		return nil, nil, err
	}
	return cat, log, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
