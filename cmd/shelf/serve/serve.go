// Package servecmder provides the serve command running the shelf API and MCP
// server.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/shelf/api"
	"github.com/papercomputeco/shelf/api/mcp"
	"github.com/papercomputeco/shelf/pkg/bootstrap"
	"github.com/papercomputeco/shelf/pkg/config"
	"github.com/papercomputeco/shelf/pkg/dotdir"
	"github.com/papercomputeco/shelf/pkg/logger"
)

type serveCommander struct {
	flags flagTargets

	debug   bool
	noMCP   bool
	logFile string
	dir    string
	viper  *viper.Viper
	logger *slog.Logger
}

// flagTargets receives flag values; the resolved values are read back
// through viper so flags, env and config.toml share one precedence chain.
type flagTargets struct {
	listen              string
	catalog             string
	ownershipProvider   string
	ownershipTarget     string
	vectorStoreProvider string
	vectorStoreTarget   string
	embeddingProvider   string
	embeddingTarget     string
	embeddingModel      string
	embeddingDimensions uint
	ocrProvider         string
	ocrTarget           string
	ocrModel            string
	explainProvider     string
	semanticThreshold   float64
	eventsProvider      string
}

// serveFlags are the registry keys bound by the serve command.
var serveFlags = []string{
	config.FlagListen,
	config.FlagCatalog,
	config.FlagOwnershipProv,
	config.FlagOwnershipTgt,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagOCRProv,
	config.FlagOCRTgt,
	config.FlagOCRModel,
	config.FlagExplainProv,
	config.FlagSemanticThresh,
	config.FlagEventsProv,
}

const serveLongDesc string = `Run the shelf API server.

The server answers photo scans over HTTP, keeps the global book catalog and
each user's shelf, and exposes the same operations as MCP tools at /mcp.

Match and ownership thresholds in config.toml are reloaded while the server
runs; every other setting needs a restart.

Examples:
  shelf serve
  shelf serve --listen :9000 --ownership-provider postgres \
    --ownership-target postgres://shelf@localhost/shelf`

const serveShortDesc string = "Run the shelf API server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)
			cmder.viper = v

			cmder.dir, err = dotdir.NewManager().Target(configDir)
			if err != nil {
				return fmt.Errorf("resolving config dir: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	f := &cmder.flags
	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &f.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagCatalog, &f.catalog)
	config.AddStringFlag(cmd, config.Flags, config.FlagOwnershipProv, &f.ownershipProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagOwnershipTgt, &f.ownershipTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreProv, &f.vectorStoreProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagVectorStoreTgt, &f.vectorStoreTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingProv, &f.embeddingProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingTgt, &f.embeddingTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagEmbeddingModel, &f.embeddingModel)
	config.AddUintFlag(cmd, config.Flags, config.FlagEmbeddingDims, &f.embeddingDimensions)
	config.AddStringFlag(cmd, config.Flags, config.FlagOCRProv, &f.ocrProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagOCRTgt, &f.ocrTarget)
	config.AddStringFlag(cmd, config.Flags, config.FlagOCRModel, &f.ocrModel)
	config.AddStringFlag(cmd, config.Flags, config.FlagExplainProv, &f.explainProvider)
	config.AddFloatFlag(cmd, config.Flags, config.FlagSemanticThresh, &f.semanticThreshold)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsProv, &f.eventsProvider)
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Serve /mcp without any tools")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also append JSON logs to this file")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, logCloser, err := logger.NewWithFile(c.debug, c.logFile)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	c.logger = log

	cfg, err := config.FromViper(c.viper)
	if err != nil {
		return err
	}

	services, err := bootstrap.Open(ctx, cfg, c.dir, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			c.logger.Error("closing services", "error", err)
		}
	}()

	mcpServer, err := mcp.NewServer(mcp.Config{
		Scanner: services.Scanner,
		Noop:    c.noMCP,
		Logger:  c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	server := api.NewServer(api.Config{
		ListenAddr: cfg.API.Listen,
		BodyLimit:  int(cfg.API.MaxUploadBytes) + 1<<20,
		MCPHandler: mcpServer.Handler(),
	}, services.Scanner, c.logger)

	config.Watch(c.viper, func(next *config.Config) {
		if err := services.Reload(next); err != nil {
			c.logger.Warn("ignoring config change", "error", err)
			return
		}
		c.logger.Info("reloaded match and ownership thresholds",
			"semantic", next.Match.SemanticThreshold,
			"lexical", next.Match.LexicalThreshold,
			"fuzzy", next.Ownership.FuzzyThreshold,
		)
	}, func(err error) {
		c.logger.Warn("ignoring config change", "error", err)
	})

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go c.sweep(sweepCtx, services, cfg.Stability.IdleTimeoutDuration())

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	c.logger.Info("shelf is ready",
		"listen", cfg.API.Listen,
		"dir", c.dir,
		"ocr_provider", cfg.OCR.Provider,
		"ownership_provider", cfg.Storage.OwnershipProvider,
	)

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}

// sweep drops idle stability sessions until ctx ends.
func (c *serveCommander) sweep(ctx context.Context, services *bootstrap.Services, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := services.Scanner.Sweep(); n > 0 {
				c.logger.Debug("swept idle scan sessions", "count", n)
			}
		}
	}
}
