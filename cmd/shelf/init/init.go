// Package initcmder provides the init command for initializing a local .shelf
// directory in the current working directory.
package initcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/shelf/pkg/config"
	"github.com/papercomputeco/shelf/pkg/dotdir"
)

const (
	fetchTimeout  = 15 * time.Second
	maxRemoteSize = 1 << 20
)

const initLongDesc string = `Initialize a new .shelf/ directory in the current working directory.

Creates a local .shelf/ directory that takes precedence over the default
~/.shelf/ directory for the catalog, the vector index, the ownership database
and configuration. A config.toml with default values is written unless one
already exists.

--preset writes a config.toml for a known setup, replacing any existing one:
  local     Ollama for embeddings, OCR and explanations (default)
  groq      Groq hosted vision and chat models, local embeddings
  offline   Hashing embeddings and no explanations, for testing

--preset also accepts an http(s) URL of a config.toml to download.

Examples:
  shelf init
  shelf init --preset groq
  shelf init --preset https://example.com/shelf/config.toml`

const initShortDesc string = "Initialize a local .shelf/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runInit(ctx, cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Config preset name or URL of a config.toml")

	return cmd
}

func runInit(ctx context.Context, out io.Writer, preset string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dotdir.DirName)

	info, err := os.Stat(dir)
	existed := err == nil && info.IsDir()
	if !existed {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .shelf directory: %w", err)
		}
	}

	cfg, err := resolvePreset(ctx, preset)
	if err != nil {
		return err
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	_, statErr := os.Stat(cfger.GetTarget())
	hasConfig := statErr == nil
	if preset != "" || !hasConfig {
		if err := cfger.SaveConfig(cfg); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}
	}

	if existed {
		fmt.Fprintf(out, "Already initialized: %s\n", dir)
	} else {
		fmt.Fprintf(out, "Initialized .shelf directory: %s\n", dir)
	}
	if preset != "" {
		fmt.Fprintf(out, "Applied preset: %s\n", preset)
	}
	return nil
}

func resolvePreset(ctx context.Context, preset string) (*config.Config, error) {
	switch {
	case preset == "":
		return config.NewDefaultConfig(), nil
	case strings.HasPrefix(preset, "http://"), strings.HasPrefix(preset, "https://"):
		return fetchRemote(ctx, preset)
	default:
		return config.PresetConfig(preset)
	}
}

// fetchRemote downloads a config.toml and fills unset keys with defaults.
func fetchRemote(ctx context.Context, url string) (*config.Config, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching remote config: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteSize+1))
	if err != nil {
		return nil, fmt.Errorf("fetching remote config: %w", err)
	}
	if len(data) > maxRemoteSize {
		return nil, errors.New("fetching remote config: file too large")
	}

	remote, err := config.ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	return config.WithDefaults(remote), nil
}
