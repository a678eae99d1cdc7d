// Package versioncmder provides the version command.
package versioncmder

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/shelf/pkg/utils"
)

func NewVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the shelf version",
		Long:  "Print the version, commit and build time of this shelf binary.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.OutOrStdout(), short)
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print only the version")

	return cmd
}

func run(out io.Writer, short bool) error {
	if short {
		_, err := fmt.Fprintln(out, utils.Version)
		return err
	}
	_, err := fmt.Fprintf(out, "Version: %s\nSha: %s\nBuilt at: %s\nGo: %s %s/%s\n",
		utils.Version, utils.Sha, utils.Buildtime,
		runtime.Version(), runtime.GOOS, runtime.GOARCH,
	)
	return err
}
