// Package cli implements the pagedecor command-line interface.
//
// Commands:
//   - serve: run the decoration proxy
//   - decorate: decorate an HTML or Markdown document from a file or stdin
//   - tabs: print the tab runs of a document
//
// All commands accept --verbose (-v) for debug logging. The logger travels in
// the command context.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"pagedecor/internal/config"
)

var (
	version string
	commit  string
	date    string
)

// SetVersion sets the version information displayed by --version. The main
// package calls it with values injected through ldflags.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the pagedecor CLI.
func Execute() error {
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:          "pagedecor",
		Short:        "pagedecor decorates block-framework pages",
		Long:         `pagedecor rewrites external image links into responsive pictures and folds consecutive tab sections into tabs blocks, as a proxy or on local files.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := config.Load().NewLogger(cmd.ErrOrStderr())
			if verbose {
				logger.SetLevel(log.DebugLevel)
			}
			cmd.SetContext(withLogger(cmd.Context(), logger))
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("pagedecor %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newServeCmd())
	root.AddCommand(newDecorateCmd())
	root.AddCommand(newTabsCmd())
	return root
}

// readInput returns the contents of path, or stdin when path is empty or "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return data, nil
}
