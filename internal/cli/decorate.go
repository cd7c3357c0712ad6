package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/net/html"

	"pagedecor/decor"
)

type decorateOptions struct {
	fragment bool
	marker   string
	codeBase string
	base     string
	reveal   bool
	output   string
}

func newDecorateCmd() *cobra.Command {
	var opts decorateOptions

	cmd := &cobra.Command{
		Use:   "decorate [file]",
		Short: "Decorate an HTML or Markdown document",
		Long: `Decorate a document read from a file or stdin and write the result.

HTML input is treated as a full page unless --fragment is given, in which case
it is decorated as the content of <main>. Files ending in .md or .markdown are
rendered first, with "---" separating sections.`,
		Example: `  pagedecor decorate page.html
  curl -s https://example.com/nav.plain.html | pagedecor decorate --fragment
  pagedecor decorate --base https://example.com/docs/ docs.md -o docs.html`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runDecorate(cmd, path, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.fragment, "fragment", false, "treat HTML input as the content of <main>")
	cmd.Flags().StringVar(&opts.marker, "marker", decor.DefaultExternalImageMarker, "link text that marks an external image")
	cmd.Flags().StringVar(&opts.codeBase, "code-base", "", "path prefix for icons")
	cmd.Flags().StringVar(&opts.base, "base", "", "page URL that relative images resolve against")
	cmd.Flags().BoolVar(&opts.reveal, "reveal", false, "mark sections loaded")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func runDecorate(cmd *cobra.Command, path string, opts decorateOptions) error {
	logger := loggerFromContext(cmd.Context())
	prog := newProgress(logger)

	src, err := readInput(cmd, path)
	if err != nil {
		return err
	}
	d := decor.New(decor.Options{
		Marker:    opts.marker,
		Framework: decor.Franklin{CodeBasePath: opts.codeBase},
		Pictures:  decor.PathPictures{Base: opts.base},
		Reveal:    opts.reveal,
		Logger:    logger,
	})

	var (
		root *html.Node
		rep  decor.Report
	)
	switch {
	case isMarkdown(path):
		if root, err = markdownToMain(src); err != nil {
			return err
		}
		rep, err = d.DecorateMain(root)
	case opts.fragment:
		if root, err = decor.ParseFragment(bytes.NewReader(src)); err != nil {
			return err
		}
		rep, err = d.DecorateMain(root)
	default:
		if root, err = decor.ParseDocument(bytes.NewReader(src)); err != nil {
			return err
		}
		rep, err = d.DecorateDocument(root)
	}
	if err = keepPartialTabs(logger, rep, err); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := decor.Render(&buf, root); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	buf.WriteByte('\n')
	if opts.output != "" {
		if err := os.WriteFile(opts.output, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	} else if _, err := cmd.OutOrStdout().Write(buf.Bytes()); err != nil {
		return err
	}

	prog.done("decorated",
		"external_images", rep.ExternalImages,
		"tab_runs", rep.TabRuns,
		"tab_sections", rep.TabSections,
	)
	return nil
}

// keepPartialTabs turns tab fold failures into a warning; the folded runs
// and the rest of the document are still written.
func keepPartialTabs(logger *log.Logger, rep decor.Report, err error) error {
	if err == nil {
		return nil
	}
	if rep.FailedTabRuns > 0 && !errors.Is(err, decor.ErrInvalidImageURL) {
		logger.Warn("some tab runs were not folded", "failed_runs", rep.FailedTabRuns, "err", err)
		return nil
	}
	return err
}
