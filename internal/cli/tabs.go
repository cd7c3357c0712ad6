package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/net/html"

	"pagedecor/decor"
)

type tabRunInfo struct {
	Start  int      `json:"start"`
	Titles []string `json:"titles"`
}

func newTabsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "tabs [file]",
		Short: "Print the tab runs of a document",
		Long: `Apply section decoration to a document and print the runs of consecutive
tab sections that would be folded into tabs blocks, with the child position of
each run's first section.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			src, err := readInput(cmd, path)
			if err != nil {
				return err
			}
			main, err := contentRoot(path, src)
			if err != nil {
				return err
			}
			runs := tabRuns(main)
			loggerFromContext(cmd.Context()).Debug("tab coordinates", "runs", len(runs))
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			return printTabRuns(cmd.OutOrStdout(), runs)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print runs as JSON")
	return cmd
}

// contentRoot returns the <main> of src, parsing input without one as a
// fragment.
func contentRoot(path string, src []byte) (*html.Node, error) {
	if isMarkdown(path) {
		return markdownToMain(src)
	}
	doc, err := decor.ParseDocument(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}
	if main := decor.FindMain(doc); main != nil {
		return main, nil
	}
	return decor.ParseFragment(bytes.NewReader(src))
}

func tabRuns(main *html.Node) []tabRunInfo {
	decor.Franklin{}.DecorateSections(main)
	coords := decor.CalculateTabCoordinates(main)
	runs := make([]tabRunInfo, 0, len(coords))
	for _, run := range coords {
		info := tabRunInfo{Start: run.Start}
		for _, s := range run.Sections {
			info.Titles = append(info.Titles, decor.GetAttr(s, "data-tab-title"))
		}
		runs = append(runs, info)
	}
	return runs
}

func printTabRuns(w io.Writer, runs []tabRunInfo) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no tab sections")
		return err
	}
	for i, r := range runs {
		if _, err := fmt.Fprintf(w, "run %d\tstart=%d\t%s\n", i, r.Start, strings.Join(r.Titles, ", ")); err != nil {
			return err
		}
	}
	return nil
}
