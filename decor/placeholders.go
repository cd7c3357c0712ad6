package decor

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

var (
	strongSel = cascadia.MustCompile("strong")
	divSel    = cascadia.MustCompile("div")
)

// BlockPlaceholderInfo reads a placeholder block: a row with a <strong> opens
// a group named by its text, following rows with exactly two cells add
// key/value pairs to the open group.
func BlockPlaceholderInfo(block *html.Node) map[string]map[string]string {
	out := map[string]map[string]string{}
	current := ""
	for _, row := range elementChildren(block) {
		if key := queryOne(row, strongSel); key != nil {
			current = strings.TrimSpace(textContent(key))
			out[current] = map[string]string{}
			continue
		}
		if current == "" {
			continue
		}
		cells := queryAll(row, divSel)
		if len(cells) != 2 {
			continue
		}
		out[current][strings.TrimSpace(textContent(cells[0]))] = strings.TrimSpace(textContent(cells[1]))
	}
	return out
}
