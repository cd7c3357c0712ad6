package decor

import (
	"strings"

	"github.com/aymerick/douceur/parser"
	"golang.org/x/net/html"
)

// removeStyleProperty drops every declaration of prop from the inline style
// attribute, keeping the others in order. An emptied style attribute is removed.
func removeStyleProperty(n *html.Node, prop string) {
	inline := strings.TrimSpace(getAttr(n, "style"))
	if inline == "" {
		return
	}
	decls, err := parser.ParseDeclarations(inline)
	if err != nil {
		return
	}
	kept := make([]string, 0, len(decls))
	for _, d := range decls {
		if d == nil || strings.EqualFold(strings.TrimSpace(d.Property), prop) {
			continue
		}
		decl := strings.TrimSpace(d.Property) + ": " + strings.TrimSpace(d.Value)
		if d.Important {
			decl += " !important"
		}
		kept = append(kept, decl)
	}
	if len(kept) == 0 {
		removeAttr(n, "style")
		return
	}
	setAttr(n, "style", strings.Join(kept, "; ")+";")
}
