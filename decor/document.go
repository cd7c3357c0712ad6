package decor

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ParseDocument parses a full HTML page.
func ParseDocument(r io.Reader) (*html.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// ParseFragment parses markup as the children of a new <main> element, the
// shape of a plain fragment response.
func ParseFragment(r io.Reader) (*html.Node, error) {
	main := newElement("main")
	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(r, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	for _, n := range nodes {
		main.AppendChild(n)
	}
	return main, nil
}

// FindMain returns the first <main> element of doc.
func FindMain(doc *html.Node) *html.Node {
	return findFirstByTag(doc, "main")
}

// Render serializes n.
func Render(w io.Writer, n *html.Node) error {
	return html.Render(w, n)
}

// RenderChildren serializes the children of n without n itself.
func RenderChildren(n *html.Node) ([]byte, error) {
	var buf bytes.Buffer
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
