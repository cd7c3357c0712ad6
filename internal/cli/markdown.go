package cli

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"pagedecor/decor"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

func isMarkdown(path string) bool {
	p := strings.ToLower(path)
	return strings.HasSuffix(p, ".md") || strings.HasSuffix(p, ".markdown")
}

// markdownToMain renders src into a <main> shaped like a served page:
// content is split into section divs at thematic breaks, sections are
// separated by whitespace nodes, and tables with a single header cell
// become blocks named by that cell ("Section Metadata", "Cards (Dark)").
func markdownToMain(src []byte) (*html.Node, error) {
	var buf bytes.Buffer
	if err := markdown.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	parsed, err := decor.ParseFragment(&buf)
	if err != nil {
		return nil, err
	}

	section := newDiv("")
	sections := []*html.Node{section}
	for c := parsed.FirstChild; c != nil; {
		next := c.NextSibling
		parsed.RemoveChild(c)
		switch {
		case c.Type == html.TextNode && strings.TrimSpace(c.Data) == "":
		case c.Type == html.ElementNode && c.DataAtom == atom.Hr:
			section = newDiv("")
			sections = append(sections, section)
		case c.Type == html.ElementNode && c.DataAtom == atom.Table:
			if block := tableToBlock(c); block != nil {
				section.AppendChild(block)
			} else {
				section.AppendChild(c)
			}
		default:
			section.AppendChild(c)
		}
		c = next
	}

	main := &html.Node{Type: html.ElementNode, Data: "main", DataAtom: atom.Main}
	for _, s := range sections {
		if s.FirstChild == nil {
			continue
		}
		if main.FirstChild != nil {
			main.AppendChild(&html.Node{Type: html.TextNode, Data: "\n"})
		}
		main.AppendChild(s)
	}
	return main, nil
}

func newDiv(class string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	if class != "" {
		n.Attr = []html.Attribute{{Key: "class", Val: class}}
	}
	return n
}

// blockClass turns "Cards (Highlight, Dark)" into "cards highlight dark".
func blockClass(name string) string {
	base, variants, _ := strings.Cut(name, "(")
	classes := []string{decor.ToClassName(base)}
	for _, v := range strings.Split(strings.TrimSuffix(strings.TrimSpace(variants), ")"), ",") {
		if c := decor.ToClassName(v); c != "" {
			classes = append(classes, c)
		}
	}
	return strings.Join(classes, " ")
}

func tableToBlock(table *html.Node) *html.Node {
	var header, rows []*html.Node
	walkElements(table, func(n *html.Node) {
		switch n.DataAtom {
		case atom.Th:
			header = append(header, n)
		case atom.Tr:
			if n.Parent != nil && n.Parent.DataAtom == atom.Tbody {
				rows = append(rows, n)
			}
		}
	})
	if len(header) == 0 {
		return nil
	}
	name := strings.TrimSpace(textOf(header[0]))
	for _, th := range header[1:] {
		if strings.TrimSpace(textOf(th)) != "" {
			return nil
		}
	}
	class := blockClass(name)
	if name == "" || class == "" {
		return nil
	}

	block := newDiv(class)
	for _, tr := range rows {
		row := newDiv("")
		for td := tr.FirstChild; td != nil; td = td.NextSibling {
			if td.DataAtom != atom.Td {
				continue
			}
			cell := newDiv("")
			for c := td.FirstChild; c != nil; {
				next := c.NextSibling
				td.RemoveChild(c)
				cell.AppendChild(c)
				c = next
			}
			row.AppendChild(cell)
		}
		block.AppendChild(row)
	}
	return block
}

func walkElements(n *html.Node, fn func(*html.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			fn(c)
			walkElements(c, fn)
		}
	}
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
