package decor

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func getAttr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, name string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return true
		}
	}
	return false
}

// setAttr replaces the value in place, keeping attribute order stable.
func setAttr(n *html.Node, name, val string) {
	for i, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: val})
}

func removeAttr(n *html.Node, name string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if !strings.EqualFold(a.Key, name) {
			out = append(out, a)
		}
	}
	n.Attr = out
}

// GetAttr exposes attribute lookup for callers outside the package.
func GetAttr(n *html.Node, name string) string { return getAttr(n, name) }

func classList(n *html.Node) []string {
	return strings.Fields(getAttr(n, "class"))
}

func hasClass(n *html.Node, want string) bool {
	for _, c := range classList(n) {
		if c == want {
			return true
		}
	}
	return false
}

func addClass(n *html.Node, classes ...string) {
	cur := classList(n)
	for _, c := range classes {
		if c == "" || hasClass(n, c) {
			continue
		}
		cur = append(cur, c)
		setAttr(n, "class", strings.Join(cur, " "))
	}
}

func removeClass(n *html.Node, class string) {
	cur := classList(n)
	out := cur[:0]
	for _, c := range cur {
		if c != class {
			out = append(out, c)
		}
	}
	setAttr(n, "class", strings.Join(out, " "))
}

func newElement(tag string, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     attrs,
	}
}

func isElement(n *html.Node, tag string) bool {
	return n != nil && n.Type == html.ElementNode && strings.EqualFold(n.Data, tag)
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return b.String()
}

func elementChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, c)
		}
	}
	return out
}

func childNodes(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

func childAt(parent *html.Node, index int) *html.Node {
	if index < 0 {
		return nil
	}
	i := 0
	for c := parent.FirstChild; c != nil; c = c.NextSibling {
		if i == index {
			return c
		}
		i++
	}
	return nil
}

// insertAt inserts n before the child currently at index; past the end it appends.
func insertAt(parent, n *html.Node, index int) {
	if ref := childAt(parent, index); ref != nil {
		parent.InsertBefore(n, ref)
		return
	}
	parent.AppendChild(n)
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

func replaceNode(old, repl *html.Node) {
	if old.Parent == nil {
		return
	}
	old.Parent.InsertBefore(repl, old)
	old.Parent.RemoveChild(old)
}

func closest(n *html.Node, sel cascadia.Matcher) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && sel.Match(cur) {
			return cur
		}
	}
	return nil
}

// queryAll returns descendants of root matching sel in document order,
// excluding root itself.
func queryAll(root *html.Node, sel cascadia.Matcher) []*html.Node {
	var out []*html.Node
	for _, n := range cascadia.QueryAll(root, sel) {
		if n != root {
			out = append(out, n)
		}
	}
	return out
}

func queryOne(root *html.Node, sel cascadia.Matcher) *html.Node {
	if all := queryAll(root, sel); len(all) > 0 {
		return all[0]
	}
	return nil
}

func findFirstByTag(n *html.Node, name string) *html.Node {
	if isElement(n, name) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findFirstByTag(c, name); f != nil {
			return f
		}
	}
	return nil
}
