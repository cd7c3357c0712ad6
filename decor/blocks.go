package decor

import (
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Section status values carried in data-section-status.
const (
	SectionInitialized = "initialized"
	SectionLoading     = "loading"
	SectionLoaded      = "loaded"
)

// Framework is the block framework the decorator hands generic markup work to.
type Framework interface {
	DecorateButtons(el *html.Node)
	DecorateIcons(el *html.Node)
	DecorateSections(main *html.Node)
	DecorateBlocks(main *html.Node)
	DecorateBlock(block *html.Node)
}

// Franklin decorates markup the way the page's block library expects it:
// sections, block wrappers, buttons and icons.
type Franklin struct {
	// CodeBasePath prefixes icon URLs, e.g. "" or "/assets".
	CodeBasePath string
}

var (
	nonClassChars = regexp.MustCompile(`[^0-9a-z]`)
	dashRuns      = regexp.MustCompile(`-+`)
	dashLetter    = regexp.MustCompile(`-([a-z])`)

	sectionSel     = cascadia.MustCompile("div.section")
	sectionMetaSel = cascadia.MustCompile("div.section-metadata")
	blockSel       = cascadia.MustCompile("div.section > div > div")
	iconSel        = cascadia.MustCompile("span.icon")
	imgSel         = cascadia.MustCompile("img")
	linkSel        = cascadia.MustCompile("a")
	paragraphSel   = cascadia.MustCompile("p")
)

// ToClassName lowercases name and collapses anything outside [0-9a-z] into
// single dashes.
func ToClassName(name string) string {
	s := nonClassChars.ReplaceAllString(strings.ToLower(name), "-")
	s = dashRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// ToCamelCase converts name to a class name and then to camelCase.
func ToCamelCase(name string) string {
	return dashLetter.ReplaceAllStringFunc(ToClassName(name), func(m string) string {
		return strings.ToUpper(m[1:])
	})
}

func (f Franklin) DecorateButtons(el *html.Node) {
	for _, a := range queryAll(el, linkSel) {
		text := textContent(a)
		if getAttr(a, "title") == "" {
			setAttr(a, "title", text)
		}
		if getAttr(a, "href") == text || queryOne(a, imgSel) != nil {
			continue
		}
		up := a.Parent
		if up == nil || len(childNodes(up)) != 1 {
			continue
		}
		if isElement(up, "p") || isElement(up, "div") {
			setAttr(a, "class", "button")
			addClass(up, "button-container")
		}
		twoup := up.Parent
		if twoup == nil || !isElement(twoup, "p") || len(childNodes(twoup)) != 1 {
			continue
		}
		switch {
		case isElement(up, "strong"):
			setAttr(a, "class", "button primary")
			addClass(twoup, "button-container")
		case isElement(up, "em"):
			setAttr(a, "class", "button secondary")
			addClass(twoup, "button-container")
		}
	}
}

func (f Franklin) DecorateIcons(el *html.Node) {
	for _, span := range queryAll(el, iconSel) {
		name := ""
		for _, c := range classList(span) {
			if strings.HasPrefix(c, "icon-") {
				name = strings.TrimPrefix(c, "icon-")
				break
			}
		}
		if name == "" {
			continue
		}
		span.AppendChild(newElement("img",
			html.Attribute{Key: "data-icon-name", Val: name},
			html.Attribute{Key: "src", Val: f.CodeBasePath + "/icons/" + name + ".svg"},
			html.Attribute{Key: "alt", Val: ""},
			html.Attribute{Key: "loading", Val: "lazy"},
		))
	}
}

func (f Franklin) DecorateSections(main *html.Node) {
	for _, section := range elementChildren(main) {
		if !isElement(section, "div") {
			continue
		}
		var wrappers []*html.Node
		defaultContent := false
		for _, e := range elementChildren(section) {
			if isElement(e, "div") || !defaultContent {
				w := newElement("div")
				defaultContent = !isElement(e, "div")
				if defaultContent {
					addClass(w, "default-content-wrapper")
				}
				wrappers = append(wrappers, w)
			}
			section.RemoveChild(e)
			wrappers[len(wrappers)-1].AppendChild(e)
		}
		for _, w := range wrappers {
			section.AppendChild(w)
		}
		addClass(section, "section")
		setAttr(section, "data-section-status", SectionInitialized)
		setAttr(section, "style", "display:none")

		meta := queryOne(section, sectionMetaSel)
		if meta == nil {
			continue
		}
		for _, kv := range readBlockConfig(meta) {
			if kv[0] == "style" {
				for _, style := range strings.Split(kv[1], ",") {
					addClass(section, ToClassName(strings.TrimSpace(style)))
				}
				continue
			}
			setAttr(section, "data-"+kv[0], kv[1])
		}
		if meta.Parent != nil && meta.Parent != section {
			detach(meta.Parent)
		} else {
			detach(meta)
		}
	}
}

// readBlockConfig reads two-column rows of a config block as ordered
// class-named keys and values.
func readBlockConfig(block *html.Node) [][2]string {
	var out [][2]string
	for _, row := range elementChildren(block) {
		cols := elementChildren(row)
		if len(cols) < 2 {
			continue
		}
		name := ToClassName(textContent(cols[0]))
		if name == "" {
			continue
		}
		out = append(out, [2]string{name, configValue(cols[1])})
	}
	return out
}

func configValue(col *html.Node) string {
	collect := func(nodes []*html.Node, fn func(*html.Node) string) string {
		vals := make([]string, 0, len(nodes))
		for _, n := range nodes {
			vals = append(vals, fn(n))
		}
		return strings.Join(vals, ",")
	}
	if links := queryAll(col, linkSel); len(links) > 0 {
		return collect(links, func(n *html.Node) string { return getAttr(n, "href") })
	}
	if imgs := queryAll(col, imgSel); len(imgs) > 0 {
		return collect(imgs, func(n *html.Node) string { return getAttr(n, "src") })
	}
	if ps := queryAll(col, paragraphSel); len(ps) > 0 {
		return collect(ps, func(n *html.Node) string { return strings.TrimSpace(textContent(n)) })
	}
	return strings.TrimSpace(textContent(col))
}

func (f Franklin) DecorateBlocks(main *html.Node) {
	for _, block := range queryAll(main, blockSel) {
		f.DecorateBlock(block)
	}
}

// DecorateBlock marks block as initialized under the name of its first class
// and tags its wrapper and section. Decorated blocks are left alone.
func (f Franklin) DecorateBlock(block *html.Node) {
	classes := classList(block)
	if len(classes) == 0 || hasAttr(block, "data-block-status") {
		return
	}
	name := classes[0]
	addClass(block, "block")
	setAttr(block, "data-block-name", name)
	setAttr(block, "data-block-status", SectionInitialized)
	if block.Parent != nil && block.Parent.Type == html.ElementNode {
		addClass(block.Parent, name+"-wrapper")
	}
	if section := closest(block, sectionSel); section != nil {
		addClass(section, name+"-container")
	}
	f.DecorateButtons(block)
}

// MarkSectionLoaded moves a section out of the loading state and shows it.
func MarkSectionLoaded(section *html.Node) {
	setAttr(section, "data-section-status", SectionLoaded)
	removeStyleProperty(section, "display")
}
