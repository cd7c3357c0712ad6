package decor

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

var metaSel = cascadia.MustCompile("meta")

func headOf(doc *html.Node) *html.Node {
	if head := findFirstByTag(doc, "head"); head != nil {
		return head
	}
	return doc
}

// GetMetadata returns the content of the named <meta> tags joined by ", ".
// Names containing a colon are looked up by property, others by name.
func GetMetadata(doc *html.Node, name string) string {
	attr := "name"
	if strings.Contains(name, ":") {
		attr = "property"
	}
	var vals []string
	for _, m := range queryAll(headOf(doc), metaSel) {
		if getAttr(m, attr) == name {
			vals = append(vals, getAttr(m, "content"))
		}
	}
	return strings.Join(vals, ", ")
}

// GetAllMetadata collects metadata in a scope: property="<scope>:<key>" or
// name="<scope>-<key>", keyed by the class name of key.
func GetAllMetadata(doc *html.Node, scope string) map[string]string {
	out := map[string]string{}
	for _, m := range queryAll(headOf(doc), metaSel) {
		var key string
		if name := getAttr(m, "name"); name != "" {
			if !strings.HasPrefix(name, scope+"-") {
				continue
			}
			key = name[len(scope)+1:]
		} else if prop := getAttr(m, "property"); strings.HasPrefix(prop, scope+":") {
			key = strings.SplitN(prop, ":", 3)[1]
		} else {
			continue
		}
		out[ToClassName(key)] = getAttr(m, "content")
	}
	return out
}
