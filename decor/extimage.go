package decor

import (
	"fmt"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// DefaultExternalImageMarker is the link text authors use to mark a link as
// an image hosted elsewhere.
const DefaultExternalImageMarker = "//External Image//"

var (
	anchorSel     = cascadia.MustCompile("a")
	imageSuffixes = map[string]bool{"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true}
)

// hrefExtension returns the text after the last dot of href, ignoring the
// query and fragment.
func hrefExtension(href string) string {
	if i := strings.IndexAny(href, "?#"); i != -1 {
		href = href[:i]
	}
	return strings.TrimSpace(href[strings.LastIndex(href, ".")+1:])
}

// IsExternalImage reports whether n is an anchor standing in for an image:
// its text equals marker (when marker is set) or its href ends in an image
// extension.
func IsExternalImage(n *html.Node, marker string) bool {
	if !isElement(n, "a") {
		return false
	}
	if marker != "" && strings.TrimSpace(textContent(n)) == marker {
		return true
	}
	if !hasAttr(n, "href") {
		return false
	}
	ext := hrefExtension(getAttr(n, "href"))
	return ext != "" && imageSuffixes[strings.ToLower(ext)]
}

// externalPicture builds the picture replacing an external image link. The
// link's own query parameters are carried onto every candidate without
// overriding the width and format chosen for it.
func externalPicture(href string, fallback PictureGenerator) (*Picture, error) {
	src, err := OptimizedSrc(cleanHref(href))
	if err != nil {
		return nil, err
	}
	pic, err := CreateOptimizedPicture(src, "", false, nil, fallback)
	if err != nil {
		return nil, err
	}
	_, query, _ := splitURL(src)
	linkParams := parseQuery(query)
	return pic.mapURLs(func(candidate string) string {
		if candidate == "" {
			return candidate
		}
		return withParams(candidate, linkParams, true)
	}), nil
}

// sweepExternalImages converts the anchors among candidates that classify
// as external images and returns the ones left in place.
func sweepExternalImages(candidates []*html.Node, marker string, fallback PictureGenerator) ([]*html.Node, int, error) {
	var remaining []*html.Node
	converted := 0
	for _, a := range candidates {
		if !IsExternalImage(a, marker) {
			remaining = append(remaining, a)
			continue
		}
		href := getAttr(a, "href")
		pic, err := externalPicture(href, fallback)
		if err != nil {
			return nil, converted, fmt.Errorf("external image %q: %w", href, err)
		}
		replaceNode(a, pic.Node())
		converted++
	}
	return remaining, converted, nil
}

// DecorateExternalImages replaces every external image link under root with a
// responsive picture. An empty marker classifies by href extension only.
func DecorateExternalImages(root *html.Node, marker string, fallback PictureGenerator) (int, error) {
	_, n, err := sweepExternalImages(queryAll(root, anchorSel), marker, fallback)
	return n, err
}

// RewriteExternalImages runs a marker sweep and then an extension sweep over
// the links the first one left alone.
func RewriteExternalImages(root *html.Node, marker string, fallback PictureGenerator) (int, error) {
	remaining, first, err := sweepExternalImages(queryAll(root, anchorSel), marker, fallback)
	if err != nil {
		return first, err
	}
	_, second, err := sweepExternalImages(remaining, "", fallback)
	return first + second, err
}
