package decor

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidImageURL is returned when an image reference cannot be parsed as
// an absolute URL.
var ErrInvalidImageURL = errors.New("invalid image url")

var deliveryOrigin = regexp.MustCompile(`(?m)^https?://delivery-p[0-9]+-e[0-9-cmstg]+\.adobeaemcloud\.com/`)

// cleanHref strips leading and trailing C0 controls and spaces and removes
// tabs and newlines anywhere, as browsers do before parsing a URL.
func cleanHref(raw string) string {
	raw = strings.TrimFunc(raw, func(r rune) bool { return r <= ' ' })
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return -1
		}
		return r
	}, raw)
}

// parseAbsolute parses raw the way a browser's URL constructor would without a
// base: anything that is not an absolute URL is rejected.
func parseAbsolute(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidImageURL, raw, err)
	}
	if !u.IsAbs() || (u.Host == "" && u.Opaque == "") {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrInvalidImageURL, raw)
	}
	return u, nil
}

// OptimizedSrc strips transient parameters from asset delivery URLs:
// accept-experimental, width and height are dropped and an /original/ path
// segment is collapsed. URLs from any other origin are returned untouched.
func OptimizedSrc(src string) (string, error) {
	if _, err := parseAbsolute(src); err != nil {
		return "", err
	}
	if !deliveryOrigin.MatchString(src) {
		return src, nil
	}
	head, query, fragment := splitURL(src)
	params := parseQuery(query).
		del("accept-experimental").
		del("width").
		del("height")

	scheme, rest, _ := strings.Cut(head, "://")
	host, path, _ := strings.Cut(rest, "/")
	path = "/" + path
	for strings.Contains(path, "/original/") {
		path = strings.Replace(path, "/original/", "/", 1)
	}
	return joinURL(scheme+"://"+host+path, params, fragment), nil
}
