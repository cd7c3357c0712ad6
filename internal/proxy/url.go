package proxy

import (
	"errors"
	"fmt"
	neturl "net/url"
	"strings"
)

var errBadTarget = errors.New("target must be an absolute http(s) url")

// urlDecode converts percent-encoded sequences like %2f into their byte
// values and leaves malformed escapes as they are.
func urlDecode(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	if out, err := neturl.PathUnescape(s); err == nil {
		return out
	}
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b = append(b, fromHex(s[i+1])<<4|fromHex(s[i+2]))
			i += 2
			continue
		}
		b = append(b, s[i])
	}
	return string(b)
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func fromHex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	}
	return 0
}

// resolveTarget builds the page to fetch from a base url, an optional
// action resolved against it and an optional raw query appended verbatim.
// The base may arrive percent-encoded once or twice.
func resolveTarget(base, action, get string) (string, error) {
	decodedBase := normalizeTarget(urlDecode(urlDecode(base)))
	parsed, err := neturl.Parse(decodedBase)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errBadTarget, err)
	}
	if action != "" {
		ref, err := neturl.Parse(urlDecode(action))
		if err != nil {
			return "", fmt.Errorf("%w: action: %v", errBadTarget, err)
		}
		parsed = parsed.ResolveReference(ref)
	}
	if get != "" {
		if parsed.RawQuery != "" {
			parsed.RawQuery += "&" + get
		} else {
			parsed.RawQuery = get
		}
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", fmt.Errorf("%w: %q", errBadTarget, parsed.String())
	}
	return parsed.String(), nil
}
