package proxy

import (
	"net/http"
	"strings"
)

// normalizeTarget trims a user supplied address and assumes http when it
// carries no scheme.
func normalizeTarget(u string) string {
	s := strings.TrimSpace(u)
	if s == "" {
		return s
	}
	s = strings.TrimPrefix(s, "//")
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	return s
}

func forwardedFor(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return ""
	}
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func cloneHeader(h http.Header) http.Header {
	out := http.Header{}
	copyHeader(out, h)
	return out
}

// forwardHeaders picks the client headers worth passing to the origin.
func forwardHeaders(r *http.Request) http.Header {
	hdr := http.Header{}
	q := r.URL.Query()
	if ua := firstNonEmpty(q.Get("ua"), r.Header.Get("User-Agent")); ua != "" {
		hdr.Set("User-Agent", ua)
	}
	if lang := firstNonEmpty(q.Get("lang"), r.Header.Get("Accept-Language")); lang != "" {
		hdr.Set("Accept-Language", lang)
	}
	if ref := q.Get("ref"); ref != "" {
		hdr.Set("Referer", ref)
	}
	return hdr
}
