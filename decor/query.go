package decor

import (
	"net/url"
	"strings"
)

type queryParam struct {
	key, value string
}

// queryParams is an ordered query string. url.Values sorts keys on Encode,
// which would reorder an asset's own parameters.
type queryParams []queryParam

func parseQuery(raw string) queryParams {
	var out queryParams
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		out = append(out, queryParam{key: key, value: value})
	}
	return out
}

func (q queryParams) get(key string) (string, bool) {
	for _, p := range q {
		if p.key == key {
			return p.value, true
		}
	}
	return "", false
}

// set overwrites the first occurrence of key and drops later ones, or appends.
func (q queryParams) set(key, value string) queryParams {
	out := q[:0:0]
	found := false
	for _, p := range q {
		if p.key != key {
			out = append(out, p)
			continue
		}
		if !found {
			out = append(out, queryParam{key: key, value: value})
			found = true
		}
	}
	if !found {
		out = append(out, queryParam{key: key, value: value})
	}
	return out
}

func (q queryParams) del(key string) queryParams {
	out := q[:0:0]
	for _, p := range q {
		if p.key != key {
			out = append(out, p)
		}
	}
	return out
}

// merge sets every param from other onto q. With keepExisting, keys already
// present in q win.
func (q queryParams) merge(other queryParams, keepExisting bool) queryParams {
	out := append(queryParams(nil), q...)
	for _, p := range other {
		if _, ok := out.get(p.key); ok && keepExisting {
			continue
		}
		out = out.set(p.key, p.value)
	}
	return out
}

func (q queryParams) encode() string {
	var b strings.Builder
	for i, p := range q {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

// splitURL cuts a raw URL into the part before the query, the raw query and
// the raw fragment (without their leading delimiters).
func splitURL(raw string) (head, query, fragment string) {
	head, fragment, _ = strings.Cut(raw, "#")
	head, query, _ = strings.Cut(head, "?")
	return head, query, fragment
}

func joinURL(head string, q queryParams, fragment string) string {
	out := head
	if enc := q.encode(); enc != "" {
		out += "?" + enc
	}
	if fragment != "" {
		out += "#" + fragment
	}
	return out
}

// withParams returns raw with params merged into its query string.
func withParams(raw string, params queryParams, keepExisting bool) string {
	head, query, fragment := splitURL(raw)
	return joinURL(head, parseQuery(query).merge(params, keepExisting), fragment)
}
