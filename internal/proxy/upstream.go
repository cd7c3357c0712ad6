package proxy

import (
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

const defaultUpstreamUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36 pagedecor/1.0"

// maxUpstreamBytes caps a single upstream body.
const maxUpstreamBytes = 16 << 20

var (
	errNotHTML        = errors.New("upstream response is not html")
	errUpstreamStatus = errors.New("upstream returned an error status")
)

// upstreamDocument is a page as received from the origin.
type upstreamDocument struct {
	URL        string
	Status     int
	Header     http.Header
	Body       []byte
	SetCookies []string
}

func (d *upstreamDocument) isHTML() bool {
	ct := d.Header.Get("Content-Type")
	if ct == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

// upstreamHeaders fills the defaults every origin request carries.
func upstreamHeaders(hdr http.Header) http.Header {
	out := cloneHeader(hdr)
	if out.Get("User-Agent") == "" {
		out.Set("User-Agent", defaultUpstreamUA)
	}
	if out.Get("Accept") == "" {
		out.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")
	}
	if out.Get("Accept-Language") == "" {
		out.Set("Accept-Language", "en,*;q=0.5")
	}
	// brotli is not decoded here
	if out.Get("Accept-Encoding") == "" {
		out.Set("Accept-Encoding", "gzip")
	}
	return out
}

// fetchUpstream performs a plain GET against target and returns the decoded
// body. Error statuses are returned as errUpstreamStatus together with the
// document so callers can still report the status.
func fetchUpstream(ctx context.Context, client *http.Client, target string, hdr http.Header, jar http.CookieJar, timeout time.Duration) (*upstreamDocument, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = upstreamHeaders(hdr)

	c := &http.Client{Timeout: timeout, Jar: jar}
	if client != nil {
		c.Transport = client.Transport
		c.CheckRedirect = client.CheckRedirect
		if timeout <= 0 {
			c.Timeout = client.Timeout
		}
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		if gr, gerr := gzip.NewReader(resp.Body); gerr == nil {
			reader = gr
			defer gr.Close()
		}
	case "deflate":
		if zr, zerr := zlib.NewReader(resp.Body); zerr == nil {
			reader = zr
			defer zr.Close()
		} else {
			fr := flate.NewReader(resp.Body)
			reader = fr
			defer fr.Close()
		}
	}
	body, err := io.ReadAll(io.LimitReader(reader, maxUpstreamBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	doc := &upstreamDocument{
		URL:        resp.Request.URL.String(),
		Status:     resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		SetCookies: resp.Header.Values("Set-Cookie"),
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return doc, fmt.Errorf("%w: %s %d", errUpstreamStatus, target, resp.StatusCode)
	}
	return doc, nil
}
