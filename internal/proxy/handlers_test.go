package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tabbedPage = `<!DOCTYPE html><html><head>
<meta name="template" content="Tab Page">
</head><body><header></header><main>
<div><p>Intro</p></div>
<div><h2>One</h2><div class="section-metadata"><div><div>Tab Title</div><div>One</div></div></div></div>
<div><h2>Two</h2><div class="section-metadata"><div><div>Tab Title</div><div>Two</div></div></div></div>
<div><p><a href="https://cdn.example.com/hero.png">//External Image//</a></p></div>
</main></body></html>`

func newTestServer(t *testing.T, sitesDir string) *Server {
	t.Helper()
	if sitesDir == "" {
		sitesDir = t.TempDir()
	}
	s := New(Config{
		SitesDir: sitesDir,
		Reveal:   true,
		Logger:   log.New(io.Discard),
	})
	t.Cleanup(s.Close)
	return s
}

// pageOrigin serves body as text/html on every path and counts requests.
func pageOrigin(t *testing.T, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func serve(s *Server, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, r)
	return rec
}

func fetchRequest(target string) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/fetch?url="+url.QueryEscape(target), nil)
}

func TestHandleFetchDecoratesAndCaches(t *testing.T) {
	t.Parallel()
	origin, hits := pageOrigin(t, tabbedPage)
	s := newTestServer(t, "")

	rec := serve(s, fetchRequest(origin.URL+"/page"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "miss", rec.Header().Get("X-Pagedecor-Cache"))
	assert.Equal(t, "1", rec.Header().Get("X-Pagedecor-External-Images"))
	assert.Equal(t, "1", rec.Header().Get("X-Pagedecor-Tab-Runs"))

	body := rec.Body.String()
	assert.Contains(t, body, "tabs-container")
	assert.Contains(t, body, "<picture>")
	assert.Contains(t, body, "https://cdn.example.com/hero.png?width=2000&amp;format=webply")
	assert.Contains(t, body, `class="tab-page appear"`)
	assert.Contains(t, body, `data-section-status="loaded"`)
	assert.NotContains(t, body, "//External Image//")

	again := serve(s, fetchRequest(origin.URL+"/page"))
	require.Equal(t, http.StatusOK, again.Code)
	assert.Equal(t, "hit", again.Header().Get("X-Pagedecor-Cache"))
	assert.Equal(t, body, again.Body.String())
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, s.jars.Len())
}

func TestHandleFetchFormPost(t *testing.T) {
	t.Parallel()
	var query atomic.Value
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Path + "?" + r.URL.RawQuery)
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><body><main><div><p>results</p></div></main></body></html>`)
	}))
	t.Cleanup(origin.Close)
	s := newTestServer(t, "")

	form := url.Values{"url": {origin.URL + "/shop/"}, "action": {"search"}, "get": {"q=boots"}}
	req := httptest.NewRequest(http.MethodPost, "/fetch", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "/shop/search?q=boots", query.Load())
	assert.Contains(t, rec.Body.String(), "results")
}

func TestHandleFetchRejectsBadTargets(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, "")

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/fetch", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(s, fetchRequest("ftp://example.com/file"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleFetchUpstreamFailures(t *testing.T) {
	t.Parallel()
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/broken":
			http.Error(w, "boom", http.StatusInternalServerError)
		case "/data":
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{}`)
		}
	}))
	t.Cleanup(origin.Close)
	s := newTestServer(t, "")

	rec := serve(s, fetchRequest(origin.URL+"/broken"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = serve(s, fetchRequest(origin.URL+"/data"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), errNotHTML.Error())
}

func TestHandleFetchInvalidImageURL(t *testing.T) {
	t.Parallel()
	origin, _ := pageOrigin(t, `<html><body><main><div><p><a href="/media/cat.png">//External Image//</a></p></div></main></body></html>`)
	s := newTestServer(t, "")

	rec := serve(s, fetchRequest(origin.URL+"/page"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	// failures are not cached
	rec = serve(s, fetchRequest(origin.URL+"/page"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleFetchAppliesSiteConfig(t *testing.T) {
	t.Parallel()
	var token atomic.Value
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token.Store(r.Header.Get("X-Token"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><body><main><div><p><a href="https://cdn.example.com/logo.svg">IMG</a></p>`+
			`<span class="icon icon-home"></span></div></main></body></html>`)
	}))
	t.Cleanup(origin.Close)

	dir := t.TempDir()
	u, err := url.Parse(origin.URL)
	require.NoError(t, err)
	site := "marker = \"IMG\"\ncode_base = \"/cdn\"\n\n[headers]\nX-Token = \"abc\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, u.Hostname()+".toml"), []byte(site), 0o644))
	s := newTestServer(t, dir)

	rec := serve(s, fetchRequest(origin.URL+"/"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "abc", token.Load())
	assert.Contains(t, rec.Body.String(), "https://cdn.example.com/logo.svg?width=750&amp;format=svg")
	assert.Contains(t, rec.Body.String(), `src="/cdn/icons/home.svg"`)
}

type fakeRenderer struct {
	body   string
	status int
	calls  atomic.Int32
	opts   jsOptions
}

func (f *fakeRenderer) Render(_ context.Context, target string, _ http.Header, _ http.CookieJar, opts jsOptions) (*upstreamDocument, error) {
	f.calls.Add(1)
	f.opts = opts
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	return &upstreamDocument{
		URL:    target,
		Status: status,
		Header: http.Header{"Content-Type": {"text/html"}},
		Body:   []byte(f.body),
	}, nil
}

func (f *fakeRenderer) Close() {}

func TestHandleFetchJSMode(t *testing.T) {
	t.Parallel()
	origin, hits := pageOrigin(t, `<html><body><main></main></body></html>`)
	dir := t.TempDir()
	u, err := url.Parse(origin.URL)
	require.NoError(t, err)
	site := `{"mode": "js", "wait_selector": "main .section", "timeout": "3s"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, u.Hostname()+".json"), []byte(site), 0o644))

	s := newTestServer(t, dir)
	fake := &fakeRenderer{body: tabbedPage}
	s.renderer = fake

	rec := serve(s, fetchRequest(origin.URL+"/app"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int32(1), fake.calls.Load())
	assert.Zero(t, hits.Load())
	assert.Equal(t, "main .section", fake.opts.WaitSelector)
	assert.Equal(t, "3s", fake.opts.Timeout.String())
	assert.Contains(t, rec.Body.String(), "tabs-container")
}

func TestHandleFetchJSModeErrorStatus(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"server error", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			origin, hits := pageOrigin(t, `<html><body><main></main></body></html>`)
			dir := t.TempDir()
			u, err := url.Parse(origin.URL)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(filepath.Join(dir, u.Hostname()+".json"), []byte(`{"mode": "js"}`), 0o644))

			s := newTestServer(t, dir)
			fake := &fakeRenderer{body: tabbedPage, status: tt.status}
			s.renderer = fake

			rec := serve(s, fetchRequest(origin.URL+"/app"))
			assert.Equal(t, http.StatusBadGateway, rec.Code)
			assert.Contains(t, rec.Body.String(), errUpstreamStatus.Error())

			// error pages are not cached
			rec = serve(s, fetchRequest(origin.URL+"/app"))
			assert.Equal(t, http.StatusBadGateway, rec.Code)
			assert.Equal(t, int32(2), fake.calls.Load())
			assert.Zero(t, hits.Load())
		})
	}
}

func TestHandleDecorate(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, "")

	req := httptest.NewRequest(http.MethodPost, "/decorate", strings.NewReader(tabbedPage))
	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `<html lang="en">`)
	assert.Contains(t, rec.Body.String(), "tabs-container")

	fragment := `<div><h2>A</h2><div class="section-metadata"><div><div>Tab Title</div><div>A</div></div></div></div>`
	req = httptest.NewRequest(http.MethodPost, "/decorate?fragment=1&base=example.com/docs/page", strings.NewReader(fragment))
	rec = serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Body.String(), "<main>"), rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get("X-Pagedecor-Tab-Runs"))
	assert.Empty(t, rec.Header().Get("X-Pagedecor-Cache"))
}

func TestHandleDecorateErrors(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, "")

	bad := `<main><div><a href="cat.png">//External Image//</a></div></main>`
	rec := serve(s, httptest.NewRequest(http.MethodPost, "/decorate", strings.NewReader(bad)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	huge := strings.NewReader(strings.Repeat("a", maxDecorateBody+1))
	rec = serve(s, httptest.NewRequest(http.MethodPost, "/decorate", huge))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandleFragment(t *testing.T) {
	t.Parallel()
	var paths atomic.Value
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths.Store(r.URL.Path)
		if r.URL.Path != "/nav.plain.html" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<div><p><a href="/home">Home</a></p></div>`)
	}))
	t.Cleanup(origin.Close)
	s := newTestServer(t, "")

	get := func(path string) *httptest.ResponseRecorder {
		q := url.Values{"origin": {origin.URL}, "path": {path}}
		return serve(s, httptest.NewRequest(http.MethodGet, "/fragment?"+q.Encode(), nil))
	}

	rec := get("/nav")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "/nav.plain.html", paths.Load())
	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "<main>"), body)
	assert.Contains(t, body, `class="section"`)
	assert.Contains(t, body, `class="button"`)

	assert.Equal(t, "hit", get("/nav").Header().Get("X-Pagedecor-Cache"))
	assert.Equal(t, http.StatusNotFound, get("/missing").Code)
	assert.Equal(t, http.StatusNotFound, get("nav").Code)
}

func TestHandleIndexPagesThroughOrigin(t *testing.T) {
	t.Parallel()
	rows := []string{`{"path":"/a"}`, `{"path":"/b"}`, `{"path":"/c"}`}
	var fetches atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query-index.json" {
			http.NotFound(w, r)
			return
		}
		fetches.Add(1)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		end := min(offset+limit, len(rows))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"total":%d,"offset":%d,"limit":%d,"data":[%s]}`,
			len(rows), offset, end-offset, strings.Join(rows[offset:end], ","))
	}))
	t.Cleanup(origin.Close)
	s := newTestServer(t, "")

	get := func() IndexState {
		t.Helper()
		q := url.Values{"origin": {origin.URL}, "limit": {"2"}}
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/index/query-index?"+q.Encode(), nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var st IndexState
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
		return st
	}

	first := get()
	assert.False(t, first.Complete)
	assert.Len(t, first.Data, 2)
	assert.Equal(t, 2, first.Offset)

	second := get()
	assert.True(t, second.Complete)
	assert.Len(t, second.Data, 3)

	third := get()
	assert.Equal(t, second, third)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestHandleIndexValidation(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, "")

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/index/query-index", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/index/query-index?origin=example.com&limit=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPingRootAndMetrics(t *testing.T) {
	t.Parallel()
	origin, _ := pageOrigin(t, tabbedPage)
	s := newTestServer(t, "")

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, "pong\n", rec.Body.String())

	rec = serve(s, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), `action="/fetch"`)

	serve(s, fetchRequest(origin.URL+"/page"))
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `pagedecor_pages_decorated_total{route="fetch"} 1`)
	assert.Contains(t, body, `pagedecor_cache_requests_total{result="miss"} 1`)
	assert.Contains(t, body, "pagedecor_tab_runs_total 1")
	assert.Contains(t, body, "pagedecor_external_images_total 1")
}
