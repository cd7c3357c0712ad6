package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"pagedecor/decor"
)

// jsNetworkIdle is how long a headless render waits without network
// activity before reading the page.
const jsNetworkIdle = 500 * time.Millisecond

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(s.cfg.IndexHTML)))
	_, _ = io.WriteString(w, s.cfg.IndexHTML)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "pong\n")
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	base := r.FormValue("url")
	if base == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}
	target, err := resolveTarget(base, r.FormValue("action"), r.FormValue("get"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	site := s.sites.Find(target)
	key := cacheKey(target, s.markerFor(site))
	if data, ok := s.cacheGet(ctx, key); ok {
		writeHTML(w, data, "hit", nil)
		return
	}

	doc, err := s.loadPage(ctx, r, target, site)
	if err != nil {
		s.logger.Warn("upstream failed", "url", target, "err", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if !doc.isHTML() {
		http.Error(w, fmt.Sprintf("%v: %s", errNotHTML, doc.Header.Get("Content-Type")), http.StatusBadGateway)
		return
	}
	out, rep, err := s.decoratePage(doc.Body, doc.URL, site)
	if err != nil {
		s.logger.Error("decorate failed", "url", target, "err", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.metrics.observe("fetch", rep)
	s.cacheSet(ctx, key, out)
	writeHTML(w, out, "miss", &rep)
}

func (s *Server) handleDecorate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDecorateBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	q := r.URL.Query()
	base := normalizeTarget(q.Get("base"))
	var site *SiteConfig
	if base != "" {
		site = s.sites.Find(base)
	}

	var (
		out []byte
		rep decor.Report
	)
	if q.Get("fragment") == "1" {
		out, rep, err = s.decorateFragment(body, base, site)
	} else {
		out, rep, err = s.decoratePage(body, base, site)
	}
	if err != nil {
		s.logger.Error("decorate failed", "base", base, "err", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	s.metrics.observe("decorate", rep)
	writeHTML(w, out, "", &rep)
}

// handleFragment serves <origin><path>.plain.html decorated as a <main>.
// Paths that are not absolute are never fetched.
func (s *Server) handleFragment(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if !strings.HasPrefix(path, "/") {
		http.NotFound(w, r)
		return
	}
	origin, err := resolveTarget(q.Get("origin"), "", "")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	origin = strings.TrimRight(origin, "/")
	target := origin + path + ".plain.html"
	ctx := r.Context()
	site := s.sites.Find(target)
	key := cacheKey(target, s.markerFor(site))
	if data, ok := s.cacheGet(ctx, key); ok {
		writeHTML(w, data, "hit", nil)
		return
	}

	doc, err := fetchUpstream(ctx, s.cfg.Client, target, forwardHeaders(r), s.jars.Get(clientKey(r)), s.timeoutFor(site))
	if errors.Is(err, errUpstreamStatus) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.metrics.upstreamErrors.WithLabelValues(SiteModeHTTP).Inc()
		s.logger.Warn("fragment fetch failed", "url", target, "err", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	out, rep, err := s.decorateFragment(doc.Body, origin+path, site)
	if err != nil {
		s.logger.Error("decorate failed", "url", target, "err", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.metrics.observe("fragment", rep)
	s.cacheSet(ctx, key, out)
	writeHTML(w, out, "miss", &rep)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	q := r.URL.Query()
	origin, err := resolveTarget(q.Get("origin"), "", "")
	if err != nil || name == "" {
		http.Error(w, "origin and index name are required", http.StatusBadRequest)
		return
	}
	limit := 0
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	st, err := s.index.Fetch(r.Context(), origin, name, limit)
	if err != nil {
		s.logger.Warn("index fetch failed", "origin", origin, "index", name, "err", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(st)
}

func (s *Server) markerFor(site *SiteConfig) string {
	if site != nil && site.Marker != "" {
		return site.Marker
	}
	if s.cfg.Marker != "" {
		return s.cfg.Marker
	}
	return decor.DefaultExternalImageMarker
}

func (s *Server) timeoutFor(site *SiteConfig) time.Duration {
	if t := site.timeout(); t > 0 {
		return t
	}
	return s.cfg.UpstreamTimeout
}

func (s *Server) newDecorator(site *SiteConfig, base string) *decor.Decorator {
	codeBase := s.cfg.CodeBase
	if site != nil && site.CodeBase != "" {
		codeBase = site.CodeBase
	}
	return decor.New(decor.Options{
		Marker:    s.markerFor(site),
		Framework: decor.Franklin{CodeBasePath: codeBase},
		Pictures:  decor.PathPictures{Base: base},
		Reveal:    s.cfg.Reveal,
		Logger:    s.logger,
	})
}

// decorationError drops tab fold failures, which leave the rest of the page
// intact, and keeps everything else.
func (s *Server) decorationError(rep decor.Report, err error) error {
	if err == nil {
		return nil
	}
	if rep.FailedTabRuns > 0 && !errors.Is(err, decor.ErrInvalidImageURL) {
		s.logger.Warn("tab folding incomplete", "failed_runs", rep.FailedTabRuns, "err", err)
		return nil
	}
	return err
}

func (s *Server) decoratePage(body []byte, base string, site *SiteConfig) ([]byte, decor.Report, error) {
	doc, err := decor.ParseDocument(bytes.NewReader(body))
	if err != nil {
		return nil, decor.Report{}, err
	}
	rep, err := s.newDecorator(site, base).DecorateDocument(doc)
	if err = s.decorationError(rep, err); err != nil {
		return nil, rep, err
	}
	var buf bytes.Buffer
	if err := decor.Render(&buf, doc); err != nil {
		return nil, rep, fmt.Errorf("render page: %w", err)
	}
	return buf.Bytes(), rep, nil
}

func (s *Server) decorateFragment(body []byte, base string, site *SiteConfig) ([]byte, decor.Report, error) {
	main, err := decor.ParseFragment(bytes.NewReader(body))
	if err != nil {
		return nil, decor.Report{}, err
	}
	rep, err := s.newDecorator(site, base).DecorateMain(main)
	if err = s.decorationError(rep, err); err != nil {
		return nil, rep, err
	}
	var buf bytes.Buffer
	if err := decor.Render(&buf, main); err != nil {
		return nil, rep, fmt.Errorf("render fragment: %w", err)
	}
	return buf.Bytes(), rep, nil
}

func (s *Server) loadPage(ctx context.Context, r *http.Request, target string, site *SiteConfig) (*upstreamDocument, error) {
	hdr := forwardHeaders(r)
	mode := SiteModeHTTP
	if site != nil {
		for k, v := range site.Headers {
			hdr.Set(k, v)
		}
		mode = site.Mode
	}
	jar := s.jars.Get(clientKey(r))
	timeout := s.timeoutFor(site)

	var (
		doc *upstreamDocument
		err error
	)
	if mode == SiteModeJS && s.renderer != nil {
		doc, err = s.renderer.Render(ctx, target, hdr, jar, jsOptions{
			WaitSelector:    site.WaitSelector,
			Timeout:         timeout,
			WaitNetworkIdle: jsNetworkIdle,
		})
		if err == nil && doc.Status >= http.StatusBadRequest {
			err = fmt.Errorf("%w: %s %d", errUpstreamStatus, target, doc.Status)
		}
	} else {
		if mode == SiteModeJS {
			s.logger.Debug("js rendering disabled, loading over http", "url", target)
			mode = SiteModeHTTP
		}
		doc, err = fetchUpstream(ctx, s.cfg.Client, target, hdr, jar, timeout)
	}
	if err != nil {
		s.metrics.upstreamErrors.WithLabelValues(mode).Inc()
		return nil, err
	}
	s.logger.Debug("upstream loaded", "url", doc.URL, "mode", mode, "status", doc.Status, "bytes", len(doc.Body), "cookies", len(doc.SetCookies))
	return doc, nil
}

func (s *Server) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("cache read failed", "key", key, "err", err)
		ok = false
	}
	if ok {
		s.metrics.cache.WithLabelValues("hit").Inc()
	} else {
		s.metrics.cache.WithLabelValues("miss").Inc()
	}
	return data, ok
}

func (s *Server) cacheSet(ctx context.Context, key string, data []byte) {
	if err := s.cache.Set(ctx, key, data); err != nil {
		s.logger.Warn("cache write failed", "key", key, "err", err)
	}
}

func writeHTML(w http.ResponseWriter, data []byte, cacheState string, rep *decor.Report) {
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(len(data)))
	if cacheState != "" {
		h.Set("X-Pagedecor-Cache", cacheState)
	}
	if rep != nil {
		h.Set("X-Pagedecor-External-Images", strconv.Itoa(rep.ExternalImages))
		h.Set("X-Pagedecor-Tab-Runs", strconv.Itoa(rep.TabRuns))
	}
	_, _ = w.Write(data)
}
