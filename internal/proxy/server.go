package proxy

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultIndexHTML = `<!DOCTYPE html>
<html><body>
<h1>pagedecor</h1>
<form action="/fetch" method="get">
<h3>Fetch and decorate a page</h3>
URL: <input name="url" size="60"><br>
Action: <input name="action"><br>
Get: <input name="get"><br>
<button type="submit">Fetch</button>
</form>
</body></html>`

const (
	defaultSitesDir      = "config/sites"
	defaultCacheTTL      = 5 * time.Minute
	defaultUpstreamLimit = 15 * time.Second
	maxDecorateBody      = 10 << 20
)

// Config describes server wiring and runtime behaviour.
type Config struct {
	IndexHTML string
	SitesDir  string
	// Marker and CodeBase are the decoration defaults; site files override them.
	Marker   string
	CodeBase string
	// Reveal marks sections loaded so pages display without the block loader.
	Reveal          bool
	UpstreamTimeout time.Duration
	// JSRender starts a headless browser for sites configured with mode "js".
	JSRender bool
	// Cache defaults to an in-memory store with CacheTTL.
	Cache    PageStore
	CacheTTL time.Duration
	Client   *http.Client
	Logger   *log.Logger
	Clock    func() time.Time
}

// Server exposes the HTTP handlers of the decoration service.
type Server struct {
	cfg      Config
	router   chi.Router
	logger   *log.Logger
	cache    PageStore
	sites    *siteConfigStore
	jars     *cookieJarStore
	index    *indexStore
	metrics  *metrics
	renderer pageRenderer
}

// New wires a new server with the provided configuration.
func New(cfg Config) *Server {
	if cfg.IndexHTML == "" {
		cfg.IndexHTML = defaultIndexHTML
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.SitesDir == "" {
		cfg.SitesDir = defaultSitesDir
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = defaultUpstreamLimit
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: cfg.UpstreamTimeout}
	}
	if cfg.Cache == nil {
		ttl := cfg.CacheTTL
		if ttl == 0 {
			ttl = defaultCacheTTL
		}
		cfg.Cache = newMemoryStore(ttl, cfg.Clock)
	}
	var renderer pageRenderer
	if cfg.JSRender {
		renderer = newJSBaker(cfg.Logger)
	}
	s := &Server{
		cfg:      cfg,
		logger:   cfg.Logger,
		cache:    cfg.Cache,
		sites:    newSiteConfigStore(cfg.SitesDir),
		jars:     newCookieJarStore(),
		index:    newIndexStore(cfg.Client),
		metrics:  newMetrics(),
		renderer: renderer,
	}
	s.sites.onError = func(path string, err error) {
		s.logger.Warn("site config ignored", "path", path, "err", err)
	}
	s.index.onFetch = s.metrics.indexFetches.Inc
	s.setupRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases the headless browser, if one was started.
func (s *Server) Close() {
	if s.renderer != nil {
		s.renderer.Close()
	}
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(withLogging(s.logger))

	r.Get("/", s.handleRoot)
	r.Get("/ping", s.handlePing)
	r.Get("/fetch", s.handleFetch)
	r.Post("/fetch", s.handleFetch)
	r.Post("/decorate", s.handleDecorate)
	r.Get("/fragment", s.handleFragment)
	r.Get("/index/{name}", s.handleIndex)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	s.router = r
}
