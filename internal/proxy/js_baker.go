package proxy

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// jsOptions tunes a headless render for one site.
type jsOptions struct {
	WaitSelector    string
	Timeout         time.Duration
	WaitNetworkIdle time.Duration
}

// pageRenderer loads a page through a real browser so client-rendered
// markup is present before decoration.
type pageRenderer interface {
	Render(ctx context.Context, target string, hdr http.Header, jar http.CookieJar, opts jsOptions) (*upstreamDocument, error)
	Close()
}

type jsBaker struct {
	allocator context.Context
	cancel    context.CancelFunc
	logger    *log.Logger
}

func newJSBaker(logger *log.Logger) *jsBaker {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("disable-extensions", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &jsBaker{allocator: allocCtx, cancel: cancel, logger: logger}
}

func (b *jsBaker) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}

func (b *jsBaker) Render(ctx context.Context, target string, hdr http.Header, jar http.CookieJar, opts jsOptions) (*upstreamDocument, error) {
	if strings.TrimSpace(target) == "" {
		return nil, fmt.Errorf("js render: empty target url")
	}
	taskCtx, cancelBrowser := chromedp.NewContext(b.allocator)
	defer cancelBrowser()

	// tie the browser tab to the caller
	taskCtx, cancel := context.WithCancel(taskCtx)
	defer cancel()
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-taskCtx.Done():
		}
	}()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	taskCtx, cancelTimeout := context.WithTimeout(taskCtx, timeout)
	defer cancelTimeout()

	requestHeaders := upstreamHeaders(hdr)
	requestHeaders.Del("Accept-Encoding")

	var (
		mu             sync.Mutex
		activeRequests int
		lastActivity   = time.Now()
		mainRequestID  network.RequestID
		mainStatus     int64
		mainHeaders    = http.Header{}
		finalURL       string
		htmlContent    string
	)

	chromedp.ListenTarget(taskCtx, func(ev interface{}) {
		mu.Lock()
		defer mu.Unlock()
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			activeRequests++
			lastActivity = time.Now()
			if e.Type == network.ResourceTypeDocument && mainRequestID == "" {
				mainRequestID = e.RequestID
			}
		case *network.EventLoadingFinished:
			if activeRequests > 0 {
				activeRequests--
			}
			lastActivity = time.Now()
		case *network.EventLoadingFailed:
			if activeRequests > 0 {
				activeRequests--
			}
			lastActivity = time.Now()
		case *network.EventResponseReceived:
			if e.RequestID != mainRequestID || e.Response == nil {
				return
			}
			mainStatus = e.Response.Status
			for k, v := range e.Response.Headers {
				mainHeaders.Add(k, fmt.Sprint(v))
			}
			if mainHeaders.Get("Content-Type") == "" && e.Response.MimeType != "" {
				mainHeaders.Set("Content-Type", e.Response.MimeType)
			}
		}
	})

	actions := []chromedp.Action{network.Enable()}
	if ua := requestHeaders.Get("User-Agent"); ua != "" {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetUserAgentOverride(ua).Do(ctx)
		}))
		requestHeaders.Del("User-Agent")
	}
	extra := network.Headers{}
	for k, vs := range requestHeaders {
		if len(vs) == 0 || strings.EqualFold(k, "Content-Length") {
			continue
		}
		extra[http.CanonicalHeaderKey(k)] = strings.Join(vs, ", ")
	}
	if len(extra) > 0 {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetExtraHTTPHeaders(extra).Do(ctx)
		}))
	}
	if params := cookieParams(jar, target); len(params) > 0 {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookies(params).Do(ctx)
		}))
	}

	actions = append(actions,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if sel := strings.TrimSpace(opts.WaitSelector); sel != "" {
		actions = append(actions, chromedp.WaitVisible(sel, chromedp.ByQuery))
	}
	if opts.WaitNetworkIdle > 0 {
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			ticker := time.NewTicker(50 * time.Millisecond)
			defer ticker.Stop()
			for {
				mu.Lock()
				idle := activeRequests == 0 && time.Since(lastActivity) >= opts.WaitNetworkIdle
				mu.Unlock()
				if idle {
					return nil
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}
			}
		}))
	}

	var browserCookies []*network.Cookie
	actions = append(actions,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &htmlContent, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			u := finalURL
			if u == "" {
				u = target
			}
			var err error
			browserCookies, err = network.GetCookies().WithUrls([]string{u}).Do(ctx)
			return err
		}),
	)

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, fmt.Errorf("js render %s: %w", target, err)
	}
	if finalURL == "" {
		finalURL = target
	}

	mu.Lock()
	header := cloneHeader(mainHeaders)
	status := int(mainStatus)
	mu.Unlock()
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "text/html; charset=utf-8")
	}

	setCookies := make([]string, 0, len(browserCookies))
	httpCookies := make([]*http.Cookie, 0, len(browserCookies))
	for _, c := range browserCookies {
		if hc := cookieFromNetwork(c); hc != nil {
			httpCookies = append(httpCookies, hc)
			setCookies = append(setCookies, hc.String())
		}
	}
	sort.Strings(setCookies)
	if jar != nil && len(httpCookies) > 0 {
		if u, err := url.Parse(finalURL); err == nil {
			jar.SetCookies(u, httpCookies)
		}
	}
	b.logger.Debug("js render done", "url", finalURL, "status", status, "bytes", len(htmlContent))

	return &upstreamDocument{
		URL:        finalURL,
		Status:     status,
		Header:     header,
		Body:       []byte(htmlContent),
		SetCookies: setCookies,
	}, nil
}

func cookieParams(jar http.CookieJar, target string) []*network.CookieParam {
	if jar == nil {
		return nil
	}
	u, err := url.Parse(target)
	if err != nil {
		return nil
	}
	cookies := jar.Cookies(u)
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   cookieDomainForParam(c, u),
			Path:     cookiePathForParam(c),
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		if !c.Expires.IsZero() {
			exp := cdp.TimeSinceEpoch(c.Expires.UTC())
			p.Expires = &exp
		}
		params = append(params, p)
	}
	return params
}

func cookieFromNetwork(c *network.Cookie) *http.Cookie {
	if c == nil {
		return nil
	}
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
	if !c.Session && c.Expires > 0 {
		sec, frac := math.Modf(c.Expires)
		hc.Expires = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}
	switch c.SameSite {
	case network.CookieSameSiteLax:
		hc.SameSite = http.SameSiteLaxMode
	case network.CookieSameSiteStrict:
		hc.SameSite = http.SameSiteStrictMode
	case network.CookieSameSiteNone:
		hc.SameSite = http.SameSiteNoneMode
	}
	return hc
}

func cookieDomainForParam(c *http.Cookie, u *url.URL) string {
	if c.Domain != "" {
		return c.Domain
	}
	return u.Hostname()
}

func cookiePathForParam(c *http.Cookie) string {
	if c.Path != "" {
		return c.Path
	}
	return "/"
}
