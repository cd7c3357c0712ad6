package proxy

import (
	"net"
	"net/http"
	"net/http/cookiejar"
	"sync"
)

// cookieJarStore keeps one jar per client so upstream sessions survive
// between fetches of the same visitor.
type cookieJarStore struct {
	mu   sync.Mutex
	jars map[string]http.CookieJar
}

func newCookieJarStore() *cookieJarStore {
	return &cookieJarStore{jars: make(map[string]http.CookieJar)}
}

func (s *cookieJarStore) Get(key string) http.CookieJar {
	s.mu.Lock()
	defer s.mu.Unlock()
	if jar, ok := s.jars[key]; ok {
		return jar
	}
	jar, _ := cookiejar.New(nil)
	s.jars[key] = jar
	return jar
}

func (s *cookieJarStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jars)
}

// clientKey identifies a visitor by address and user agent. Forwarded
// addresses are preferred when the service sits behind a proxy.
func clientKey(r *http.Request) string {
	host := firstNonEmpty(forwardedFor(r), r.RemoteAddr)
	if h, _, err := net.SplitHostPort(host); err == nil && h != "" {
		host = h
	}
	return host + "|" + r.UserAgent()
}
