package proxy

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// Site modes select how the upstream page is loaded.
const (
	SiteModeHTTP = "http"
	SiteModeJS   = "js"
)

// SiteConfig holds per-host overrides, read from <host>.toml or <host>.json
// in the sites directory. A file for example.com also covers its subdomains.
type SiteConfig struct {
	Mode         string            `toml:"mode" json:"mode"`
	Headers      map[string]string `toml:"headers" json:"headers,omitempty"`
	Marker       string            `toml:"marker" json:"marker,omitempty"`
	CodeBase     string            `toml:"code_base" json:"code_base,omitempty"`
	WaitSelector string            `toml:"wait_selector" json:"wait_selector,omitempty"`
	Timeout      string            `toml:"timeout" json:"timeout,omitempty"`
}

func (c *SiteConfig) normalize() error {
	c.Mode = strings.TrimSpace(strings.ToLower(c.Mode))
	switch c.Mode {
	case "":
		c.Mode = SiteModeHTTP
	case SiteModeHTTP, SiteModeJS:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.Timeout != "" {
		if _, err := time.ParseDuration(c.Timeout); err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
	}
	return nil
}

func (c *SiteConfig) timeout() time.Duration {
	if c == nil || c.Timeout == "" {
		return 0
	}
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

type siteConfigStore struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*SiteConfig
	// onError reports unreadable or invalid site files.
	onError func(path string, err error)
}

func newSiteConfigStore(dir string) *siteConfigStore {
	return &siteConfigStore{
		dir:   dir,
		cache: make(map[string]*SiteConfig),
	}
}

// Find returns the config for target's host, walking up the domain labels,
// or nil. Misses are cached too.
func (s *siteConfigStore) Find(target string) *SiteConfig {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	s.mu.RLock()
	if cfg, ok := s.cache[host]; ok {
		s.mu.RUnlock()
		return cfg
	}
	s.mu.RUnlock()

	var found *SiteConfig
	labels := strings.Split(host, ".")
	for i := range labels {
		if cfg := s.load(strings.Join(labels[i:], ".")); cfg != nil {
			found = cfg
			break
		}
	}
	s.mu.Lock()
	s.cache[host] = found
	s.mu.Unlock()
	return found
}

func (s *siteConfigStore) load(host string) *SiteConfig {
	if s.dir == "" || host == "" {
		return nil
	}
	for _, ext := range []string{".toml", ".json"} {
		path := filepath.Join(s.dir, host+ext)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var cfg SiteConfig
		if ext == ".toml" {
			err = toml.Unmarshal(data, &cfg)
		} else {
			err = json.Unmarshal(data, &cfg)
		}
		if err == nil {
			err = cfg.normalize()
		}
		if err != nil {
			if s.onError != nil {
				s.onError(path, err)
			}
			return nil
		}
		return &cfg
	}
	return nil
}
