package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

const defaultIndexPageSize = 500

// indexPage is one page of a query index as served by the origin.
type indexPage struct {
	Total  int               `json:"total"`
	Offset int               `json:"offset"`
	Limit  int               `json:"limit"`
	Data   []json.RawMessage `json:"data"`
}

// IndexState is the part of an index loaded so far. Each fetch of an
// incomplete index loads one more page.
type IndexState struct {
	Data     []json.RawMessage `json:"data"`
	Offset   int               `json:"offset"`
	Complete bool              `json:"complete"`
}

type indexStore struct {
	client  *http.Client
	mu      sync.Mutex
	states  map[string]IndexState
	group   singleflight.Group
	onFetch func()
}

func newIndexStore(client *http.Client) *indexStore {
	if client == nil {
		client = http.DefaultClient
	}
	return &indexStore{client: client, states: make(map[string]IndexState)}
}

func (s *indexStore) state(key string) IndexState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[key]
}

// Fetch returns the index named name on origin. A complete index is served
// from memory; concurrent callers share the page fetch in flight.
func (s *indexStore) Fetch(ctx context.Context, origin, name string, pageSize int) (IndexState, error) {
	if pageSize <= 0 {
		pageSize = defaultIndexPageSize
	}
	key := strings.TrimRight(origin, "/") + "|" + name
	if st := s.state(key); st.Complete {
		return st, nil
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		cur := s.state(key)
		if cur.Complete {
			return cur, nil
		}
		page, err := s.fetchPage(context.WithoutCancel(ctx), origin, name, pageSize, cur.Offset)
		if err != nil {
			return IndexState{}, err
		}
		data := make([]json.RawMessage, 0, len(cur.Data)+len(page.Data))
		data = append(append(data, cur.Data...), page.Data...)
		next := IndexState{
			Data:     data,
			Offset:   page.Offset + pageSize,
			Complete: page.Limit+page.Offset == page.Total,
		}
		s.mu.Lock()
		s.states[key] = next
		s.mu.Unlock()
		return next, nil
	})
	if err != nil {
		return IndexState{}, err
	}
	return v.(IndexState), nil
}

func (s *indexStore) fetchPage(ctx context.Context, origin, name string, limit, offset int) (*indexPage, error) {
	target := strings.TrimRight(origin, "/") + "/" + name + ".json?limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("index request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.onFetch != nil {
		s.onFetch()
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch index %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%w: %s %d", errUpstreamStatus, target, resp.StatusCode)
	}
	var page indexPage
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxUpstreamBytes)).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode index %s: %w", target, err)
	}
	return &page, nil
}
