// Package catalog proxies search, episode and source lookups to a
// consumet-compatible content catalog. Response bodies are returned as the
// upstream produced them.
package catalog

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	hconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/network/standard"
	"golang.org/x/sync/singleflight"

	"watchsync/internal/config"
)

var (
	ErrBadQuery = errors.New("bad catalog query")
	ErrNotFound = errors.New("nothing found in catalog")
	ErrUpstream = errors.New("catalog upstream failed")
)

type Client struct {
	base     string
	provider string
	ttl      time.Duration
	http     *client.Client
	cache    Cache
	group    singleflight.Group
}

func NewClient(cfg config.CatalogConfig, cache Cache) (*Client, error) {
	return newClient(cfg, cache, &tls.Config{MinVersion: tls.VersionTLS12})
}

func newClient(cfg config.CatalogConfig, cache Cache, tlsCfg *tls.Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("catalog base url is empty")
	}
	opts := []hconfig.ClientOption{
		client.WithDialTimeout(cfg.Timeout),
		client.WithClientReadTimeout(cfg.Timeout),
	}
	// The default netpoll dialer cannot do TLS.
	if strings.HasPrefix(strings.ToLower(cfg.BaseURL), "https://") {
		opts = append(opts, client.WithDialer(standard.NewDialer()), client.WithTLSConfig(tlsCfg))
	}
	hc, err := client.NewClient(opts...)
	if err != nil {
		return nil, err
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Client{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		provider: cfg.Provider,
		ttl:      cfg.CacheTTL,
		http:     hc,
		cache:    cache,
	}, nil
}

// Search returns the upstream search result object. ErrNotFound when it
// lists no results.
func (c *Client) Search(ctx context.Context, query string) ([]byte, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrBadQuery)
	}
	return c.lookup(ctx, "search:"+query, c.endpoint(url.PathEscape(query)), func(body []byte) ([]byte, error) {
		var res struct {
			Results []json.RawMessage `json:"results"`
		}
		if err := json.Unmarshal(body, &res); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		if len(res.Results) == 0 {
			return nil, fmt.Errorf("%w: no results for %q", ErrNotFound, query)
		}
		return body, nil
	})
}

// Episodes returns the episode list of one catalog entry.
func (c *Client) Episodes(ctx context.Context, id string) ([]byte, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrBadQuery)
	}
	return c.lookup(ctx, "episodes:"+id, c.endpoint("info/"+url.PathEscape(id)), func(body []byte) ([]byte, error) {
		var res struct {
			Episodes []json.RawMessage `json:"episodes"`
		}
		if err := json.Unmarshal(body, &res); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		if len(res.Episodes) == 0 {
			return nil, fmt.Errorf("%w: no episodes for %q", ErrNotFound, id)
		}
		return json.Marshal(res.Episodes)
	})
}

// Sources returns the playable sources of one episode. An empty list is
// passed through.
func (c *Client) Sources(ctx context.Context, episodeID string) ([]byte, error) {
	if episodeID == "" {
		return nil, fmt.Errorf("%w: id is required", ErrBadQuery)
	}
	target := c.endpoint("watch") + "?episodeId=" + url.QueryEscape(episodeID)
	return c.lookup(ctx, "sources:"+episodeID, target, func(body []byte) ([]byte, error) {
		var res struct {
			Sources json.RawMessage `json:"sources"`
		}
		if err := json.Unmarshal(body, &res); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		if len(res.Sources) == 0 {
			return []byte("[]"), nil
		}
		return res.Sources, nil
	})
}

func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s/anime/%s/%s", c.base, c.provider, path)
}

// lookup serves key from the cache, or fetches target once for all
// concurrent callers and caches the extracted body.
func (c *Client) lookup(ctx context.Context, key, target string, extract func([]byte) ([]byte, error)) ([]byte, error) {
	if body, ok := c.cache.Get(ctx, key); ok {
		return body, nil
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Shared by every waiter on key; one caller going away must not fail
		// the rest. The client read timeout still bounds the request.
		ctx := context.WithoutCancel(ctx)
		status, body, err := c.http.Get(ctx, nil, target)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
		}
		if status == 404 {
			return nil, fmt.Errorf("%w: upstream returned 404", ErrNotFound)
		}
		if status < 200 || status >= 300 {
			return nil, fmt.Errorf("%w: upstream status %d", ErrUpstream, status)
		}
		out, err := extract(body)
		if err != nil {
			return nil, err
		}
		c.cache.Set(ctx, key, out, c.ttl)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
