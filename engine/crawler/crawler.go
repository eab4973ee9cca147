// Package crawler fetches content from configured sources. Each source
// type has an adapter that turns a remote feed, API, or page into
// FetchedItems; the Crawler owns HTTP transport, per-host rate limits,
// and per-host circuit breakers so adapters stay pure parsers.
package crawler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/asapdigest/central-command/engine/domain"
	"github.com/asapdigest/central-command/pkg/resilience"
)

// maxBodyBytes caps a single fetch. Feeds larger than this are truncated
// rather than buffered whole.
const maxBodyBytes = 8 << 20

// Fetcher retrieves one URL as bytes. Adapters use it for every network
// read so rate limiting and circuit breaking apply uniformly.
type Fetcher func(ctx context.Context, rawURL string) ([]byte, error)

// Adapter parses one source type into fetched items.
type Adapter interface {
	Fetch(ctx context.Context, get Fetcher, src domain.Source) ([]domain.FetchedItem, error)
}

// Options tunes the crawler transport.
type Options struct {
	UserAgent string
	FetchRate rate.Limit // per host
	Burst     int
	Timeout   time.Duration
}

// DefaultOptions polls politely: one request per second per host.
var DefaultOptions = Options{
	UserAgent: "asap-crawler/1.0",
	FetchRate: 1,
	Burst:     3,
	Timeout:   30 * time.Second,
}

// Crawler dispatches sources to adapters over a shared, rate-limited
// HTTP client.
type Crawler struct {
	client   *http.Client
	opts     Options
	adapters map[domain.SourceType]Adapter
	log      *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	breakers map[string]*resilience.Breaker
}

// New creates a Crawler with the standard adapters registered.
func New(opts Options, logger *slog.Logger) *Crawler {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultOptions.UserAgent
	}
	if opts.FetchRate <= 0 {
		opts.FetchRate = DefaultOptions.FetchRate
	}
	if opts.Burst <= 0 {
		opts.Burst = DefaultOptions.Burst
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Crawler{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		adapters: map[domain.SourceType]Adapter{
			domain.SourceRSS:     &RSSAdapter{},
			domain.SourceAPI:     &APIAdapter{},
			domain.SourceScraper: &ScrapeAdapter{FollowLinks: true},
		},
		log:      logger,
		limiters: make(map[string]*rate.Limiter),
		breakers: make(map[string]*resilience.Breaker),
	}
}

// CrawlSource fetches everything a source currently offers.
func (c *Crawler) CrawlSource(ctx context.Context, src domain.Source) ([]domain.FetchedItem, error) {
	adapter, ok := c.adapters[src.Type]
	if !ok {
		return nil, fmt.Errorf("crawl %s: %w: %q", src.Name, domain.ErrInvalidSourceType, src.Type)
	}

	start := time.Now()
	items, err := adapter.Fetch(ctx, c.get, src)
	if err != nil {
		return nil, fmt.Errorf("crawl %s: %w", src.Name, err)
	}

	now := time.Now()
	for i := range items {
		items[i].SourceID = src.ID
		items[i].SourceName = src.Name
		if items[i].FetchedAt.IsZero() {
			items[i].FetchedAt = now
		}
	}

	c.log.Info("source crawled",
		"source", src.Name,
		"type", src.Type,
		"items", len(items),
		"took", time.Since(start).Round(time.Millisecond))
	return items, nil
}

// get fetches one URL through the per-host limiter and breaker.
func (c *Crawler) get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("fetch %q: %w", rawURL, domain.ErrInvalidURL)
	}

	if err := c.limiter(u.Host).Wait(ctx); err != nil {
		return nil, err
	}

	var body []byte
	err = c.breaker(u.Host).Call(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
		}
		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		return err
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Crawler) limiter(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.opts.FetchRate, c.opts.Burst)
		c.limiters[host] = l
	}
	return l
}

func (c *Crawler) breaker(host string) *resilience.Breaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[host]
	if !ok {
		b = resilience.NewBreaker(resilience.DefaultBreakerOpts)
		c.breakers[host] = b
	}
	return b
}
