package crawler

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/asapdigest/central-command/engine/domain"
	"github.com/asapdigest/central-command/engine/process"
	"github.com/asapdigest/central-command/engine/store"
	"github.com/asapdigest/central-command/pkg/fn"
	"github.com/asapdigest/central-command/pkg/metrics"
	"github.com/asapdigest/central-command/pkg/natsutil"
)

// SubjectRequest carries on-demand crawl requests from the API.
const SubjectRequest = "asap.crawl.request"

// RunRequest asks the scheduler to crawl one source out of band. The
// API publishes these when an operator hits the run endpoint.
type RunRequest struct {
	SourceID int64 `json:"source_id"`
}

// Scheduler polls due sources on an interval and ships fetched items to
// the ingest pipeline over NATS.
type Scheduler struct {
	crawler  *Crawler
	store    *store.Store
	nc       *nats.Conn
	interval time.Duration
	workers  int
	log      *slog.Logger

	crawls    *metrics.Counter
	crawlErrs *metrics.Counter
	fetched   *metrics.Counter
	duration  *metrics.Histogram
}

// NewScheduler wires the crawl loop. The registry may be shared with
// the HTTP metrics endpoint.
func NewScheduler(c *Crawler, st *store.Store, nc *nats.Conn, interval time.Duration, workers int, reg *metrics.Registry, logger *slog.Logger) *Scheduler {
	if workers <= 0 {
		workers = 4
	}
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		crawler:   c,
		store:     st,
		nc:        nc,
		interval:  interval,
		workers:   workers,
		log:       logger,
		crawls:    reg.Counter("crawler_crawls_total", "Completed source crawls."),
		crawlErrs: reg.Counter("crawler_crawl_errors_total", "Source crawls that failed."),
		fetched:   reg.Counter("crawler_items_fetched_total", "Items handed to ingest."),
		duration:  reg.Histogram("crawler_crawl_duration_seconds", "Per-source crawl duration.", nil),
	}
}

// Run blocks until ctx is cancelled. It scans for due sources every
// interval and also serves on-demand run requests.
func (s *Scheduler) Run(ctx context.Context) error {
	sub, err := natsutil.Subscribe(s.nc, SubjectRequest, func(ctx context.Context, req RunRequest) {
		src, err := s.store.GetSource(ctx, req.SourceID)
		if err != nil {
			s.log.Warn("run request for unknown source", "source_id", req.SourceID, "error", err)
			return
		}
		s.crawlOne(ctx, src)
	})
	if err != nil {
		return err
	}
	defer sub.Drain()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

// scan crawls every source past its next_run mark, workers at a time.
func (s *Scheduler) scan(ctx context.Context) {
	due, err := s.store.DueSources(ctx, time.Now())
	if err != nil {
		s.log.Error("list due sources", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}
	s.log.Info("scan started", "due", len(due))

	fn.ParMap(due, s.workers, func(src domain.Source) struct{} {
		s.crawlOne(ctx, src)
		return struct{}{}
	})
}

// crawlOne runs a single source end to end: fetch, publish, book-keep.
func (s *Scheduler) crawlOne(ctx context.Context, src domain.Source) {
	start := time.Now()
	items, err := s.crawler.CrawlSource(ctx, src)
	s.duration.Since(start)
	s.crawls.Inc()

	if recErr := s.store.RecordCrawl(ctx, src.ID, len(items), err); recErr != nil {
		s.log.Error("record crawl", "source", src.Name, "error", recErr)
	}
	if touchErr := s.store.TouchRun(ctx, src.ID, start, src.FetchInterval); touchErr != nil {
		s.log.Error("touch run", "source", src.Name, "error", touchErr)
	}
	if err != nil {
		s.crawlErrs.Inc()
		s.log.Error("crawl failed", "source", src.Name, "error", err)
		return
	}

	published := 0
	for _, it := range items {
		if err := natsutil.Publish(ctx, s.nc, process.IngestSubject, it); err != nil {
			s.log.Error("publish item", "source", src.Name, "external_id", it.ExternalID, "error", err)
			continue
		}
		published++
	}
	s.fetched.Add(int64(published))
}
