// Package domain defines the core content-ingestion types and the
// validation gate at pipeline and API entry points.
package domain

import "time"

// SourceType enumerates the crawl adapters.
type SourceType string

const (
	SourceRSS     SourceType = "rss"
	SourceAPI     SourceType = "api"
	SourceScraper SourceType = "scraper"
)

// ValidSourceTypes is the set of recognised source types.
var ValidSourceTypes = map[SourceType]bool{
	SourceRSS: true, SourceAPI: true, SourceScraper: true,
}

// Source is a configured content origin the crawler polls.
type Source struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Type          SourceType      `json:"type"`
	URL           string          `json:"url"`
	Active        bool            `json:"active"`
	FetchInterval time.Duration   `json:"fetch_interval"`
	MinQuality    float64         `json:"min_quality,omitempty"` // per-source auto-approve override, 0 = global
	Keywords      []string        `json:"keywords,omitempty"`    // relevance vocabulary
	Selectors     ScrapeSelectors `json:"selectors,omitempty"`   // scraper sources only
	Fields        APIFieldMap     `json:"fields,omitempty"`      // api sources only
	LastRun       time.Time       `json:"last_run,omitempty"`
	NextRun       time.Time       `json:"next_run,omitempty"`
	CreatedAt     time.Time       `json:"created_at,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at,omitempty"`
}

// ScrapeSelectors are the goquery selectors for an HTML scrape source.
type ScrapeSelectors struct {
	Item   string `json:"item,omitempty"`   // repeated element in the listing page
	Link   string `json:"link,omitempty"`   // anchor within an item
	Title  string `json:"title,omitempty"`
	Body   string `json:"body,omitempty"`
	Author string `json:"author,omitempty"`
}

// APIFieldMap maps JSON feed fields onto item fields. Empty values fall
// back to the conventional names (id, title, body, url, author, published).
type APIFieldMap struct {
	Items     string `json:"items,omitempty"` // path to the item array; empty = top-level array
	ID        string `json:"id,omitempty"`
	Title     string `json:"title,omitempty"`
	Body      string `json:"body,omitempty"`
	URL       string `json:"url,omitempty"`
	Author    string `json:"author,omitempty"`
	Published string `json:"published,omitempty"`
}

// FetchedItem is what a crawl adapter emits, before processing.
type FetchedItem struct {
	SourceID    int64     `json:"source_id"`
	SourceName  string    `json:"source_name"`
	ExternalID  string    `json:"external_id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Author      string    `json:"author,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// ItemStatus tracks an item through moderation.
type ItemStatus string

const (
	StatusPending  ItemStatus = "pending"
	StatusApproved ItemStatus = "approved"
	StatusRejected ItemStatus = "rejected"
	StatusFailed   ItemStatus = "failed"
)

// ValidItemStatuses is the set of recognised item statuses.
var ValidItemStatuses = map[ItemStatus]bool{
	StatusPending: true, StatusApproved: true, StatusRejected: true, StatusFailed: true,
}

// QualityBreakdown holds the per-component quality scores, each in [0,100].
type QualityBreakdown struct {
	Completeness float64 `json:"completeness"`
	Readability  float64 `json:"readability"`
	Relevance    float64 `json:"relevance"`
	Freshness    float64 `json:"freshness"`
	Enrichment   float64 `json:"enrichment"`
	Composite    float64 `json:"composite"`
}

// Item is a processed content row.
type Item struct {
	ID          int64            `json:"id"`
	SourceID    int64            `json:"source_id"`
	ExternalID  string           `json:"external_id"`
	URL         string           `json:"url"`
	Title       string           `json:"title"`
	Body        string           `json:"body"`
	Author      string           `json:"author,omitempty"`
	ImageURL    string           `json:"image_url,omitempty"`
	Tags        []string         `json:"tags,omitempty"`
	WordCount   int              `json:"word_count"`
	PublishedAt time.Time        `json:"published_at,omitempty"`
	IngestedAt  time.Time        `json:"ingested_at"`
	Fingerprint string           `json:"fingerprint"`
	Simhash     uint64           `json:"simhash"`
	DuplicateOf int64            `json:"duplicate_of,omitempty"`
	Quality     QualityBreakdown `json:"quality"`
	Status      ItemStatus       `json:"status"`
}

// Decision is a moderation action.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
	DecisionFlag    Decision = "flag"
)

// ModerationEntry is one row of the moderation log.
type ModerationEntry struct {
	ID        int64     `json:"id"`
	ItemID    int64     `json:"item_id"`
	Decision  Decision  `json:"decision"`
	Actor     string    `json:"actor"` // "system" for auto decisions
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// SourceMetrics aggregates crawl outcomes per source.
type SourceMetrics struct {
	SourceID   int64     `json:"source_id"`
	SourceName string    `json:"source_name"`
	Crawls     int64     `json:"crawls"`
	Items      int64     `json:"items"`
	Errors     int64     `json:"errors"`
	AvgQuality float64   `json:"avg_quality"`
	LastRun    time.Time `json:"last_run,omitempty"`
}

// ModerationMetrics aggregates moderation outcomes.
type ModerationMetrics struct {
	Pending          int64         `json:"pending"`
	Approved         int64         `json:"approved"`
	Rejected         int64         `json:"rejected"`
	AutoApproved     int64         `json:"auto_approved"`
	AutoRejected     int64         `json:"auto_rejected"`
	ApprovalRate     float64       `json:"approval_rate"` // approved / decided
	AvgDecisionHr    float64       `json:"avg_decision_hours"`
	TopRejectReasons []ReasonCount `json:"top_reject_reasons,omitempty"`
}

// ReasonCount is one bucket of the reject-reason breakdown.
type ReasonCount struct {
	Note  string `json:"note"`
	Count int64  `json:"count"`
}
