package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/asapdigest/central-command/engine/dedup"
	"github.com/asapdigest/central-command/engine/domain"
)

var itemColumns = []string{
	"id", "source_id", "external_id", "url", "title", "body", "author", "image_url",
	"tags", "word_count", "published_at", "ingested_at", "fingerprint", "simhash",
	"duplicate_of", "q_completeness", "q_readability", "q_relevance", "q_freshness",
	"q_enrichment", "q_composite", "status",
}

// ItemFilter narrows a content search. Zero values mean "no constraint".
type ItemFilter struct {
	Query    string
	SourceID int64
	Status   domain.ItemStatus
	MinScore float64
	MaxScore float64
	Since    time.Time
	Until    time.Time
	Page     int
	PerPage  int
}

// MaxPerPage caps search page sizes.
const MaxPerPage = 100

// UpsertItem inserts an item, replacing the previous row for the same
// (source, external id). Returns the row id.
func (s *Store) UpsertItem(ctx context.Context, it domain.Item) (int64, error) {
	tags, err := json.Marshal(orEmpty(it.Tags))
	if err != nil {
		return 0, err
	}
	if it.IngestedAt.IsZero() {
		it.IngestedAt = time.Now()
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO items (source_id, external_id, url, title, body, author, image_url,
			tags, word_count, published_at, ingested_at, fingerprint, simhash, duplicate_of,
			q_completeness, q_readability, q_relevance, q_freshness, q_enrichment, q_composite, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_id, external_id) DO UPDATE SET
			url = excluded.url, title = excluded.title, body = excluded.body,
			author = excluded.author, image_url = excluded.image_url, tags = excluded.tags,
			word_count = excluded.word_count, published_at = excluded.published_at,
			fingerprint = excluded.fingerprint, simhash = excluded.simhash,
			duplicate_of = excluded.duplicate_of,
			q_completeness = excluded.q_completeness, q_readability = excluded.q_readability,
			q_relevance = excluded.q_relevance, q_freshness = excluded.q_freshness,
			q_enrichment = excluded.q_enrichment, q_composite = excluded.q_composite,
			status = excluded.status
		RETURNING id`,
		it.SourceID, it.ExternalID, it.URL, it.Title, it.Body, it.Author, it.ImageURL,
		string(tags), it.WordCount, unix(it.PublishedAt), unix(it.IngestedAt),
		it.Fingerprint, int64(it.Simhash), it.DuplicateOf,
		it.Quality.Completeness, it.Quality.Readability, it.Quality.Relevance,
		it.Quality.Freshness, it.Quality.Enrichment, it.Quality.Composite,
		string(it.Status)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: upsert item %d/%s: %w", it.SourceID, it.ExternalID, err)
	}
	return id, nil
}

// GetItem fetches one item by id.
func (s *Store) GetItem(ctx context.Context, id int64) (domain.Item, error) {
	q, args, _ := builder().Select(itemColumns...).From("items").Where(sq.Eq{"id": id}).ToSql()
	it, err := scanItem(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, fmt.Errorf("store: item %d: %w", id, domain.ErrNotFound)
	}
	return it, err
}

// SearchItems returns a filtered page of items and the total match count.
func (s *Store) SearchItems(ctx context.Context, f ItemFilter) ([]domain.Item, int64, error) {
	if f.PerPage <= 0 {
		f.PerPage = 20
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	where := func(q sq.SelectBuilder) sq.SelectBuilder {
		if f.Query != "" {
			like := "%" + f.Query + "%"
			q = q.Where(sq.Or{sq.Like{"title": like}, sq.Like{"body": like}})
		}
		if f.SourceID > 0 {
			q = q.Where(sq.Eq{"source_id": f.SourceID})
		}
		if f.Status != "" {
			q = q.Where(sq.Eq{"status": string(f.Status)})
		}
		if f.MinScore > 0 {
			q = q.Where(sq.GtOrEq{"q_composite": f.MinScore})
		}
		if f.MaxScore > 0 {
			q = q.Where(sq.LtOrEq{"q_composite": f.MaxScore})
		}
		if !f.Since.IsZero() {
			q = q.Where(sq.GtOrEq{"ingested_at": f.Since.Unix()})
		}
		if !f.Until.IsZero() {
			q = q.Where(sq.LtOrEq{"ingested_at": f.Until.Unix()})
		}
		return q
	}

	countSQL, countArgs, _ := where(builder().Select("COUNT(*)").From("items")).ToSql()
	var total int64
	if err := s.db.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count items: %w", err)
	}

	pageSQL, pageArgs, _ := where(builder().Select(itemColumns...).From("items")).
		OrderBy("ingested_at DESC", "id DESC").
		Limit(uint64(f.PerPage)).
		Offset(uint64((f.Page - 1) * f.PerPage)).ToSql()

	rows, err := s.db.QueryContext(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: search items: %w", err)
	}
	defer rows.Close()

	var out []domain.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, it)
	}
	return out, total, rows.Err()
}

// BulkUpdateStatus sets the status on the given items. Returns affected count.
func (s *Store) BulkUpdateStatus(ctx context.Context, ids []int64, status domain.ItemStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if !domain.ValidItemStatuses[status] {
		return 0, domain.NewValidationError("status", string(status), domain.ErrInvalidStatus)
	}
	sqlStr, args, _ := builder().Update("items").
		Set("status", string(status)).
		Where(sq.Eq{"id": ids}).ToSql()
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("store: bulk status: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteItems removes items by id. Returns affected count.
func (s *Store) DeleteItems(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	sqlStr, args, _ := builder().Delete("items").Where(sq.Eq{"id": ids}).ToSql()
	res, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("store: delete items: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// FindByExternalID returns the stored row for a (source, external id)
// pair, if any.
func (s *Store) FindByExternalID(ctx context.Context, sourceID int64, externalID string) (domain.Item, bool, error) {
	q, args, _ := builder().Select(itemColumns...).From("items").
		Where(sq.Eq{"source_id": sourceID, "external_id": externalID}).Limit(1).ToSql()
	it, err := scanItem(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, false, nil
	}
	if err != nil {
		return domain.Item{}, false, fmt.Errorf("store: find external id: %w", err)
	}
	return it, true, nil
}

// FindByFingerprint returns the oldest item carrying the fingerprint, if any.
func (s *Store) FindByFingerprint(ctx context.Context, fp string) (domain.Item, bool, error) {
	q, args, _ := builder().Select(itemColumns...).From("items").
		Where(sq.Eq{"fingerprint": fp}).
		OrderBy("ingested_at", "id").Limit(1).ToSql()
	it, err := scanItem(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, false, nil
	}
	if err != nil {
		return domain.Item{}, false, fmt.Errorf("store: find fingerprint: %w", err)
	}
	return it, true, nil
}

// NearbySimhash returns the first stored item within dedup.NearThreshold of
// the given simhash. SQLite cannot index Hamming distance, so candidates
// are filtered in Go; the recent-items window bounds the scan.
func (s *Store) NearbySimhash(ctx context.Context, hash uint64, window int) (domain.Item, bool, error) {
	if window <= 0 {
		window = 2000
	}
	q, args, _ := builder().Select(itemColumns...).From("items").
		OrderBy("ingested_at DESC", "id DESC").Limit(uint64(window)).ToSql()

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return domain.Item{}, false, fmt.Errorf("store: simhash scan: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return domain.Item{}, false, err
		}
		if dedup.Near(it.Simhash, hash) {
			return it, true, nil
		}
	}
	return domain.Item{}, false, rows.Err()
}

// UpdateProcessing rewrites the fields recomputed by a reindex.
func (s *Store) UpdateProcessing(ctx context.Context, it domain.Item) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET word_count = ?, fingerprint = ?, simhash = ?, duplicate_of = ?,
			q_completeness = ?, q_readability = ?, q_relevance = ?, q_freshness = ?,
			q_enrichment = ?, q_composite = ?, status = ?
		WHERE id = ?`,
		it.WordCount, it.Fingerprint, int64(it.Simhash), it.DuplicateOf,
		it.Quality.Completeness, it.Quality.Readability, it.Quality.Relevance,
		it.Quality.Freshness, it.Quality.Enrichment, it.Quality.Composite,
		string(it.Status), it.ID)
	if err != nil {
		return fmt.Errorf("store: update processing %d: %w", it.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: item %d: %w", it.ID, domain.ErrNotFound)
	}
	return nil
}

func scanItem(r rowScanner) (domain.Item, error) {
	var (
		it                  domain.Item
		tags, status        string
		published, ingested int64
		simhash             int64
	)
	err := r.Scan(&it.ID, &it.SourceID, &it.ExternalID, &it.URL, &it.Title, &it.Body,
		&it.Author, &it.ImageURL, &tags, &it.WordCount, &published, &ingested,
		&it.Fingerprint, &simhash, &it.DuplicateOf,
		&it.Quality.Completeness, &it.Quality.Readability, &it.Quality.Relevance,
		&it.Quality.Freshness, &it.Quality.Enrichment, &it.Quality.Composite, &status)
	if err != nil {
		return domain.Item{}, err
	}
	it.PublishedAt = fromUnix(published)
	it.IngestedAt = fromUnix(ingested)
	it.Simhash = uint64(simhash)
	it.Status = domain.ItemStatus(status)
	if err := json.Unmarshal([]byte(tags), &it.Tags); err != nil {
		return domain.Item{}, fmt.Errorf("store: item %d tags: %w", it.ID, err)
	}
	return it, nil
}
