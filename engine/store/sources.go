package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/asapdigest/central-command/engine/domain"
)

var sourceColumns = []string{
	"id", "name", "type", "url", "active", "fetch_interval_secs", "min_quality",
	"keywords", "selectors", "fields", "last_run", "next_run", "created_at", "updated_at",
}

// DefaultFetchInterval schedules sources that do not set their own
// interval.
const DefaultFetchInterval = 15 * time.Minute

// CreateSource inserts a source and returns it with the assigned id.
func (s *Store) CreateSource(ctx context.Context, src domain.Source) (domain.Source, error) {
	if err := domain.ValidateSource(src); err != nil {
		return domain.Source{}, err
	}
	now := time.Now()
	src.CreatedAt, src.UpdatedAt = now, now
	if src.FetchInterval == 0 {
		src.FetchInterval = DefaultFetchInterval
	}
	if src.NextRun.IsZero() {
		src.NextRun = now
	}

	keywords, selectors, fields, err := encodeSourceJSON(src)
	if err != nil {
		return domain.Source{}, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (name, type, url, active, fetch_interval_secs, min_quality,
			keywords, selectors, fields, last_run, next_run, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.Name, string(src.Type), src.URL, boolInt(src.Active),
		int64(src.FetchInterval.Seconds()), src.MinQuality,
		keywords, selectors, fields,
		unix(src.LastRun), unix(src.NextRun), unix(src.CreatedAt), unix(src.UpdatedAt))
	if err != nil {
		return domain.Source{}, fmt.Errorf("store: insert source: %w", err)
	}
	src.ID, _ = res.LastInsertId()
	return src, nil
}

// GetSource fetches a source by id.
func (s *Store) GetSource(ctx context.Context, id int64) (domain.Source, error) {
	q, args, _ := builder().Select(sourceColumns...).From("sources").Where(sq.Eq{"id": id}).ToSql()
	src, err := scanSource(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Source{}, fmt.Errorf("store: source %d: %w", id, domain.ErrNotFound)
	}
	return src, err
}

// UpdateSource replaces a source's mutable fields.
func (s *Store) UpdateSource(ctx context.Context, src domain.Source) error {
	if err := domain.ValidateSource(src); err != nil {
		return err
	}
	keywords, selectors, fields, err := encodeSourceJSON(src)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE sources SET name = ?, type = ?, url = ?, active = ?,
			fetch_interval_secs = ?, min_quality = ?, keywords = ?, selectors = ?,
			fields = ?, updated_at = ?
		WHERE id = ?`,
		src.Name, string(src.Type), src.URL, boolInt(src.Active),
		int64(src.FetchInterval.Seconds()), src.MinQuality,
		keywords, selectors, fields, time.Now().Unix(), src.ID)
	if err != nil {
		return fmt.Errorf("store: update source %d: %w", src.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: source %d: %w", src.ID, domain.ErrNotFound)
	}
	return nil
}

// DeleteSource removes a source and, via cascade, its items.
func (s *Store) DeleteSource(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete source %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: source %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListSources returns sources, optionally filtered to active ones.
func (s *Store) ListSources(ctx context.Context, activeOnly bool) ([]domain.Source, error) {
	q := builder().Select(sourceColumns...).From("sources").OrderBy("name")
	if activeOnly {
		q = q.Where(sq.Eq{"active": 1})
	}
	sqlStr, args, _ := q.ToSql()

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// DueSources returns active sources whose next_run has passed.
func (s *Store) DueSources(ctx context.Context, now time.Time) ([]domain.Source, error) {
	sqlStr, args, _ := builder().Select(sourceColumns...).From("sources").
		Where(sq.Eq{"active": 1}).
		Where(sq.LtOrEq{"next_run": now.Unix()}).
		OrderBy("next_run").ToSql()

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("store: due sources: %w", err)
	}
	defer rows.Close()

	var out []domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, rows.Err()
}

// TouchRun records a crawl attempt and schedules the next one. A zero
// interval falls back to DefaultFetchInterval so the source does not
// come due again on the next scan.
func (s *Store) TouchRun(ctx context.Context, id int64, ranAt time.Time, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultFetchInterval
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET last_run = ?, next_run = ?, updated_at = ? WHERE id = ?`,
		ranAt.Unix(), ranAt.Add(interval).Unix(), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("store: touch run %d: %w", id, err)
	}
	return nil
}

// RecordCrawl accumulates per-source crawl counters.
func (s *Store) RecordCrawl(ctx context.Context, sourceID int64, items int, crawlErr error) error {
	lastErr := ""
	errInc := 0
	if crawlErr != nil {
		lastErr = crawlErr.Error()
		errInc = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_metrics (source_id, crawls, items, errors, last_run, last_error)
		VALUES (?, 1, ?, ?, ?, ?)
		ON CONFLICT (source_id) DO UPDATE SET
			crawls = crawls + 1,
			items = items + excluded.items,
			errors = errors + excluded.errors,
			last_run = excluded.last_run,
			last_error = excluded.last_error`,
		sourceID, items, errInc, time.Now().Unix(), lastErr)
	if err != nil {
		return fmt.Errorf("store: record crawl %d: %w", sourceID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(r rowScanner) (domain.Source, error) {
	var (
		src                        domain.Source
		typ                        string
		active, intervalSecs       int64
		keywords, selectors, flds  string
		lastRun, nextRun, crt, upd int64
	)
	err := r.Scan(&src.ID, &src.Name, &typ, &src.URL, &active, &intervalSecs,
		&src.MinQuality, &keywords, &selectors, &flds, &lastRun, &nextRun, &crt, &upd)
	if err != nil {
		return domain.Source{}, err
	}
	src.Type = domain.SourceType(typ)
	src.Active = active != 0
	src.FetchInterval = time.Duration(intervalSecs) * time.Second
	src.LastRun = fromUnix(lastRun)
	src.NextRun = fromUnix(nextRun)
	src.CreatedAt = fromUnix(crt)
	src.UpdatedAt = fromUnix(upd)
	if err := json.Unmarshal([]byte(keywords), &src.Keywords); err != nil {
		return domain.Source{}, fmt.Errorf("store: source %d keywords: %w", src.ID, err)
	}
	if err := json.Unmarshal([]byte(selectors), &src.Selectors); err != nil {
		return domain.Source{}, fmt.Errorf("store: source %d selectors: %w", src.ID, err)
	}
	if err := json.Unmarshal([]byte(flds), &src.Fields); err != nil {
		return domain.Source{}, fmt.Errorf("store: source %d fields: %w", src.ID, err)
	}
	return src, nil
}

func encodeSourceJSON(src domain.Source) (keywords, selectors, fields string, err error) {
	kw, err := json.Marshal(orEmpty(src.Keywords))
	if err != nil {
		return "", "", "", err
	}
	sel, err := json.Marshal(src.Selectors)
	if err != nil {
		return "", "", "", err
	}
	fl, err := json.Marshal(src.Fields)
	if err != nil {
		return "", "", "", err
	}
	return string(kw), string(sel), string(fl), nil
}

func orEmpty(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return ss
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func fromUnix(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(v, 0).UTC()
}
