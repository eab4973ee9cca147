package store

import (
	"context"
	"fmt"

	"github.com/asapdigest/central-command/engine/domain"
)

// SourceMetrics aggregates crawl and quality outcomes per source.
func (s *Store) SourceMetrics(ctx context.Context) ([]domain.SourceMetrics, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name,
			COALESCE(m.crawls, 0), COALESCE(m.items, 0), COALESCE(m.errors, 0),
			COALESCE(m.last_run, 0),
			COALESCE((SELECT AVG(q_composite) FROM items i WHERE i.source_id = s.id), 0)
		FROM sources s
		LEFT JOIN source_metrics m ON m.source_id = s.id
		ORDER BY s.name`)
	if err != nil {
		return nil, fmt.Errorf("store: source metrics: %w", err)
	}
	defer rows.Close()

	var out []domain.SourceMetrics
	for rows.Next() {
		var (
			m       domain.SourceMetrics
			lastRun int64
		)
		if err := rows.Scan(&m.SourceID, &m.SourceName, &m.Crawls, &m.Items,
			&m.Errors, &lastRun, &m.AvgQuality); err != nil {
			return nil, err
		}
		m.LastRun = fromUnix(lastRun)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ModerationMetrics aggregates queue and decision outcomes.
func (s *Store) ModerationMetrics(ctx context.Context) (domain.ModerationMetrics, error) {
	var m domain.ModerationMetrics

	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN status = 'pending' THEN 1 END),
			COUNT(CASE WHEN status = 'approved' THEN 1 END),
			COUNT(CASE WHEN status = 'rejected' THEN 1 END)
		FROM items`).Scan(&m.Pending, &m.Approved, &m.Rejected)
	if err != nil {
		return m, fmt.Errorf("store: moderation counts: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(CASE WHEN decision = 'approve' AND actor = 'system' THEN 1 END),
			COUNT(CASE WHEN decision = 'reject' AND actor = 'system' THEN 1 END)
		FROM moderation_log`).Scan(&m.AutoApproved, &m.AutoRejected)
	if err != nil {
		return m, fmt.Errorf("store: auto decision counts: %w", err)
	}

	if decided := m.Approved + m.Rejected; decided > 0 {
		m.ApprovalRate = float64(m.Approved) / float64(decided)
	}

	// Average human decision latency, hours from ingest to log entry.
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG((l.created_at - i.ingested_at) / 3600.0), 0)
		FROM moderation_log l
		JOIN items i ON i.id = l.item_id
		WHERE l.actor != 'system' AND l.decision IN ('approve', 'reject')`).Scan(&m.AvgDecisionHr)
	if err != nil {
		return m, fmt.Errorf("store: decision latency: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT note, COUNT(*) FROM moderation_log
		WHERE decision = 'reject' AND note != ''
		GROUP BY note ORDER BY COUNT(*) DESC, note LIMIT 5`)
	if err != nil {
		return m, fmt.Errorf("store: reject reasons: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rc domain.ReasonCount
		if err := rows.Scan(&rc.Note, &rc.Count); err != nil {
			return m, err
		}
		m.TopRejectReasons = append(m.TopRejectReasons, rc)
	}
	return m, rows.Err()
}

// DuplicateGroup is a fingerprint shared by more than one item, or a chain
// of near duplicates pointing at the same original.
type DuplicateGroup struct {
	Fingerprint string        `json:"fingerprint,omitempty"`
	OriginalID  int64         `json:"original_id,omitempty"`
	Items       []domain.Item `json:"items"`
}

// DuplicateGroups builds the duplicate-content report: exact matches
// grouped by fingerprint, then near-duplicate chains by duplicate_of.
func (s *Store) DuplicateGroups(ctx context.Context) ([]DuplicateGroup, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT fingerprint FROM items
		GROUP BY fingerprint HAVING COUNT(*) > 1`)
	if err != nil {
		return nil, fmt.Errorf("store: duplicate fingerprints: %w", err)
	}
	var fps []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			rows.Close()
			return nil, err
		}
		fps = append(fps, fp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []DuplicateGroup
	for _, fp := range fps {
		items, err := s.itemsWhere(ctx, `fingerprint = ?`, fp)
		if err != nil {
			return nil, err
		}
		out = append(out, DuplicateGroup{Fingerprint: fp, Items: items})
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT DISTINCT duplicate_of FROM items WHERE duplicate_of > 0`)
	if err != nil {
		return nil, fmt.Errorf("store: near duplicates: %w", err)
	}
	var origs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		origs = append(origs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, orig := range origs {
		items, err := s.itemsWhere(ctx, `duplicate_of = ? OR id = ?`, orig, orig)
		if err != nil {
			return nil, err
		}
		out = append(out, DuplicateGroup{OriginalID: orig, Items: items})
	}
	return out, nil
}

func (s *Store) itemsWhere(ctx context.Context, cond string, args ...any) ([]domain.Item, error) {
	q := `SELECT ` + joinColumns(itemColumns) + ` FROM items WHERE ` + cond + ` ORDER BY ingested_at, id`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: items where: %w", err)
	}
	defer rows.Close()

	var out []domain.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func joinColumns(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += ", "
		}
		out += c
	}
	return out
}
