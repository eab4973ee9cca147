package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/asapdigest/central-command/engine/domain"
)

// AppendLog records a moderation decision without touching item status.
// Used by the pipeline for auto decisions taken at insert time.
func (s *Store) AppendLog(ctx context.Context, e domain.ModerationEntry) error {
	if err := domain.ValidateDecision(e.Decision); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO moderation_log (item_id, decision, actor, note, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ItemID, string(e.Decision), e.Actor, e.Note, e.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("store: append log: %w", err)
	}
	return nil
}

// LogForItem returns the moderation history of one item, oldest first.
func (s *Store) LogForItem(ctx context.Context, itemID int64) ([]domain.ModerationEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_id, decision, actor, note, created_at
		 FROM moderation_log WHERE item_id = ? ORDER BY created_at, id`, itemID)
	if err != nil {
		return nil, fmt.Errorf("store: log for item %d: %w", itemID, err)
	}
	defer rows.Close()

	var out []domain.ModerationEntry
	for rows.Next() {
		var (
			e        domain.ModerationEntry
			decision string
			created  int64
		)
		if err := rows.Scan(&e.ID, &e.ItemID, &decision, &e.Actor, &e.Note, &created); err != nil {
			return nil, err
		}
		e.Decision = domain.Decision(decision)
		e.CreatedAt = fromUnix(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Queue returns pending items oldest first.
func (s *Store) Queue(ctx context.Context, page, perPage int) ([]domain.Item, int64, error) {
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if page <= 0 {
		page = 1
	}

	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM items WHERE status = ?`, string(domain.StatusPending)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: queue count: %w", err)
	}

	q, args, _ := builder().Select(itemColumns...).From("items").
		Where(sq.Eq{"status": string(domain.StatusPending)}).
		OrderBy("ingested_at", "id").
		Limit(uint64(perPage)).Offset(uint64((page - 1) * perPage)).ToSql()

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: queue: %w", err)
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

// Decide applies a moderation decision: the status change and log entry
// commit together or not at all.
func (s *Store) Decide(ctx context.Context, itemID int64, decision domain.Decision, actor, note string) error {
	if err := domain.ValidateDecision(decision); err != nil {
		return err
	}
	status := domain.StatusPending
	switch decision {
	case domain.DecisionApprove:
		status = domain.StatusApproved
	case domain.DecisionReject:
		status = domain.StatusRejected
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: decide begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE items SET status = ? WHERE id = ?`, string(status), itemID)
	if err != nil {
		return fmt.Errorf("store: decide status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: item %d: %w", itemID, domain.ErrNotFound)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO moderation_log (item_id, decision, actor, note, created_at) VALUES (?, ?, ?, ?, ?)`,
		itemID, string(decision), actor, note, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("store: decide log: %w", err)
	}

	return tx.Commit()
}
