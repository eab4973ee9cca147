package process

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/asapdigest/central-command/engine/dedup"
	"github.com/asapdigest/central-command/engine/domain"
	"github.com/asapdigest/central-command/engine/semantic"
)

// PointID derives the stable vector point id for an item.
func PointID(itemID int64) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("asap-item-%d", itemID))).String()
}

// Index embeds an item and writes its vector. A nil vector store or
// embedder makes it a no-op.
func Index(ctx context.Context, deps Deps, it domain.Item) error {
	if deps.Vectors == nil || deps.Embedder == nil {
		return nil
	}
	vec, err := deps.Embedder.Embed(ctx, it.Title+"\n\n"+it.Body)
	if err != nil {
		return fmt.Errorf("embed item %d: %w", it.ID, err)
	}
	return deps.Vectors.Upsert(ctx, []semantic.Record{{
		PointID:   PointID(it.ID),
		ItemID:    it.ID,
		SourceID:  it.SourceID,
		Title:     it.Title,
		URL:       it.URL,
		Embedding: vec,
	}})
}

// Reindex recomputes an existing item's derived fields, rescores it
// against its source's vocabulary, and replaces its vector. Used after
// manual edits and for backfills.
func Reindex(ctx context.Context, deps Deps, itemID int64) (domain.Item, error) {
	it, err := deps.Store.GetItem(ctx, itemID)
	if err != nil {
		return domain.Item{}, err
	}
	src, err := deps.Store.GetSource(ctx, it.SourceID)
	if err != nil {
		return domain.Item{}, err
	}

	it.Title = StripHTML(it.Title)
	it.Body = StripHTML(it.Body)
	it.WordCount = WordCount(it.Body)
	text := it.Title + " " + it.Body
	it.Fingerprint = dedup.Fingerprint(text)
	it.Simhash = dedup.Simhash(text)
	it.Quality = deps.Scorer.Score(ctx, it, src.Keywords)

	if err := deps.Store.UpdateProcessing(ctx, it); err != nil {
		return domain.Item{}, err
	}

	if deps.Vectors != nil {
		if err := deps.Vectors.DeleteByItem(ctx, it.ID); err != nil {
			return domain.Item{}, err
		}
	}
	if it.Status == domain.StatusApproved {
		if err := Index(ctx, deps, it); err != nil {
			return domain.Item{}, err
		}
	}
	return it, nil
}
