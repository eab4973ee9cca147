// Package process turns fetched items into moderated content rows. The
// pipeline validates, normalises, fingerprints, scores, and routes each
// item, then persists it together with any automatic moderation
// decision.
package process

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/asapdigest/central-command/engine/dedup"
	"github.com/asapdigest/central-command/engine/domain"
	"github.com/asapdigest/central-command/engine/quality"
	"github.com/asapdigest/central-command/engine/semantic"
	"github.com/asapdigest/central-command/engine/store"
	"github.com/asapdigest/central-command/pkg/fn"
	"github.com/asapdigest/central-command/pkg/ollama"
)

// SystemActor is the actor recorded on automatic moderation decisions.
const SystemActor = "system"

// Deps holds the external dependencies for the processing pipeline.
// Vectors and Embedder are optional; without them approved items simply
// stay out of the similarity index.
type Deps struct {
	Store    *store.Store
	Scorer   *quality.Scorer
	Vectors  *semantic.VectorStore
	Embedder *ollama.EmbedClient
	Logger   *slog.Logger
}

// job carries an item through the stages with its source context.
type job struct {
	src     domain.Source
	item    domain.Item
	nearDup bool
}

// New composes the full pipeline: Validate, Normalize, Fingerprint,
// Score, Route, Store. The returned stage yields the stored item.
func New(deps Deps) fn.Stage[domain.FetchedItem, domain.Item] {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	start := fn.Then(
		fn.TracedStage("process.validate", validate(deps.Store)),
		fn.TracedStage("process.normalize", normalizeStage()),
	)
	fingered := fn.Then(start,
		fn.TracedStage("process.fingerprint", fingerprint(deps, log)))
	scored := fn.Then(fingered,
		fn.TracedStage("process.score", score(deps.Scorer)))
	routed := fn.Then(scored,
		fn.TracedStage("process.route", route(deps.Scorer)))
	return fn.Then(routed,
		fn.TracedStage("process.store", persist(deps, log)))
}

// validate checks the fetched item and loads its source row.
func validate(st *store.Store) fn.Stage[domain.FetchedItem, job] {
	return func(ctx context.Context, it domain.FetchedItem) fn.Result[job] {
		if err := domain.ValidateFetchedItem(it); err != nil {
			return fn.Err[job](err)
		}
		src, err := st.GetSource(ctx, it.SourceID)
		if err != nil {
			return fn.Err[job](fmt.Errorf("source %d: %w", it.SourceID, err))
		}
		ingested := it.FetchedAt
		if ingested.IsZero() {
			ingested = time.Now()
		}
		return fn.Ok(job{
			src: src,
			item: domain.Item{
				SourceID:    it.SourceID,
				ExternalID:  it.ExternalID,
				URL:         it.URL,
				Title:       it.Title,
				Body:        it.Body,
				Author:      it.Author,
				ImageURL:    it.ImageURL,
				Tags:        it.Tags,
				PublishedAt: it.PublishedAt,
				IngestedAt:  ingested,
			},
		})
	}
}

// normalizeStage cleans markup out of text fields and canonicalises
// the URL.
func normalizeStage() fn.Stage[job, job] {
	return func(_ context.Context, j job) fn.Result[job] {
		j.item.Title = StripHTML(j.item.Title)
		j.item.Body = StripHTML(j.item.Body)
		j.item.Author = CollapseWhitespace(j.item.Author)
		j.item.URL = CanonicalURL(j.item.URL)
		j.item.WordCount = WordCount(j.item.Body)
		if j.item.Body == "" {
			return fn.Err[job](domain.ErrEmptyBody)
		}
		return fn.Ok(j)
	}
}

// semanticDupScore is the cosine similarity above which two items are
// treated as near-duplicates.
const semanticDupScore = 0.95

// fingerprint computes content hashes and resolves duplicates. An
// exact match aborts the pipeline with ErrDuplicate; a near match tags
// the item so routing forces manual review. With an embedder configured
// the vector index catches paraphrased duplicates that simhash misses.
func fingerprint(deps Deps, log *slog.Logger) fn.Stage[job, job] {
	return func(ctx context.Context, j job) fn.Result[job] {
		text := j.item.Title + " " + j.item.Body
		j.item.Fingerprint = dedup.Fingerprint(text)
		j.item.Simhash = dedup.Simhash(text)

		prior, ok, err := deps.Store.FindByFingerprint(ctx, j.item.Fingerprint)
		if err != nil {
			return fn.Err[job](err)
		}
		if ok && prior.ExternalID != j.item.ExternalID {
			return fn.Err[job](fmt.Errorf("item %s matches item %d: %w",
				j.item.ExternalID, prior.ID, domain.ErrDuplicate))
		}

		near, ok, err := deps.Store.NearbySimhash(ctx, j.item.Simhash, 0)
		if err != nil {
			return fn.Err[job](err)
		}
		if ok && near.ExternalID != j.item.ExternalID {
			j.item.DuplicateOf = near.ID
			j.nearDup = true
			return fn.Ok(j)
		}

		if deps.Vectors != nil && deps.Embedder != nil {
			if id, ok := semanticNear(ctx, deps, text, log); ok {
				j.item.DuplicateOf = id
				j.nearDup = true
			}
		}
		return fn.Ok(j)
	}
}

// semanticNear checks the vector index for a paraphrased duplicate.
// Lookup failures are logged and ignored; dedup falls back to the hash
// checks alone.
func semanticNear(ctx context.Context, deps Deps, text string, log *slog.Logger) (int64, bool) {
	vec, err := deps.Embedder.Embed(ctx, text)
	if err != nil {
		log.Warn("dedup embed failed", "error", err)
		return 0, false
	}
	hits, err := deps.Vectors.Search(ctx, vec, 1)
	if err != nil {
		log.Warn("dedup vector search failed", "error", err)
		return 0, false
	}
	if len(hits) == 1 && hits[0].Score >= semanticDupScore {
		return hits[0].ItemID, true
	}
	return 0, false
}

// score fills the quality breakdown using the source's vocabulary.
func score(scorer *quality.Scorer) fn.Stage[job, job] {
	return func(ctx context.Context, j job) fn.Result[job] {
		j.item.Quality = scorer.Score(ctx, j.item, j.src.Keywords)
		return fn.Ok(j)
	}
}

// route picks the initial status. Near-duplicates always queue for a
// human; otherwise thresholds decide, with the per-source floor taking
// precedence over the global auto-approve line.
func route(scorer *quality.Scorer) fn.Stage[job, job] {
	return func(_ context.Context, j job) fn.Result[job] {
		s := scorer.Settings()
		j.item.Status = domain.StatusPending
		if j.nearDup || !s.Enabled {
			return fn.Ok(j)
		}

		approveAt := s.AutoApprove
		if j.src.MinQuality > 0 {
			approveAt = j.src.MinQuality
		}
		switch {
		case j.item.Quality.Composite >= approveAt:
			j.item.Status = domain.StatusApproved
		case j.item.Quality.Composite < s.AutoReject:
			j.item.Status = domain.StatusRejected
		}
		return fn.Ok(j)
	}
}

// persist writes the item, logs any automatic decision, and indexes
// approved items for similarity search. A recrawl of an already decided
// item keeps the recorded decision instead of re-routing it.
func persist(deps Deps, log *slog.Logger) fn.Stage[job, domain.Item] {
	return func(ctx context.Context, j job) fn.Result[domain.Item] {
		prior, existed, err := deps.Store.FindByExternalID(ctx, j.item.SourceID, j.item.ExternalID)
		if err != nil {
			return fn.Err[domain.Item](err)
		}
		if existed && prior.Status != domain.StatusPending {
			j.item.Status = prior.Status
		}

		id, err := deps.Store.UpsertItem(ctx, j.item)
		if err != nil {
			return fn.Err[domain.Item](err)
		}
		j.item.ID = id

		if existed && prior.Status == j.item.Status {
			// Unchanged status on a recrawl, nothing to log.
			if j.item.Status == domain.StatusApproved {
				if err := Index(ctx, deps, j.item); err != nil {
					log.Warn("vector index failed", "item_id", id, "error", err)
				}
			}
			return fn.Ok(j.item)
		}

		switch j.item.Status {
		case domain.StatusApproved:
			err = deps.Store.AppendLog(ctx, domain.ModerationEntry{
				ItemID: id, Decision: domain.DecisionApprove, Actor: SystemActor,
				Note: fmt.Sprintf("auto-approved at %.1f", j.item.Quality.Composite),
			})
		case domain.StatusRejected:
			err = deps.Store.AppendLog(ctx, domain.ModerationEntry{
				ItemID: id, Decision: domain.DecisionReject, Actor: SystemActor,
				Note: fmt.Sprintf("auto-rejected at %.1f", j.item.Quality.Composite),
			})
		}
		if err != nil {
			return fn.Err[domain.Item](err)
		}

		if j.item.Status == domain.StatusApproved {
			if err := Index(ctx, deps, j.item); err != nil {
				// Indexing is best effort; the item is already stored.
				log.Warn("vector index failed", "item_id", id, "error", err)
			}
		}
		return fn.Ok(j.item)
	}
}
