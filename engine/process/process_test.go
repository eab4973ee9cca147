package process

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/asapdigest/central-command/engine/domain"
	"github.com/asapdigest/central-command/engine/quality"
	"github.com/asapdigest/central-command/engine/store"
)

func newDeps(t *testing.T) (Deps, domain.Source) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	src, err := st.CreateSource(context.Background(), domain.Source{
		Name: "Wire", Type: domain.SourceRSS, URL: "https://wire.example/feed",
		Active: true, Keywords: []string{"transit", "city", "council"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return Deps{
		Store:  st,
		Scorer: quality.NewScorer(quality.DefaultSettings(), nil),
	}, src
}

func fetched(src domain.Source, extID string) domain.FetchedItem {
	return domain.FetchedItem{
		SourceID:    src.ID,
		ExternalID:  extID,
		URL:         "https://wire.example/a/" + extID + "?utm_source=feed#frag",
		Title:       "City council approves new transit line " + extID,
		Body: strings.Repeat("The city council voted to approve the new transit line. "+
			"Residents welcomed the decision after years of planning delays. ", 12),
		Author:      "Jo Reporter",
		PublishedAt: time.Now().Add(-time.Hour),
		FetchedAt:   time.Now(),
	}
}

func TestPipelineAutoApprovesAndLogs(t *testing.T) {
	deps, src := newDeps(t)
	pipe := New(deps)

	res := pipe(context.Background(), fetched(src, "a1"))
	item, err := res.Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != domain.StatusApproved {
		t.Fatalf("status = %q score = %+v", item.Status, item.Quality)
	}
	if item.Fingerprint == "" || item.Simhash == 0 || item.WordCount == 0 {
		t.Fatalf("derived fields missing: %+v", item)
	}
	if strings.Contains(item.URL, "utm_source") || strings.Contains(item.URL, "#") {
		t.Fatalf("url not canonicalised: %q", item.URL)
	}

	log, err := deps.Store.LogForItem(context.Background(), item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(log) != 1 || log[0].Actor != SystemActor || log[0].Decision != domain.DecisionApprove {
		t.Fatalf("log = %+v", log)
	}
}

func TestPipelineRejectsThinContent(t *testing.T) {
	deps, src := newDeps(t)
	pipe := New(deps)

	it := fetched(src, "thin")
	it.Title = "Untitled notice"
	it.Body = "incomprehensibilities extraordinarily antidisestablishmentarianism"
	it.Author = ""
	it.URL = ""
	it.PublishedAt = time.Now().Add(-90 * 24 * time.Hour)

	res := pipe(context.Background(), it)
	item, err := res.Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != domain.StatusRejected {
		t.Fatalf("status = %q score = %+v", item.Status, item.Quality)
	}
	log, _ := deps.Store.LogForItem(context.Background(), item.ID)
	if len(log) != 1 || log[0].Decision != domain.DecisionReject || log[0].Actor != SystemActor {
		t.Fatalf("log = %+v", log)
	}
}

func TestPipelineDropsExactDuplicate(t *testing.T) {
	deps, src := newDeps(t)
	pipe := New(deps)
	ctx := context.Background()

	if _, err := pipe(ctx, fetched(src, "orig")).Unwrap(); err != nil {
		t.Fatal(err)
	}

	// Same text under a different external id is an exact duplicate.
	dup := fetched(src, "copy")
	dup.Title = fetched(src, "orig").Title
	dup.Body = fetched(src, "orig").Body

	_, err := pipe(ctx, dup).Unwrap()
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Fatalf("got %v, want ErrDuplicate", err)
	}
}

func TestPipelineQueuesNearDuplicate(t *testing.T) {
	deps, src := newDeps(t)
	pipe := New(deps)
	ctx := context.Background()

	orig, err := pipe(ctx, fetched(src, "orig")).Unwrap()
	if err != nil {
		t.Fatal(err)
	}

	near := fetched(src, "near")
	near.Title = fetched(src, "orig").Title
	near.Body = fetched(src, "orig").Body + " One extra closing sentence here."

	item, err := pipe(ctx, near).Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if item.Status != domain.StatusPending {
		t.Fatalf("near duplicate must queue, got %q", item.Status)
	}
	if item.DuplicateOf != orig.ID {
		t.Fatalf("duplicate_of = %d, want %d", item.DuplicateOf, orig.ID)
	}
}

func TestPipelineRespectsSourceMinQuality(t *testing.T) {
	deps, src := newDeps(t)
	ctx := context.Background()

	src.MinQuality = 99.5
	if err := deps.Store.UpdateSource(ctx, src); err != nil {
		t.Fatal(err)
	}
	pipe := New(deps)

	item, err := pipe(ctx, fetched(src, "strict")).Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if item.Status == domain.StatusApproved {
		t.Fatalf("score %.1f cleared a 99.5 floor", item.Quality.Composite)
	}
}

func TestPipelineRejectsInvalidItem(t *testing.T) {
	deps, src := newDeps(t)
	pipe := New(deps)

	it := fetched(src, "bad")
	it.Title = ""
	if _, err := pipe(context.Background(), it).Unwrap(); !errors.Is(err, domain.ErrEmptyTitle) {
		t.Fatalf("got %v, want ErrEmptyTitle", err)
	}
}

func TestPipelineKeepsModeratorDecisionOnRecrawl(t *testing.T) {
	deps, src := newDeps(t)
	pipe := New(deps)
	ctx := context.Background()

	first, err := pipe(ctx, fetched(src, "again")).Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != domain.StatusApproved {
		t.Fatalf("status = %q", first.Status)
	}
	if err := deps.Store.Decide(ctx, first.ID, domain.DecisionReject, "alice", "off brand"); err != nil {
		t.Fatal(err)
	}

	// The next crawl cycle delivers the identical item.
	again, err := pipe(ctx, fetched(src, "again")).Unwrap()
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID || again.Status != domain.StatusRejected {
		t.Fatalf("recrawl flipped item %d to %q", again.ID, again.Status)
	}

	log, err := deps.Store.LogForItem(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	// The auto-approve and alice's reject; the recrawl adds nothing.
	if len(log) != 2 || log[1].Actor != "alice" {
		t.Fatalf("log = %+v", log)
	}
}

func TestReindexRecomputesDerivedFields(t *testing.T) {
	deps, src := newDeps(t)
	ctx := context.Background()

	item, err := New(deps)(ctx, fetched(src, "r1")).Unwrap()
	if err != nil {
		t.Fatal(err)
	}

	// Wipe the stored breakdown; reindex must rebuild it from scratch.
	blank := item
	blank.Quality = domain.QualityBreakdown{}
	if err := deps.Store.UpdateProcessing(ctx, blank); err != nil {
		t.Fatal(err)
	}

	got, err := Reindex(ctx, deps, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Fingerprint != item.Fingerprint {
		t.Fatalf("fingerprint changed on no-op reindex")
	}
	if got.Quality.Composite == 0 {
		t.Fatal("score not recomputed")
	}
	stored, err := deps.Store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Quality.Composite != got.Quality.Composite {
		t.Fatalf("stored composite = %v, want %v", stored.Quality.Composite, got.Quality.Composite)
	}
	if _, err := Reindex(ctx, deps, 9999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing item: got %v", err)
	}
}

func TestStripHTML(t *testing.T) {
	got := StripHTML(`<article><h1>Title</h1><script>alert(1)</script><p>Body  text</p></article>`)
	if got != "Title Body text" {
		t.Fatalf("got %q", got)
	}
	if StripHTML("plain  text") != "plain text" {
		t.Fatal("plain text should only collapse whitespace")
	}
}

func TestCanonicalURL(t *testing.T) {
	got := CanonicalURL("https://News.Example/Story/?utm_campaign=x&fbclid=y&page=2#top")
	if got != "https://news.example/Story?page=2" {
		t.Fatalf("got %q", got)
	}
	if CanonicalURL("not a url") != "not a url" {
		t.Fatal("unparseable input should pass through")
	}
}
