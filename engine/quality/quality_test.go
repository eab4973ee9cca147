package quality

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/asapdigest/central-command/engine/domain"
)

func fullItem() domain.Item {
	return domain.Item{
		Title:       "Transit plan approved by city council",
		Body:        strings.Repeat("The council approved the plan after a long public hearing. ", 40),
		Author:      "Jane Reporter",
		URL:         "https://example.com/news/transit",
		ImageURL:    "https://example.com/img/transit.jpg",
		Tags:        []string{"transit", "politics", "local"},
		PublishedAt: time.Now().Add(-time.Hour),
	}
}

func TestNormalizeScalesToOne(t *testing.T) {
	s := Settings{
		Weights:     Weights{Completeness: 2, Readability: 1, Relevance: 1, Freshness: 1, Enrichment: 1},
		AutoApprove: 75,
		AutoReject:  25,
	}
	if err := s.Normalize(); err != nil {
		t.Fatal(err)
	}
	if math.Abs(s.Weights.sum()-1.0) > 1e-9 {
		t.Fatalf("weights sum to %g, want 1.0", s.Weights.sum())
	}
	if math.Abs(s.Weights.Completeness-1.0/3) > 1e-9 {
		t.Fatalf("completeness = %g, want 1/3", s.Weights.Completeness)
	}
}

func TestNormalizeRejectsBadWeights(t *testing.T) {
	neg := DefaultSettings()
	neg.Weights.Relevance = -1
	if err := neg.Normalize(); !errors.Is(err, ErrInvalidWeights) {
		t.Fatalf("negative weight: got %v", err)
	}

	zero := DefaultSettings()
	zero.Weights = Weights{}
	if err := zero.Normalize(); !errors.Is(err, ErrInvalidWeights) {
		t.Fatalf("all-zero weights: got %v", err)
	}
}

func TestNormalizeRejectsBadThresholds(t *testing.T) {
	s := DefaultSettings()
	s.AutoReject = 90 // above auto-approve
	if err := s.Normalize(); !errors.Is(err, ErrInvalidThresholds) {
		t.Fatalf("got %v, want ErrInvalidThresholds", err)
	}

	s = DefaultSettings()
	s.AutoApprove = 150
	if err := s.Normalize(); !errors.Is(err, ErrInvalidThresholds) {
		t.Fatalf("got %v, want ErrInvalidThresholds", err)
	}
}

func TestScoreBoundsAndDeterminism(t *testing.T) {
	s := NewScorer(DefaultSettings(), nil)
	it := fullItem()

	a := s.Score(context.Background(), it, []string{"transit", "council"})
	b := s.Score(context.Background(), it, []string{"transit", "council"})
	if a != b {
		t.Fatal("score is not deterministic")
	}
	for name, v := range map[string]float64{
		"completeness": a.Completeness,
		"readability":  a.Readability,
		"relevance":    a.Relevance,
		"freshness":    a.Freshness,
		"enrichment":   a.Enrichment,
		"composite":    a.Composite,
	} {
		if v < 0 || v > 100 {
			t.Fatalf("%s = %g, out of [0,100]", name, v)
		}
	}
}

func TestRichItemOutscoresBareItem(t *testing.T) {
	s := NewScorer(DefaultSettings(), nil)
	rich := s.Score(context.Background(), fullItem(), nil)

	bare := domain.Item{Title: "x", Body: "short."}
	low := s.Score(context.Background(), bare, nil)

	if rich.Composite <= low.Composite {
		t.Fatalf("rich %g should outscore bare %g", rich.Composite, low.Composite)
	}
}

func TestKeywordRelevance(t *testing.T) {
	s := NewScorer(DefaultSettings(), nil)
	it := fullItem()

	hit := s.Score(context.Background(), it, []string{"transit", "council"})
	miss := s.Score(context.Background(), it, []string{"cryptocurrency", "blockchain"})
	if hit.Relevance <= miss.Relevance {
		t.Fatalf("matching keywords %g should beat misses %g", hit.Relevance, miss.Relevance)
	}
	if miss.Relevance != 0 {
		t.Fatalf("no keyword hits should score 0, got %g", miss.Relevance)
	}
}

func TestFreshnessDecay(t *testing.T) {
	s := NewScorer(DefaultSettings(), nil)
	now := time.Now()
	s.now = func() time.Time { return now }

	fresh := s.freshness(now.Add(-time.Minute))
	stale := s.freshness(now.Add(-14 * 24 * time.Hour))
	if fresh <= stale {
		t.Fatalf("fresh %g should beat stale %g", fresh, stale)
	}

	half := s.freshness(now.Add(-freshnessHalfLife))
	if math.Abs(half-50) > 1 {
		t.Fatalf("one half-life should score ~50, got %g", half)
	}

	if s.freshness(time.Time{}) != 50 {
		t.Fatal("unknown publish date should be neutral")
	}
}

func TestRelevanceFuncOverride(t *testing.T) {
	fn := func(context.Context, domain.Item, []string) (float64, bool) { return 88, true }
	s := NewScorer(DefaultSettings(), fn)
	got := s.Score(context.Background(), fullItem(), nil)
	if got.Relevance != 88 {
		t.Fatalf("relevance = %g, want semantic override 88", got.Relevance)
	}
}
