package quality

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/asapdigest/central-command/engine/domain"
)

// freshnessHalfLife is the content age at which freshness halves.
const freshnessHalfLife = 48 * time.Hour

// bodyTargetWords is where the completeness length component saturates.
const bodyTargetWords = 300

// RelevanceFunc optionally replaces keyword-overlap relevance with a
// semantic measure (embedding cosine similarity). It returns a score in
// [0,100].
type RelevanceFunc func(ctx context.Context, it domain.Item, keywords []string) (float64, bool)

// Scorer computes quality breakdowns for items.
type Scorer struct {
	settings  Settings
	relevance RelevanceFunc
	now       func() time.Time
}

// NewScorer creates a Scorer. relevance may be nil.
func NewScorer(settings Settings, relevance RelevanceFunc) *Scorer {
	return &Scorer{settings: settings, relevance: relevance, now: time.Now}
}

// Settings returns the scorer's active settings.
func (s *Scorer) Settings() Settings { return s.settings }

// Score fills in the quality breakdown for an item against its source
// keywords. Deterministic given item, settings, and clock.
func (s *Scorer) Score(ctx context.Context, it domain.Item, keywords []string) domain.QualityBreakdown {
	b := domain.QualityBreakdown{
		Completeness: completeness(it),
		Readability:  readability(it.Body),
		Freshness:    s.freshness(it.PublishedAt),
		Enrichment:   enrichment(it),
	}

	if s.relevance != nil {
		if v, ok := s.relevance(ctx, it, keywords); ok {
			b.Relevance = clamp(v)
		} else {
			b.Relevance = keywordRelevance(it, keywords)
		}
	} else {
		b.Relevance = keywordRelevance(it, keywords)
	}

	w := s.settings.Weights
	b.Composite = clamp(
		w.Completeness*b.Completeness +
			w.Readability*b.Readability +
			w.Relevance*b.Relevance +
			w.Freshness*b.Freshness +
			w.Enrichment*b.Enrichment)
	return b
}

// completeness rewards the presence of core fields and sufficient body text.
func completeness(it domain.Item) float64 {
	var score float64
	if strings.TrimSpace(it.Title) != "" {
		score += 20
	}
	if it.Author != "" {
		score += 15
	}
	if it.URL != "" {
		score += 15
	}
	if !it.PublishedAt.IsZero() {
		score += 10
	}
	words := it.WordCount
	if words == 0 {
		words = len(strings.Fields(it.Body))
	}
	if words > bodyTargetWords {
		words = bodyTargetWords
	}
	score += 40 * float64(words) / bodyTargetWords
	return clamp(score)
}

// readability is the Flesch reading-ease score clamped to [0,100].
func readability(body string) float64 {
	words := strings.Fields(body)
	if len(words) == 0 {
		return 0
	}
	sentences := countSentences(body)
	if sentences == 0 {
		sentences = 1
	}
	syllables := 0
	for _, w := range words {
		syllables += countSyllables(w)
	}

	wps := float64(len(words)) / float64(sentences)
	spw := float64(syllables) / float64(len(words))
	return clamp(206.835 - 1.015*wps - 84.6*spw)
}

// keywordRelevance is the fraction of source keywords found in the item
// text. Sources without keywords score neutral.
func keywordRelevance(it domain.Item, keywords []string) float64 {
	if len(keywords) == 0 {
		return 50
	}
	haystack := strings.ToLower(it.Title + " " + it.Body)
	hits := 0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(haystack, kw) {
			hits++
		}
	}
	return clamp(100 * float64(hits) / float64(len(keywords)))
}

// freshness decays exponentially with content age; unknown dates are neutral.
func (s *Scorer) freshness(published time.Time) float64 {
	if published.IsZero() {
		return 50
	}
	age := s.now().Sub(published)
	if age < 0 {
		age = 0
	}
	halfLives := age.Hours() / freshnessHalfLife.Hours()
	return clamp(100 * math.Pow(2, -halfLives))
}

// enrichment measures metadata richness.
func enrichment(it domain.Item) float64 {
	var score float64
	if it.ImageURL != "" {
		score += 25
	}
	if it.Author != "" {
		score += 25
	}
	if it.URL != "" {
		score += 25
	}
	tags := len(it.Tags)
	if tags > 3 {
		tags = 3
	}
	score += 25 * float64(tags) / 3
	return clamp(score)
}

func countSentences(text string) int {
	n := 0
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			n++
		}
	}
	return n
}

// countSyllables approximates syllables as vowel groups, minimum one.
func countSyllables(word string) int {
	word = strings.ToLower(word)
	n := 0
	prevVowel := false
	for _, r := range word {
		v := strings.ContainsRune("aeiouy", r)
		if v && !prevVowel {
			n++
		}
		prevVowel = v
	}
	if strings.HasSuffix(word, "e") && n > 1 {
		n--
	}
	if n == 0 {
		n = 1
	}
	return n
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
