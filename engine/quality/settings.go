// Package quality implements the weighted composite content score that
// gates auto-approval, and the tunable settings behind it.
package quality

import (
	"errors"
	"fmt"
	"math"
)

// OptionKey is the options-store key the settings persist under.
const OptionKey = "content_quality_settings"

// Sentinel errors returned on invalid settings.
var (
	ErrInvalidWeights    = errors.New("invalid weights")
	ErrInvalidThresholds = errors.New("invalid thresholds")
)

// Weights are the per-component weights of the composite score. They are
// normalized to sum to 1.0 on save.
type Weights struct {
	Completeness float64 `json:"completeness"`
	Readability  float64 `json:"readability"`
	Relevance    float64 `json:"relevance"`
	Freshness    float64 `json:"freshness"`
	Enrichment   float64 `json:"enrichment"`
}

func (w Weights) sum() float64 {
	return w.Completeness + w.Readability + w.Relevance + w.Freshness + w.Enrichment
}

// Settings control scoring and auto-moderation routing.
type Settings struct {
	Weights Weights `json:"weights"`
	// AutoApprove is the minimum composite score for automatic approval.
	AutoApprove float64 `json:"auto_approve_threshold"`
	// AutoReject is the score below which items are rejected outright.
	AutoReject float64 `json:"auto_reject_threshold"`
	// Enabled toggles auto-routing; when false every item goes to the queue.
	Enabled bool `json:"enabled"`
}

// DefaultSettings mirrors the shipped defaults.
func DefaultSettings() Settings {
	return Settings{
		Weights: Weights{
			Completeness: 0.30,
			Readability:  0.20,
			Relevance:    0.25,
			Freshness:    0.15,
			Enrichment:   0.10,
		},
		AutoApprove: 75,
		AutoReject:  25,
		Enabled:     true,
	}
}

// Normalize validates the weights and scales them to sum to 1.0.
// Negative weights and an all-zero vector are rejected.
func (s *Settings) Normalize() error {
	w := s.Weights
	for name, v := range map[string]float64{
		"completeness": w.Completeness,
		"readability":  w.Readability,
		"relevance":    w.Relevance,
		"freshness":    w.Freshness,
		"enrichment":   w.Enrichment,
	} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s = %g", ErrInvalidWeights, name, v)
		}
	}

	total := w.sum()
	if total == 0 {
		return fmt.Errorf("%w: all weights are zero", ErrInvalidWeights)
	}

	s.Weights = Weights{
		Completeness: w.Completeness / total,
		Readability:  w.Readability / total,
		Relevance:    w.Relevance / total,
		Freshness:    w.Freshness / total,
		Enrichment:   w.Enrichment / total,
	}

	if s.AutoApprove < 0 || s.AutoApprove > 100 || s.AutoReject < 0 || s.AutoReject > 100 {
		return fmt.Errorf("%w: thresholds must be in [0,100]", ErrInvalidThresholds)
	}
	if s.AutoReject > s.AutoApprove {
		return fmt.Errorf("%w: auto_reject %g exceeds auto_approve %g", ErrInvalidThresholds, s.AutoReject, s.AutoApprove)
	}
	return nil
}
