package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// MinFetchInterval keeps the crawler from hammering an origin.
const MinFetchInterval = time.Minute

// ValidateSource checks a source before it is saved or crawled.
func ValidateSource(s Source) error {
	if strings.TrimSpace(s.Name) == "" {
		return NewValidationError("name", s.Name, ErrEmptyTitle)
	}
	if !ValidSourceTypes[s.Type] {
		return NewValidationError("type", string(s.Type), ErrInvalidSourceType)
	}
	u, err := url.Parse(s.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return NewValidationError("url", s.URL, ErrInvalidURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewValidationError("url", s.URL, ErrInvalidURL)
	}
	if s.FetchInterval != 0 && s.FetchInterval < MinFetchInterval {
		return NewValidationError("fetch_interval", s.FetchInterval.String(), ErrIntervalTooShort)
	}
	if s.MinQuality < 0 || s.MinQuality > 100 {
		return NewValidationError("min_quality", fmt.Sprintf("%g", s.MinQuality), ErrInvalidStatus)
	}
	return nil
}

// ValidateFetchedItem gates items entering the processing pipeline.
func ValidateFetchedItem(it FetchedItem) error {
	if it.SourceID <= 0 {
		return NewValidationError("source_id", fmt.Sprintf("%d", it.SourceID), ErrNotFound)
	}
	if strings.TrimSpace(it.ExternalID) == "" {
		return NewValidationError("external_id", it.ExternalID, ErrEmptyExternalID)
	}
	if strings.TrimSpace(it.Title) == "" {
		return NewValidationError("title", it.Title, ErrEmptyTitle)
	}
	if strings.TrimSpace(it.Body) == "" {
		return NewValidationError("body", it.Body, ErrEmptyBody)
	}
	return nil
}

// ValidateDecision checks a moderation action name.
func ValidateDecision(d Decision) error {
	switch d {
	case DecisionApprove, DecisionReject, DecisionFlag:
		return nil
	}
	return NewValidationError("decision", string(d), ErrInvalidDecision)
}
