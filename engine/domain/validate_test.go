package domain

import (
	"errors"
	"testing"
	"time"
)

func validSource() Source {
	return Source{
		Name:          "Example Feed",
		Type:          SourceRSS,
		URL:           "https://example.com/feed.xml",
		Active:        true,
		FetchInterval: 15 * time.Minute,
	}
}

func TestValidateSource(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Source)
		wantErr error
	}{
		{"valid", func(*Source) {}, nil},
		{"empty name", func(s *Source) { s.Name = " " }, ErrEmptyTitle},
		{"bad type", func(s *Source) { s.Type = "ftp" }, ErrInvalidSourceType},
		{"bad url", func(s *Source) { s.URL = "not a url" }, ErrInvalidURL},
		{"non-http scheme", func(s *Source) { s.URL = "file:///etc/passwd" }, ErrInvalidURL},
		{"interval too short", func(s *Source) { s.FetchInterval = time.Second }, ErrIntervalTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSource()
			tt.mutate(&s)
			err := ValidateSource(s)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateFetchedItem(t *testing.T) {
	it := FetchedItem{
		SourceID:   1,
		ExternalID: "abc",
		Title:      "A headline",
		Body:       "Some body text.",
	}
	if err := ValidateFetchedItem(it); err != nil {
		t.Fatalf("valid item rejected: %v", err)
	}

	it.Body = "  "
	if err := ValidateFetchedItem(it); !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("got %v, want ErrEmptyBody", err)
	}
}

func TestValidationErrorUnwraps(t *testing.T) {
	err := NewValidationError("url", "junk", ErrInvalidURL)
	if !errors.Is(err, ErrInvalidURL) {
		t.Fatal("ValidationError should unwrap to its sentinel")
	}
}

func TestValidateDecision(t *testing.T) {
	if err := ValidateDecision(DecisionApprove); err != nil {
		t.Fatal(err)
	}
	if err := ValidateDecision("publish"); !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("got %v, want ErrInvalidDecision", err)
	}
}
