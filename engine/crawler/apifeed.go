package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/asapdigest/central-command/engine/domain"
)

// APIAdapter reads a JSON feed and maps fields per the source's field
// map. Paths are dot-separated; empty mappings use conventional names.
type APIAdapter struct{}

func (a *APIAdapter) Fetch(ctx context.Context, get Fetcher, src domain.Source) ([]domain.FetchedItem, error) {
	body, err := get(ctx, src.URL)
	if err != nil {
		return nil, err
	}

	fields := withDefaults(src.Fields)

	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("api: %s: %w", src.URL, err)
	}

	rows, err := itemArray(root, fields.Items)
	if err != nil {
		return nil, fmt.Errorf("api: %s: %w", src.URL, err)
	}

	items := make([]domain.FetchedItem, 0, len(rows))
	for _, row := range rows {
		obj, ok := row.(map[string]any)
		if !ok {
			continue
		}
		it := domain.FetchedItem{
			ExternalID:  asString(lookup(obj, fields.ID)),
			Title:       asString(lookup(obj, fields.Title)),
			Body:        asString(lookup(obj, fields.Body)),
			URL:         asString(lookup(obj, fields.URL)),
			Author:      asString(lookup(obj, fields.Author)),
			PublishedAt: parsePubDate(asString(lookup(obj, fields.Published))),
		}
		if it.ExternalID == "" {
			it.ExternalID = it.URL
		}
		if it.ExternalID == "" {
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func withDefaults(m domain.APIFieldMap) domain.APIFieldMap {
	def := func(s *string, name string) {
		if *s == "" {
			*s = name
		}
	}
	def(&m.ID, "id")
	def(&m.Title, "title")
	def(&m.Body, "body")
	def(&m.URL, "url")
	def(&m.Author, "author")
	def(&m.Published, "published")
	return m
}

// itemArray walks to the item list. An empty path means the document
// itself is the array.
func itemArray(root any, path string) ([]any, error) {
	node := root
	if path != "" {
		obj, ok := root.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("items path %q: document is not an object", path)
		}
		node = lookup(obj, path)
	}
	arr, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("items path %q: not an array", path)
	}
	return arr, nil
}

// lookup resolves a dot-separated path inside nested objects.
func lookup(obj map[string]any, path string) any {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	var cur any = obj
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case bool:
		return fmt.Sprintf("%t", t)
	default:
		return fmt.Sprint(t)
	}
}
