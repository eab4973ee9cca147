package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/asapdigest/central-command/engine/domain"
)

// ScrapeAdapter extracts items from a listing page using the source's
// CSS selectors. When FollowLinks is set and the listing gives no body,
// it fetches each linked article page for the body text.
type ScrapeAdapter struct {
	FollowLinks bool
	MaxItems    int // 0 = scrapeMaxItems
}

const scrapeMaxItems = 50

func (a *ScrapeAdapter) Fetch(ctx context.Context, get Fetcher, src domain.Source) ([]domain.FetchedItem, error) {
	sel := src.Selectors
	if sel.Item == "" {
		return nil, fmt.Errorf("scrape: %s: item selector is empty", src.Name)
	}

	body, err := get(ctx, src.URL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("scrape: %s: %w", src.URL, err)
	}

	base, err := url.Parse(src.URL)
	if err != nil {
		return nil, fmt.Errorf("scrape: %s: %w", src.URL, domain.ErrInvalidURL)
	}

	limit := a.MaxItems
	if limit <= 0 {
		limit = scrapeMaxItems
	}

	var items []domain.FetchedItem
	doc.Find(sel.Item).EachWithBreak(func(_ int, node *goquery.Selection) bool {
		it := domain.FetchedItem{
			Title:  text(node, sel.Title),
			Body:   text(node, sel.Body),
			Author: text(node, sel.Author),
		}

		link := node
		if sel.Link != "" {
			link = node.Find(sel.Link).First()
		}
		if href, ok := link.Attr("href"); ok {
			if u, err := base.Parse(href); err == nil {
				it.URL = u.String()
			}
		}

		it.ExternalID = it.URL
		if it.ExternalID == "" {
			return true // keep scanning, skip items with no link
		}
		items = append(items, it)
		return len(items) < limit
	})

	if a.FollowLinks {
		for i := range items {
			if strings.TrimSpace(items[i].Body) != "" {
				continue
			}
			if err := ctx.Err(); err != nil {
				return items[:i], err
			}
			a.fillBody(ctx, get, sel, &items[i])
		}
	}
	return items, nil
}

// fillBody fetches the article page behind an item link. Fetch errors
// leave the item as scraped from the listing.
func (a *ScrapeAdapter) fillBody(ctx context.Context, get Fetcher, sel domain.ScrapeSelectors, it *domain.FetchedItem) {
	page, err := get(ctx, it.URL)
	if err != nil {
		return
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return
	}

	bodySel := sel.Body
	if bodySel == "" {
		bodySel = "article"
	}
	it.Body = strings.TrimSpace(doc.Find(bodySel).First().Text())
	if it.Title == "" {
		if sel.Title != "" {
			it.Title = strings.TrimSpace(doc.Find(sel.Title).First().Text())
		}
		if it.Title == "" {
			it.Title = strings.TrimSpace(doc.Find("title").First().Text())
		}
	}
	if it.Author == "" && sel.Author != "" {
		it.Author = strings.TrimSpace(doc.Find(sel.Author).First().Text())
	}
}

func text(node *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(node.Find(selector).First().Text())
}
