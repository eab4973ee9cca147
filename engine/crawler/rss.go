package crawler

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/asapdigest/central-command/engine/domain"
)

// RSSAdapter parses RSS 2.0 and Atom feeds.
type RSSAdapter struct{}

// rssFeed covers the RSS 2.0 shape.
type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title      string   `xml:"title"`
	Link       string   `xml:"link"`
	GUID       string   `xml:"guid"`
	Author     string   `xml:"author"`
	Creator    string   `xml:"creator"` // dc:creator
	PubDate    string   `xml:"pubDate"`
	Categories []string `xml:"category"`
	Encoded    string   `xml:"encoded"` // content:encoded
	Desc       string   `xml:"description"`
	Enclosure  struct {
		URL  string `xml:"url,attr"`
		Type string `xml:"type,attr"`
	} `xml:"enclosure"`
}

// atomFeed covers Atom 1.0.
type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID    string `xml:"id"`
	Title string `xml:"title"`
	Links []struct {
		Rel  string `xml:"rel,attr"`
		Href string `xml:"href,attr"`
	} `xml:"link"`
	Author struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Published  string `xml:"published"`
	Updated    string `xml:"updated"`
	Content    string `xml:"content"`
	Summary    string `xml:"summary"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
}

// pubDateLayouts in rough order of how often feeds use them.
var pubDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (a *RSSAdapter) Fetch(ctx context.Context, get Fetcher, src domain.Source) ([]domain.FetchedItem, error) {
	body, err := get(ctx, src.URL)
	if err != nil {
		return nil, err
	}

	var rss rssFeed
	if err := xml.Unmarshal(body, &rss); err == nil && len(rss.Channel.Items) > 0 {
		return a.fromRSS(rss), nil
	}

	var atom atomFeed
	if err := xml.Unmarshal(body, &atom); err == nil && len(atom.Entries) > 0 {
		return a.fromAtom(atom), nil
	}

	return nil, fmt.Errorf("rss: %s: no items in rss or atom shape", src.URL)
}

func (a *RSSAdapter) fromRSS(feed rssFeed) []domain.FetchedItem {
	items := make([]domain.FetchedItem, 0, len(feed.Channel.Items))
	for _, it := range feed.Channel.Items {
		extID := it.GUID
		if extID == "" {
			extID = it.Link
		}
		if extID == "" {
			continue
		}

		body := it.Encoded
		if strings.TrimSpace(body) == "" {
			body = it.Desc
		}
		author := it.Creator
		if author == "" {
			author = it.Author
		}

		var image string
		if strings.HasPrefix(it.Enclosure.Type, "image/") {
			image = it.Enclosure.URL
		}

		items = append(items, domain.FetchedItem{
			ExternalID:  extID,
			URL:         it.Link,
			Title:       strings.TrimSpace(it.Title),
			Body:        body,
			Author:      strings.TrimSpace(author),
			ImageURL:    image,
			Tags:        it.Categories,
			PublishedAt: parsePubDate(it.PubDate),
		})
	}
	return items
}

func (a *RSSAdapter) fromAtom(feed atomFeed) []domain.FetchedItem {
	items := make([]domain.FetchedItem, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		link := ""
		for _, l := range e.Links {
			if l.Rel == "" || l.Rel == "alternate" {
				link = l.Href
				break
			}
		}

		extID := e.ID
		if extID == "" {
			extID = link
		}
		if extID == "" {
			continue
		}

		body := e.Content
		if strings.TrimSpace(body) == "" {
			body = e.Summary
		}
		published := e.Published
		if published == "" {
			published = e.Updated
		}

		var tags []string
		for _, c := range e.Categories {
			if c.Term != "" {
				tags = append(tags, c.Term)
			}
		}

		items = append(items, domain.FetchedItem{
			ExternalID:  extID,
			URL:         link,
			Title:       strings.TrimSpace(e.Title),
			Body:        body,
			Author:      strings.TrimSpace(e.Author.Name),
			Tags:        tags,
			PublishedAt: parsePubDate(published),
		})
	}
	return items
}

func parsePubDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range pubDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
