package process

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// trackingParams are stripped during URL canonicalisation.
var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "mc_cid": true, "mc_eid": true, "ref": true,
}

// StripHTML reduces markup to readable text. Non-HTML input passes
// through unchanged apart from whitespace collapsing.
func StripHTML(s string) string {
	if !strings.ContainsRune(s, '<') {
		return CollapseWhitespace(s)
	}
	root, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return CollapseWhitespace(s)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return CollapseWhitespace(b.String())
}

// CollapseWhitespace folds runs of whitespace into single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CanonicalURL normalises an item URL so the same article fetched twice
// compares equal: lowercased host, no fragment, no tracking params.
func CanonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for k := range q {
		if trackingParams[k] || strings.HasPrefix(k, "utm_") {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}
	return u.String()
}

// WordCount counts whitespace-separated tokens.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
