package scraper

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

func parseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// find returns the first match of css under sel, or ErrNotFound.
func find(sel *goquery.Selection, css string) (*goquery.Selection, error) {
	match := sel.Find(css).First()
	if match.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, css)
	}
	return match, nil
}

// text is the element's text with runs of whitespace collapsed.
func text(sel *goquery.Selection) string {
	return strings.Join(strings.Fields(sel.Text()), " ")
}

func textPtr(sel *goquery.Selection) *string {
	s := text(sel)
	return &s
}

func findText(sel *goquery.Selection, css string) (*string, error) {
	match, err := find(sel, css)
	if err != nil {
		return nil, err
	}
	return textPtr(match), nil
}

// texts returns the text of every match, in document order.
func texts(sel *goquery.Selection, css string, skipEmpty bool) []string {
	out := []string{}
	sel.Find(css).Each(func(_ int, s *goquery.Selection) {
		t := text(s)
		if skipEmpty && t == "" {
			return
		}
		out = append(out, t)
	})
	return out
}

// parseCount reads counters like "1,234". Negative values are rejected.
func parseCount(raw string) (int, error) {
	cleaned := strings.TrimSpace(strings.ReplaceAll(raw, ",", ""))
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", raw, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("parse count %q: negative", raw)
	}
	return n, nil
}

// cleanBid strips the currency symbol and thousands separators: "$12,000" -> "12000".
func cleanBid(raw string) string {
	return strings.TrimSpace(strings.NewReplacer("$", "", ",", "").Replace(raw))
}

// cleanHighestBid strips only the currency symbol, keeping separators as rendered.
func cleanHighestBid(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, "$", ""))
}

// normalizeLabel turns "Title Status" into "title_status".
func normalizeLabel(raw string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), " ", "_")
}

const videoHost = "ytimg.com"

// videoIDs pulls YouTube video IDs out of preview thumbnail URLs such as
// https://i.ytimg.com/vi/<id>/hqdefault.jpg. Other hosts and malformed
// entries are skipped.
func videoIDs(srcs []string) []string {
	ids := []string{}
	for _, src := range srcs {
		id, ok := videoID(src)
		if !ok {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func videoID(src string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(src))
	if err != nil {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host != videoHost && !strings.HasSuffix(host, "."+videoHost) {
		return "", false
	}
	_, rest, found := strings.Cut(u.Path, "/vi/")
	if !found {
		return "", false
	}
	id, _, _ := strings.Cut(rest, "/")
	if id == "" {
		return "", false
	}
	return id, true
}

// absoluteURL resolves href against base the way a browser's a.href does.
func absoluteURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
