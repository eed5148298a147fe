package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"cnb_scraper/models"
)

var multiSlashRegex = regexp.MustCompile(`/{2,}`)

// Fingerprint hashes the scraped content of a record. Provenance is left
// out so a re-scrape of an unchanged page hashes the same.
func Fingerprint(rec *models.AuctionRecord) string {
	content := *rec
	content.URL = NormalizeURL(rec.URL)
	content.Provenance = nil
	data, err := json.Marshal(content)
	if err != nil {
		data = []byte(content.URL)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

// NormalizeURL lower-cases the host and drops the query, fragment and any
// trailing slash so the same auction always maps to one key.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimRight(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.RawQuery = ""
	u.Fragment = ""
	u.Path = strings.TrimRight(multiSlashRegex.ReplaceAllString(u.Path, "/"), "/")
	u.RawPath = ""
	return u.String()
}

// AuctionID returns the site's auction id, the path segment after
// /auctions/. It falls back to the normalized URL.
func AuctionID(raw string) string {
	normalized := NormalizeURL(raw)
	u, err := url.Parse(normalized)
	if err != nil {
		return normalized
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "auctions" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1]
		}
	}
	return normalized
}
