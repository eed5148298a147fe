package scraper

import (
	"context"
	"log"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"cnb_scraper/config"
)

const (
	listingItemSelector = ".auction-item"
	listingLinkSelector = ".auction-item .auction-title a[href]"
	nextPageSelector    = "li.arrow.next button"
)

// IndexWalker pages through the past-auctions index collecting detail URLs.
type IndexWalker struct {
	site *config.SiteConfig
}

func NewIndexWalker(site *config.SiteConfig) *IndexWalker {
	return &IndexWalker{site: site}
}

// indexState is the walker's progress through the index.
type indexState struct {
	page int
	urls []string
	done bool
}

// ExtractListingURLs returns every listing URL found, in page order.
// maxPages <= 0 walks until the next control disappears. An empty or
// partial result is not an error.
func (w *IndexWalker) ExtractListingURLs(ctx context.Context, page Page, maxPages int) []string {
	st := &indexState{page: 1, urls: []string{}}

	if err := page.Open(ctx, w.site.IndexURL); err != nil {
		log.Printf("Error loading index %s: %v", w.site.IndexURL, err)
		return st.urls
	}
	page.DismissOverlay(ctx, w.site.OverlayTimeout())

	for !st.done {
		if ctx.Err() != nil {
			log.Printf("Index walk stopped on page %d: %v", st.page, ctx.Err())
			break
		}
		w.step(ctx, page, maxPages, st)
	}

	log.Printf("Collected %d auction URLs from %d pages", len(st.urls), st.page)
	return st.urls
}

func (w *IndexWalker) step(ctx context.Context, page Page, maxPages int, st *indexState) {
	if !w.waitForListings(ctx, page, st.page) {
		st.done = true
		return
	}

	doc, err := snapshot(ctx, page)
	if err != nil {
		log.Printf("Error reading index page %d: %v", st.page, err)
		st.done = true
		return
	}

	found := listingURLs(doc, page.URL())
	st.urls = append(st.urls, found...)
	log.Printf("Page %d: found %d auctions (%d total)", st.page, len(found), len(st.urls))

	if maxPages > 0 && st.page >= maxPages {
		st.done = true
		return
	}

	if err := page.WaitClickable(ctx, nextPageSelector, w.site.PageTimeout()); err != nil {
		log.Printf("No next page after page %d: %v", st.page, err)
		st.done = true
		return
	}
	first, _ := doc.Find(listingLinkSelector).First().Attr("href")
	if err := page.Click(ctx, nextPageSelector); err != nil {
		log.Printf("Error clicking next page after page %d: %v", st.page, err)
		st.done = true
		return
	}
	st.page++
	awaitRender(ctx, page, w.site.PageSettle(), func(d time.Duration) error {
		return page.WaitChanged(ctx, listingLinkSelector, "href", first, d)
	})
}

// waitForListings waits for at least one listing, repeating the wait
// EmptyPageRetries times before calling the page empty.
func (w *IndexWalker) waitForListings(ctx context.Context, page Page, n int) bool {
	retries := max(w.site.EmptyPageRetries, 0)
	for attempt := 0; ; attempt++ {
		err := page.WaitFor(ctx, listingItemSelector, w.site.PageTimeout())
		if err == nil {
			return true
		}
		if attempt >= retries || ctx.Err() != nil {
			log.Printf("No auctions on page %d, stopping: %v", n, err)
			return false
		}
		log.Printf("No auctions on page %d yet, waiting again", n)
	}
}

func listingURLs(doc *goquery.Document, pageURL string) []string {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = nil
	}
	urls := []string{}
	doc.Find(listingLinkSelector).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		urls = append(urls, absoluteURL(base, href))
	})
	return urls
}
