package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/PuerkitoBio/goquery"

	"cnb_scraper/config"
	"cnb_scraper/models"
)

// Extraction step names, as they appear in AuctionRecord.Provenance.
const (
	SectionPage             = "page"
	SectionMain             = "main"
	SectionTitle            = "title"
	SectionSubtitle         = "subtitle"
	SectionReserve          = "reserve_status"
	SectionStatus           = "auction_status"
	SectionStats            = "stats"
	SectionQuickFacts       = "quick_facts"
	SectionEditorialTake    = "editorial_take"
	SectionHighlights       = "highlights"
	SectionKnownFlaws       = "known_flaws"
	SectionServiceHistory   = "service_history"
	SectionIncludedItems    = "included_items"
	SectionOwnershipHistory = "ownership_history"
	SectionSellerNotes      = "seller_notes"
	SectionVideos           = "videos"
	SectionBids             = "bids"
)

const mainContentSelector = ".auction-title"

// errStopExtraction ends extraction for the current URL after the failing
// step has been recorded.
var errStopExtraction = errors.New("extraction stopped")

// Extractor reads one auction detail page into an AuctionRecord.
type Extractor struct {
	site *config.SiteConfig
}

func NewExtractor(site *config.SiteConfig) *Extractor {
	return &Extractor{site: site}
}

// stepInput is what every extraction step sees. doc is the DOM snapshot taken
// once the main content was present; steps that wait on the live page take
// their own snapshot.
type stepInput struct {
	ctx     context.Context
	page    Page
	doc     *goquery.Document
	timeout time.Duration
}

type step struct {
	name string
	run  func(in *stepInput, rec *models.AuctionRecord) error
}

func (e *Extractor) steps() []step {
	return []step{
		{SectionTitle, extractTitle},
		{SectionSubtitle, extractSubtitle},
		{SectionReserve, extractReserve},
		{SectionStatus, extractStatus},
		{SectionStats, extractStats},
		{SectionQuickFacts, extractQuickFacts},
		{SectionEditorialTake, extractEditorialTake},
		{SectionHighlights, extractHighlights},
		{SectionKnownFlaws, extractKnownFlaws},
		{SectionServiceHistory, extractServiceHistory},
		{SectionIncludedItems, extractIncludedItems},
		{SectionOwnershipHistory, extractOwnershipHistory},
		{SectionSellerNotes, extractSellerNotes},
		{SectionVideos, extractVideos},
		{SectionBids, e.extractBids},
	}
}

// Extract loads url in page and pulls every field it can find. It never
// fails: missing or broken sections are left at their zero value and noted
// in the record's provenance.
func (e *Extractor) Extract(ctx context.Context, page Page, url string, timeout time.Duration) (rec models.AuctionRecord) {
	rec = models.NewAuctionRecord(url)

	defer func() {
		if r := recover(); r != nil {
			log.Printf("Error scraping %s: %v", url, r)
			rec.Provenance = append(rec.Provenance, models.SectionResult{
				Section: SectionPage,
				Status:  models.SectionFailed,
				Reason:  fmt.Sprint(r),
			})
		}
	}()

	if err := page.Open(ctx, url); err != nil {
		log.Printf("Error loading %s: %v", url, err)
		record(&rec, SectionPage, err)
		return rec
	}
	page.DismissOverlay(ctx, e.site.OverlayTimeout())

	if err := page.WaitFor(ctx, mainContentSelector, timeout); err != nil {
		log.Printf("Timeout while scraping %s: %v", url, err)
		record(&rec, SectionMain, err)
		return rec
	}

	doc, err := snapshot(ctx, page)
	if err != nil {
		log.Printf("Error reading %s: %v", url, err)
		record(&rec, SectionMain, err)
		return rec
	}
	record(&rec, SectionMain, nil)

	in := &stepInput{ctx: ctx, page: page, doc: doc, timeout: timeout}
	for _, s := range e.steps() {
		if ctx.Err() != nil {
			log.Printf("Stopping %s: %v", url, ctx.Err())
			return rec
		}
		if err := runStep(&rec, s, in); errors.Is(err, errStopExtraction) {
			return rec
		}
	}

	log.Printf("Scraped %s (%d failed sections)", url, rec.FailedSections())
	return rec
}

func runStep(rec *models.AuctionRecord, s step, in *stepInput) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		record(rec, s.name, err)
		switch {
		case err == nil:
		case errors.Is(err, ErrNotFound):
			log.Printf("%s not found: %v", s.name, err)
		default:
			log.Printf("Error scraping %s: %v", s.name, err)
		}
	}()
	return s.run(in, rec)
}

func record(rec *models.AuctionRecord, section string, err error) {
	res := models.SectionResult{Section: section, Status: models.SectionOK}
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		res.Status = models.SectionMissing
		res.Reason = err.Error()
	default:
		res.Status = models.SectionFailed
		res.Reason = err.Error()
	}
	rec.Provenance = append(rec.Provenance, res)
}

func snapshot(ctx context.Context, page Page) (*goquery.Document, error) {
	html, err := page.Content(ctx)
	if err != nil {
		return nil, err
	}
	return parseDocument(html)
}
