package scraper

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"

	"cnb_scraper/config"
	"cnb_scraper/models"
)

const (
	soldURL      = "https://carsandbids.com/auctions/abc123/2004-bmw-m3-coupe"
	cancelledURL = "https://carsandbids.com/auctions/xyz789/1991-mazda-mx-5-miata"
)

func testSite(t *testing.T) *config.SiteConfig {
	t.Helper()
	site, err := config.LoadSite("testdata/does-not-exist.yaml")
	if err != nil {
		t.Fatalf("load site: %v", err)
	}
	site.RateLimitMS = -1
	return site
}

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

func sectionStatus(t *testing.T, rec *models.AuctionRecord, name string) models.SectionStatus {
	t.Helper()
	res, ok := rec.Section(name)
	if !ok {
		t.Fatalf("no provenance entry for %s", name)
	}
	return res.Status
}

func extractSold(t *testing.T) (models.AuctionRecord, *fakePage) {
	t.Helper()
	page := newFakePage()
	page.add(soldURL, string(loadFixture(t, "detail_sold.html")), string(loadFixture(t, "bid_history.html")))

	rec := NewExtractor(testSite(t)).Extract(context.Background(), page, soldURL, 0)
	return rec, page
}

func TestExtract_SoldAuction(t *testing.T) {
	rec, page := extractSold(t)

	if rec.URL != soldURL {
		t.Fatalf("expected url %s, got %s", soldURL, rec.URL)
	}
	if deref(rec.Title) != "2004 BMW M3 Coupe" {
		t.Fatalf("unexpected title %s", deref(rec.Title))
	}
	if deref(rec.Subtitle) != "~62,000 Miles, 6-Speed Manual, Imola Red" {
		t.Fatalf("unexpected subtitle %s", deref(rec.Subtitle))
	}
	if page.overlays != 1 {
		t.Fatalf("expected overlay dismissal once, got %d", page.overlays)
	}

	st := rec.Stats
	if st.ReserveStatus == nil || *st.ReserveStatus != models.ReserveStatusReserve {
		t.Fatalf("expected Reserve, got %v", st.ReserveStatus)
	}
	if st.AuctionStatus == nil || *st.AuctionStatus != models.AuctionStatusSold {
		t.Fatalf("expected Sold, got %v", st.AuctionStatus)
	}
	if deref(st.HighestBid) != "31,500" {
		t.Fatalf("expected highest bid 31,500, got %s", deref(st.HighestBid))
	}
	if deref(st.BuyerUsername) != "m3fan" {
		t.Fatalf("unexpected buyer %s", deref(st.BuyerUsername))
	}
	if deref(st.SellerUsername) != "bavarian_bob" {
		t.Fatalf("unexpected seller %s", deref(st.SellerUsername))
	}
	if st.BidCount == nil || *st.BidCount != 42 {
		t.Fatalf("expected 42 bids, got %v", st.BidCount)
	}
	if st.ViewCount == nil || *st.ViewCount != 12345 {
		t.Fatalf("expected 12345 views, got %v", st.ViewCount)
	}
	if st.WatcherCount == nil || *st.WatcherCount != 1023 {
		t.Fatalf("expected 1023 watchers, got %v", st.WatcherCount)
	}
	if deref(st.EndDate) != "March 14, 2024 10:30am" {
		t.Fatalf("unexpected end date %s", deref(st.EndDate))
	}

	wantBids := []string{"31500", "31000", "9500"}
	if !reflect.DeepEqual(st.Bids, wantBids) {
		t.Fatalf("expected bids %v, got %v", wantBids, st.Bids)
	}
	if len(page.clicks) != 1 || page.clicks[0] != bidFilterSelector {
		t.Fatalf("expected one bid filter click, got %v", page.clicks)
	}
	if len(page.settles) != 0 {
		t.Fatalf("bid history rendered in time, expected no pause, got %v", page.settles)
	}

	qf := rec.QuickFacts
	facts := map[string]*string{
		"BMW":                   qf.Make,
		"M3":                    qf.Model,
		"62,000":                qf.Mileage,
		"WBSBL93414PN57123":     qf.VIN,
		"Clean (CA)":            qf.TitleStatus,
		"Los Angeles, CA 90012": qf.Location,
		"bavarian_bob":          qf.Seller,
		"3.2L I6":               qf.Engine,
		"Rear-wheel drive":      qf.Drivetrain,
		"Manual (6-Speed)":      qf.Transmission,
		"Coupe":                 qf.BodyStyle,
		"Imola Red":             qf.ExteriorColor,
		"Black":                 qf.InteriorColor,
		"Private Party":         qf.SellerType,
	}
	for want, got := range facts {
		if deref(got) != want {
			t.Fatalf("expected quick fact %q, got %q", want, deref(got))
		}
	}

	if deref(rec.EditorialTake) != "The E46 M3 is a modern classic." {
		t.Fatalf("unexpected editorial take %s", deref(rec.EditorialTake))
	}
	if deref(rec.Highlights.Description) != "This M3 is finished in Imola Red." {
		t.Fatalf("unexpected highlights description %s", deref(rec.Highlights.Description))
	}
	if !reflect.DeepEqual(rec.Highlights.Items, []string{"Recent rod bearing service", "Harman Kardon audio"}) {
		t.Fatalf("unexpected highlights %v", rec.Highlights.Items)
	}
	if !reflect.DeepEqual(rec.KnownFlaws, []string{"Chip on front bumper", "Worn driver bolster"}) {
		t.Fatalf("unexpected known flaws %v", rec.KnownFlaws)
	}
	if deref(rec.ServiceHistory.Description) != "Service history includes:" {
		t.Fatalf("unexpected service description %s", deref(rec.ServiceHistory.Description))
	}
	if len(rec.ServiceHistory.Items) != 2 {
		t.Fatalf("expected 2 service items, got %v", rec.ServiceHistory.Items)
	}
	if !reflect.DeepEqual(rec.IncludedItems, []string{"Two keys", "Owner's manual"}) {
		t.Fatalf("unexpected included items %v", rec.IncludedItems)
	}
	if deref(rec.OwnershipHistory) != "Purchased by the seller in 2015." {
		t.Fatalf("unexpected ownership history %s", deref(rec.OwnershipHistory))
	}
	if !reflect.DeepEqual(rec.SellerNotes, []string{"Non-smoker"}) {
		t.Fatalf("unexpected seller notes %v", rec.SellerNotes)
	}
	if !reflect.DeepEqual(rec.VideoIDs, []string{"abc123"}) {
		t.Fatalf("expected video ids [abc123], got %v", rec.VideoIDs)
	}

	if n := rec.FailedSections(); n != 0 {
		t.Fatalf("expected no failed sections, got %d: %+v", n, rec.Provenance)
	}
	for _, res := range rec.Provenance {
		if res.Status != models.SectionOK {
			t.Fatalf("expected every section ok, got %+v", res)
		}
	}
}

func TestExtract_BidsReadAfterSlowRender(t *testing.T) {
	page := newFakePage()
	page.slowRender = true
	page.add(soldURL, string(loadFixture(t, "detail_sold.html")), string(loadFixture(t, "bid_history.html")))

	rec := NewExtractor(testSite(t)).Extract(context.Background(), page, soldURL, 0)

	if !reflect.DeepEqual(rec.Stats.Bids, []string{"31500", "31000", "9500"}) {
		t.Fatalf("expected bids from the rendered history, got %v", rec.Stats.Bids)
	}
	if len(page.settles) != 1 || page.settles[0] != testSite(t).BidSettle() {
		t.Fatalf("expected one bid settle pause, got %v", page.settles)
	}
	if sectionStatus(t, &rec, SectionBids) != models.SectionOK {
		t.Fatalf("expected bids ok")
	}
}

func TestExtract_EmptyBidHistory(t *testing.T) {
	empty := replaceOnce(t, string(loadFixture(t, "detail_sold.html")),
		`<li class="comment"><div class="message">Beautiful car!</div></li>`, "")
	page := newFakePage()
	page.add(soldURL, string(loadFixture(t, "detail_sold.html")), empty)

	rec := NewExtractor(testSite(t)).Extract(context.Background(), page, soldURL, 0)

	if rec.Stats.Bids == nil || len(rec.Stats.Bids) != 0 {
		t.Fatalf("expected empty bids, got %v", rec.Stats.Bids)
	}
	if len(page.settles) != 1 {
		t.Fatalf("expected a pause when no bids appear, got %v", page.settles)
	}
	if sectionStatus(t, &rec, SectionBids) != models.SectionOK {
		t.Fatalf("expected bids ok")
	}
}

func TestExtract_ServiceHistoryItemsWithoutDescription(t *testing.T) {
	html := string(loadFixture(t, "detail_sold.html"))
	html = replaceOnce(t, html, "<p>Service history includes:</p>", "")
	page := newFakePage()
	page.add(soldURL, html, string(loadFixture(t, "bid_history.html")))

	rec := NewExtractor(testSite(t)).Extract(context.Background(), page, soldURL, 0)

	if rec.ServiceHistory.Description != nil {
		t.Fatalf("expected no description, got %s", *rec.ServiceHistory.Description)
	}
	if len(rec.ServiceHistory.Items) != 2 {
		t.Fatalf("expected 2 service items, got %v", rec.ServiceHistory.Items)
	}
	if got := sectionStatus(t, &rec, SectionServiceHistory); got != models.SectionOK {
		t.Fatalf("expected service history ok, got %s", got)
	}
}

func TestExtract_CancelledAuction(t *testing.T) {
	page := newFakePage()
	page.add(cancelledURL, string(loadFixture(t, "detail_cancelled.html")))

	rec := NewExtractor(testSite(t)).Extract(context.Background(), page, cancelledURL, 0)

	if deref(rec.Title) != "1991 Mazda MX-5 Miata" {
		t.Fatalf("unexpected title %s", deref(rec.Title))
	}
	if rec.Stats.AuctionStatus == nil || *rec.Stats.AuctionStatus != models.AuctionStatusCanceled {
		t.Fatalf("expected Canceled, got %v", rec.Stats.AuctionStatus)
	}
	if rec.Stats.HighestBid != nil {
		t.Fatalf("cancelled auction should have no highest bid, got %s", *rec.Stats.HighestBid)
	}
	if rec.Stats.ReserveStatus != nil {
		t.Fatalf("expected no reserve status, got %v", *rec.Stats.ReserveStatus)
	}

	// Unparsable and negative counters are left unset.
	if rec.Stats.BidCount != nil || rec.Stats.ViewCount != nil {
		t.Fatalf("expected nil bid and view counts, got %v %v", rec.Stats.BidCount, rec.Stats.ViewCount)
	}
	if rec.Stats.WatcherCount == nil || *rec.Stats.WatcherCount != 88 {
		t.Fatalf("expected 88 watchers, got %v", rec.Stats.WatcherCount)
	}
	if deref(rec.Stats.SellerUsername) != "miata_mike" {
		t.Fatalf("unexpected seller %s", deref(rec.Stats.SellerUsername))
	}

	if deref(rec.QuickFacts.Make) != "Mazda" || deref(rec.QuickFacts.Mileage) != "120,000" {
		t.Fatalf("unexpected quick facts %+v", rec.QuickFacts)
	}
	if rec.QuickFacts.Engine != nil {
		t.Fatalf("expected no engine, got %s", *rec.QuickFacts.Engine)
	}
	if !reflect.DeepEqual(rec.VideoIDs, []string{"zzz999"}) {
		t.Fatalf("unexpected video ids %v", rec.VideoIDs)
	}
	if rec.Stats.Bids == nil || len(rec.Stats.Bids) != 0 {
		t.Fatalf("expected empty bids, got %v", rec.Stats.Bids)
	}
	if rec.KnownFlaws == nil || len(rec.KnownFlaws) != 0 {
		t.Fatalf("expected empty known flaws, got %v", rec.KnownFlaws)
	}

	want := map[string]models.SectionStatus{
		SectionMain:             models.SectionOK,
		SectionTitle:            models.SectionOK,
		SectionSubtitle:         models.SectionMissing,
		SectionReserve:          models.SectionMissing,
		SectionStatus:           models.SectionOK,
		SectionStats:            models.SectionFailed,
		SectionQuickFacts:       models.SectionMissing,
		SectionEditorialTake:    models.SectionMissing,
		SectionHighlights:       models.SectionMissing,
		SectionKnownFlaws:       models.SectionMissing,
		SectionServiceHistory:   models.SectionMissing,
		SectionIncludedItems:    models.SectionMissing,
		SectionOwnershipHistory: models.SectionMissing,
		SectionSellerNotes:      models.SectionMissing,
		SectionVideos:           models.SectionOK,
		SectionBids:             models.SectionFailed,
	}
	for name, status := range want {
		if got := sectionStatus(t, &rec, name); got != status {
			t.Fatalf("section %s: expected %s, got %s", name, status, got)
		}
	}
	if len(page.clicks) != 0 {
		t.Fatalf("expected no clicks, got %v", page.clicks)
	}
}

func TestExtract_MainTimeoutReturnsEmptyRecord(t *testing.T) {
	page := newFakePage()
	url := "https://carsandbids.com/auctions/gone/removed"

	rec := NewExtractor(testSite(t)).Extract(context.Background(), page, url, 0)

	if rec.URL != url {
		t.Fatalf("expected url %s, got %s", url, rec.URL)
	}
	if rec.Title != nil {
		t.Fatalf("expected nil title, got %s", *rec.Title)
	}
	if len(rec.Provenance) != 1 {
		t.Fatalf("expected a single provenance entry, got %+v", rec.Provenance)
	}
	if rec.Provenance[0].Section != SectionMain || rec.Provenance[0].Status != models.SectionFailed {
		t.Fatalf("expected main failed, got %+v", rec.Provenance[0])
	}

	want := models.NewAuctionRecord(url)
	want.Provenance = rec.Provenance
	if !reflect.DeepEqual(rec, want) {
		t.Fatalf("expected every other field at default, got %+v", rec)
	}
}

func TestExtract_BidHistoryButtonDisabled(t *testing.T) {
	html := string(loadFixture(t, "detail_sold.html"))
	html = replaceOnce(t, html, `<button data-filter="4" data-ga="bids">`, `<button data-filter="4" data-ga="bids" disabled>`)

	page := newFakePage()
	page.add(soldURL, html, string(loadFixture(t, "bid_history.html")))

	rec := NewExtractor(testSite(t)).Extract(context.Background(), page, soldURL, 0)

	if sectionStatus(t, &rec, SectionBids) != models.SectionFailed {
		t.Fatalf("expected bids failed")
	}
	if len(rec.Stats.Bids) != 0 {
		t.Fatalf("expected no bids, got %v", rec.Stats.Bids)
	}
	if deref(rec.Title) != "2004 BMW M3 Coupe" {
		t.Fatalf("earlier sections should be kept, got title %s", deref(rec.Title))
	}
}

func TestExtract_QuickFactsAlwaysSerializeAllKeys(t *testing.T) {
	rec := NewExtractor(testSite(t)).Extract(context.Background(), newFakePage(), "https://carsandbids.com/auctions/x/y", 0)

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		QuickFacts map[string]any `json:"quick_facts"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	keys := []string{
		"Make", "Model", "Mileage", "VIN", "Title Status", "Location", "Seller",
		"Engine", "Drivetrain", "Transmission", "Body Style", "Exterior Color", "Interior Color", "Seller Type",
	}
	if len(decoded.QuickFacts) != len(keys) {
		t.Fatalf("expected %d quick fact keys, got %d", len(keys), len(decoded.QuickFacts))
	}
	for _, k := range keys {
		v, ok := decoded.QuickFacts[k]
		if !ok {
			t.Fatalf("missing quick fact key %q", k)
		}
		if v != nil {
			t.Fatalf("expected %q to be null, got %v", k, v)
		}
	}
}

func TestExtract_StopsWhenContextCancelled(t *testing.T) {
	page := newFakePage()
	page.add(soldURL, string(loadFixture(t, "detail_sold.html")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := NewExtractor(testSite(t)).Extract(ctx, page, soldURL, 0)
	if rec.Title != nil {
		t.Fatalf("expected nothing extracted, got title %s", *rec.Title)
	}
	if len(rec.Provenance) != 1 || rec.Provenance[0].Section != SectionPage {
		t.Fatalf("expected page failure, got %+v", rec.Provenance)
	}
}
