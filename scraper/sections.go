package scraper

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"cnb_scraper/models"
)

func extractTitle(in *stepInput, rec *models.AuctionRecord) error {
	title, err := findText(in.doc.Selection, ".auction-title h1")
	if err != nil {
		return err
	}
	rec.Title = title
	return nil
}

func extractSubtitle(in *stepInput, rec *models.AuctionRecord) error {
	subtitle, err := findText(in.doc.Selection, ".d-md-flex.justify-content-between.flex-wrap h2")
	if err != nil {
		return err
	}
	rec.Subtitle = subtitle
	return nil
}

func extractReserve(in *stepInput, rec *models.AuctionRecord) error {
	el, err := find(in.doc.Selection, "#auction-jump h3 span")
	if err != nil {
		return err
	}
	status := models.ReserveStatusNoReserve
	if strings.Contains(text(el), "Reserve") {
		status = models.ReserveStatusReserve
	}
	rec.Stats.ReserveStatus = &status
	return nil
}

// extractStatus reads the final-status block: cancelled auctions carry no
// bid, otherwise the headline decides the status and the bid is read
// whatever the headline said.
func extractStatus(in *stepInput, rec *models.AuctionRecord) error {
	container, err := find(in.doc.Selection, ".current-bid.ended")
	if err != nil {
		return err
	}

	if class, _ := container.Attr("class"); strings.Contains(class, "cancelled") {
		status := models.AuctionStatusCanceled
		rec.Stats.AuctionStatus = &status
		return nil
	}

	if h4, err := find(container, "h4"); err == nil {
		headline := text(h4)
		switch {
		case strings.Contains(headline, "Sold to"):
			status := models.AuctionStatusSold
			rec.Stats.AuctionStatus = &status
			if buyer, err := findText(container, ".username .user"); err == nil {
				rec.Stats.BuyerUsername = buyer
			} else {
				log.Printf("Buyer username not found: %v", err)
			}
		case strings.Contains(headline, "Reserve not met"):
			status := models.AuctionStatusReserveNotMet
			rec.Stats.AuctionStatus = &status
		}
	}

	bid, err := find(container, ".bid-value")
	if err != nil {
		return err
	}
	value := cleanHighestBid(text(bid))
	rec.Stats.HighestBid = &value
	return nil
}

// extractStats reads the seller and the Ended/Bids/Views/Watching counters.
// A counter that does not parse is left unset and reported.
func extractStats(in *stepInput, rec *models.AuctionRecord) error {
	stats, err := find(in.doc.Selection, "ul.stats")
	if err != nil {
		return err
	}

	if seller, err := findText(stats, "li.seller .user"); err == nil {
		rec.Stats.SellerUsername = seller
	} else {
		log.Printf("Seller username not found: %v", err)
	}

	var errs []error
	stats.Find("li:not(.seller)").Each(func(_ int, item *goquery.Selection) {
		th, err := find(item, ".th")
		if err != nil {
			return
		}
		td, err := find(item, ".td")
		if err != nil {
			return
		}
		label, value := text(th), text(td)

		var target **int
		switch label {
		case "Ended":
			rec.Stats.EndDate = &value
			return
		case "Bids":
			target = &rec.Stats.BidCount
		case "Views":
			target = &rec.Stats.ViewCount
		case "Watching":
			target = &rec.Stats.WatcherCount
		default:
			return
		}

		n, err := parseCount(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
			return
		}
		*target = &n
	})
	return errors.Join(errs...)
}

type factPolicy int

const (
	factText factPolicy = iota
	factLink
	factUser
)

type factField struct {
	policy factPolicy
	field  func(q *models.QuickFacts) **string
}

// Label keys are the normalized dt text; see normalizeLabel.
var primaryFacts = map[string]factField{
	"make":         {factLink, func(q *models.QuickFacts) **string { return &q.Make }},
	"model":        {factLink, func(q *models.QuickFacts) **string { return &q.Model }},
	"mileage":      {factText, func(q *models.QuickFacts) **string { return &q.Mileage }},
	"vin":          {factText, func(q *models.QuickFacts) **string { return &q.VIN }},
	"title_status": {factText, func(q *models.QuickFacts) **string { return &q.TitleStatus }},
	"location":     {factText, func(q *models.QuickFacts) **string { return &q.Location }},
	"seller":       {factUser, func(q *models.QuickFacts) **string { return &q.Seller }},
}

var secondaryFacts = map[string]factField{
	"engine":         {factText, func(q *models.QuickFacts) **string { return &q.Engine }},
	"drivetrain":     {factText, func(q *models.QuickFacts) **string { return &q.Drivetrain }},
	"transmission":   {factText, func(q *models.QuickFacts) **string { return &q.Transmission }},
	"body_style":     {factText, func(q *models.QuickFacts) **string { return &q.BodyStyle }},
	"exterior_color": {factText, func(q *models.QuickFacts) **string { return &q.ExteriorColor }},
	"interior_color": {factText, func(q *models.QuickFacts) **string { return &q.InteriorColor }},
	"seller_type":    {factText, func(q *models.QuickFacts) **string { return &q.SellerType }},
}

func extractQuickFacts(in *stepInput, rec *models.AuctionRecord) error {
	if err := in.page.WaitFor(in.ctx, ".quick-facts", in.timeout); err != nil {
		return err
	}
	doc, err := snapshot(in.ctx, in.page)
	if err != nil {
		return err
	}
	facts, err := find(doc.Selection, ".quick-facts")
	if err != nil {
		return err
	}

	lists := facts.Find("dl")
	if lists.Length() == 0 {
		return fmt.Errorf("%w: .quick-facts dl", ErrNotFound)
	}
	scanFacts(lists.Eq(0), primaryFacts, &rec.QuickFacts)
	if lists.Length() < 2 {
		return fmt.Errorf("%w: second .quick-facts dl", ErrNotFound)
	}
	scanFacts(lists.Eq(1), secondaryFacts, &rec.QuickFacts)
	return nil
}

func scanFacts(dl *goquery.Selection, fields map[string]factField, q *models.QuickFacts) {
	dl.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		f, ok := fields[normalizeLabel(text(dt))]
		if !ok {
			return
		}
		dd := dt.NextAllFiltered("dd").First()
		if dd.Length() == 0 {
			return
		}

		value := dd
		switch f.policy {
		case factLink:
			value = dd.Find("a").First()
		case factUser:
			value = dd.Find(".user").First()
		}
		if value.Length() == 0 {
			return
		}
		*f.field(q) = textPtr(value)
	})
}

func detailSection(in *stepInput, name string) (*goquery.Selection, error) {
	return find(in.doc.Selection, ".detail-section."+name)
}

func extractEditorialTake(in *stepInput, rec *models.AuctionRecord) error {
	section, err := detailSection(in, "dougs-take")
	if err != nil {
		return err
	}
	take, err := findText(section, ".detail-body p")
	if err != nil {
		return err
	}
	rec.EditorialTake = take
	return nil
}

func extractHighlights(in *stepInput, rec *models.AuctionRecord) error {
	section, err := detailSection(in, "detail-highlights")
	if err != nil {
		return err
	}
	body, err := find(section, ".detail-body")
	if err != nil {
		return err
	}
	if desc, err := findText(body, "p"); err == nil {
		rec.Highlights.Description = desc
	}
	rec.Highlights.Items = texts(body, "ul li", true)
	return nil
}

func extractKnownFlaws(in *stepInput, rec *models.AuctionRecord) error {
	section, err := detailSection(in, "detail-known_flaws")
	if err != nil {
		return err
	}
	rec.KnownFlaws = texts(section, ".detail-body li", false)
	return nil
}

func extractServiceHistory(in *stepInput, rec *models.AuctionRecord) error {
	section, err := detailSection(in, "detail-recent_service_history")
	if err != nil {
		return err
	}
	rec.ServiceHistory.Items = texts(section, ".detail-body li", false)
	desc, err := findText(section, ".detail-body p")
	if err != nil {
		if len(rec.ServiceHistory.Items) > 0 {
			return nil
		}
		return err
	}
	rec.ServiceHistory.Description = desc
	return nil
}

func extractIncludedItems(in *stepInput, rec *models.AuctionRecord) error {
	section, err := detailSection(in, "detail-other_items")
	if err != nil {
		return err
	}
	rec.IncludedItems = texts(section, ".detail-body li", false)
	return nil
}

func extractOwnershipHistory(in *stepInput, rec *models.AuctionRecord) error {
	section, err := detailSection(in, "detail-ownership_history")
	if err != nil {
		return err
	}
	history, err := findText(section, ".detail-body p")
	if err != nil {
		return err
	}
	rec.OwnershipHistory = history
	return nil
}

func extractSellerNotes(in *stepInput, rec *models.AuctionRecord) error {
	section, err := detailSection(in, "detail-seller_notes")
	if err != nil {
		return err
	}
	rec.SellerNotes = texts(section, ".detail-body li", false)
	return nil
}

func extractVideos(in *stepInput, rec *models.AuctionRecord) error {
	section, err := detailSection(in, "detail-videos")
	if err != nil {
		return err
	}
	var srcs []string
	section.Find(".video-embed img.video-preview").Each(func(_ int, img *goquery.Selection) {
		if src, ok := img.Attr("src"); ok {
			srcs = append(srcs, src)
		}
	})
	rec.VideoIDs = videoIDs(srcs)
	return nil
}

const (
	commentsSelector  = ".comments"
	bidFilterSelector = "button[data-filter='4'][data-ga='bids']"
	bidItemSelector   = ".thread li.bid"
)

// extractBids switches the activity feed to bid history and reads every bid
// in the order the page renders them. If the feed cannot be switched the
// rest of the page is abandoned.
func (e *Extractor) extractBids(in *stepInput, rec *models.AuctionRecord) error {
	if err := in.page.WaitFor(in.ctx, commentsSelector, in.timeout); err != nil {
		return err
	}

	if err := in.page.WaitClickable(in.ctx, bidFilterSelector, e.site.BidButtonTimeout()); err != nil {
		return fmt.Errorf("%w: couldn't click bid history button: %v", errStopExtraction, err)
	}
	if err := in.page.ClickJS(in.ctx, bidFilterSelector); err != nil {
		return fmt.Errorf("%w: couldn't click bid history button: %v", errStopExtraction, err)
	}
	awaitRender(in.ctx, in.page, e.site.BidSettle(), func(d time.Duration) error {
		return in.page.WaitFor(in.ctx, bidItemSelector, d)
	})

	doc, err := snapshot(in.ctx, in.page)
	if err != nil {
		return err
	}

	bids := []string{}
	doc.Find(bidItemSelector).Each(func(i int, item *goquery.Selection) {
		value, err := find(item, ".bid-value")
		if err != nil {
			log.Printf("Error parsing bid %d: %v", i, err)
			return
		}
		bids = append(bids, cleanBid(text(value)))
	})
	rec.Stats.Bids = bids
	return nil
}
