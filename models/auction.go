package models

import "encoding/json"

type ReserveStatus string

const (
	ReserveStatusReserve   ReserveStatus = "Reserve"
	ReserveStatusNoReserve ReserveStatus = "No Reserve"
)

type AuctionStatus string

const (
	AuctionStatusSold          AuctionStatus = "Sold"
	AuctionStatusReserveNotMet AuctionStatus = "Reserve Not Met"
	AuctionStatusCanceled      AuctionStatus = "Canceled"
)

// AuctionRecord is everything scraped from one auction detail page.
// Fields left nil or empty were not found on the page.
type AuctionRecord struct {
	URL              string          `json:"url"`
	Title            *string         `json:"title"`
	Subtitle         *string         `json:"subtitle"`
	Stats            AuctionStats    `json:"stats"`
	QuickFacts       QuickFacts      `json:"quick_facts"`
	EditorialTake    *string         `json:"editorial_take"`
	Highlights       DetailList      `json:"highlights"`
	KnownFlaws       []string        `json:"known_flaws"`
	ServiceHistory   DetailList      `json:"service_history"`
	IncludedItems    []string        `json:"included_items"`
	OwnershipHistory *string         `json:"ownership_history"`
	SellerNotes      []string        `json:"seller_notes"`
	VideoIDs         []string        `json:"video_ids"`
	Provenance       []SectionResult `json:"provenance"`
}

type AuctionStats struct {
	ReserveStatus  *ReserveStatus `json:"reserve_status"`
	AuctionStatus  *AuctionStatus `json:"auction_status"`
	HighestBid     *string        `json:"highest_bid"`
	BuyerUsername  *string        `json:"buyer_username"`
	SellerUsername *string        `json:"seller_username"`
	BidCount       *int           `json:"bid_count"`
	ViewCount      *int           `json:"view_count"`
	WatcherCount   *int           `json:"watcher_count"`
	EndDate        *string        `json:"end_date"`
	Bids           []string       `json:"bids"`
}

// QuickFacts always serializes all fourteen keys, null when absent.
type QuickFacts struct {
	Make          *string `json:"Make"`
	Model         *string `json:"Model"`
	Mileage       *string `json:"Mileage"`
	VIN           *string `json:"VIN"`
	TitleStatus   *string `json:"Title Status"`
	Location      *string `json:"Location"`
	Seller        *string `json:"Seller"`
	Engine        *string `json:"Engine"`
	Drivetrain    *string `json:"Drivetrain"`
	Transmission  *string `json:"Transmission"`
	BodyStyle     *string `json:"Body Style"`
	ExteriorColor *string `json:"Exterior Color"`
	InteriorColor *string `json:"Interior Color"`
	SellerType    *string `json:"Seller Type"`
}

// DetailList is a narrative section with an optional lead paragraph and bullet items.
type DetailList struct {
	Description *string  `json:"description"`
	Items       []string `json:"items"`
}

func NewAuctionRecord(url string) AuctionRecord {
	return AuctionRecord{
		URL:            url,
		Stats:          AuctionStats{Bids: []string{}},
		Highlights:     DetailList{Items: []string{}},
		KnownFlaws:     []string{},
		ServiceHistory: DetailList{Items: []string{}},
		IncludedItems:  []string{},
		SellerNotes:    []string{},
		VideoIDs:       []string{},
		Provenance:     []SectionResult{},
	}
}

// FailedSections counts provenance entries that ended in failure.
func (r *AuctionRecord) FailedSections() int {
	n := 0
	for _, s := range r.Provenance {
		if s.Status == SectionFailed {
			n++
		}
	}
	return n
}

// Section returns the provenance entry for name, if one was recorded.
func (r *AuctionRecord) Section(name string) (SectionResult, bool) {
	for _, s := range r.Provenance {
		if s.Section == name {
			return s, true
		}
	}
	return SectionResult{}, false
}

// EncodeRecords renders the run output document.
func EncodeRecords(records []AuctionRecord) ([]byte, error) {
	if records == nil {
		records = []AuctionRecord{}
	}
	return json.MarshalIndent(records, "", "   ")
}
