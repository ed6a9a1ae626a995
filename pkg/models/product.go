package models

import (
	"errors"
	"time"
)

var (
	ErrMissingID     = errors.New("record has no id")
	ErrMissingTitle  = errors.New("record has no title")
	ErrMissingPrice  = errors.New("record has no parsable price")
	ErrBelowMinimum  = errors.New("record discount below configured minimum")
	ErrRunInProgress = errors.New("pipeline run already in progress")
)

// Status tracks how far a record has moved through the enrichment flow.
type Status string

const (
	StatusPendingEnrichment Status = "PENDING_ENRICHMENT"
	StatusEnriched          Status = "ENRICHED"
	StatusPostGenerated     Status = "POST_GENERATED"
)

// ProductRecord is the canonical representation of one catalog item.
// ID is the upsert key; refetching the same item updates in place.
// DiscountPercent and SavingsAmount are always recomputed from
// Price/OriginalPrice during normalization, never stored independently.
type ProductRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	DetailURL string `json:"detail_url"`
	ImageURL  string `json:"image_url,omitempty"`
	Brand     string `json:"brand,omitempty"`

	Price           int    `json:"price"`
	OriginalPrice   int    `json:"original_price"`
	Currency        string `json:"currency"`
	DiscountPercent int    `json:"discount_percent"`
	SavingsAmount   int    `json:"savings_amount"`

	Category string   `json:"category"`
	NicheID  string   `json:"niche_id,omitempty"`
	Features []string `json:"features,omitempty"`

	// SalesRank is 0 when the upstream reported none; lower is better.
	SalesRank    int     `json:"sales_rank,omitempty"`
	StarRating   float64 `json:"star_rating,omitempty"`
	RatingsCount int     `json:"ratings_count,omitempty"`

	IsPrimeEligible bool   `json:"is_prime_eligible"`
	Availability    string `json:"availability,omitempty"`

	Status       Status    `json:"status"`
	LastUpdated  time.Time `json:"last_updated"`
	IsPosted     bool      `json:"is_posted"`
	TimesPosted  int       `json:"times_posted"`
	LastPostedAt time.Time `json:"last_posted_at"`
}

// DealGroup is an ephemeral curation unit. Groups are built fresh each
// run from unposted records and discarded after publishing.
type DealGroup struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Category  string          `json:"category"`
	Items     []ProductRecord `json:"items"`
	Score     float64         `json:"score"`
	CreatedAt time.Time       `json:"created_at"`
}

// Publishable is the unit handed to caption, image and scheduling
// consumers. Exactly one of the two fields is set.
type Publishable struct {
	Single *ProductRecord
	Group  *DealGroup
}

func SinglePost(r *ProductRecord) Publishable { return Publishable{Single: r} }

func GroupPost(g *DealGroup) Publishable { return Publishable{Group: g} }

func (p Publishable) IsGroup() bool { return p.Group != nil }

// Items flattens either variant into the records it carries.
func (p Publishable) Items() []ProductRecord {
	if p.Group != nil {
		return p.Group.Items
	}
	if p.Single != nil {
		return []ProductRecord{*p.Single}
	}
	return nil
}

// Category returns the taxonomy label of either variant.
func (p Publishable) Category() string {
	if p.Group != nil {
		return p.Group.Category
	}
	if p.Single != nil {
		return p.Single.Category
	}
	return ""
}

// categoryToNiche routes catalog categories to the coarse brand niches
// the social accounts are organized around.
var categoryToNiche = map[string]string{
	"Apparel":  "FASHION",
	"Fashion":  "FASHION",
	"Shoes":    "FASHION",
	"Watches":  "FASHION",
	"Jewelry":  "FASHION",
	"Luggage":  "FASHION",
	"Handbags": "FASHION",

	"Beauty":                "DAILY_ESSENTIALS",
	"HealthPersonalCare":    "DAILY_ESSENTIALS",
	"PetSupplies":           "DAILY_ESSENTIALS",
	"ToysAndGames":          "DAILY_ESSENTIALS",
	"Baby":                  "DAILY_ESSENTIALS",
	"GroceryAndGourmetFood": "DAILY_ESSENTIALS",
	"Pharmacy":              "DAILY_ESSENTIALS",

	"HomeAndKitchen":          "HOME_KITCHEN_OUTDOORS",
	"Furniture":               "HOME_KITCHEN_OUTDOORS",
	"GardenAndOutdoor":        "HOME_KITCHEN_OUTDOORS",
	"SportsAndOutdoors":       "HOME_KITCHEN_OUTDOORS",
	"ToolsAndHomeImprovement": "HOME_KITCHEN_OUTDOORS",
	"Automotive":              "HOME_KITCHEN_OUTDOORS",
	"Industrial":              "HOME_KITCHEN_OUTDOORS",

	"Electronics":        "ELECTRONICS",
	"Computers":          "ELECTRONICS",
	"Appliances":         "ELECTRONICS",
	"MusicalInstruments": "ELECTRONICS",
	"OfficeProducts":     "ELECTRONICS",

	"Books":       "ENTERTAINMENT",
	"VideoGames":  "ENTERTAINMENT",
	"MoviesAndTV": "ENTERTAINMENT",
	"KindleStore": "ENTERTAINMENT",
}

// NicheForCategory maps a catalog category to its niche id, or "" when
// the category is unmapped.
func NicheForCategory(category string) string {
	return categoryToNiche[category]
}
