// Package catalog talks to the upstream product search API: a thin
// JSON client plus the probe-then-full fetch strategy layered on it.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
)

// SearchRequest mirrors the upstream search call surface.
type SearchRequest struct {
	SearchIndex  string   `json:"SearchIndex"`
	Keywords     string   `json:"Keywords"`
	ItemCount    int      `json:"ItemCount"`
	ItemPage     int      `json:"ItemPage"`
	BrowseNodeID string   `json:"BrowseNodeId,omitempty"`
	Resources    []string `json:"Resources"`
}

// APIMessage is a soft error embedded in a 200 response body.
type APIMessage struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

type SearchResult struct {
	Items  []RawItem    `json:"Items"`
	Errors []APIMessage `json:"Errors,omitempty"`
}

// SearchClient is the upstream contract the fetcher depends on.
type SearchClient interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResult, error)
}

// ProbeCacheEntry remembers the last query variant that produced
// results for a category, biasing future candidate order.
type ProbeCacheEntry struct {
	Category     string `json:"category"`
	Keyword      string `json:"keyword"`
	BrowseNodeID string `json:"browse_node_id,omitempty"`
}

// HTTPStatusError reports a non-success upstream status so the retry
// controller can classify it.
type HTTPStatusError struct {
	Status int
	Body   string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Body)
}

func (e *HTTPStatusError) StatusCode() int { return e.Status }

// Raw item shapes below mirror the slice of the upstream response the
// normalizer reads. Everything is optional; the normalizer decides
// what is fatal.

type RawItem struct {
	ASIN            string          `json:"ASIN"`
	DetailPageURL   string          `json:"DetailPageURL"`
	ItemInfo        *ItemInfo       `json:"ItemInfo,omitempty"`
	Images          *ImageSet       `json:"Images,omitempty"`
	Offers          *Offers         `json:"Offers,omitempty"`
	BrowseNodeInfo  *BrowseNodeInfo `json:"BrowseNodeInfo,omitempty"`
	CustomerReviews *Reviews        `json:"CustomerReviews,omitempty"`
}

type ItemInfo struct {
	Title           *DisplayValue    `json:"Title,omitempty"`
	ByLineInfo      *ByLineInfo      `json:"ByLineInfo,omitempty"`
	Features        *Features        `json:"Features,omitempty"`
	Classifications *Classifications `json:"Classifications,omitempty"`
}

type DisplayValue struct {
	DisplayValue string `json:"DisplayValue"`
}

type ByLineInfo struct {
	Brand        *DisplayValue `json:"Brand,omitempty"`
	Manufacturer string        `json:"Manufacturer,omitempty"`
}

type Features struct {
	DisplayValues []string `json:"DisplayValues"`
}

type Classifications struct {
	SalesRank string `json:"SalesRank,omitempty"`
}

type ImageSet struct {
	Primary  *ImageVariant  `json:"Primary,omitempty"`
	Variants []ImageVariant `json:"Variants,omitempty"`
}

type ImageVariant struct {
	Large  *ImageURL `json:"Large,omitempty"`
	Medium *ImageURL `json:"Medium,omitempty"`
	Small  *ImageURL `json:"Small,omitempty"`
}

type ImageURL struct {
	URL    string `json:"URL"`
	Height int    `json:"Height,omitempty"`
	Width  int    `json:"Width,omitempty"`
}

type Offers struct {
	Listings []Listing `json:"Listings"`
}

type Listing struct {
	Price        *Money        `json:"Price,omitempty"`
	SavingBasis  *Money        `json:"SavingBasis,omitempty"`
	Availability *Availability `json:"Availability,omitempty"`
	DeliveryInfo *DeliveryInfo `json:"DeliveryInfo,omitempty"`
}

type Money struct {
	DisplayAmount string  `json:"DisplayAmount,omitempty"`
	Amount        float64 `json:"Amount,omitempty"`
	Currency      string  `json:"Currency,omitempty"`
}

type Availability struct {
	Message string `json:"Message,omitempty"`
}

type DeliveryInfo struct {
	IsPrimeEligible bool `json:"IsPrimeEligible"`
}

type BrowseNodeInfo struct {
	BrowseNodes      []BrowseNode  `json:"BrowseNodes,omitempty"`
	WebsiteSalesRank []WebsiteRank `json:"WebsiteSalesRank,omitempty"`
}

// BrowseNode.SalesRank arrives as a number, a numeric string, or a
// nested object depending on the marketplace; kept raw for the
// normalizer to untangle.
type BrowseNode struct {
	ID        string          `json:"Id,omitempty"`
	SalesRank json.RawMessage `json:"SalesRank,omitempty"`
}

type WebsiteRank struct {
	Rank json.RawMessage `json:"Rank,omitempty"`
}

type Reviews struct {
	Count      int     `json:"Count,omitempty"`
	StarRating float64 `json:"StarRating,omitempty"`
}
