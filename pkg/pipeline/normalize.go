// Package pipeline converts raw catalog items into canonical records
// and drives the per-category fetch/clean/save run.
package pipeline

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"dealhunter-base/pkg/catalog"
	"dealhunter-base/pkg/models"
)

// NormalizeOptions carries the validation knobs.
type NormalizeOptions struct {
	MinDiscountPercent int
	DefaultCurrency    string
}

// Normalize converts one raw item into a canonical ProductRecord. It
// rejects items with no id, no title, no parsable price, or a discount
// below the configured minimum. Prices are floored to integer units
// before the discount is computed, and the discount percentage itself
// is floored; the same rounding rule applies everywhere.
func Normalize(raw catalog.RawItem, category string, opts NormalizeOptions, now time.Time) (*models.ProductRecord, error) {
	if raw.ASIN == "" {
		return nil, models.ErrMissingID
	}

	title := ""
	if raw.ItemInfo != nil && raw.ItemInfo.Title != nil {
		title = strings.TrimSpace(raw.ItemInfo.Title.DisplayValue)
	}
	if title == "" {
		return nil, models.ErrMissingTitle
	}

	listing := firstListing(raw)
	priceStr := moneyString(listingPrice(listing))
	current, ok := extractNumber(priceStr)
	if !ok {
		return nil, models.ErrMissingPrice
	}

	original, origOK := extractNumber(moneyString(listingSavingBasis(listing)))
	if !origOK {
		original = current
	}

	price := int(math.Floor(current))
	originalPrice := int(math.Floor(original))
	if originalPrice < price {
		originalPrice = price
	}

	discount, savings := 0, 0
	if originalPrice > price {
		discount = (originalPrice - price) * 100 / originalPrice
		savings = originalPrice - price
	}

	if discount < opts.MinDiscountPercent {
		return nil, models.ErrBelowMinimum
	}

	rec := &models.ProductRecord{
		ID:              raw.ASIN,
		Title:           title,
		DetailURL:       raw.DetailPageURL,
		ImageURL:        pickHiResImage(raw),
		Brand:           extractBrand(raw),
		Price:           price,
		OriginalPrice:   originalPrice,
		Currency:        extractCurrency(priceStr, opts.DefaultCurrency),
		DiscountPercent: discount,
		SavingsAmount:   savings,
		Category:        category,
		NicheID:         models.NicheForCategory(category),
		Features:        extractFeatures(raw),
		SalesRank:       extractSalesRank(raw),
		IsPrimeEligible: listing != nil && listing.DeliveryInfo != nil && listing.DeliveryInfo.IsPrimeEligible,
		Availability:    extractAvailability(listing),
		Status:          models.StatusPendingEnrichment,
		LastUpdated:     now,
	}
	if raw.CustomerReviews != nil {
		rec.RatingsCount = raw.CustomerReviews.Count
		rec.StarRating = raw.CustomerReviews.StarRating
	}
	return rec, nil
}

func firstListing(raw catalog.RawItem) *catalog.Listing {
	if raw.Offers == nil || len(raw.Offers.Listings) == 0 {
		return nil
	}
	return &raw.Offers.Listings[0]
}

func listingPrice(l *catalog.Listing) *catalog.Money {
	if l == nil {
		return nil
	}
	return l.Price
}

func listingSavingBasis(l *catalog.Listing) *catalog.Money {
	if l == nil {
		return nil
	}
	return l.SavingBasis
}

func moneyString(m *catalog.Money) string {
	if m == nil {
		return ""
	}
	if m.DisplayAmount != "" {
		return m.DisplayAmount
	}
	if m.Amount > 0 {
		return strconv.FormatFloat(m.Amount, 'f', 2, 64)
	}
	return ""
}

var nonNumeric = regexp.MustCompile(`[^\d.]`)

// extractNumber pulls a float out of a display string like "$1,499.00".
func extractNumber(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	cleaned := nonNumeric.ReplaceAllString(s, "")
	if cleaned == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

var currencySymbols = []string{"₹", "$", "€", "£"}

func extractCurrency(s, def string) string {
	for _, sym := range currencySymbols {
		if strings.Contains(s, sym) {
			return sym
		}
	}
	return def
}

var sizeToken = regexp.MustCompile(`(?i)(\._SL\d+_|_SL\d+_|\._SX\d+_|_SX\d+_)`)
var multiDot = regexp.MustCompile(`\.{2,}`)

// NormalizeImageURL strips embedded resize tokens so the highest
// native resolution is requested. Shared with the enrichment pass.
func NormalizeImageURL(url string) string {
	if url == "" {
		return ""
	}
	cleaned := sizeToken.ReplaceAllString(url, ".")
	return multiDot.ReplaceAllString(cleaned, ".")
}

// pickHiResImage prefers the first variant's large image, then primary
// large, medium, small.
func pickHiResImage(raw catalog.RawItem) string {
	if raw.Images == nil {
		return ""
	}
	for _, v := range raw.Images.Variants {
		if v.Large != nil && v.Large.URL != "" {
			return NormalizeImageURL(v.Large.URL)
		}
		if v.Medium != nil && v.Medium.URL != "" {
			return NormalizeImageURL(v.Medium.URL)
		}
	}
	if p := raw.Images.Primary; p != nil {
		for _, img := range []*catalog.ImageURL{p.Large, p.Medium, p.Small} {
			if img != nil && img.URL != "" {
				return NormalizeImageURL(img.URL)
			}
		}
	}
	return ""
}

func extractBrand(raw catalog.RawItem) string {
	if raw.ItemInfo == nil || raw.ItemInfo.ByLineInfo == nil {
		return ""
	}
	if b := raw.ItemInfo.ByLineInfo.Brand; b != nil && b.DisplayValue != "" {
		return b.DisplayValue
	}
	return raw.ItemInfo.ByLineInfo.Manufacturer
}

func extractFeatures(raw catalog.RawItem) []string {
	if raw.ItemInfo == nil || raw.ItemInfo.Features == nil {
		return nil
	}
	return raw.ItemInfo.Features.DisplayValues
}

func extractAvailability(l *catalog.Listing) string {
	if l != nil && l.Availability != nil && l.Availability.Message != "" {
		return l.Availability.Message
	}
	return "Unknown"
}

var digitsOnly = regexp.MustCompile(`[^\d]`)

// extractSalesRank tries the browse-node rank (number, numeric string,
// or nested value object), then the website-wide rank list, then the
// classification-level field. First parsable integer wins.
func extractSalesRank(raw catalog.RawItem) int {
	if raw.BrowseNodeInfo != nil {
		for _, bn := range raw.BrowseNodeInfo.BrowseNodes {
			if n, ok := parseRawRank(bn.SalesRank); ok {
				return n
			}
		}
		if len(raw.BrowseNodeInfo.WebsiteSalesRank) > 0 {
			if n, ok := parseRawRank(raw.BrowseNodeInfo.WebsiteSalesRank[0].Rank); ok {
				return n
			}
		}
	}
	if raw.ItemInfo != nil && raw.ItemInfo.Classifications != nil {
		if n, ok := parseRankString(raw.ItemInfo.Classifications.SalesRank); ok {
			return n
		}
	}
	return 0
}

func parseRawRank(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}

	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return int(num), true
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return parseRankString(str)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"Value", "DisplayValue", "Rank"} {
			if v, ok := obj[key]; ok {
				if n, parsed := parseRawRank(v); parsed {
					return n, true
				}
			}
		}
	}
	return 0, false
}

func parseRankString(s string) (int, bool) {
	digits := digitsOnly.ReplaceAllString(s, "")
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}
