// Package curation turns saved records into ranked deal groups ready
// for publishing.
package curation

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"dealhunter-base/pkg/models"
)

// missingRankPenalty pushes unranked items behind everything with a
// known sales rank.
const missingRankPenalty = 1e8

// priceBand is a fixed bucket boundary. Bands are part of the group
// identity: a 300-rupee gadget and a 6000-rupee one never share a post.
type priceBand struct {
	label string
	max   int // exclusive upper bound, 0 = unbounded
}

var priceBands = []priceBand{
	{label: "0-499", max: 500},
	{label: "500-1999", max: 2000},
	{label: "2000-4999", max: 5000},
	{label: "5000+", max: 0},
}

func bandFor(price int) priceBand {
	for _, b := range priceBands {
		if b.max == 0 || price < b.max {
			return b
		}
	}
	return priceBands[len(priceBands)-1]
}

// Options bounds one curation pass.
type Options struct {
	MaxGroups      int
	GroupSize      int
	MaxPerCategory int
	MaxPerDay      int
}

// itemScore ranks records inside a bucket. Discount dominates, a good
// sales rank helps, stars break ties. Unranked records sink.
func itemScore(r models.ProductRecord) float64 {
	rank := float64(r.SalesRank)
	if r.SalesRank <= 0 {
		rank = missingRankPenalty
	}
	return float64(r.DiscountPercent)*3 - rank/1000 + r.StarRating*2
}

// groupScore favors groups whose deals save real money, not just high
// percentages on trinkets.
func groupScore(items []models.ProductRecord) float64 {
	var s float64
	for _, r := range items {
		s += float64(r.DiscountPercent) * float64(r.Price)
	}
	return s
}

// Curate buckets records by category and price band, ranks each bucket,
// chunks it into groups of at most GroupSize, scores and globally sorts
// the groups, then applies the per-category and daily quotas. Over-quota
// groups are dropped, not deferred.
func Curate(records []models.ProductRecord, opts Options, now time.Time) []models.DealGroup {
	if len(records) == 0 {
		return nil
	}
	if opts.GroupSize < 1 {
		opts.GroupSize = 4
	}

	type bucketKey struct {
		category string
		band     string
	}
	buckets := map[bucketKey][]models.ProductRecord{}
	bands := map[bucketKey]priceBand{}
	for _, r := range records {
		b := bandFor(r.Price)
		k := bucketKey{category: r.Category, band: b.label}
		buckets[k] = append(buckets[k], r)
		bands[k] = b
	}

	var groups []models.DealGroup
	for k, items := range buckets {
		sort.SliceStable(items, func(i, j int) bool {
			return itemScore(items[i]) > itemScore(items[j])
		})

		for start := 0; start < len(items); start += opts.GroupSize {
			end := start + opts.GroupSize
			if end > len(items) {
				end = len(items)
			}
			chunk := items[start:end]
			groups = append(groups, models.DealGroup{
				ID:        uuid.NewString(),
				Title:     groupTitle(k.category, bands[k], chunk),
				Category:  k.category,
				Items:     append([]models.ProductRecord(nil), chunk...),
				Score:     groupScore(chunk),
				CreatedAt: now,
			})
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Score > groups[j].Score
	})
	if opts.MaxGroups > 0 && len(groups) > opts.MaxGroups {
		groups = groups[:opts.MaxGroups]
	}

	groups = applyQuotas(groups, opts)
	log.Printf("Curation: built %d groups from %d records", len(groups), len(records))
	return groups
}

// applyQuotas walks the ranked groups and keeps the first ones that fit
// under the per-category and daily caps.
func applyQuotas(groups []models.DealGroup, opts Options) []models.DealGroup {
	perCategory := map[string]int{}
	var kept []models.DealGroup
	for _, g := range groups {
		if opts.MaxPerDay > 0 && len(kept) >= opts.MaxPerDay {
			break
		}
		if opts.MaxPerCategory > 0 && perCategory[g.Category] >= opts.MaxPerCategory {
			continue
		}
		perCategory[g.Category]++
		kept = append(kept, g)
	}
	return kept
}

// groupTitle names a group after its band ceiling when the band is
// bounded, otherwise after the cheapest deal floor.
func groupTitle(category string, band priceBand, items []models.ProductRecord) string {
	if band.max > 0 {
		return fmt.Sprintf("Top %d %s Deals under %d", len(items), category, band.max)
	}
	return fmt.Sprintf("Top %d Premium %s Deals", len(items), category)
}
