package publish

import (
	"strings"

	"dealhunter-base/pkg/models"
)

// visualCategories are taxonomies where a rendered poster tends to
// outperform the raw product photo.
var visualCategories = map[string]bool{
	"fashion":                 true,
	"homeandkitchen":          true,
	"electronics":             true,
	"computers":               true,
	"beauty":                  true,
	"toysandgames":            true,
	"sportsandoutdoors":       true,
	"furniture":               true,
	"watches":                 true,
	"toolsandhomeimprovement": true,
	"gardenandoutdoor":        true,
	"luxurybeauty":            true,
}

// Decider gates expensive poster generation.
type Decider struct {
	DiscountMin    int
	PriceMin       int
	ScoreThreshold int
	MaxPerRun      int
}

// ShouldGenerate decides whether a poster is worth rendering for p,
// given how many were already rendered this run. Groups are judged by
// their best item on each axis.
func (d Decider) ShouldGenerate(p models.Publishable, generatedCount int) bool {
	if generatedCount >= d.MaxPerRun {
		return false
	}

	items := p.Items()
	if len(items) == 0 {
		return false
	}

	var discount, price, primeCount int
	visual := false
	for _, it := range items {
		if it.DiscountPercent > discount {
			discount = it.DiscountPercent
		}
		if it.Price > price {
			price = it.Price
		}
		if visualCategories[strings.ToLower(it.Category)] {
			visual = true
		}
		if it.IsPrimeEligible {
			primeCount++
		}
	}

	if discount < d.DiscountMin || price < d.PriceMin {
		return false
	}

	score := 0
	switch {
	case discount >= 70:
		score += 3
	case discount >= 50:
		score += 2
	}
	if price >= 500 {
		score += 2
	}
	if visual {
		score++
	}
	if primeCount > 0 {
		score++
	}
	return score >= d.ScoreThreshold
}
