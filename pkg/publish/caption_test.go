package publish

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealhunter-base/pkg/models"
)

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"boAt Airdopes 141 Bluetooth True Wireless Earbuds with Mic - Black", "BoAt Airdopes 141"},
		{"Simple Kettle", "Simple Kettle"},
		{"lowercase start, more text", "Lowercase start"},
		{"Wireless", "Wireless"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanTitle(tt.in))
	}
}

func TestSingleCaptionContainsPriceAndLink(t *testing.T) {
	caption, err := CaptionFor(models.SinglePost(&models.ProductRecord{
		Title:           "Widget Pro - Special Edition",
		Price:           49,
		OriginalPrice:   100,
		Currency:        "$",
		DiscountPercent: 51,
		SavingsAmount:   51,
		DetailURL:       "https://example.com/dp/B0X",
		Category:        "Electronics",
	}))
	require.NoError(t, err)

	assert.Contains(t, caption, "51% OFF")
	assert.Contains(t, caption, "Widget Pro")
	assert.Contains(t, caption, "$49")
	assert.Contains(t, caption, "~$100~")
	assert.Contains(t, caption, "Save $51")
	assert.Contains(t, caption, "https://example.com/dp/B0X")
	assert.Contains(t, caption, "#Electronics")
}

func TestSingleCaptionRejectsIncompleteRecord(t *testing.T) {
	_, err := CaptionFor(models.SinglePost(&models.ProductRecord{Title: "No price"}))
	assert.ErrorIs(t, err, ErrCaptionInput)
}

func TestGroupCaptionListsItemsAndLinks(t *testing.T) {
	g := &models.DealGroup{
		ID:       "g1",
		Title:    "Top 3 Electronics Deals under 2000",
		Category: "Electronics",
		Items: []models.ProductRecord{
			{Title: "Alpha Speaker", Price: 999, Currency: "₹", DiscountPercent: 50, DetailURL: "https://example.com/a"},
			{Title: "Beta Charger", Price: 599, Currency: "₹", DiscountPercent: 40, DetailURL: "https://example.com/b"},
			{Title: "Gamma Lamp", Price: 1299, Currency: "₹", DiscountPercent: 60, DetailURL: "https://example.com/c"},
		},
	}

	caption, err := CaptionFor(models.GroupPost(g))
	require.NoError(t, err)

	assert.Contains(t, caption, "Top 3 Electronics Deals")
	assert.Contains(t, caption, g.Title)
	assert.Contains(t, caption, "Alpha Speaker")
	assert.Contains(t, caption, "https://example.com/c")
	assert.Contains(t, caption, "#TopPicks")
}

func TestGroupCaptionCapsBullets(t *testing.T) {
	g := &models.DealGroup{Category: "Books"}
	for i := 0; i < 8; i++ {
		g.Items = append(g.Items, models.ProductRecord{
			Title: "Book", Price: 100, Currency: "₹", DiscountPercent: 30,
			DetailURL: "https://example.com/book",
		})
	}

	caption, err := CaptionFor(models.GroupPost(g))
	require.NoError(t, err)
	assert.Contains(t, caption, "Top 5 Books Deals")
	assert.NotContains(t, caption, "6.")
}

func TestEmptyPublishableRejected(t *testing.T) {
	_, err := CaptionFor(models.Publishable{})
	assert.ErrorIs(t, err, ErrCaptionInput)

	_, err = CaptionFor(models.GroupPost(&models.DealGroup{}))
	assert.ErrorIs(t, err, ErrCaptionInput)
}
