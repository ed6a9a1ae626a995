package curation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealhunter-base/pkg/models"
)

func record(id, category string, price, discount, rank int, stars float64) models.ProductRecord {
	return models.ProductRecord{
		ID:              id,
		Title:           "Item " + id,
		Category:        category,
		Price:           price,
		DiscountPercent: discount,
		SalesRank:       rank,
		StarRating:      stars,
	}
}

func TestEmptyInputYieldsNoGroups(t *testing.T) {
	assert.Nil(t, Curate(nil, Options{GroupSize: 4}, time.Now()))
}

func TestCategoryQuotaKeepsOneGroupOfTen(t *testing.T) {
	var records []models.ProductRecord
	for i := 0; i < 10; i++ {
		records = append(records, record(string(rune('A'+i)), "Books", 300, 40+i, 100*(i+1), 4))
	}

	groups := Curate(records, Options{
		GroupSize:      4,
		MaxPerCategory: 1,
	}, time.Now())

	require.Len(t, groups, 1)
	assert.Equal(t, "Books", groups[0].Category)
	assert.Len(t, groups[0].Items, 4)
}

func TestBucketsSplitByPriceBand(t *testing.T) {
	records := []models.ProductRecord{
		record("cheap1", "Electronics", 300, 50, 10, 4),
		record("cheap2", "Electronics", 499, 50, 20, 4),
		record("mid", "Electronics", 1500, 50, 5, 4),
		record("premium", "Electronics", 9000, 50, 1, 5),
	}

	groups := Curate(records, Options{GroupSize: 4}, time.Now())
	require.Len(t, groups, 3, "three bands touched, one group each")

	sizes := map[string]int{}
	for _, g := range groups {
		sizes[g.Title] = len(g.Items)
	}
	assert.Equal(t, 2, sizes["Top 2 Electronics Deals under 500"])
	assert.Equal(t, 1, sizes["Top 1 Electronics Deals under 2000"])
	assert.Equal(t, 1, sizes["Top 1 Premium Electronics Deals"])
}

func TestUndersizedBucketStillYieldsOneGroup(t *testing.T) {
	groups := Curate([]models.ProductRecord{
		record("only", "Beauty", 250, 60, 50, 4.5),
	}, Options{GroupSize: 4}, time.Now())

	require.Len(t, groups, 1)
	assert.Len(t, groups[0].Items, 1)
	assert.NotEmpty(t, groups[0].ID)
}

func TestInBucketRankingPrefersDiscountThenRankThenStars(t *testing.T) {
	records := []models.ProductRecord{
		record("lowdisc", "Electronics", 400, 20, 1, 5),
		record("unranked", "Electronics", 400, 60, 0, 3),
		record("ranked", "Electronics", 400, 60, 500, 3),
	}

	groups := Curate(records, Options{GroupSize: 3}, time.Now())
	require.Len(t, groups, 1)

	ids := []string{groups[0].Items[0].ID, groups[0].Items[1].ID, groups[0].Items[2].ID}
	assert.Equal(t, []string{"ranked", "lowdisc", "unranked"}, ids,
		"missing sales rank sinks an item regardless of discount")
}

func TestGroupsSortedByAggregateSavingsValue(t *testing.T) {
	records := []models.ProductRecord{
		// High percentage on trinkets.
		record("t1", "Beauty", 100, 80, 10, 4),
		record("t2", "Beauty", 100, 80, 11, 4),
		// Moderate percentage on big-ticket items.
		record("b1", "Electronics", 4000, 40, 10, 4),
		record("b2", "Electronics", 4000, 40, 11, 4),
	}

	groups := Curate(records, Options{GroupSize: 4}, time.Now())
	require.Len(t, groups, 2)
	assert.Equal(t, "Electronics", groups[0].Category)
	assert.Greater(t, groups[0].Score, groups[1].Score)
}

func TestDailyQuotaTruncatesAcrossCategories(t *testing.T) {
	records := []models.ProductRecord{
		record("e1", "Electronics", 1000, 50, 1, 4),
		record("b1", "Books", 300, 50, 1, 4),
		record("f1", "Fashion", 700, 50, 1, 4),
	}

	groups := Curate(records, Options{GroupSize: 4, MaxPerDay: 2}, time.Now())
	assert.Len(t, groups, 2)
}

func TestMaxGroupsTruncatesBeforeQuotas(t *testing.T) {
	var records []models.ProductRecord
	for i := 0; i < 12; i++ {
		records = append(records, record(string(rune('a'+i)), "Electronics", 300, 50, i+1, 4))
	}

	groups := Curate(records, Options{GroupSize: 2, MaxGroups: 3}, time.Now())
	assert.Len(t, groups, 3)
}
