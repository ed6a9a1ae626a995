// Package enrich fills the gaps phase one left behind by scraping the
// product detail pages of records that are still missing an image or a
// brand.
package enrich

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"dealhunter-base/pkg/models"
	"dealhunter-base/pkg/pipeline"
	"dealhunter-base/pkg/store"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Storage is the slice of the record store the enricher needs.
type Storage interface {
	PendingEnrichment(limit int) ([]models.ProductRecord, error)
	SaveEnrichment(id string, e store.Enrichment, now time.Time) error
}

type Enricher struct {
	Collector *colly.Collector
	storage   Storage

	// pageDelay spaces detail-page visits apart.
	pageDelay time.Duration
	now       func() time.Time
}

func New(storage Storage) *Enricher {
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
	)
	return &Enricher{
		Collector: c,
		storage:   storage,
		pageDelay: 1500 * time.Millisecond,
		now:       time.Now,
	}
}

// EnrichPending scrapes detail pages for up to limit records awaiting
// enrichment. Records whose page yields nothing are still advanced to
// ENRICHED so they are not revisited every run. Returns the number of
// records that actually gained data.
func (e *Enricher) EnrichPending(ctx context.Context, limit int) (int, error) {
	records, err := e.storage.PendingEnrichment(limit)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, nil
	}
	log.Printf("Enrich: %d records pending", len(records))

	enriched := 0
	for i, rec := range records {
		if ctx.Err() != nil {
			return enriched, ctx.Err()
		}
		if i > 0 {
			select {
			case <-ctx.Done():
				return enriched, ctx.Err()
			case <-time.After(e.pageDelay):
			}
		}

		found, err := e.scrapeDetail(rec.DetailURL)
		if err != nil {
			log.Printf("Enrich: %s failed: %v", rec.ID, err)
			continue
		}
		if err := e.storage.SaveEnrichment(rec.ID, found, e.now()); err != nil {
			log.Printf("Enrich: saving %s failed: %v", rec.ID, err)
			continue
		}
		if found.ImageURL != "" || found.Brand != "" || len(found.Features) > 0 {
			enriched++
		}
	}
	log.Printf("Enrich: gained data for %d of %d records", enriched, len(records))
	return enriched, nil
}

// scrapeDetail visits one detail page and pulls whatever enrichment
// fields it can find.
func (e *Enricher) scrapeDetail(url string) (store.Enrichment, error) {
	var found store.Enrichment
	c := e.Collector.Clone()

	c.OnHTML(`meta[property="og:image"]`, func(el *colly.HTMLElement) {
		if found.ImageURL != "" {
			return
		}
		found.ImageURL = pipeline.NormalizeImageURL(el.Attr("content"))
	})

	c.OnHTML("#landingImage", func(el *colly.HTMLElement) {
		if found.ImageURL != "" {
			return
		}
		found.ImageURL = pipeline.NormalizeImageURL(el.Attr("src"))
	})

	c.OnHTML("#bylineInfo", func(el *colly.HTMLElement) {
		if found.Brand != "" {
			return
		}
		found.Brand = cleanBrand(el.Text)
	})

	c.OnHTML("#feature-bullets li span", func(el *colly.HTMLElement) {
		text := strings.TrimSpace(el.Text)
		if text != "" && len(found.Features) < 5 {
			found.Features = append(found.Features, text)
		}
	})

	if err := c.Visit(url); err != nil {
		return store.Enrichment{}, err
	}
	return found, nil
}

// cleanBrand strips the storefront boilerplate around the brand name,
// e.g. "Visit the Acme Store" or "Brand: Acme".
func cleanBrand(text string) string {
	b := strings.TrimSpace(text)
	b = strings.TrimPrefix(b, "Visit the ")
	b = strings.TrimSuffix(b, " Store")
	b = strings.TrimPrefix(b, "Brand: ")
	return strings.TrimSpace(b)
}
