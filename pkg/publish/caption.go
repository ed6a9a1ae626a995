// Package publish turns curated deals into scheduled social posts:
// caption text, an optional generated poster, media upload and the
// schedule call.
package publish

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"dealhunter-base/pkg/models"
)

var ErrCaptionInput = errors.New("publishable has no usable content for a caption")

// maxGroupBullets caps how many deals a group caption lists.
const maxGroupBullets = 5

var (
	titleSplit     = regexp.MustCompile(`[-,|:]`)
	marketingWords = regexp.MustCompile(`(?i)\b(True Wireless|Bluetooth|Earbuds?|Headphones?|with Mic|with|Fast Charge|Charging|Smart|Portable|Wireless|TWS|Edition)\b`)
	multiSpace     = regexp.MustCompile(`\s{2,}`)
	tagCleaner     = regexp.MustCompile(`[^A-Za-z0-9]`)
)

// CleanTitle shortens a listing title to something readable: the part
// before the first separator, minus the stock marketing words.
func CleanTitle(title string) string {
	short := strings.TrimSpace(titleSplit.Split(title, 2)[0])
	short = marketingWords.ReplaceAllString(short, "")
	short = strings.TrimSpace(multiSpace.ReplaceAllString(short, " "))
	if short == "" {
		return title
	}
	return strings.ToUpper(short[:1]) + short[1:]
}

// CaptionFor builds the post text for either publishable variant.
func CaptionFor(p models.Publishable) (string, error) {
	if p.IsGroup() {
		return groupCaption(p.Group)
	}
	if p.Single != nil {
		return singleCaption(p.Single)
	}
	return "", ErrCaptionInput
}

func singleCaption(r *models.ProductRecord) (string, error) {
	if r.Title == "" || r.Price <= 0 || r.DetailURL == "" {
		return "", ErrCaptionInput
	}

	tag := tagCleaner.ReplaceAllString(r.Category, "")
	if tag == "" {
		tag = "AmazonFinds"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔥 %d%% OFF! 🔥\n\n", r.DiscountPercent)
	fmt.Fprintf(&b, "%s\n", CleanTitle(r.Title))
	fmt.Fprintf(&b, "💰 %s%d  ~%s%d~\n", r.Currency, r.Price, r.Currency, r.OriginalPrice)
	fmt.Fprintf(&b, "💸 Save %s%d\n\n", r.Currency, r.SavingsAmount)
	fmt.Fprintf(&b, "🛒 Buy now: %s\n\n", r.DetailURL)
	fmt.Fprintf(&b, "#%s #AmazonDeals #Sale", tag)
	return b.String(), nil
}

func groupCaption(g *models.DealGroup) (string, error) {
	if len(g.Items) == 0 {
		return "", ErrCaptionInput
	}

	tag := tagCleaner.ReplaceAllString(g.Category, "")
	if tag == "" {
		tag = "Deals"
	}

	items := g.Items
	if len(items) > maxGroupBullets {
		items = items[:maxGroupBullets]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔥 Top %d %s Deals 🔥\n\n", len(items), tag)
	if g.Title != "" {
		fmt.Fprintf(&b, "%s\n\n", g.Title)
	}
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s - %d%% off - %s%d\n", i+1, CleanTitle(it.Title), it.DiscountPercent, it.Currency, it.Price)
	}
	b.WriteString("\n🛒 Shop all deals 👇\n")
	for i, it := range items {
		if it.DetailURL == "" {
			continue
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, it.DetailURL)
	}
	fmt.Fprintf(&b, "\n#AmazonDeals #TopPicks #%s", tag)
	return b.String(), nil
}
