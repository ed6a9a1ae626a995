// Package export writes deal snapshots as timestamped CSV files.
package export

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"dealhunter-base/pkg/models"
)

var csvHeader = []string{
	"ID", "Product Title", "Current Price", "Original Price", "Currency",
	"Discount %", "Savings Amount", "URL", "Image URL", "Category", "Brand", "Prime",
}

// WriteCSV dumps records into a new timestamped file under dir and
// returns its path. An empty record set writes nothing.
func WriteCSV(dir string, records []models.ProductRecord, now time.Time) (string, error) {
	if len(records) == 0 {
		log.Print("Export: no records, skipping CSV")
		return "", nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	name := fmt.Sprintf("deals_%s.csv", now.UTC().Format("2006-01-02T15-04-05"))
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return "", err
	}
	for _, r := range records {
		row := []string{
			r.ID,
			r.Title,
			strconv.Itoa(r.Price),
			strconv.Itoa(r.OriginalPrice),
			r.Currency,
			strconv.Itoa(r.DiscountPercent),
			strconv.Itoa(r.SavingsAmount),
			r.DetailURL,
			r.ImageURL,
			r.Category,
			r.Brand,
			strconv.FormatBool(r.IsPrimeEligible),
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	log.Printf("Export: wrote %d deals to %s", len(records), path)
	return path, nil
}
