// Package store persists canonical product records in sqlite, keyed by
// the upstream product id. Updates are field-level merges so a phase-1
// refetch never wipes enrichment or posting state written later.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dealhunter-base/pkg/logger"
	"dealhunter-base/pkg/models"
)

const schema = `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT NOT NULL PRIMARY KEY,
		title TEXT NOT NULL,
		detail_url TEXT NOT NULL,
		image_url TEXT NOT NULL DEFAULT '',
		brand TEXT NOT NULL DEFAULT '',
		price INTEGER NOT NULL,
		original_price INTEGER NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		discount_percent INTEGER NOT NULL DEFAULT 0,
		savings_amount INTEGER NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT '',
		niche_id TEXT NOT NULL DEFAULT '',
		features TEXT NOT NULL DEFAULT '[]',
		sales_rank INTEGER NOT NULL DEFAULT 0,
		star_rating REAL NOT NULL DEFAULT 0,
		ratings_count INTEGER NOT NULL DEFAULT 0,
		is_prime INTEGER NOT NULL DEFAULT 0,
		availability TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'PENDING_ENRICHMENT',
		last_updated DATETIME NOT NULL,
		is_posted INTEGER NOT NULL DEFAULT 0,
		times_posted INTEGER NOT NULL DEFAULT 0,
		last_posted_at DATETIME,
		schedule_job_id TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_products_posted ON products (is_posted, discount_percent);
	CREATE INDEX IF NOT EXISTS idx_products_status ON products (status);
`

// upsertSQL merges the refetchable columns and deliberately leaves
// is_posted/times_posted/last_posted_at untouched on conflict. Columns
// filled by the enrichment pass only advance: an empty incoming value
// never clears a stored one, and status never moves backwards from
// ENRICHED or POST_GENERATED.
const upsertSQL = `
	INSERT INTO products (
		id, title, detail_url, image_url, brand,
		price, original_price, currency, discount_percent, savings_amount,
		category, niche_id, features, sales_rank, star_rating, ratings_count,
		is_prime, availability, status, last_updated
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		detail_url = excluded.detail_url,
		image_url = CASE WHEN excluded.image_url != '' THEN excluded.image_url ELSE products.image_url END,
		brand = CASE WHEN excluded.brand != '' THEN excluded.brand ELSE products.brand END,
		price = excluded.price,
		original_price = excluded.original_price,
		currency = excluded.currency,
		discount_percent = excluded.discount_percent,
		savings_amount = excluded.savings_amount,
		category = excluded.category,
		niche_id = CASE WHEN excluded.niche_id != '' THEN excluded.niche_id ELSE products.niche_id END,
		features = CASE WHEN excluded.features != '[]' THEN excluded.features ELSE products.features END,
		sales_rank = CASE WHEN excluded.sales_rank > 0 THEN excluded.sales_rank ELSE products.sales_rank END,
		star_rating = CASE WHEN excluded.star_rating > 0 THEN excluded.star_rating ELSE products.star_rating END,
		ratings_count = CASE WHEN excluded.ratings_count > 0 THEN excluded.ratings_count ELSE products.ratings_count END,
		is_prime = excluded.is_prime,
		availability = excluded.availability,
		status = CASE WHEN products.status = 'PENDING_ENRICHMENT' THEN excluded.status ELSE products.status END,
		last_updated = excluded.last_updated
`

type Store struct {
	db *sql.DB

	// fallbackDelay paces the per-record path so storage is not
	// hammered right after a bulk failure.
	fallbackDelay time.Duration

	// beginTx is swappable in tests to force the bulk path to fail.
	beginTx func() (*sql.Tx, error)
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, fallbackDelay: 15 * time.Millisecond}
	s.beginTx = db.Begin
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func upsertArgs(r models.ProductRecord) []any {
	features, err := json.Marshal(r.Features)
	if err != nil || r.Features == nil {
		features = []byte("[]")
	}
	status := r.Status
	if status == "" {
		status = models.StatusPendingEnrichment
	}
	return []any{
		r.ID, r.Title, r.DetailURL, r.ImageURL, r.Brand,
		r.Price, r.OriginalPrice, r.Currency, r.DiscountPercent, r.SavingsAmount,
		r.Category, r.NicheID, string(features), r.SalesRank, r.StarRating, r.RatingsCount,
		boolToInt(r.IsPrimeEligible), r.Availability, string(status), r.LastUpdated,
	}
}

// UpsertBatch writes all records in one transaction. When the bulk
// attempt fails it falls back to per-record upserts so one bad record
// cannot sink the batch; partial success is counted and returned.
func (s *Store) UpsertBatch(records []models.ProductRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	if err := s.upsertBulk(records); err == nil {
		return len(records), nil
	} else {
		log.Printf("Store: bulk upsert of %d records failed: %v. Falling back to per-record upserts.", len(records), err)
	}

	saved := 0
	for _, r := range records {
		if _, err := s.db.Exec(upsertSQL, upsertArgs(r)...); err != nil {
			logger.Debugf("Store: failed to upsert record %s: %v", r.ID, err)
			continue
		}
		saved++
		time.Sleep(s.fallbackDelay)
	}
	return saved, nil
}

func (s *Store) upsertBulk(records []models.ProductRecord) error {
	tx, err := s.beginTx()
	if err != nil {
		return err
	}
	for _, r := range records {
		if _, err := tx.Exec(upsertSQL, upsertArgs(r)...); err != nil {
			tx.Rollback()
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

const selectCols = `
	id, title, detail_url, image_url, brand,
	price, original_price, currency, discount_percent, savings_amount,
	category, niche_id, features, sales_rank, star_rating, ratings_count,
	is_prime, availability, status, last_updated,
	is_posted, times_posted, last_posted_at
`

func scanRecord(rows *sql.Rows) (models.ProductRecord, error) {
	var r models.ProductRecord
	var features string
	var isPrime, isPosted int
	var status string
	var lastPostedAt sql.NullTime

	err := rows.Scan(
		&r.ID, &r.Title, &r.DetailURL, &r.ImageURL, &r.Brand,
		&r.Price, &r.OriginalPrice, &r.Currency, &r.DiscountPercent, &r.SavingsAmount,
		&r.Category, &r.NicheID, &features, &r.SalesRank, &r.StarRating, &r.RatingsCount,
		&isPrime, &r.Availability, &status, &r.LastUpdated,
		&isPosted, &r.TimesPosted, &lastPostedAt,
	)
	if err != nil {
		return r, err
	}

	if err := json.Unmarshal([]byte(features), &r.Features); err != nil {
		r.Features = nil
	}
	r.IsPrimeEligible = isPrime != 0
	r.IsPosted = isPosted != 0
	r.Status = models.Status(status)
	if lastPostedAt.Valid {
		r.LastPostedAt = lastPostedAt.Time
	}
	return r, nil
}

func (s *Store) queryRecords(query string, args ...any) ([]models.ProductRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ProductRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Unposted returns up to limit unposted records, best discounts first,
// freshest first within equal discounts.
func (s *Store) Unposted(limit int) ([]models.ProductRecord, error) {
	return s.queryRecords(
		`SELECT `+selectCols+` FROM products
		 WHERE is_posted = 0
		 ORDER BY discount_percent DESC, last_updated DESC
		 LIMIT ?`, limit)
}

// PendingEnrichment returns records still waiting for the second-phase
// detail pass.
func (s *Store) PendingEnrichment(limit int) ([]models.ProductRecord, error) {
	return s.queryRecords(
		`SELECT `+selectCols+` FROM products
		 WHERE status = ?
		 LIMIT ?`, string(models.StatusPendingEnrichment), limit)
}

// Get fetches one record by id.
func (s *Store) Get(id string) (models.ProductRecord, bool) {
	recs, err := s.queryRecords(`SELECT `+selectCols+` FROM products WHERE id = ?`, id)
	if err != nil || len(recs) == 0 {
		return models.ProductRecord{}, false
	}
	return recs[0], true
}

// MarkPosted flags every id as posted with the scheduled time and the
// scheduler job id, bumping times_posted.
func (s *Store) MarkPosted(ids []string, jobID string, scheduledAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := []any{string(models.StatusPostGenerated), scheduledAt, jobID}
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.db.Exec(
		`UPDATE products SET
			is_posted = 1,
			times_posted = times_posted + 1,
			status = ?,
			last_posted_at = ?,
			schedule_job_id = ?
		 WHERE id IN (`+placeholders+`)`, args...)
	return err
}

// Enrichment carries the fields filled by the detail-page pass. Empty
// values leave the stored column alone.
type Enrichment struct {
	ImageURL  string
	Brand     string
	Features  []string
	SalesRank int
	NicheID   string
}

// SaveEnrichment merges e into the record and advances its status to
// ENRICHED.
func (s *Store) SaveEnrichment(id string, e Enrichment, now time.Time) error {
	features, err := json.Marshal(e.Features)
	if err != nil || e.Features == nil {
		features = []byte("[]")
	}
	_, err = s.db.Exec(
		`UPDATE products SET
			image_url = CASE WHEN ? != '' THEN ? ELSE image_url END,
			brand = CASE WHEN ? != '' THEN ? ELSE brand END,
			features = CASE WHEN ? != '[]' THEN ? ELSE features END,
			sales_rank = CASE WHEN ? > 0 THEN ? ELSE sales_rank END,
			niche_id = CASE WHEN ? != '' THEN ? ELSE niche_id END,
			status = ?,
			last_updated = ?
		 WHERE id = ?`,
		e.ImageURL, e.ImageURL,
		e.Brand, e.Brand,
		string(features), string(features),
		e.SalesRank, e.SalesRank,
		e.NicheID, e.NicheID,
		string(models.StatusEnriched), now, id)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
