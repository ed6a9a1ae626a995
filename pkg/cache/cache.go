// Package cache is a sqlite-backed key/value cache with per-entry TTL.
// It memoizes successful probe variants and full search results between
// pipeline runs.
package cache

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

type Cache struct {
	db *sql.DB
}

func New(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT NOT NULL PRIMARY KEY,
			value BLOB NOT NULL,
			expires_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{db: db}, nil
}

// Get returns the cached value, or false when the key is absent or its
// TTL has elapsed. Expired rows are removed lazily.
func (c *Cache) Get(key string) ([]byte, bool) {
	var value []byte
	var expiresAt time.Time

	err := c.db.QueryRow(
		`SELECT value, expires_at FROM kv WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if err != nil {
		return nil, false
	}

	if time.Now().After(expiresAt) {
		c.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
		return nil, false
	}

	return value, true
}

// Set stores value under key for ttl. Write failures are logged and
// swallowed; a cold cache only costs extra upstream calls.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) {
	_, err := c.db.Exec(
		`INSERT INTO kv (key, value, expires_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(key)
		 DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, time.Now().Add(ttl),
	)
	if err != nil {
		log.Printf("Cache: failed to store key %s: %v", key, err)
	}
}

// GetJSON unmarshals the cached value into v, treating decode failures
// as misses.
func (c *Cache) GetJSON(key string, v any) bool {
	raw, ok := c.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		log.Printf("Cache: failed to unmarshal key %s: %v", key, err)
		return false
	}
	return true
}

func (c *Cache) SetJSON(key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Printf("Cache: failed to marshal key %s: %v", key, err)
		return
	}
	c.Set(key, raw, ttl)
}

func (c *Cache) Close() error {
	return c.db.Close()
}
