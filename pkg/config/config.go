// Package config collects every runtime knob from the environment into
// one immutable value constructed at startup and passed by parameter
// into each component.
package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string
	TestMode bool

	CacheDBPath     string
	CacheTTL        time.Duration
	ProbeCacheTTL   time.Duration
	StoreDBPath     string
	ExportDir       string
	PosterOutputDir string

	CronSchedule string
	Timezone     string

	Catalog    CatalogConfig
	Publishing PublishingConfig
	Decision   DecisionConfig
	Publer     PublerConfig
	Email      EmailConfig
}

// CatalogConfig tunes the upstream search flow.
type CatalogConfig struct {
	Endpoint    string
	AccessKey   string
	SecretKey   string
	PartnerTag  string
	Marketplace string

	Categories []string
	ItemCount  int

	RequestsPerSecond int
	MaxRetries        int
	Workers           int

	CategoryFetchDelay time.Duration
	DisabledRatio      float64
	RandomizeItemPage  bool

	MinDiscountPercent int
	DefaultCurrency    string

	KeywordRotation  map[string][]string
	KeywordOverrides map[string]string
	BrowseNodes      map[string]string
	Resources        []string
}

type PublishingConfig struct {
	MaxPostsPerDay      int
	MaxPostsPerCategory int
	GroupSize           int
	PostInterval        time.Duration
	UnpostedWindow      int
	MinPrice            int
}

// DecisionConfig gates generative poster creation.
type DecisionConfig struct {
	DiscountMin     int
	PriceMin        int
	ScoreThreshold  int
	MaxPerRun       int
	DailyImageQuota int
}

type PublerConfig struct {
	Endpoint    string
	APIKey      string
	WorkspaceID string
	Accounts    []string
}

type EmailConfig struct {
	Host    string
	Port    int
	User    string
	Pass    string
	To      string
	Enabled bool
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatenv(key string, def float64) float64 {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func boolenv(key string) bool {
	return getenv(key, "") == "true"
}

func listenv(key string, def []string) []string {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// jsonenv decodes a JSON-valued env var into out, leaving out untouched
// on absence or parse failure.
func jsonenv(key string, out any) {
	v := getenv(key, "")
	if v == "" {
		return
	}
	if err := json.Unmarshal([]byte(v), out); err != nil {
		log.Printf("Config: ignoring malformed %s: %v", key, err)
	}
}

// Default keyword overrides kept as a safety net when no rotation or
// explicit override is configured for a category.
var defaultKeywordOverrides = map[string]string{
	"Electronics":           "wireless earbuds",
	"Fashion":               "mens t-shirt",
	"Beauty":                "face serum",
	"HomeAndKitchen":        "non-stick cookware",
	"ToysAndGames":          "lego set",
	"Computers":             "gaming laptop",
	"Books":                 "bestselling fiction",
	"GroceryAndGourmetFood": "snacks",
}

var defaultResources = []string{
	"ItemInfo.Title",
	"Images.Primary.Large",
	"Offers.Listings.Price",
	"Offers.Listings.SavingBasis",
	"ItemInfo.ByLineInfo",
	"ItemInfo.Features",
	"BrowseNodeInfo.BrowseNodes.SalesRank",
	"Offers.Listings.Availability.Message",
	"Offers.Listings.DeliveryInfo.IsPrimeEligible",
}

// Load collects configuration from environment with defaults.
func Load() Config {
	rotation := map[string][]string{}
	jsonenv("CATALOG_KEYWORDS_ROTATION_JSON", &rotation)

	overrides := map[string]string{}
	for k, v := range defaultKeywordOverrides {
		overrides[k] = v
	}
	jsonenv("CATALOG_KEYWORDS_OVERRIDE_JSON", &overrides)

	browseNodes := map[string]string{}
	jsonenv("CATALOG_BROWSE_NODES_JSON", &browseNodes)

	return Config{
		HTTPAddr: getenv("HTTP_ADDR", ":9090"),
		TestMode: boolenv("TEST_MODE"),

		CacheDBPath:     getenv("CACHE_DB_PATH", "./cache.db"),
		CacheTTL:        time.Duration(atoienv("CACHE_TTL_SECONDS", 6*60*60)) * time.Second,
		ProbeCacheTTL:   time.Duration(atoienv("PROBE_CACHE_TTL_SECONDS", 12*60*60)) * time.Second,
		StoreDBPath:     getenv("STORE_DB_PATH", "./deals.db"),
		ExportDir:       getenv("EXPORT_DIR", "./exports"),
		PosterOutputDir: getenv("POSTER_OUTPUT_DIR", "./posters"),

		CronSchedule: getenv("CRON_SCHEDULE", "0 */6 * * *"),
		Timezone:     getenv("TIMEZONE", "UTC"),

		Catalog: CatalogConfig{
			Endpoint:    getenv("CATALOG_ENDPOINT", "https://webservices.amazon.in/paapi5"),
			AccessKey:   getenv("CATALOG_ACCESS_KEY", ""),
			SecretKey:   getenv("CATALOG_SECRET_KEY", ""),
			PartnerTag:  getenv("CATALOG_PARTNER_TAG", ""),
			Marketplace: getenv("CATALOG_MARKETPLACE", "www.amazon.com"),

			Categories: listenv("CATALOG_CATEGORIES", []string{"Electronics", "Fashion", "Beauty"}),
			ItemCount:  atoienv("CATALOG_ITEM_COUNT", 10),

			RequestsPerSecond: atoienv("CATALOG_RPS", 1),
			MaxRetries:        atoienv("CATALOG_MAX_RETRIES", 5),
			Workers:           atoienv("CATALOG_WORKERS", 1),

			CategoryFetchDelay: time.Duration(atoienv("CATALOG_CATEGORY_DELAY_MS", 1800)) * time.Millisecond,
			DisabledRatio:      floatenv("CATALOG_DISABLED_RATIO", 0.6),
			RandomizeItemPage:  boolenv("CATALOG_RANDOMIZE_ITEM_PAGE"),

			MinDiscountPercent: atoienv("MIN_DISCOUNT_PERCENT", 10),
			DefaultCurrency:    getenv("CATALOG_DEFAULT_CURRENCY", "₹"),

			KeywordRotation:  rotation,
			KeywordOverrides: overrides,
			BrowseNodes:      browseNodes,
			Resources:        listenv("CATALOG_RESOURCES", defaultResources),
		},

		Publishing: PublishingConfig{
			MaxPostsPerDay:      atoienv("PUBLISHING_MAX_POSTS_PER_DAY", 50),
			MaxPostsPerCategory: atoienv("PUBLISHING_MAX_POSTS_PER_CATEGORY", 5),
			GroupSize:           atoienv("PUBLISHING_GROUP_SIZE", 4),
			PostInterval:        time.Duration(atoienv("PUBLISHING_POST_INTERVAL_MINUTES", 5)) * time.Minute,
			UnpostedWindow:      atoienv("PUBLISHING_UNPOSTED_WINDOW", 400),
			MinPrice:            atoienv("PUBLISHING_MIN_PRICE", 100),
		},

		Decision: DecisionConfig{
			DiscountMin:     atoienv("IMAGE_DECISION_DISCOUNT_MIN", 40),
			PriceMin:        atoienv("IMAGE_DECISION_PRICE_MIN", 500),
			ScoreThreshold:  atoienv("IMAGE_DECISION_SCORE_THRESHOLD", 5),
			MaxPerRun:       atoienv("IMAGE_DECISION_MAX_PER_RUN", 5),
			DailyImageQuota: atoienv("DAILY_IMAGE_QUOTA", 10),
		},

		Publer: PublerConfig{
			Endpoint:    getenv("PUBLER_ENDPOINT", "https://app.publer.com/api/v1"),
			APIKey:      getenv("PUBLER_API_KEY", ""),
			WorkspaceID: getenv("PUBLER_WORKSPACE_ID", ""),
			Accounts:    listenv("PUBLER_ACCOUNTS", nil),
		},

		Email: EmailConfig{
			Host:    getenv("EMAIL_HOST", ""),
			Port:    atoienv("EMAIL_PORT", 587),
			User:    getenv("EMAIL_USER", ""),
			Pass:    getenv("EMAIL_PASS", ""),
			To:      getenv("EMAIL_TO", ""),
			Enabled: getenv("EMAIL_HOST", "") != "",
		},
	}
}
