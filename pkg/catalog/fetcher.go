package catalog

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"regexp"
	"time"

	"dealhunter-base/pkg/cache"
	"dealhunter-base/pkg/keywords"
	"dealhunter-base/pkg/logger"
	"dealhunter-base/pkg/ratelimit"
)

// safeResources is the minimal field set known to work on every
// marketplace. Probes always use it; full fetches fall back to it when
// the configured set is rejected.
var safeResources = []string{
	"ItemInfo.Title",
	"Images.Primary.Large",
	"Offers.Listings.Price",
	"Offers.Listings.SavingBasis",
}

var (
	softRateLimitPattern = regexp.MustCompile(`(?i)rate ?limit|too many requests|429|throttl`)
	softResourcePattern  = regexp.MustCompile(`(?i)resource`)
)

// Fetcher runs the two-phase probe-then-full search for a category,
// walking keyword candidates and browse-node variants until one yields
// results. Successful probes and full result sets are cached.
type Fetcher struct {
	client  SearchClient
	cache   *cache.Cache
	limiter *ratelimit.Limiter
	policy  ratelimit.Policy
	kw      *keywords.Builder

	marketplace   string
	browseNodes   map[string]string
	resources     []string
	cacheTTL      time.Duration
	probeTTL      time.Duration
	randomizePage bool

	// sleep and now are swappable in tests.
	sleep func(ctx context.Context, d time.Duration) bool
	now   func() time.Time
}

type FetcherOptions struct {
	Marketplace   string
	BrowseNodes   map[string]string
	Resources     []string
	CacheTTL      time.Duration
	ProbeTTL      time.Duration
	RandomizePage bool
}

func NewFetcher(client SearchClient, c *cache.Cache, limiter *ratelimit.Limiter, policy ratelimit.Policy, kw *keywords.Builder, opts FetcherOptions) *Fetcher {
	return &Fetcher{
		client:        client,
		cache:         c,
		limiter:       limiter,
		policy:        policy,
		kw:            kw,
		marketplace:   opts.Marketplace,
		browseNodes:   opts.BrowseNodes,
		resources:     opts.Resources,
		cacheTTL:      opts.CacheTTL,
		probeTTL:      opts.ProbeTTL,
		randomizePage: opts.RandomizePage,
		sleep:         sleepCtx,
		now:           time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

// FetchCategory returns up to itemCount raw items for category. An
// exhausted candidate list yields an empty slice, never an error:
// downstream treats zero items as "category yielded nothing this run".
func (f *Fetcher) FetchCategory(ctx context.Context, category string, itemCount int) []RawItem {
	if itemCount < 1 || itemCount > 10 {
		itemCount = 10
	}

	cacheKey := fmt.Sprintf("catalog:%s:%d:%s", category, itemCount, f.marketplace)
	var cached []RawItem
	if f.cache.GetJSON(cacheKey, &cached) && len(cached) > 0 {
		logger.Dedup("Serving %s from cache, skipping upstream call", category)
		return cached
	}

	candidates := f.kw.Candidates(category, f.now())

	probeKey := fmt.Sprintf("catalog:probe:%s:%s", category, f.marketplace)
	var lastProbe ProbeCacheEntry
	if f.cache.GetJSON(probeKey, &lastProbe) && lastProbe.Keyword != "" {
		candidates = promote(candidates, lastProbe.Keyword)
		log.Printf("Catalog: reusing cached probe keyword for %s: %q", category, lastProbe.Keyword)
	}

	browseNode := f.browseNodes[category]

	for _, keyword := range candidates {
		nodeVariants := []string{""}
		if browseNode != "" {
			nodeVariants = []string{browseNode, ""}
		}
		for _, node := range nodeVariants {
			items, ok := f.tryVariant(ctx, category, keyword, node, itemCount, cacheKey, probeKey)
			if ok {
				return items
			}
			if ctx.Err() != nil {
				return nil
			}
		}
	}

	log.Printf("Catalog: no keyword candidate yielded items for %s; returning empty result", category)
	return nil
}

// tryVariant runs the probe/full sequence for one keyword+node
// combination, retrying rate-limited and transient failures up to the
// attempt limit. ok is false when the variant should be skipped.
func (f *Fetcher) tryVariant(ctx context.Context, category, keyword, node string, itemCount int, cacheKey, probeKey string) ([]RawItem, bool) {
	probe := SearchRequest{
		SearchIndex:  category,
		Keywords:     keyword,
		ItemCount:    1,
		ItemPage:     f.itemPage(),
		BrowseNodeID: node,
		Resources:    safeResources,
	}

	for attempt := 1; attempt <= f.policy.MaxAttempts; attempt++ {
		if err := f.limiter.AcquireSlot(ctx); err != nil {
			return nil, false
		}

		log.Printf("Catalog: probing %s attempt %d keyword=%q node=%q", category, attempt, keyword, node)
		resp, err := f.client.Search(ctx, probe)
		if err != nil {
			if !f.backoffOrBail(ctx, category, err, attempt) {
				return nil, false
			}
			continue
		}

		if len(resp.Errors) > 0 {
			if f.isSoftRateLimit(resp.Errors) && attempt < f.policy.MaxAttempts {
				wait, _ := f.policy.Backoff(ratelimit.ClassRateLimited, attempt)
				log.Printf("Catalog: probe for %s reported rate limiting in response body; backing off %s", category, wait)
				if !f.sleep(ctx, wait) {
					return nil, false
				}
				continue
			}
			log.Printf("Catalog: probe for %s returned soft errors: %v", category, resp.Errors)
			return nil, false
		}

		if len(resp.Items) == 0 {
			log.Printf("Catalog: probe returned no items for keyword %q (node %q); trying next variant", keyword, node)
			return nil, false
		}

		// Probe success: remember the winning variant, then spend the
		// larger field set on a full fetch.
		f.cache.SetJSON(probeKey, ProbeCacheEntry{
			Category:     category,
			Keyword:      keyword,
			BrowseNodeID: node,
		}, f.probeTTL)

		if !f.sleep(ctx, politeDelay()) {
			return nil, false
		}

		items, ok := f.fullFetch(ctx, category, probe, itemCount)
		if !ok {
			return nil, false
		}
		f.cache.SetJSON(cacheKey, items, f.cacheTTL)
		log.Printf("Catalog: fetched %d raw items for %s (keyword %q)", len(items), category, keyword)
		return items, true
	}

	log.Printf("Catalog: attempts exhausted for %s keyword=%q node=%q", category, keyword, node)
	return nil, false
}

func (f *Fetcher) fullFetch(ctx context.Context, category string, probe SearchRequest, itemCount int) ([]RawItem, bool) {
	full := probe
	full.ItemCount = clamp(itemCount, 1, 10)
	full.ItemPage = f.itemPage()
	full.Resources = f.effectiveResources()

	if err := f.limiter.AcquireSlot(ctx); err != nil {
		return nil, false
	}
	log.Printf("Catalog: full fetch for %s ItemCount=%d Resources=%d", category, full.ItemCount, len(full.Resources))

	resp, err := f.client.Search(ctx, full)
	if err != nil {
		class := ratelimit.Classify(err)
		log.Printf("Catalog: full fetch for %s failed (%s): %v", category, class, err)
		return nil, false
	}

	if len(resp.Errors) > 0 {
		log.Printf("Catalog: full fetch for %s returned soft errors: %v", category, resp.Errors)
		if f.isResourceComplaint(resp.Errors) && len(full.Resources) > len(safeResources) {
			return f.reducedFetch(ctx, category, full)
		}
		return nil, false
	}

	return resp.Items, true
}

// reducedFetch retries exactly once with the safe field set and a
// smaller item count after a full fetch complained about resources.
func (f *Fetcher) reducedFetch(ctx context.Context, category string, full SearchRequest) ([]RawItem, bool) {
	reduced := full
	reduced.Resources = safeResources
	if reduced.ItemCount > 4 {
		reduced.ItemCount = 4
	}

	log.Printf("Catalog: retrying %s with safe resources and ItemCount=%d", category, reduced.ItemCount)
	if !f.sleep(ctx, 500*time.Millisecond) {
		return nil, false
	}
	if err := f.limiter.AcquireSlot(ctx); err != nil {
		return nil, false
	}

	resp, err := f.client.Search(ctx, reduced)
	if err != nil || len(resp.Errors) > 0 {
		log.Printf("Catalog: reduced fetch for %s also failed", category)
		return nil, false
	}
	return resp.Items, true
}

// backoffOrBail sleeps per the retry policy and reports whether the
// caller should attempt again.
func (f *Fetcher) backoffOrBail(ctx context.Context, category string, err error, attempt int) bool {
	class := ratelimit.Classify(err)
	wait, retry := f.policy.Backoff(class, attempt)
	if !retry || attempt >= f.policy.MaxAttempts {
		log.Printf("Catalog: giving up on %s after attempt %d (%s): %v", category, attempt, class, err)
		return false
	}
	log.Printf("Catalog: %s error for %s; waiting %s before attempt %d", class, category, wait, attempt+1)
	return f.sleep(ctx, wait)
}

func (f *Fetcher) isSoftRateLimit(msgs []APIMessage) bool {
	for _, m := range msgs {
		if softRateLimitPattern.MatchString(m.Code) || softRateLimitPattern.MatchString(m.Message) {
			return true
		}
	}
	return false
}

func (f *Fetcher) isResourceComplaint(msgs []APIMessage) bool {
	for _, m := range msgs {
		if softResourcePattern.MatchString(m.Code) || softResourcePattern.MatchString(m.Message) {
			return true
		}
	}
	return false
}

// effectiveResources uses the configured field set when it is present
// and small enough, otherwise the safe set.
func (f *Fetcher) effectiveResources() []string {
	if n := len(f.resources); n > 0 && n <= 10 {
		return f.resources
	}
	return safeResources
}

// itemPage is 1, or 1..3 when page randomization is on (reduces stale
// repeated results day over day).
func (f *Fetcher) itemPage() int {
	if f.randomizePage {
		return 1 + rand.Intn(3)
	}
	return 1
}

// politeDelay spaces the probe and the full fetch apart a little.
func politeDelay() time.Duration {
	return 200*time.Millisecond + time.Duration(rand.Intn(300))*time.Millisecond
}

// promote moves keyword to the front of candidates, inserting it when
// absent.
func promote(candidates []string, keyword string) []string {
	out := []string{keyword}
	for _, c := range candidates {
		if c != keyword {
			out = append(out, c)
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
