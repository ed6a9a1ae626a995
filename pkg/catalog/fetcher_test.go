package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealhunter-base/pkg/cache"
	"dealhunter-base/pkg/keywords"
	"dealhunter-base/pkg/ratelimit"
)

type fakeClient struct {
	fn    func(req SearchRequest) (*SearchResult, error)
	calls []SearchRequest
}

func (f *fakeClient) Search(_ context.Context, req SearchRequest) (*SearchResult, error) {
	f.calls = append(f.calls, req)
	return f.fn(req)
}

func rawItem(asin string) RawItem {
	return RawItem{
		ASIN:          asin,
		DetailPageURL: "https://example.com/dp/" + asin,
		ItemInfo:      &ItemInfo{Title: &DisplayValue{DisplayValue: "Item " + asin}},
	}
}

func newTestFetcher(t *testing.T, client SearchClient) *Fetcher {
	t.Helper()
	c, err := cache.New(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	policy := ratelimit.Policy{
		MaxAttempts:   3,
		RateLimitBase: time.Millisecond,
		RateLimitCap:  time.Millisecond,
		TransientBase: time.Millisecond,
	}
	kw := keywords.NewBuilder(nil, map[string]string{"Electronics": "wireless earbuds"})

	f := NewFetcher(client, c, ratelimit.NewLimiter(1000), policy, kw, FetcherOptions{
		Marketplace: "www.example.com",
		CacheTTL:    time.Minute,
		ProbeTTL:    time.Minute,
	})
	f.sleep = func(context.Context, time.Duration) bool { return true }
	return f
}

func TestAllCandidatesEmptyYieldsEmptyResultWithoutError(t *testing.T) {
	client := &fakeClient{fn: func(SearchRequest) (*SearchResult, error) {
		return &SearchResult{}, nil
	}}
	f := newTestFetcher(t, client)

	items := f.FetchCategory(context.Background(), "Electronics", 10)
	assert.Empty(t, items)
	assert.Greater(t, len(client.calls), 1, "multiple candidates probed")
	assert.Equal(t, "wireless earbuds", client.calls[0].Keywords, "override tried first")
}

func TestProbeThenFullFetchCachesResult(t *testing.T) {
	full := []RawItem{rawItem("A1"), rawItem("A2"), rawItem("A3")}
	client := &fakeClient{fn: func(req SearchRequest) (*SearchResult, error) {
		if req.ItemCount == 1 {
			return &SearchResult{Items: full[:1]}, nil
		}
		return &SearchResult{Items: full}, nil
	}}
	f := newTestFetcher(t, client)

	items := f.FetchCategory(context.Background(), "Electronics", 3)
	require.Len(t, items, 3)

	require.Len(t, client.calls, 2)
	assert.Equal(t, 1, client.calls[0].ItemCount, "probe is minimal")
	assert.Equal(t, safeResources, client.calls[0].Resources)
	assert.Equal(t, 3, client.calls[1].ItemCount)

	// Second fetch is a cache hit; no further upstream calls.
	again := f.FetchCategory(context.Background(), "Electronics", 3)
	assert.Len(t, again, 3)
	assert.Len(t, client.calls, 2)
}

func TestCachedProbeKeywordTriedFirst(t *testing.T) {
	client := &fakeClient{fn: func(SearchRequest) (*SearchResult, error) {
		return &SearchResult{}, nil
	}}
	f := newTestFetcher(t, client)

	f.cache.SetJSON("catalog:probe:Electronics:www.example.com", ProbeCacheEntry{
		Category: "Electronics",
		Keyword:  "soundbar",
	}, time.Minute)

	f.FetchCategory(context.Background(), "Electronics", 10)
	require.NotEmpty(t, client.calls)
	assert.Equal(t, "soundbar", client.calls[0].Keywords)
}

func TestSoftRateLimitInProbeBodyRetriesSameVariant(t *testing.T) {
	failures := 0
	client := &fakeClient{fn: func(req SearchRequest) (*SearchResult, error) {
		if req.ItemCount == 1 && failures < 2 {
			failures++
			return &SearchResult{Errors: []APIMessage{{Code: "TooManyRequests", Message: "rate limit exceeded"}}}, nil
		}
		return &SearchResult{Items: []RawItem{rawItem("A1")}}, nil
	}}
	f := newTestFetcher(t, client)

	items := f.FetchCategory(context.Background(), "Electronics", 1)
	require.Len(t, items, 1)
	assert.Equal(t, 2, failures)
}

func TestResourceComplaintFallsBackToSafeSet(t *testing.T) {
	fullSet := []string{
		"ItemInfo.Title", "Images.Primary.Large", "Offers.Listings.Price",
		"Offers.Listings.SavingBasis", "ItemInfo.Features", "ItemInfo.ByLineInfo",
	}
	client := &fakeClient{fn: func(req SearchRequest) (*SearchResult, error) {
		switch {
		case req.ItemCount == 1:
			return &SearchResult{Items: []RawItem{rawItem("A1")}}, nil
		case len(req.Resources) > len(safeResources):
			return &SearchResult{Errors: []APIMessage{{Code: "InvalidParameterValue", Message: "unsupported resource requested"}}}, nil
		default:
			return &SearchResult{Items: []RawItem{rawItem("A1"), rawItem("A2")}}, nil
		}
	}}
	f := newTestFetcher(t, client)
	f.resources = fullSet

	items := f.FetchCategory(context.Background(), "Electronics", 10)
	require.Len(t, items, 2)

	last := client.calls[len(client.calls)-1]
	assert.Equal(t, safeResources, last.Resources)
	assert.LessOrEqual(t, last.ItemCount, 4)
}

func TestFatalErrorSkipsToNextCandidateWithoutRetry(t *testing.T) {
	client := &fakeClient{fn: func(SearchRequest) (*SearchResult, error) {
		return nil, errors.New("invalid signature")
	}}
	f := newTestFetcher(t, client)

	items := f.FetchCategory(context.Background(), "Electronics", 10)
	assert.Empty(t, items)

	// One probe per candidate keyword: fatal errors do not retry.
	seen := map[string]int{}
	for _, call := range client.calls {
		seen[call.Keywords]++
	}
	for kw, n := range seen {
		assert.Equalf(t, 1, n, "keyword %q retried after fatal error", kw)
	}
}

func TestBrowseNodeVariantTriedFirstThenWithout(t *testing.T) {
	client := &fakeClient{fn: func(req SearchRequest) (*SearchResult, error) {
		if req.BrowseNodeID != "" {
			return &SearchResult{}, nil
		}
		if req.ItemCount == 1 {
			return &SearchResult{Items: []RawItem{rawItem("A1")}}, nil
		}
		return &SearchResult{Items: []RawItem{rawItem("A1"), rawItem("A2")}}, nil
	}}
	f := newTestFetcher(t, client)
	f.browseNodes = map[string]string{"Electronics": "17467377031"}

	items := f.FetchCategory(context.Background(), "Electronics", 2)
	require.Len(t, items, 2)
	assert.Equal(t, "17467377031", client.calls[0].BrowseNodeID)
	assert.Equal(t, "", client.calls[1].BrowseNodeID)
}
