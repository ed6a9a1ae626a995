package pipeline

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"dealhunter-base/pkg/catalog"
	"dealhunter-base/pkg/logger"
	"dealhunter-base/pkg/models"
)

// CategoryFetcher yields raw items for one category. An empty slice
// means the category produced nothing this run.
type CategoryFetcher interface {
	FetchCategory(ctx context.Context, category string, itemCount int) []catalog.RawItem
}

// Saver persists a batch of normalized records.
type Saver interface {
	UpsertBatch(records []models.ProductRecord) (int, error)
}

// RunnerOptions tunes one fetch/clean/save sweep.
type RunnerOptions struct {
	Categories    []string
	ItemCount     int
	Workers       int
	CategoryDelay time.Duration

	// DisabledRatio aborts the sweep early once this share of completed
	// categories came back empty, so a dead upstream is not hammered
	// through the whole category list.
	DisabledRatio float64

	Normalize NormalizeOptions
}

// Summary is the outcome of one sweep.
type Summary struct {
	Categories int
	Empty      int
	Processed  int
	Rejected   int
	Saved      int
	Aborted    bool
}

// Runner sweeps the configured categories: fetch raw items, normalize,
// save. Categories are isolated; one failing never stops the rest.
type Runner struct {
	fetcher CategoryFetcher
	saver   Saver
	opts    RunnerOptions

	sleep func(ctx context.Context, d time.Duration) bool
	now   func() time.Time
}

func NewRunner(fetcher CategoryFetcher, saver Saver, opts RunnerOptions) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.ItemCount < 1 {
		opts.ItemCount = 10
	}
	return &Runner{
		fetcher: fetcher,
		saver:   saver,
		opts:    opts,
		sleep:   sleepCtx,
		now:     time.Now,
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

// FetchAndSave runs one sweep over all configured categories and
// returns the aggregate summary.
func (r *Runner) FetchAndSave(ctx context.Context) Summary {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		summary   = Summary{Categories: len(r.opts.Categories)}
		completed int
	)

	sem := make(chan struct{}, r.opts.Workers)
	var wg sync.WaitGroup

	for i, category := range r.opts.Categories {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && r.opts.CategoryDelay > 0 {
			if !r.sleep(ctx, jittered(r.opts.CategoryDelay)) {
				break
			}
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(category string) {
			defer wg.Done()
			defer func() { <-sem }()

			processed, rejected, saved := r.runCategory(ctx, category)

			mu.Lock()
			defer mu.Unlock()
			completed++
			summary.Processed += processed
			summary.Rejected += rejected
			summary.Saved += saved
			if processed == 0 {
				summary.Empty++
			}
			if r.shouldAbort(summary.Empty, completed) && !summary.Aborted {
				summary.Aborted = true
				log.Printf("Pipeline: %d of %d categories empty; aborting sweep early", summary.Empty, completed)
				cancel()
			}
		}(category)
	}

	wg.Wait()
	log.Printf("Pipeline: sweep done: processed=%d rejected=%d saved=%d empty=%d/%d",
		summary.Processed, summary.Rejected, summary.Saved, summary.Empty, summary.Categories)
	return summary
}

func (r *Runner) runCategory(ctx context.Context, category string) (processed, rejected, saved int) {
	raw := r.fetcher.FetchCategory(ctx, category, r.opts.ItemCount)
	if len(raw) == 0 {
		log.Printf("Pipeline: %s yielded no items", category)
		return 0, 0, 0
	}

	now := r.now()
	records := make([]models.ProductRecord, 0, len(raw))
	for _, item := range raw {
		rec, err := Normalize(item, category, r.opts.Normalize, now)
		if err != nil {
			rejected++
			logger.Debugf("Pipeline: dropping %s item %q: %v", category, item.ASIN, err)
			continue
		}
		records = append(records, *rec)
	}

	n, err := r.saver.UpsertBatch(records)
	if err != nil {
		log.Printf("Pipeline: saving %s failed: %v", category, err)
	}
	return len(raw), rejected, n
}

// shouldAbort reports whether enough categories came back empty to
// treat the upstream as down. Needs a minimum sample so one quiet
// category does not kill a short run.
func (r *Runner) shouldAbort(empty, completed int) bool {
	if r.opts.DisabledRatio <= 0 || completed < 3 {
		return false
	}
	return float64(empty)/float64(completed) >= r.opts.DisabledRatio
}

func jittered(d time.Duration) time.Duration {
	return d + time.Duration(rand.Int63n(int64(d)/2+1))
}
