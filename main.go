package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	scalargo "github.com/bdpiprava/scalar-go"
	"github.com/robfig/cron/v3"

	"dealhunter-base/pkg/api"
	"dealhunter-base/pkg/cache"
	"dealhunter-base/pkg/catalog"
	"dealhunter-base/pkg/config"
	"dealhunter-base/pkg/curation"
	"dealhunter-base/pkg/enrich"
	"dealhunter-base/pkg/export"
	"dealhunter-base/pkg/keywords"
	"dealhunter-base/pkg/models"
	"dealhunter-base/pkg/notify"
	"dealhunter-base/pkg/pipeline"
	"dealhunter-base/pkg/poster"
	"dealhunter-base/pkg/publish"
	"dealhunter-base/pkg/ratelimit"
	"dealhunter-base/pkg/store"
)

const enrichBatchSize = 100

type app struct {
	cfg      config.Config
	cache    *cache.Cache
	store    *store.Store
	runner   *pipeline.Runner
	enricher *enrich.Enricher
	sched    *publish.Scheduler
	notifier *notify.Notifier

	running atomic.Bool
}

func main() {
	cfg := config.Load()

	c, err := cache.New(cfg.CacheDBPath)
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer c.Close()

	st, err := store.New(cfg.StoreDBPath)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	log.Printf("Cache at %s, store at %s", cfg.CacheDBPath, cfg.StoreDBPath)

	a := newApp(cfg, c, st)

	cronRunner, err := a.startCron()
	if err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer cronRunner.Stop()

	http.HandleFunc("/", a.rootHandler)
	http.HandleFunc("/healthz", a.healthHandler)
	http.HandleFunc("/run", a.runHandler)

	if ip := getOutboundIP(); ip != nil {
		fmt.Printf("Local Network URL: http://%s%s\n", ip.String(), cfg.HTTPAddr)
	}
	fmt.Printf("Access URL: http://localhost%s\n", cfg.HTTPAddr)
	fmt.Printf("API Docs: http://localhost%s/\n", cfg.HTTPAddr)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           nil,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Fatal(server.ListenAndServe())
}

func newApp(cfg config.Config, c *cache.Cache, st *store.Store) *app {
	kw := keywords.NewBuilder(cfg.Catalog.KeywordRotation, cfg.Catalog.KeywordOverrides)

	client := &catalog.HTTPClient{
		BaseURL:     cfg.Catalog.Endpoint,
		AccessKey:   cfg.Catalog.AccessKey,
		SecretKey:   cfg.Catalog.SecretKey,
		PartnerTag:  cfg.Catalog.PartnerTag,
		Marketplace: cfg.Catalog.Marketplace,
		Client:      &http.Client{Timeout: 30 * time.Second},
	}

	limiter := ratelimit.NewLimiter(cfg.Catalog.RequestsPerSecond)
	policy := ratelimit.DefaultPolicy(cfg.Catalog.MaxRetries)

	fetcher := catalog.NewFetcher(client, c, limiter, policy, kw, catalog.FetcherOptions{
		Marketplace:   cfg.Catalog.Marketplace,
		BrowseNodes:   cfg.Catalog.BrowseNodes,
		Resources:     cfg.Catalog.Resources,
		CacheTTL:      cfg.CacheTTL,
		ProbeTTL:      cfg.ProbeCacheTTL,
		RandomizePage: cfg.Catalog.RandomizeItemPage,
	})

	runner := pipeline.NewRunner(fetcher, st, pipeline.RunnerOptions{
		Categories:    cfg.Catalog.Categories,
		ItemCount:     cfg.Catalog.ItemCount,
		Workers:       cfg.Catalog.Workers,
		CategoryDelay: cfg.Catalog.CategoryFetchDelay,
		DisabledRatio: cfg.Catalog.DisabledRatio,
		Normalize: pipeline.NormalizeOptions{
			MinDiscountPercent: cfg.Catalog.MinDiscountPercent,
			DefaultCurrency:    cfg.Catalog.DefaultCurrency,
		},
	})

	a := &app{
		cfg:      cfg,
		cache:    c,
		store:    st,
		runner:   runner,
		enricher: enrich.New(st),
		notifier: notify.New(cfg.Email.Host, cfg.Email.Port, cfg.Email.User, cfg.Email.Pass, cfg.Email.To),
	}

	if cfg.Publer.APIKey != "" && !cfg.TestMode {
		publer := publish.NewPublerClient(cfg.Publer.Endpoint, cfg.Publer.APIKey, cfg.Publer.WorkspaceID, cfg.Publer.Accounts)
		renderer := poster.NewRenderer(cfg.PosterOutputDir)
		a.sched = publish.NewScheduler(publer, publer, renderer, st, publish.SchedulerOptions{
			PostInterval: cfg.Publishing.PostInterval,
			Decision: publish.Decider{
				DiscountMin:    cfg.Decision.DiscountMin,
				PriceMin:       cfg.Decision.PriceMin,
				ScoreThreshold: cfg.Decision.ScoreThreshold,
				MaxPerRun:      cfg.Decision.MaxPerRun,
			},
			DailyImageQuota: cfg.Decision.DailyImageQuota,
		})
	} else {
		log.Print("Publishing disabled (no scheduler key or test mode); runs will fetch, enrich and export only")
	}

	return a
}

func (a *app) startCron() (*cron.Cron, error) {
	loc, err := time.LoadLocation(a.cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", a.cfg.Timezone, err)
	}

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(a.cfg.CronSchedule, func() {
		if err := a.run(context.Background()); err != nil {
			log.Printf("Scheduled run skipped: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("registering schedule %q: %w", a.cfg.CronSchedule, err)
	}

	c.Start()
	log.Printf("Scheduled runs at %q (%s)", a.cfg.CronSchedule, a.cfg.Timezone)
	return c, nil
}

// run executes one end-to-end sweep: fetch+save, enrich, curate,
// export, publish. Only one run may be active at a time.
func (a *app) run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return models.ErrRunInProgress
	}
	defer a.running.Store(false)

	started := time.Now()
	log.Print("Run: starting sweep")
	a.notifier.Send("Deal run started", fmt.Sprintf("Sweep started at %s", started.Format(time.RFC1123)), "")

	summary := a.runner.FetchAndSave(ctx)

	if _, err := a.enricher.EnrichPending(ctx, enrichBatchSize); err != nil {
		log.Printf("Run: enrichment pass failed: %v", err)
	}

	scheduled, exportPath := a.publishUnposted(ctx)

	text := fmt.Sprintf(
		"Sweep finished in %s.\nProcessed: %d\nSaved: %d\nRejected: %d\nEmpty categories: %d/%d\nScheduled posts: %d\nExport: %s",
		time.Since(started).Round(time.Second),
		summary.Processed, summary.Saved, summary.Rejected,
		summary.Empty, summary.Categories, scheduled, exportPath,
	)
	if summary.Aborted {
		a.notifier.Send("Deal run aborted early", text, "")
	} else {
		a.notifier.Send("Deal run complete", text, "")
	}
	log.Print("Run: sweep complete")
	return nil
}

// publishUnposted curates the best unposted records, exports them to
// CSV and hands the groups to the scheduler when one is configured.
func (a *app) publishUnposted(ctx context.Context) (scheduled int, exportPath string) {
	records, err := a.store.Unposted(a.cfg.Publishing.UnpostedWindow)
	if err != nil {
		log.Printf("Run: loading unposted records failed: %v", err)
		return 0, ""
	}

	eligible := records[:0]
	for _, r := range records {
		if r.Price >= a.cfg.Publishing.MinPrice {
			eligible = append(eligible, r)
		}
	}
	if len(eligible) == 0 {
		log.Print("Run: nothing eligible to publish")
		return 0, ""
	}

	exportPath, err = export.WriteCSV(a.cfg.ExportDir, eligible, time.Now())
	if err != nil {
		log.Printf("Run: CSV export failed: %v", err)
	}

	groups := curation.Curate(eligible, curation.Options{
		GroupSize:      a.cfg.Publishing.GroupSize,
		MaxPerCategory: a.cfg.Publishing.MaxPostsPerCategory,
		MaxPerDay:      a.cfg.Publishing.MaxPostsPerDay,
	}, time.Now())

	if a.sched == nil {
		log.Printf("Run: publishing disabled; %d curated groups not scheduled", len(groups))
		return 0, exportPath
	}
	return a.sched.PublishGroups(ctx, groups), exportPath
}

func (a *app) rootHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		api.WriteNotFound(w, "Unknown path", r.URL.Path)
		return
	}

	// Serve Scalar docs on root path
	html, err := scalargo.NewV2(
		scalargo.WithSpecDir("./"),
		scalargo.WithMetaDataOpts(
			scalargo.WithTitle("Deal Pipeline API"),
		),
	)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, html)
}

func (a *app) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","run_in_progress":%t}`, a.running.Load())
}

func (a *app) runHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.WriteMethodNotAllowed(w, "Use POST to trigger a run.", r.URL.Path)
		return
	}
	if a.running.Load() {
		api.WriteConflict(w, "A run is already in progress.", r.URL.Path)
		return
	}

	go func() {
		if err := a.run(context.Background()); err != nil {
			log.Printf("Triggered run skipped: %v", err)
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprint(w, `{"status":"started"}`)
}

func getOutboundIP() net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		addrs, _ := net.InterfaceAddrs()
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					return ipnet.IP
				}
			}
		}
		return nil
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)

	return localAddr.IP
}
