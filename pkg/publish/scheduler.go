package publish

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"dealhunter-base/pkg/models"
)

// MediaUploader pushes a local image file and returns its media id.
type MediaUploader interface {
	UploadMedia(ctx context.Context, path string) (string, error)
}

// PostScheduler schedules one caption+media post and returns a job id.
type PostScheduler interface {
	SchedulePost(ctx context.Context, caption, mediaID string, at time.Time) (string, error)
}

// PosterRenderer renders a deal group into a local image file.
type PosterRenderer interface {
	GeneratePoster(ctx context.Context, group *models.DealGroup) (string, error)
}

// PostMarker records which records went out under which job.
type PostMarker interface {
	MarkPosted(ids []string, jobID string, scheduledAt time.Time) error
}

// SchedulerOptions tunes the publishing loop.
type SchedulerOptions struct {
	PostInterval    time.Duration
	Decision        Decider
	DailyImageQuota int
	TempDir         string
}

// Scheduler walks curated groups in rank order and publishes each one:
// caption, image (generated poster when the deal warrants it, product
// photo otherwise), upload, schedule, mark posted. A failing group is
// logged and skipped; it stays unposted for the next run.
type Scheduler struct {
	uploader  MediaUploader
	scheduler PostScheduler
	poster    PosterRenderer
	marker    PostMarker
	opts      SchedulerOptions

	// download fetches a remote product image to a local file;
	// swappable in tests.
	download func(ctx context.Context, url string) (string, error)
	now      func() time.Time

	imageDay    string
	imagesToday int
}

func NewScheduler(uploader MediaUploader, scheduler PostScheduler, poster PosterRenderer, marker PostMarker, opts SchedulerOptions) *Scheduler {
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	s := &Scheduler{
		uploader:  uploader,
		scheduler: scheduler,
		poster:    poster,
		marker:    marker,
		opts:      opts,
		now:       time.Now,
	}
	s.download = s.downloadImage
	return s
}

// PublishGroups schedules the given groups spaced PostInterval apart,
// starting one interval from now. Returns how many were scheduled.
func (s *Scheduler) PublishGroups(ctx context.Context, groups []models.DealGroup) int {
	if len(groups) == 0 {
		return 0
	}

	base := s.now()
	scheduled := 0
	generated := 0

	for i := range groups {
		g := &groups[i]
		if ctx.Err() != nil {
			break
		}

		caption, err := CaptionFor(models.GroupPost(g))
		if err != nil {
			log.Printf("Publish: skipping group %s: %v", g.ID, err)
			continue
		}

		imagePath, isPoster := s.imageFor(ctx, g, generated)
		if imagePath == "" {
			log.Printf("Publish: group %s has no usable image; skipping", g.ID)
			continue
		}
		if isPoster {
			generated++
		}

		mediaID, err := s.uploader.UploadMedia(ctx, imagePath)
		if err != nil {
			log.Printf("Publish: media upload failed for group %s: %v", g.ID, err)
			continue
		}

		at := base.Add(time.Duration(scheduled+1) * s.opts.PostInterval)
		jobID, err := s.scheduler.SchedulePost(ctx, caption, mediaID, at)
		if err != nil {
			log.Printf("Publish: scheduling failed for group %s: %v", g.ID, err)
			continue
		}

		ids := make([]string, 0, len(g.Items))
		for _, it := range g.Items {
			ids = append(ids, it.ID)
		}
		if err := s.marker.MarkPosted(ids, jobID, at); err != nil {
			log.Printf("Publish: marking group %s posted failed: %v", g.ID, err)
		}

		scheduled++
		log.Printf("Publish: group %s scheduled at %s (job %s)", g.ID, at.Format(time.RFC3339), jobID)
	}

	log.Printf("Publish: scheduled %d of %d groups (%d posters rendered)", scheduled, len(groups), generated)
	return scheduled
}

// imageFor picks the image for a group: a rendered poster when the
// decision gate and the daily quota allow it, otherwise the first
// product photo. isPoster reports which path was taken.
func (s *Scheduler) imageFor(ctx context.Context, g *models.DealGroup, generatedThisRun int) (path string, isPoster bool) {
	if s.poster != nil &&
		s.underDailyQuota() &&
		s.opts.Decision.ShouldGenerate(models.GroupPost(g), generatedThisRun) {
		p, err := s.poster.GeneratePoster(ctx, g)
		if err == nil && p != "" {
			s.countImage()
			return p, true
		}
		log.Printf("Publish: poster render failed for group %s, falling back to product image: %v", g.ID, err)
	}

	for _, it := range g.Items {
		if it.ImageURL == "" {
			continue
		}
		p, err := s.download(ctx, it.ImageURL)
		if err != nil {
			log.Printf("Publish: downloading image for %s failed: %v", it.ID, err)
			continue
		}
		return p, false
	}
	return "", false
}

func (s *Scheduler) underDailyQuota() bool {
	if s.opts.DailyImageQuota <= 0 {
		return true
	}
	day := s.now().Format("2006-01-02")
	if day != s.imageDay {
		s.imageDay = day
		s.imagesToday = 0
	}
	return s.imagesToday < s.opts.DailyImageQuota
}

func (s *Scheduler) countImage() {
	s.imagesToday++
}

func (s *Scheduler) downloadImage(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	if err := os.MkdirAll(s.opts.TempDir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("deal_%d.jpg", s.now().UnixNano())
	path := filepath.Join(s.opts.TempDir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}
