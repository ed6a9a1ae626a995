package publish

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealhunter-base/pkg/models"
)

type fakeUploader struct {
	ids   int
	fails map[int]bool
	paths []string
}

func (f *fakeUploader) UploadMedia(_ context.Context, path string) (string, error) {
	f.ids++
	f.paths = append(f.paths, path)
	if f.fails[f.ids] {
		return "", errors.New("upload failed")
	}
	return "media-1", nil
}

type fakeScheduler struct {
	times []time.Time
	err   error
}

func (f *fakeScheduler) SchedulePost(_ context.Context, _, _ string, at time.Time) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.times = append(f.times, at)
	return "job-1", nil
}

type fakePoster struct {
	calls int
	path  string
	err   error
}

func (f *fakePoster) GeneratePoster(context.Context, *models.DealGroup) (string, error) {
	f.calls++
	return f.path, f.err
}

type fakeMarker struct {
	marked [][]string
}

func (f *fakeMarker) MarkPosted(ids []string, _ string, _ time.Time) error {
	f.marked = append(f.marked, ids)
	return nil
}

func publishableGroup(id string, discount, price int) models.DealGroup {
	return models.DealGroup{
		ID:       id,
		Category: "Electronics",
		Items: []models.ProductRecord{{
			ID:              id + "-item",
			Title:           "Deal Item",
			Price:           price,
			OriginalPrice:   price * 2,
			Currency:        "₹",
			DiscountPercent: discount,
			DetailURL:       "https://example.com/dp/" + id,
			ImageURL:        "https://img.example.com/" + id + ".jpg",
			IsPrimeEligible: true,
		}},
	}
}

func newTestScheduler(up *fakeUploader, sch *fakeScheduler, poster PosterRenderer, marker *fakeMarker, opts SchedulerOptions) *Scheduler {
	s := NewScheduler(up, sch, poster, marker, opts)
	s.download = func(_ context.Context, url string) (string, error) {
		return "/tmp/" + url[len(url)-6:], nil
	}
	return s
}

func TestPublishGroupsSpacesPostsApart(t *testing.T) {
	up, sch, marker := &fakeUploader{}, &fakeScheduler{}, &fakeMarker{}
	s := newTestScheduler(up, sch, nil, marker, SchedulerOptions{PostInterval: 5 * time.Minute})

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	n := s.PublishGroups(context.Background(), []models.DealGroup{
		publishableGroup("g1", 50, 1000),
		publishableGroup("g2", 40, 800),
	})

	assert.Equal(t, 2, n)
	require.Len(t, sch.times, 2)
	assert.Equal(t, base.Add(5*time.Minute), sch.times[0])
	assert.Equal(t, base.Add(10*time.Minute), sch.times[1])
	require.Len(t, marker.marked, 2)
	assert.Equal(t, []string{"g1-item"}, marker.marked[0])
}

func TestPublishGroupFailureIsolated(t *testing.T) {
	up := &fakeUploader{fails: map[int]bool{1: true}}
	sch, marker := &fakeScheduler{}, &fakeMarker{}
	s := newTestScheduler(up, sch, nil, marker, SchedulerOptions{PostInterval: time.Minute})

	n := s.PublishGroups(context.Background(), []models.DealGroup{
		publishableGroup("g1", 50, 1000),
		publishableGroup("g2", 40, 800),
	})

	assert.Equal(t, 1, n, "second group still published")
	assert.Len(t, marker.marked, 1)
}

func TestPosterUsedWhenDecisionAllows(t *testing.T) {
	up, sch, marker := &fakeUploader{}, &fakeScheduler{}, &fakeMarker{}
	poster := &fakePoster{path: "/tmp/poster.png"}
	s := newTestScheduler(up, sch, poster, marker, SchedulerOptions{
		PostInterval:    time.Minute,
		Decision:        testDecider,
		DailyImageQuota: 10,
	})

	s.PublishGroups(context.Background(), []models.DealGroup{
		publishableGroup("hot", 75, 2000),
	})

	assert.Equal(t, 1, poster.calls)
	require.Len(t, up.paths, 1)
	assert.Equal(t, "/tmp/poster.png", up.paths[0])
}

func TestPosterFailureFallsBackToProductImage(t *testing.T) {
	up, sch, marker := &fakeUploader{}, &fakeScheduler{}, &fakeMarker{}
	poster := &fakePoster{err: errors.New("render crashed")}
	s := newTestScheduler(up, sch, poster, marker, SchedulerOptions{
		PostInterval:    time.Minute,
		Decision:        testDecider,
		DailyImageQuota: 10,
	})

	n := s.PublishGroups(context.Background(), []models.DealGroup{
		publishableGroup("hot", 75, 2000),
	})

	assert.Equal(t, 1, n)
	require.Len(t, up.paths, 1)
	assert.NotEqual(t, "/tmp/poster.png", up.paths[0])
}

func TestDailyImageQuotaStopsPosterGeneration(t *testing.T) {
	up, sch, marker := &fakeUploader{}, &fakeScheduler{}, &fakeMarker{}
	poster := &fakePoster{path: "/tmp/poster.png"}
	s := newTestScheduler(up, sch, poster, marker, SchedulerOptions{
		PostInterval:    time.Minute,
		Decision:        testDecider,
		DailyImageQuota: 1,
	})

	s.PublishGroups(context.Background(), []models.DealGroup{
		publishableGroup("hot1", 75, 2000),
		publishableGroup("hot2", 75, 2000),
	})

	assert.Equal(t, 1, poster.calls, "second poster blocked by daily quota")
}
