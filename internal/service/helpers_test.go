package service

import (
	"context"
	"iter"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/threads-insights/internal/config"
	"github.com/ifuryst/threads-insights/internal/models"
	"github.com/ifuryst/threads-insights/internal/service/threads"
)

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Database.Type = "sqlite"
	cfg.Database.Path = ":memory:"
	cfg.Threads.UserID = "42"
	cfg.SetDefaults()
	return cfg
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := NewDatabase(&newTestConfig().Database, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewStore(db)
}

func countRows(t *testing.T, s *Store, model any) int64 {
	t.Helper()
	var n int64
	if err := s.DB().Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func seedMedia(t *testing.T, s *Store, id string, mediaType models.MediaType) {
	t.Helper()
	_, err := s.InsertMediaIfAbsent(context.Background(), &models.ThreadsMedia{
		MediaID:      id,
		AuthorUserID: "42",
		CreatedAt:    time.Date(2023, 12, 1, 9, 0, 0, 0, time.UTC),
		MediaType:    mediaType,
		Permalink:    "https://threads.net/p/" + id,
	})
	if err != nil {
		t.Fatalf("seed media %s: %v", id, err)
	}
}

// fakeClient serves canned Threads data. Fields may be changed between runs.
type fakeClient struct {
	mu sync.Mutex

	profile      threads.Profile
	profileErr   error
	media        []threads.Media
	listErr      error
	insights     map[string]threads.MediaInsights
	insightErrs  map[string]error
	user         threads.UserInsights
	userErr      error
	links        []threads.LinkClicks
	linkErr      error
	linkCalls    int
	demographics map[models.BreakdownType][]threads.DemographicValue
	demoErr      error

	// when set, GetProfile signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func newFakeClient() *fakeClient {
	ts := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	return &fakeClient{
		profile: threads.Profile{ID: "42", Username: "alice"},
		media: []threads.Media{
			{ID: "m1", MediaType: models.MediaTypeText, RawType: "TEXT_POST", Permalink: "https://threads.net/p/m1", OwnerID: "42", Timestamp: ts},
			{ID: "m2", MediaType: models.MediaTypeImage, RawType: "IMAGE", Permalink: "https://threads.net/p/m2", Timestamp: ts.Add(time.Hour)},
		},
		insights: map[string]threads.MediaInsights{
			"m1": {Views: 100, Likes: 10, Replies: 1, Reposts: 2, Quotes: 3, Shares: 4},
			"m2": {Views: 50, Likes: 5},
			"m3": {Views: 7},
		},
		insightErrs: map[string]error{},
		user:        threads.UserInsights{Views: 1000, Likes: 100, Replies: 10, Reposts: 5, Quotes: 2, Clicks: 9, FollowersCount: 250},
		links:       []threads.LinkClicks{{LinkURL: "https://example.com", Clicks: 9}},
		demographics: map[models.BreakdownType][]threads.DemographicValue{
			models.BreakdownCountry: {{Key: "JP", Value: 120}, {Key: "US", Value: 30}},
			models.BreakdownGender:  {{Key: "F", Value: 90}},
		},
	}
}

func (f *fakeClient) GetProfile(ctx context.Context) (threads.Profile, error) {
	if f.entered != nil {
		close(f.entered)
		<-f.release
	}
	return f.profile, f.profileErr
}

func (f *fakeClient) ListRecentMedia(ctx context.Context, userID string) iter.Seq2[threads.Media, error] {
	return func(yield func(threads.Media, error) bool) {
		for _, m := range f.media {
			if !yield(m, nil) {
				return
			}
		}
		if f.listErr != nil {
			yield(threads.Media{}, f.listErr)
		}
	}
}

func (f *fakeClient) GetMediaInsights(ctx context.Context, mediaID string) (threads.MediaInsights, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.insightErrs[mediaID]; err != nil {
		return threads.MediaInsights{}, err
	}
	return f.insights[mediaID], nil
}

func (f *fakeClient) GetUserInsightsDaily(ctx context.Context, userID string, day time.Time) (threads.UserInsights, error) {
	return f.user, f.userErr
}

func (f *fakeClient) GetLinkClicks(ctx context.Context, userID string, day time.Time) ([]threads.LinkClicks, error) {
	f.mu.Lock()
	f.linkCalls++
	f.mu.Unlock()
	return f.links, f.linkErr
}

func (f *fakeClient) GetFollowerDemographics(ctx context.Context, userID string, breakdownType models.BreakdownType) ([]threads.DemographicValue, error) {
	if f.demoErr != nil {
		return nil, f.demoErr
	}
	return f.demographics[breakdownType], nil
}
