package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ifuryst/threads-insights/internal/models"
)

func TestUpsertMediaInsightIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedMedia(t, s, "m1", models.MediaTypeText)

	insight := &models.MediaInsight{MediaID: "m1", AsOfDate: "2024-01-01", Views: 10, Likes: 1}
	if err := s.UpsertMediaInsight(ctx, insight); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	insight = &models.MediaInsight{MediaID: "m1", AsOfDate: "2024-01-01", Views: 25, Likes: 3, Shares: 1}
	if err := s.UpsertMediaInsight(ctx, insight); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	if n := countRows(t, s, &models.MediaInsight{}); n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
	var got models.MediaInsight
	if err := s.DB().First(&got, "media_id = ? AND as_of_date = ?", "m1", models.Date("2024-01-01")).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Views != 25 || got.Likes != 3 || got.Shares != 1 {
		t.Fatalf("expected overwritten values, got %+v", got)
	}
	if got.AsOfDate != "2024-01-01" {
		t.Fatalf("as_of_date = %q", got.AsOfDate)
	}

	// another day is a separate snapshot
	if err := s.UpsertMediaInsight(ctx, &models.MediaInsight{MediaID: "m1", AsOfDate: "2024-01-02", Views: 30}); err != nil {
		t.Fatalf("next day upsert: %v", err)
	}
	if n := countRows(t, s, &models.MediaInsight{}); n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}
}

func TestUserInsightsOneRowPerDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, followers := range []int64{100, 110, 120} {
		if err := s.UpsertUserInsights(ctx, &models.UserInsightsDaily{AsOfDate: "2024-01-01", FollowersCount: followers}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	if n := countRows(t, s, &models.UserInsightsDaily{}); n != 1 {
		t.Fatalf("expected 1 row, got %d", n)
	}
	latest, err := s.LatestUserInsights(ctx, "")
	if err != nil || latest == nil {
		t.Fatalf("LatestUserInsights: %v", err)
	}
	if latest.FollowersCount != 120 {
		t.Fatalf("followers = %d", latest.FollowersCount)
	}
}

func TestUpsertDemographicsOverwritesValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row := models.FollowerDemographic{AsOfDate: "2024-01-01", BreakdownType: models.BreakdownCountry, BreakdownKey: "JP", Value: 120}
	if err := s.UpsertDemographics(ctx, []models.FollowerDemographic{row}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	row.Value = 150
	if err := s.UpsertDemographics(ctx, []models.FollowerDemographic{row}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var rows []models.FollowerDemographic
	if err := s.DB().Find(&rows).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(rows) != 1 || rows[0].Value != 150 {
		t.Fatalf("expected one row with value 150, got %+v", rows)
	}

	if err := s.UpsertDemographics(ctx, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestUpsertLinkClicksBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rows := []models.LinkClicksDaily{
		{AsOfDate: "2024-01-01", LinkURL: "https://a.example", Clicks: 1},
		{AsOfDate: "2024-01-01", LinkURL: "https://b.example", Clicks: 2},
	}
	if err := s.UpsertLinkClicks(ctx, rows); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	rows[1].Clicks = 5
	if err := s.UpsertLinkClicks(ctx, rows); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	var got models.LinkClicksDaily
	if err := s.DB().First(&got, "link_url = ?", "https://b.example").Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Clicks != 5 || countRows(t, s, &models.LinkClicksDaily{}) != 2 {
		t.Fatalf("unexpected link clicks state: %+v", got)
	}
}

func TestInsertMediaIfAbsentIsWriteOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	first := &models.ThreadsMedia{MediaID: "m1", AuthorUserID: "42", CreatedAt: created, MediaType: models.MediaTypeText, Permalink: "https://threads.net/p/original"}
	inserted, err := s.InsertMediaIfAbsent(ctx, first)
	if err != nil || !inserted {
		t.Fatalf("first insert = %v, %v", inserted, err)
	}

	second := &models.ThreadsMedia{MediaID: "m1", AuthorUserID: "43", CreatedAt: created.Add(time.Hour), MediaType: models.MediaTypeImage, Permalink: "https://threads.net/p/changed"}
	inserted, err = s.InsertMediaIfAbsent(ctx, second)
	if err != nil || inserted {
		t.Fatalf("second insert = %v, %v", inserted, err)
	}

	var got models.ThreadsMedia
	if err := s.DB().First(&got, "media_id = ?", "m1").Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Permalink != "https://threads.net/p/original" || got.MediaType != models.MediaTypeText || !got.CreatedAt.Equal(created) {
		t.Fatalf("media was modified: %+v", got)
	}
}

func TestMediaInsightForeignKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.UpsertMediaInsight(ctx, &models.MediaInsight{MediaID: "missing", AsOfDate: "2024-01-01"})
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if perr.Table != "media_insights" {
		t.Fatalf("table = %s", perr.Table)
	}

	seedMedia(t, s, "m1", models.MediaTypeVideo)
	if err := s.UpsertMediaInsight(ctx, &models.MediaInsight{MediaID: "m1", AsOfDate: "2024-01-01", Views: 1}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.DB().Delete(&models.ThreadsMedia{MediaID: "m1"}).Error; err != nil {
		t.Fatalf("delete media: %v", err)
	}
	if n := countRows(t, s, &models.MediaInsight{}); n != 0 {
		t.Fatalf("expected insights to cascade, %d left", n)
	}
}

func TestMediaTypeCheckConstraint(t *testing.T) {
	s := newTestStore(t)
	_, err := s.InsertMediaIfAbsent(context.Background(), &models.ThreadsMedia{
		MediaID: "m1", AuthorUserID: "42", CreatedAt: time.Now(), MediaType: "AUDIO",
	})
	if err == nil {
		t.Fatal("expected check constraint violation")
	}
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := &models.IngestRun{ID: "run-1", Trigger: models.TriggerCLI, StartedAt: time.Now().UTC(), Status: models.RunStatusRunning}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	ended := time.Now().UTC()
	msg := "skipped 1 of 2 media"
	run.EndedAt = &ended
	run.Status = models.RunStatusSuccess
	run.ErrorMessage = &msg
	run.MediaCount = 1
	run.MediaFailed = 1
	if err := s.FinishRun(ctx, run); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	if err := s.FinishRun(ctx, run); !errors.Is(err, ErrRunFinalized) {
		t.Fatalf("second FinishRun = %v, want ErrRunFinalized", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil || got == nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != models.RunStatusSuccess || got.EndedAt == nil || got.MediaCount != 1 || *got.ErrorMessage != msg {
		t.Fatalf("unexpected run %+v", got)
	}

	if missing, err := s.GetRun(ctx, "nope"); err != nil || missing != nil {
		t.Fatalf("GetRun(missing) = %v, %v", missing, err)
	}
}

func TestFailStaleRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	runs := []*models.IngestRun{
		{ID: "old", StartedAt: now.Add(-3 * time.Hour), Status: models.RunStatusRunning},
		{ID: "fresh", StartedAt: now.Add(-time.Minute), Status: models.RunStatusRunning},
		{ID: "done", StartedAt: now.Add(-5 * time.Hour), Status: models.RunStatusSuccess},
	}
	for _, r := range runs {
		r.Trigger = models.TriggerAPI
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	n, err := s.FailStaleRuns(ctx, now.Add(-2*time.Hour), "interrupted")
	if err != nil || n != 1 {
		t.Fatalf("FailStaleRuns = %d, %v", n, err)
	}

	failed, err := s.ListRuns(ctx, models.RunStatusFailed, 10)
	if err != nil || len(failed) != 1 || failed[0].ID != "old" {
		t.Fatalf("failed runs = %+v, %v", failed, err)
	}
	if failed[0].EndedAt == nil || failed[0].ErrorMessage == nil || *failed[0].ErrorMessage != "interrupted" {
		t.Fatalf("stale run not finalized: %+v", failed[0])
	}

	all, err := s.ListRuns(ctx, "", 0)
	if err != nil || len(all) != 3 || all[0].ID != "fresh" {
		t.Fatalf("ListRuns order = %+v, %v", all, err)
	}
}

func TestListPostMetricsFiltersAndJoins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedMedia(t, s, "m1", models.MediaTypeText)
	seedMedia(t, s, "m2", models.MediaTypeImage)
	for _, day := range []models.Date{"2024-01-01", "2024-01-02", "2024-01-03"} {
		for _, id := range []string{"m1", "m2"} {
			if err := s.UpsertMediaInsight(ctx, &models.MediaInsight{MediaID: id, AsOfDate: day, Views: 10}); err != nil {
				t.Fatalf("upsert: %v", err)
			}
		}
	}

	rows, err := s.ListPostMetrics(ctx, PostMetricsFilter{From: "2024-01-02", To: "2024-01-03"})
	if err != nil {
		t.Fatalf("ListPostMetrics: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows in range, got %d", len(rows))
	}
	if rows[0].AsOfDate != "2024-01-03" || rows[len(rows)-1].AsOfDate != "2024-01-02" {
		t.Fatalf("unexpected order: first %s last %s", rows[0].AsOfDate, rows[len(rows)-1].AsOfDate)
	}
	for _, r := range rows {
		if r.Permalink != "https://threads.net/p/"+r.MediaID || r.MediaType == "" || r.CreatedAt.IsZero() {
			t.Fatalf("row missing media metadata: %+v", r)
		}
	}

	rows, err = s.ListPostMetrics(ctx, PostMetricsFilter{From: "2024-01-01", To: "2024-01-01", MediaType: models.MediaTypeImage})
	if err != nil || len(rows) != 1 || rows[0].MediaID != "m2" {
		t.Fatalf("media type filter = %+v, %v", rows, err)
	}

	rows, err = s.ListPostMetrics(ctx, PostMetricsFilter{Limit: 2, Offset: 5})
	if err != nil || len(rows) != 1 {
		t.Fatalf("paging = %d rows, %v", len(rows), err)
	}
}

func TestTableCounts(t *testing.T) {
	s := newTestStore(t)
	seedMedia(t, s, "m1", models.MediaTypeText)

	counts, err := s.TableCounts(context.Background())
	if err != nil {
		t.Fatalf("TableCounts: %v", err)
	}
	if len(counts) != len(AllModels) {
		t.Fatalf("expected %d tables, got %v", len(AllModels), counts)
	}
	if counts["threads_media"] != 1 || counts["ingest_runs"] != 0 {
		t.Fatalf("unexpected counts %v", counts)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
