package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"

	"github.com/ifuryst/threads-insights/internal/models"
)

const (
	DefaultPostsLimit = 100
	MaxPostsLimit     = 1000
)

var (
	ErrNoUserInsights = errors.New("no user insights collected yet")
	ErrInvalidRange   = errors.New("from must not be after to")
)

type ReportService struct {
	store  *Store
	logger *zap.Logger
}

func NewReportService(store *Store, logger *zap.Logger) *ReportService {
	return &ReportService{
		store:  store,
		logger: logger,
	}
}

// PostMetric 单条帖子指标快照
type PostMetric struct {
	MediaID    string           `json:"media_id"`
	MediaType  models.MediaType `json:"media_type"`
	Permalink  string           `json:"permalink"`
	CreatedAt  time.Time        `json:"created_at"`
	AsOfDate   models.Date      `json:"as_of_date"`
	Views      int64            `json:"views"`
	Likes      int64            `json:"likes"`
	Replies    int64            `json:"replies"`
	Reposts    int64            `json:"reposts"`
	Quotes     int64            `json:"quotes"`
	Shares     int64            `json:"shares"`
	Engagement int64            `json:"engagement"`
}

type PostMetricsPage struct {
	Items  []PostMetric `json:"items"`
	Count  int          `json:"count"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// ListPostMetrics returns post snapshots in the inclusive [From, To] range.
func (r *ReportService) ListPostMetrics(ctx context.Context, f PostMetricsFilter) (*PostMetricsPage, error) {
	if f.From != "" && f.To != "" && f.From > f.To {
		return nil, ErrInvalidRange
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPostsLimit
	}
	if f.Limit > MaxPostsLimit {
		f.Limit = MaxPostsLimit
	}

	rows, err := r.store.ListPostMetrics(ctx, f)
	if err != nil {
		return nil, err
	}

	items := make([]PostMetric, 0, len(rows))
	if err := copier.Copy(&items, &rows); err != nil {
		return nil, fmt.Errorf("failed to project post metrics: %w", err)
	}
	for i := range items {
		m := &items[i]
		m.Engagement = m.Likes + m.Replies + m.Reposts + m.Quotes + m.Shares
	}

	return &PostMetricsPage{
		Items:  items,
		Count:  len(items),
		Limit:  f.Limit,
		Offset: f.Offset,
	}, nil
}

// UserSnapshot 账号某日指标
type UserSnapshot struct {
	AsOfDate       models.Date `json:"as_of_date"`
	Views          int64       `json:"views"`
	Likes          int64       `json:"likes"`
	Replies        int64       `json:"replies"`
	Reposts        int64       `json:"reposts"`
	Quotes         int64       `json:"quotes"`
	Clicks         int64       `json:"clicks"`
	FollowersCount int64       `json:"followers_count"`
}

// UserDeltas is latest minus previous for each counter.
type UserDeltas struct {
	Days      int   `json:"days"`
	Followers int64 `json:"followers"`
	Views     int64 `json:"views"`
	Likes     int64 `json:"likes"`
	Replies   int64 `json:"replies"`
	Reposts   int64 `json:"reposts"`
	Quotes    int64 `json:"quotes"`
	Clicks    int64 `json:"clicks"`
}

type UserSummary struct {
	Latest   UserSnapshot  `json:"latest"`
	Previous *UserSnapshot `json:"previous"`
	Deltas   *UserDeltas   `json:"deltas"`
}

// UserSummary returns the newest account snapshot and its change since the
// previous stored day. Deltas are nil when only one day exists.
func (r *ReportService) UserSummary(ctx context.Context) (*UserSummary, error) {
	latest, err := r.store.LatestUserInsights(ctx, "")
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, ErrNoUserInsights
	}

	summary := &UserSummary{}
	if err := copier.Copy(&summary.Latest, latest); err != nil {
		return nil, fmt.Errorf("failed to project user insights: %w", err)
	}

	previous, err := r.store.LatestUserInsights(ctx, latest.AsOfDate)
	if err != nil {
		return nil, err
	}
	if previous == nil {
		return summary, nil
	}

	summary.Previous = &UserSnapshot{}
	if err := copier.Copy(summary.Previous, previous); err != nil {
		return nil, fmt.Errorf("failed to project user insights: %w", err)
	}
	summary.Deltas = &UserDeltas{
		Days:      int(latest.AsOfDate.Time().Sub(previous.AsOfDate.Time()).Hours() / 24),
		Followers: latest.FollowersCount - previous.FollowersCount,
		Views:     latest.Views - previous.Views,
		Likes:     latest.Likes - previous.Likes,
		Replies:   latest.Replies - previous.Replies,
		Reposts:   latest.Reposts - previous.Reposts,
		Quotes:    latest.Quotes - previous.Quotes,
		Clicks:    latest.Clicks - previous.Clicks,
	}
	return summary, nil
}

type StatsSummary struct {
	Tables    map[string]int64  `json:"tables"`
	LatestRun *models.IngestRun `json:"latest_run"`
}

// StatsSummary 各表行数与最近一次采集
func (r *ReportService) StatsSummary(ctx context.Context) (*StatsSummary, error) {
	counts, err := r.store.TableCounts(ctx)
	if err != nil {
		return nil, err
	}

	runs, err := r.store.ListRuns(ctx, "", 1)
	if err != nil {
		return nil, err
	}

	summary := &StatsSummary{Tables: counts}
	if len(runs) > 0 {
		summary.LatestRun = &runs[0]
	}
	return summary, nil
}

func (r *ReportService) ListRuns(ctx context.Context, status models.RunStatus, limit int) ([]models.IngestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	return r.store.ListRuns(ctx, status, limit)
}

func (r *ReportService) GetRun(ctx context.Context, id string) (*models.IngestRun, error) {
	return r.store.GetRun(ctx, id)
}

// Ping checks the database behind the reports.
func (r *ReportService) Ping(ctx context.Context) error {
	if err := r.store.Ping(ctx); err != nil {
		r.logger.Warn("Database ping failed", zap.Error(err))
		return err
	}
	return nil
}
