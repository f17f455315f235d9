package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ifuryst/threads-insights/internal/models"
)

// PersistenceError wraps a failed database statement.
type PersistenceError struct {
	Table string
	Op    string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ErrRunFinalized is returned when a run row has already left the running status.
var ErrRunFinalized = errors.New("ingest run already finalized")

// Store is the single access point to the snapshot tables.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the handle for health checks and tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// upsert inserts rows keyed by their model's declared primary key. On conflict the
// listed columns are overwritten; with no columns the existing row is kept.
// It returns the number of rows written.
func upsert[T any](ctx context.Context, db *gorm.DB, rows []T, updates ...string) (int64, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(new(T)); err != nil {
		return 0, fmt.Errorf("failed to parse schema: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	keys := make([]clause.Column, 0, len(stmt.Schema.PrimaryFieldDBNames))
	for _, name := range stmt.Schema.PrimaryFieldDBNames {
		keys = append(keys, clause.Column{Name: name})
	}

	onConflict := clause.OnConflict{Columns: keys}
	if len(updates) == 0 {
		onConflict.DoNothing = true
	} else {
		onConflict.DoUpdates = clause.AssignmentColumns(updates)
	}

	result := db.WithContext(ctx).Omit(clause.Associations).Clauses(onConflict).Create(&rows)
	if result.Error != nil {
		return 0, &PersistenceError{Table: stmt.Schema.Table, Op: "upsert", Err: result.Error}
	}
	return result.RowsAffected, nil
}

// InsertMediaIfAbsent stores a post the first time it is seen. Existing rows are never changed.
func (s *Store) InsertMediaIfAbsent(ctx context.Context, media *models.ThreadsMedia) (bool, error) {
	n, err := upsert(ctx, s.db, []models.ThreadsMedia{*media})
	return n > 0, err
}

func (s *Store) UpsertMediaInsight(ctx context.Context, insight *models.MediaInsight) error {
	_, err := upsert(ctx, s.db, []models.MediaInsight{*insight},
		"views", "likes", "replies", "reposts", "quotes", "shares", "updated_at")
	return err
}

func (s *Store) UpsertUserInsights(ctx context.Context, insights *models.UserInsightsDaily) error {
	_, err := upsert(ctx, s.db, []models.UserInsightsDaily{*insights},
		"views", "likes", "replies", "reposts", "quotes", "clicks", "followers_count", "updated_at")
	return err
}

func (s *Store) UpsertLinkClicks(ctx context.Context, rows []models.LinkClicksDaily) error {
	_, err := upsert(ctx, s.db, rows, "clicks", "updated_at")
	return err
}

func (s *Store) UpsertDemographics(ctx context.Context, rows []models.FollowerDemographic) error {
	_, err := upsert(ctx, s.db, rows, "value", "updated_at")
	return err
}

// CreateRun inserts a new provenance row.
func (s *Store) CreateRun(ctx context.Context, run *models.IngestRun) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return &PersistenceError{Table: "ingest_runs", Op: "insert", Err: err}
	}
	return nil
}

// FinishRun writes the terminal state of a run. It only succeeds once per run.
func (s *Store) FinishRun(ctx context.Context, run *models.IngestRun) error {
	result := s.db.WithContext(ctx).
		Model(&models.IngestRun{}).
		Where("id = ? AND status = ?", run.ID, models.RunStatusRunning).
		Select("ended_at", "status", "error_message", "media_count", "media_failed", "user_insights_updated").
		Updates(run)
	if result.Error != nil {
		return &PersistenceError{Table: "ingest_runs", Op: "update", Err: result.Error}
	}
	if result.RowsAffected == 0 {
		return ErrRunFinalized
	}
	return nil
}

// FailStaleRuns marks runs still running since before cutoff as failed and returns how many changed.
func (s *Store) FailStaleRuns(ctx context.Context, cutoff time.Time, message string) (int64, error) {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.IngestRun{}).
		Where("status = ? AND started_at < ?", models.RunStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":        models.RunStatusFailed,
			"ended_at":      now,
			"error_message": message,
		})
	if result.Error != nil {
		return 0, &PersistenceError{Table: "ingest_runs", Op: "update", Err: result.Error}
	}
	return result.RowsAffected, nil
}

// GetRun returns nil when the run does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (*models.IngestRun, error) {
	var run models.IngestRun
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns returns the newest runs first, optionally filtered by status.
func (s *Store) ListRuns(ctx context.Context, status models.RunStatus, limit int) ([]models.IngestRun, error) {
	runs := make([]models.IngestRun, 0)
	q := s.db.WithContext(ctx).Order("started_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// PostMetricsFilter narrows GET /metrics/posts. Empty fields are not applied.
type PostMetricsFilter struct {
	From      models.Date
	To        models.Date
	MediaType models.MediaType
	Limit     int
	Offset    int
}

// PostMetricRow is one media_insights snapshot joined with its post.
type PostMetricRow struct {
	MediaID   string           `json:"media_id"`
	MediaType models.MediaType `json:"media_type"`
	Permalink string           `json:"permalink"`
	CreatedAt time.Time        `json:"created_at"`
	AsOfDate  models.Date      `json:"as_of_date"`
	Views     int64            `json:"views"`
	Likes     int64            `json:"likes"`
	Replies   int64            `json:"replies"`
	Reposts   int64            `json:"reposts"`
	Quotes    int64            `json:"quotes"`
	Shares    int64            `json:"shares"`
}

// ListPostMetrics returns snapshots within the inclusive date range, newest day first.
func (s *Store) ListPostMetrics(ctx context.Context, f PostMetricsFilter) ([]PostMetricRow, error) {
	rows := make([]PostMetricRow, 0)
	q := s.db.WithContext(ctx).
		Table("media_insights AS mi").
		Select("mi.media_id, tm.media_type, tm.permalink, tm.created_at, mi.as_of_date, " +
			"mi.views, mi.likes, mi.replies, mi.reposts, mi.quotes, mi.shares").
		Joins("JOIN threads_media AS tm ON tm.media_id = mi.media_id")
	if f.From != "" {
		q = q.Where("mi.as_of_date >= ?", f.From)
	}
	if f.To != "" {
		q = q.Where("mi.as_of_date <= ?", f.To)
	}
	if f.MediaType != "" {
		q = q.Where("tm.media_type = ?", f.MediaType)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	if err := q.Order("mi.as_of_date DESC, tm.created_at DESC, mi.media_id").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list post metrics: %w", err)
	}
	return rows, nil
}

// LatestUserInsights returns the newest row dated strictly before the given day,
// or nil when there is none. An empty day means no upper bound.
func (s *Store) LatestUserInsights(ctx context.Context, before models.Date) (*models.UserInsightsDaily, error) {
	var row models.UserInsightsDaily
	q := s.db.WithContext(ctx).Order("as_of_date DESC")
	if before != "" {
		q = q.Where("as_of_date < ?", before)
	}
	err := q.First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user insights: %w", err)
	}
	return &row, nil
}

// TableCounts returns the row count of every table keyed by table name.
func (s *Store) TableCounts(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64, len(AllModels))
	for _, model := range AllModels {
		stmt := &gorm.Statement{DB: s.db}
		if err := stmt.Parse(model); err != nil {
			return nil, fmt.Errorf("failed to parse schema: %w", err)
		}

		var n int64
		if err := s.db.WithContext(ctx).Model(model).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", stmt.Schema.Table, err)
		}
		counts[stmt.Schema.Table] = n
	}
	return counts, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
