package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ifuryst/threads-insights/internal/config"
	"github.com/ifuryst/threads-insights/internal/metrics"
	"github.com/ifuryst/threads-insights/internal/models"
	"github.com/ifuryst/threads-insights/internal/service/threads"
	"github.com/ifuryst/threads-insights/pkg/util"
)

// ErrRunInProgress is returned when Run is called while another run holds the guard.
var ErrRunInProgress = errors.New("an ingest run is already in progress")

const (
	maxErrorMessageLength = 2000
	finalizeTimeout       = 10 * time.Second
)

// MetricsClient is the part of the Threads API the pipeline reads from.
type MetricsClient interface {
	GetProfile(ctx context.Context) (threads.Profile, error)
	ListRecentMedia(ctx context.Context, userID string) iter.Seq2[threads.Media, error]
	GetMediaInsights(ctx context.Context, mediaID string) (threads.MediaInsights, error)
	GetUserInsightsDaily(ctx context.Context, userID string, day time.Time) (threads.UserInsights, error)
	GetLinkClicks(ctx context.Context, userID string, day time.Time) ([]threads.LinkClicks, error)
	GetFollowerDemographics(ctx context.Context, userID string, breakdownType models.BreakdownType) ([]threads.DemographicValue, error)
}

type IngestService struct {
	store  *Store
	client MetricsClient
	config *config.Config
	logger *zap.Logger

	now func() time.Time
	mu  sync.Mutex
}

func NewIngestService(store *Store, client MetricsClient, cfg *config.Config, logger *zap.Logger) *IngestService {
	return &IngestService{
		store:  store,
		client: client,
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

// skippedMedia is a media item left out of a run and why.
type skippedMedia struct {
	id     string
	reason string
}

type runState struct {
	run     *models.IngestRun
	day     time.Time
	date    models.Date
	seen    int
	skipped []skippedMedia
}

func (st *runState) skip(id, reason string) {
	st.skipped = append(st.skipped, skippedMedia{id: id, reason: util.SingleLine(reason)})
}

// summary describes the skipped media, or is empty when nothing was skipped.
func (st *runState) summary() string {
	if len(st.skipped) == 0 {
		return ""
	}
	parts := make([]string, 0, len(st.skipped))
	for _, s := range st.skipped {
		parts = append(parts, s.id+": "+s.reason)
	}
	return fmt.Sprintf("skipped %d of %d media: %s", len(st.skipped), st.seen, strings.Join(parts, "; "))
}

// Today returns midnight of the current day in the ingest timezone.
func (s *IngestService) Today() time.Time {
	now := s.now().In(s.config.Ingest.Location())
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

// Run executes one ingestion cycle and returns the finalized run record.
// The returned error is the fatal error that stopped the run, if any; the
// run is still returned with status failed in that case.
func (s *IngestService) Run(ctx context.Context, trigger models.RunTrigger) (*models.IngestRun, error) {
	if !s.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.mu.Unlock()

	start := s.now().UTC()
	run := &models.IngestRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: start,
		Status:    models.RunStatusRunning,
	}
	log := s.logger.With(zap.String("run_id", run.ID), zap.String("trigger", string(trigger)))

	if err := s.store.CreateRun(ctx, run); err != nil {
		log.Error("Failed to record ingest run", zap.Error(err))
		ended := s.now().UTC()
		msg := err.Error()
		run.Status = models.RunStatusFailed
		run.EndedAt = &ended
		run.ErrorMessage = &msg
		metrics.ObserveRun(string(run.Status), start)
		return run, err
	}

	day := s.Today()
	st := &runState{run: run, day: day, date: models.NewDate(day)}
	log.Info("Starting ingest run", zap.String("as_of_date", st.date.String()))

	fatal := s.ingest(ctx, log, st)
	return s.finish(ctx, log, st, start, fatal)
}

func (s *IngestService) ingest(ctx context.Context, log *zap.Logger, st *runState) error {
	userID, err := s.resolveUserID(ctx)
	if err != nil {
		return err
	}

	if err := s.ingestMedia(ctx, log, st, userID); err != nil {
		return err
	}
	if err := s.ingestUserInsights(ctx, st, userID); err != nil {
		return err
	}
	if err := s.ingestLinkClicks(ctx, log, st, userID); err != nil {
		return err
	}
	return s.ingestDemographics(ctx, log, st, userID)
}

// resolveUserID turns the "me" alias into the token owner's id.
func (s *IngestService) resolveUserID(ctx context.Context) (string, error) {
	userID := s.config.Threads.UserID
	if userID != "" && userID != "me" {
		return userID, nil
	}
	profile, err := s.client.GetProfile(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve profile: %w", err)
	}
	if profile.ID == "" {
		return "", errors.New("failed to resolve profile: empty user id")
	}
	return profile.ID, nil
}

func (s *IngestService) ingestMedia(ctx context.Context, log *zap.Logger, st *runState, userID string) error {
	for item, err := range s.client.ListRecentMedia(ctx, userID) {
		if err != nil {
			return fmt.Errorf("failed to list media: %w", err)
		}
		st.seen++

		if item.MediaType == "" {
			st.skip(item.ID, fmt.Sprintf("unsupported media type %q", item.RawType))
			continue
		}
		if item.Timestamp.IsZero() {
			st.skip(item.ID, "missing timestamp")
			continue
		}

		author := item.OwnerID
		if author == "" {
			author = userID
		}
		media := &models.ThreadsMedia{
			MediaID:      item.ID,
			AuthorUserID: author,
			CreatedAt:    item.Timestamp,
			MediaType:    item.MediaType,
			Permalink:    item.Permalink,
		}
		if _, err := s.store.InsertMediaIfAbsent(ctx, media); err != nil {
			return err
		}

		insights, err := s.client.GetMediaInsights(ctx, item.ID)
		if err != nil {
			var upstream *threads.UpstreamError
			if !errors.As(err, &upstream) {
				return fmt.Errorf("failed to fetch insights for media %s: %w", item.ID, err)
			}
			log.Warn("Skipping media insights", zap.String("media_id", item.ID), zap.Error(err))
			st.skip(item.ID, upstream.Error())
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		if err := s.store.UpsertMediaInsight(ctx, &models.MediaInsight{
			MediaID:  item.ID,
			AsOfDate: st.date,
			Views:    insights.Views,
			Likes:    insights.Likes,
			Replies:  insights.Replies,
			Reposts:  insights.Reposts,
			Quotes:   insights.Quotes,
			Shares:   insights.Shares,
		}); err != nil {
			return err
		}
		st.run.MediaCount++
	}

	log.Info("Media insights collected",
		zap.Int("media_seen", st.seen),
		zap.Int("media_count", st.run.MediaCount),
		zap.Int("media_skipped", len(st.skipped)))
	return nil
}

func (s *IngestService) ingestUserInsights(ctx context.Context, st *runState, userID string) error {
	insights, err := s.client.GetUserInsightsDaily(ctx, userID, st.day)
	if err != nil {
		return fmt.Errorf("failed to fetch user insights: %w", err)
	}

	if err := s.store.UpsertUserInsights(ctx, &models.UserInsightsDaily{
		AsOfDate:       st.date,
		Views:          insights.Views,
		Likes:          insights.Likes,
		Replies:        insights.Replies,
		Reposts:        insights.Reposts,
		Quotes:         insights.Quotes,
		Clicks:         insights.Clicks,
		FollowersCount: insights.FollowersCount,
	}); err != nil {
		return err
	}
	st.run.UserInsightsUpdated = true
	return nil
}

func (s *IngestService) ingestLinkClicks(ctx context.Context, log *zap.Logger, st *runState, userID string) error {
	links, err := s.client.GetLinkClicks(ctx, userID, st.day)
	if err != nil {
		return fmt.Errorf("failed to fetch link clicks: %w", err)
	}

	rows := make([]models.LinkClicksDaily, 0, len(links))
	for _, l := range links {
		rows = append(rows, models.LinkClicksDaily{AsOfDate: st.date, LinkURL: l.LinkURL, Clicks: l.Clicks})
	}
	if err := s.store.UpsertLinkClicks(ctx, rows); err != nil {
		return err
	}

	log.Debug("Link clicks stored", zap.Int("links", len(rows)))
	return nil
}

func (s *IngestService) ingestDemographics(ctx context.Context, log *zap.Logger, st *runState, userID string) error {
	for _, bt := range models.BreakdownTypes {
		values, err := s.client.GetFollowerDemographics(ctx, userID, bt)
		if err != nil {
			return fmt.Errorf("failed to fetch %s demographics: %w", bt, err)
		}

		rows := make([]models.FollowerDemographic, 0, len(values))
		for _, v := range values {
			rows = append(rows, models.FollowerDemographic{
				AsOfDate:      st.date,
				BreakdownType: bt,
				BreakdownKey:  v.Key,
				Value:         v.Value,
			})
		}
		if err := s.store.UpsertDemographics(ctx, rows); err != nil {
			return err
		}

		log.Debug("Follower demographics stored", zap.String("breakdown", string(bt)), zap.Int("keys", len(rows)))
	}
	return nil
}

// finish writes the terminal state of the run. The write uses a context detached
// from the caller so a cancelled request still closes the run row.
func (s *IngestService) finish(ctx context.Context, log *zap.Logger, st *runState, start time.Time, fatal error) (*models.IngestRun, error) {
	run := st.run
	ended := s.now().UTC()
	run.EndedAt = &ended
	run.MediaFailed = len(st.skipped)

	message := st.summary()
	if fatal != nil {
		run.Status = models.RunStatusFailed
		if message != "" {
			message += "; "
		}
		message += fatal.Error()
	} else {
		run.Status = models.RunStatusSuccess
	}
	if message != "" {
		message = util.Truncate(message, maxErrorMessageLength)
		run.ErrorMessage = &message
	}

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	if err := s.store.FinishRun(finishCtx, run); err != nil {
		log.Error("Failed to finalize ingest run", zap.Error(err))
		run.Status = models.RunStatusFailed
		if fatal == nil {
			fatal = fmt.Errorf("failed to finalize run: %w", err)
			msg := util.Truncate(fatal.Error(), maxErrorMessageLength)
			run.ErrorMessage = &msg
		}
	}

	metrics.ObserveRun(string(run.Status), start)
	metrics.IngestMediaSkipped.Add(float64(len(st.skipped)))

	fields := []zap.Field{
		zap.String("status", string(run.Status)),
		zap.Int("media_count", run.MediaCount),
		zap.Int("media_failed", run.MediaFailed),
		zap.Bool("user_insights_updated", run.UserInsightsUpdated),
		zap.Duration("duration", ended.Sub(start)),
	}
	if fatal != nil {
		log.Error("Ingest run failed", append(fields, zap.Error(fatal))...)
	} else {
		log.Info("Ingest run completed", fields...)
	}
	return run, fatal
}
