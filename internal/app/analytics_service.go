package app

import (
	"context"
	"sort"
	"time"

	"github.com/tonearm/royaltyd/internal/constants"
	"github.com/tonearm/royaltyd/internal/domain"
	"github.com/tonearm/royaltyd/internal/logger"
	"github.com/tonearm/royaltyd/internal/store"
)

// AnalyticsService ingests event batches and maintains the per-day
// summaries derived from them.
type AnalyticsService struct {
	Repo   *store.DB
	Logger *logger.Logger
}

func NewAnalyticsService(repo *store.DB, log *logger.Logger) *AnalyticsService {
	return &AnalyticsService{Repo: repo, Logger: log.WithComponent("analytics")}
}

// IngestReport accounts for every event of a batch. Accepted events were
// written for the first time, duplicates were silently dropped, and
// malformed events were rejected without aborting the rest of the batch.
type IngestReport struct {
	Accepted   int      `json:"accepted"`
	Duplicates int      `json:"duplicates"`
	Malformed  int      `json:"malformed"`
	Days       []string `json:"days"`
}

// Ingest writes a batch of events and rebuilds the summaries of every day
// the batch touched. Events are keyed by ID, so replaying a batch changes
// nothing beyond a duplicate count.
func (s *AnalyticsService) Ingest(ctx context.Context, events []*domain.AnalyticsEvent) (*IngestReport, error) {
	if len(events) > constants.MaxEventBatchSize {
		return nil, domain.ValidationErrors{{Field: "events", Message: "batch too large"}}
	}

	report := &IngestReport{}
	touched := map[string]bool{}

	for _, event := range events {
		if err := event.Validate(); err != nil {
			report.Malformed++
			continue
		}
		event.Type = domain.Classify(string(event.Type))

		inserted, err := s.Repo.InsertEvent(ctx, event)
		if err != nil {
			return nil, err
		}
		if inserted {
			report.Accepted++
			touched[event.Day()] = true
		} else {
			report.Duplicates++
		}
	}

	for day := range touched {
		report.Days = append(report.Days, day)
	}
	sort.Strings(report.Days)

	for _, day := range report.Days {
		if err := s.Rebuild(ctx, day); err != nil {
			return nil, err
		}
	}

	s.Logger.Info("Batch ingested",
		"accepted", report.Accepted,
		"duplicates", report.Duplicates,
		"malformed", report.Malformed,
		"days", len(report.Days))
	return report, nil
}

// Rebuild recomputes one day's summary from its full event set and
// replaces the stored row. Recomputing from scratch keeps the summary
// correct no matter how often or in what order batches arrive.
func (s *AnalyticsService) Rebuild(ctx context.Context, date string) error {
	events, err := s.Repo.ListEventsForDay(ctx, date)
	if err != nil {
		return err
	}
	summary := domain.FoldEvents(date, events)
	if err := summary.CheckTotals(); err != nil {
		return err
	}
	return s.Repo.UpsertSummary(ctx, summary)
}

// RebuildRange rebuilds every day in [since, until] that has events,
// returning the number of days recomputed.
func (s *AnalyticsService) RebuildRange(ctx context.Context, since, until time.Time) (int, error) {
	days, err := s.Repo.ListEventDays(ctx, since, until)
	if err != nil {
		return 0, err
	}
	for _, day := range days {
		if err := s.Rebuild(ctx, day); err != nil {
			return 0, err
		}
	}
	return len(days), nil
}

func (s *AnalyticsService) GetSummary(ctx context.Context, date string) (*domain.AnalyticsSummary, error) {
	return s.Repo.GetSummary(ctx, date)
}
