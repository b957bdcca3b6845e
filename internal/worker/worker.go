package worker

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/tonearm/royaltyd/internal/app"
	"github.com/tonearm/royaltyd/internal/config"
	"github.com/tonearm/royaltyd/internal/logger"
)

// Worker runs the scheduled batch cycles: payout aggregation, analytics
// summary rebuilds, expired key cleanup and stuck-payout recovery. Each
// batch runs serially within its own schedule; cycles that overrun simply
// delay the next tick.
type Worker struct {
	Agg       *app.AggregationService
	Payouts   *app.PayoutService
	Analytics *app.AnalyticsService
	Keys      *app.ApiKeyService
	Config    *config.Config
	Logger    *logger.Logger

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

func NewWorker(agg *app.AggregationService, payouts *app.PayoutService, analytics *app.AnalyticsService, keys *app.ApiKeyService, cfg *config.Config, log *logger.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		Agg:       agg,
		Payouts:   payouts,
		Analytics: analytics,
		Keys:      keys,
		Config:    cfg,
		Logger:    log.WithComponent("worker"),
		cron:      cron.New(),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (w *Worker) Start() error {
	schedules := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{"aggregation", w.Config.AggregationSchedule, w.runAggregation},
		{"analytics", w.Config.AnalyticsSchedule, w.runAnalytics},
		{"key-cleanup", w.Config.KeyCleanupSchedule, w.runKeyCleanup},
		{"recovery", w.Config.RecoverySchedule, w.runRecovery},
	}

	for _, s := range schedules {
		s := s
		if _, err := w.cron.AddFunc(s.spec, func() {
			w.runBatch(s.name, s.run)
		}); err != nil {
			return err
		}
	}

	w.Logger.Info("Starting worker")
	w.cron.Start()
	return nil
}

func (w *Worker) Stop() {
	w.Logger.Info("Stopping worker")
	w.cancel()
	<-w.cron.Stop().Done()
}

// runBatch serializes batches so an overrunning aggregation never overlaps
// a recovery sweep touching the same payouts.
func (w *Worker) runBatch(name string, run func(context.Context)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx.Err() != nil {
		return
	}
	w.Logger.Debug("Batch starting", "batch", name)
	run(w.ctx)
}

func (w *Worker) runAggregation(ctx context.Context) {
	log := w.Logger.WithBatch("aggregation")

	results, err := w.Agg.RunAll(ctx)
	if err != nil {
		log.Error("Aggregation batch failed", "error", err)
		return
	}

	created, skipped := 0, 0
	for _, res := range results {
		if res.Skipped {
			skipped++
		} else {
			created++
		}
	}
	log.Info("Aggregation cycle finished", "payouts", created, "skipped", skipped)
}

func (w *Worker) runAnalytics(ctx context.Context) {
	log := w.Logger.WithBatch("analytics")

	since, until := w.Config.AnalyticsRebuildWindow()
	days, err := w.Analytics.RebuildRange(ctx, since, until)
	if err != nil {
		log.Error("Analytics rebuild failed", "error", err)
		return
	}
	log.Info("Analytics summaries rebuilt", "days", days)
}

func (w *Worker) runKeyCleanup(ctx context.Context) {
	log := w.Logger.WithBatch("key-cleanup")

	n, err := w.Keys.ExpireKeys(ctx)
	if err != nil {
		log.Error("Key cleanup failed", "error", err)
		return
	}
	if n > 0 {
		log.Info("Key cleanup finished", "deactivated", n)
	}
}

func (w *Worker) runRecovery(ctx context.Context) {
	log := w.Logger.WithBatch("recovery")

	n, err := w.Payouts.RecoverStuck(ctx, w.Config.ProcessingDeadline)
	if err != nil {
		log.Error("Payout recovery failed", "error", err)
		return
	}
	if n > 0 {
		log.Info("Stuck payouts recovered", "count", n)
	}
}
