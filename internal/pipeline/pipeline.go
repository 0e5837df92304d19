// Package pipeline advances ingest records through the enrichment stages
// and exposes the batch orchestrator the CLI and server trigger.
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/placefeed/curator/internal/config"
	"github.com/placefeed/curator/internal/locks"
	"github.com/placefeed/curator/internal/model"
	"github.com/placefeed/curator/internal/resilience"
	"github.com/placefeed/curator/internal/store"
	"github.com/placefeed/curator/pkg/census"
	"github.com/placefeed/curator/pkg/places"
	"github.com/placefeed/curator/pkg/textgen"
	"github.com/placefeed/curator/pkg/wiki"
)

// Pipeline orchestrates batch processing of ingest records.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	provider textgen.Provider
	tasks    taskTable
	locks    *locks.Keyed
	breakers *resilience.BreakerSet
	retry    resilience.RetryConfig
}

// New creates a Pipeline with all dependencies. The keyed locks are shared
// with the maintenance service so resets and stage advances on the same
// record never interleave.
func New(
	cfg *config.Config,
	st store.Store,
	provider textgen.Provider,
	placesClient places.Client,
	wikiClient wiki.Client,
	censusClient census.Client,
	keyed *locks.Keyed,
) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		provider: provider,
		tasks: taskTable{
			model.StageNew:        &classifyTask{provider: provider},
			model.StageClassified: &enrichTask{wiki: wikiClient, census: censusClient, places: placesClient},
			model.StageEnriched:   &rewriteTask{provider: provider},
			model.StageRewritten:  &scoreTask{},
			model.StageScored:     &publishTask{store: st, threshold: cfg.Pipeline.PublishThreshold},
		},
		locks:    keyed,
		breakers: resilience.NewBreakerSet(cfg.Retry.FailureThreshold, time.Duration(cfg.Retry.ResetTimeoutSecs)*time.Second),
		retry:    retryPolicy(cfg.Retry),
	}
}

// retryPolicy translates the millisecond-based config section into a retry
// configuration. Zero values fall back to the retry defaults.
func retryPolicy(cfg config.RetryConfig) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: time.Duration(cfg.InitialBackoffMs) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.MaxBackoffMs) * time.Millisecond,
		Multiplier:     cfg.Multiplier,
		JitterFraction: cfg.JitterFraction,
	}
}

// RunBatch fetches up to maxItems eligible records oldest-first and
// dispatches each to the task for its stage. One record's failure never
// aborts the batch; the returned summary counts both outcomes. An empty
// batch is a normal outcome, not an error.
func (p *Pipeline) RunBatch(ctx context.Context, maxItems int) (model.BatchSummary, error) {
	if maxItems <= 0 {
		maxItems = p.cfg.Pipeline.BatchSize
	}

	records, err := p.store.ListEligible(ctx, model.EligibleStages(), maxItems)
	if err != nil {
		return model.BatchSummary{}, eris.Wrap(err, "pipeline: list eligible")
	}
	if len(records) == 0 {
		zap.L().Info("pipeline: nothing pending")
		return model.BatchSummary{}, nil
	}

	workers := p.cfg.Pipeline.Workers
	if workers <= 0 {
		workers = 1
	}

	var processed, failed atomic.Int64

	g := &errgroup.Group{}
	g.SetLimit(workers)

	for _, rec := range records {
		// Cancellation is cooperative: checked between records, never
		// mid-task, so every record settles in a consistent state.
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			switch p.processRecord(ctx, rec) {
			case recordAdvanced:
				processed.Add(1)
			case recordFailed:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := model.BatchSummary{
		Processed: int(processed.Load()),
		Errors:    int(failed.Load()),
	}
	zap.L().Info("pipeline: batch complete",
		zap.Int("examined", len(records)),
		zap.Int("processed", summary.Processed),
		zap.Int("errors", summary.Errors),
	)
	return summary, nil
}

type recordResult int

const (
	recordAdvanced recordResult = iota
	recordFailed
	recordDropped
)

func (p *Pipeline) processRecord(ctx context.Context, rec model.IngestRecord) recordResult {
	// Maintenance operations take the same per-id lock, so a reset can
	// never interleave with a stage advance on one record.
	p.locks.Lock(rec.ID)
	defer p.locks.Unlock(rec.ID)

	log := zap.L().With(zap.String("record_id", rec.ID), zap.String("stage", string(rec.Stage)))

	task, ok := p.tasks[rec.Stage]
	if !ok {
		log.Warn("pipeline: no task for stage")
		return recordDropped
	}

	breaker := p.breakers.Get(task.Name())
	outcome, err := resilience.Guard(ctx, breaker, func(ctx context.Context) (Outcome, error) {
		retryCfg := p.retry
		retryCfg.OnRetry = resilience.RetryLogger(task.Name(), "run")
		return resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (Outcome, error) {
			return task.Run(ctx, rec)
		})
	})

	if err == nil {
		if advErr := p.store.Advance(ctx, rec.ID, outcome.NextStage, outcome.Patch); advErr != nil {
			if eris.Is(advErr, store.ErrNotFound) {
				// Deleted between selection and dispatch: drop silently.
				return recordDropped
			}
			log.Error("pipeline: advance failed", zap.Error(advErr))
			return recordFailed
		}
		log.Info("pipeline: record advanced", zap.String("to", string(outcome.NextStage)))
		return recordAdvanced
	}

	return p.handleTaskFailure(ctx, rec, task, err)
}

func (p *Pipeline) handleTaskFailure(ctx context.Context, rec model.IngestRecord, task Task, err error) recordResult {
	log := zap.L().With(zap.String("record_id", rec.ID), zap.String("task", task.Name()))

	// Malformed raw data cannot succeed on retry: route to manual review.
	var verr *ValidationError
	if eris.As(err, &verr) {
		reason := verr.Error()
		routeErr := p.store.Advance(ctx, rec.ID, model.StageReadyForReview, model.DerivedPatch{ReviewReason: &reason})
		if routeErr != nil && !eris.Is(routeErr, store.ErrNotFound) {
			log.Error("pipeline: review routing failed", zap.Error(routeErr))
		}
		log.Warn("pipeline: record routed to review", zap.String("reason", reason))
		return recordFailed
	}

	// Quarantine poison records once they exhaust their attempt budget, so
	// they stop consuming batch capacity.
	attempts := 1
	if rec.Failure != nil && rec.Failure.Stage == rec.Stage {
		attempts = rec.Failure.Count + 1
	}
	if attempts >= p.cfg.Pipeline.MaxAttempts {
		reason := eris.Wrapf(err, "quarantined after %d failed attempts", attempts).Error()
		routeErr := p.store.Advance(ctx, rec.ID, model.StageReadyForReview, model.DerivedPatch{ReviewReason: &reason})
		if routeErr != nil && !eris.Is(routeErr, store.ErrNotFound) {
			log.Error("pipeline: quarantine failed", zap.Error(routeErr))
		}
		log.Warn("pipeline: record quarantined", zap.Int("attempts", attempts), zap.Error(err))
		return recordFailed
	}

	if failErr := p.store.RecordFailure(ctx, rec.ID, rec.Stage, err.Error()); failErr != nil {
		if !eris.Is(failErr, store.ErrNotFound) {
			log.Error("pipeline: record failure write failed", zap.Error(failErr))
		}
		return recordFailed
	}
	log.Warn("pipeline: task failed", zap.Int("attempt", attempts), zap.Error(err))
	return recordFailed
}

// Status reports per-stage counts and provider health. Counts are read from
// the store at call time, never cached.
func (p *Pipeline) Status(ctx context.Context) (*model.StatusReport, error) {
	counts, failedCount, err := p.store.CountByStage(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: count by stage")
	}

	report := &model.StatusReport{
		Stages:       counts,
		Failed:       failedCount,
		Breakers:     p.breakers.Snapshot(),
		ProviderName: p.provider.Name(),
		ProviderOK:   true,
	}

	testCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := p.provider.TestConnection(testCtx); err != nil {
		report.ProviderOK = false
		report.ProviderMessage = err.Error()
	}
	return report, nil
}
