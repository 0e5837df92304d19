package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/placefeed/curator/internal/model"
	"github.com/placefeed/curator/pkg/census"
	"github.com/placefeed/curator/pkg/places"
	"github.com/placefeed/curator/pkg/wiki"
)

// enrichTask gathers supplementary facts from the source connectors. Each
// connector is best-effort: partial enrichment advances the record, total
// connector failure is a task failure retried next batch.
type enrichTask struct {
	wiki   wiki.Client
	census census.Client
	places places.Client
}

func (t *enrichTask) Name() string { return "enrich" }

func (t *enrichTask) Run(ctx context.Context, rec model.IngestRecord) (Outcome, error) {
	var (
		mu        sync.Mutex
		patch     model.DerivedPatch
		attempted int
		succeeded int
		lastErr   error
	)

	record := func(err error, apply func()) {
		mu.Lock()
		defer mu.Unlock()
		attempted++
		if err != nil {
			lastErr = err
			return
		}
		succeeded++
		if apply != nil {
			apply()
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Encyclopedia summary for any target type.
	g.Go(func() error {
		sum, err := t.wiki.Summary(gCtx, rec.RawData.Name)
		if err != nil {
			zap.L().Warn("enrich: summary lookup failed",
				zap.String("record_id", rec.ID), zap.Error(err))
			record(err, nil)
			return nil
		}
		record(nil, func() {
			if sum != nil && sum.Extract != "" {
				patch.Summary = &sum.Extract
			}
		})
		return nil
	})

	// Population only makes sense for localities.
	if rec.TargetType == model.TargetLocality {
		g.Go(func() error {
			pop, found, err := t.census.Population(gCtx, rec.RawData.Name, rec.RawData.Region)
			if err != nil {
				zap.L().Warn("enrich: population lookup failed",
					zap.String("record_id", rec.ID), zap.Error(err))
				record(err, nil)
				return nil
			}
			record(nil, func() {
				if found {
					patch.Population = &pop
				}
			})
			return nil
		})
	}

	// Ratings only make sense for concrete places.
	if rec.TargetType == model.TargetPlace {
		g.Go(func() error {
			query := rec.RawData.Name
			if rec.RawData.Region != "" {
				query += " " + rec.RawData.Region
			}
			resp, err := t.places.TextSearch(gCtx, query)
			if err != nil {
				zap.L().Warn("enrich: rating lookup failed",
					zap.String("record_id", rec.ID), zap.Error(err))
				record(err, nil)
				return nil
			}
			record(nil, func() {
				if len(resp.Places) > 0 {
					p := resp.Places[0]
					patch.Rating = &p.Rating
					patch.RatingCount = &p.UserRatingCount
				}
			})
			return nil
		})
	}

	_ = g.Wait()

	if succeeded == 0 && attempted > 0 {
		return Outcome{}, &ConnectorError{Connector: "all", Err: lastErr}
	}

	return Outcome{NextStage: model.StageEnriched, Patch: patch}, nil
}
