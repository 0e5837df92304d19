package pipeline

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/placefeed/curator/internal/model"
	"github.com/placefeed/curator/internal/store"
	"github.com/placefeed/curator/pkg/slug"
)

// publishTask is the one stage with two legal destinations: records at or
// above the threshold become content entities, records below it go to
// manual review. Both are terminal.
type publishTask struct {
	store     store.Store
	threshold int
}

func (t *publishTask) Name() string { return "publish" }

func (t *publishTask) Run(ctx context.Context, rec model.IngestRecord) (Outcome, error) {
	if rec.Derived.Score == nil {
		return Outcome{}, &ValidationError{Field: "score", Reason: "is missing"}
	}
	score := *rec.Derived.Score

	if score < t.threshold {
		reason := fmt.Sprintf("score %d below publish threshold %d", score, t.threshold)
		return Outcome{
			NextStage: model.StageReadyForReview,
			Patch:     model.DerivedPatch{ReviewReason: &reason},
		}, nil
	}

	entity := t.buildEntity(rec)
	entityID, err := t.upsertEntity(ctx, rec, entity)
	if err != nil {
		return Outcome{}, err
	}

	zap.L().Info("publish: entity written",
		zap.String("record_id", rec.ID),
		zap.String("entity_id", entityID),
		zap.Int("score", score),
	)

	return Outcome{
		NextStage: model.StagePublished,
		Patch:     model.DerivedPatch{LinkedEntity: &entityID},
	}, nil
}

func (t *publishTask) buildEntity(rec model.IngestRecord) model.ContentEntity {
	title := rec.RawData.Title
	if title == "" {
		title = rec.RawData.Name
	}

	score := 0
	if rec.Derived.Score != nil {
		score = *rec.Derived.Score
	}

	return model.ContentEntity{
		Type:       rec.TargetType,
		Title:      title,
		Slug:       slug.Make(title),
		Body:       rec.Derived.Rewritten,
		Population: rec.Derived.Population,
		Rating:     rec.Derived.Rating,
		Score:      score,
	}
}

// upsertEntity updates the originating entity for reimported records and
// creates a fresh one otherwise.
func (t *publishTask) upsertEntity(ctx context.Context, rec model.IngestRecord, entity model.ContentEntity) (string, error) {
	existingID := rec.SourceDedupKey
	if existingID == "" {
		existingID = rec.LinkedEntityID
	}

	if existingID != "" {
		entity.ID = existingID
		err := t.store.UpdateEntity(ctx, entity)
		if err == nil {
			return existingID, nil
		}
		if !eris.Is(err, store.ErrNotFound) {
			return "", err
		}
		// The original entity is gone; fall through and create a new one.
		entity.ID = ""
	}

	created, err := t.store.CreateEntity(ctx, entity)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}
