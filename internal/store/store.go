package store

import (
	"context"

	"github.com/placefeed/curator/internal/model"
)

// RecordFilter specifies criteria for listing ingest records.
type RecordFilter struct {
	Stages     []model.Stage    `json:"stages,omitempty"`
	SourceType model.SourceType `json:"source_type,omitempty"`
	Limit      int              `json:"limit,omitempty"`
	Offset     int              `json:"offset,omitempty"`
}

// Store defines the persistence interface for the ingestion pipeline.
// Advance and RecordFailure are the only mutations the batch loop performs;
// both are atomic per record so a crash mid-task never leaves a record
// half-updated.
type Store interface {
	// Ingest records
	CreateRecord(ctx context.Context, rec model.IngestRecord) (*model.IngestRecord, error)
	GetRecord(ctx context.Context, id string) (*model.IngestRecord, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.IngestRecord, error)
	ListEligible(ctx context.Context, stages []model.Stage, limit int) ([]model.IngestRecord, error)
	FindByDedupKey(ctx context.Context, key string) (*model.IngestRecord, error)
	ListDedupKeys(ctx context.Context) (map[string]bool, error)

	// Advance atomically sets the stage, merges the derived patch and clears
	// any prior failure. Returns ErrNotFound if the record vanished.
	Advance(ctx context.Context, id string, newStage model.Stage, patch model.DerivedPatch) error

	// RecordFailure sets the failure message for the given stage without
	// changing the stage, incrementing the attempt count. The record stays
	// eligible for the same stage on the next batch run.
	RecordFailure(ctx context.Context, id string, stage model.Stage, message string) error

	DeleteRecord(ctx context.Context, id string) error

	// RetagRecord changes a record's target type, used by the scrub pass
	// when raw type tags show a record was ingested under the wrong kind.
	RetagRecord(ctx context.Context, id string, target model.TargetType) error

	ResetSoft(ctx context.Context, id string) error
	HardDeleteAll(ctx context.Context) (int, error)
	CountByStage(ctx context.Context) (model.StageCounts, int, error)

	// Content entities (the publishing target)
	CreateEntity(ctx context.Context, e model.ContentEntity) (*model.ContentEntity, error)
	UpdateEntity(ctx context.Context, e model.ContentEntity) error
	GetEntity(ctx context.Context, id string) (*model.ContentEntity, error)
	ListPublishedEntities(ctx context.Context, entityType model.TargetType, limit int) ([]model.ContentEntity, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
