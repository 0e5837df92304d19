package pipeline

import (
	"context"

	"github.com/placefeed/curator/internal/model"
)

// Outcome is a successful task result: the stage to advance to plus the
// derived fields the task produced. The orchestrator persists both in a
// single atomic store call.
type Outcome struct {
	NextStage model.Stage
	Patch     model.DerivedPatch
}

// Task transforms one record at one stage. Implementations never mutate the
// record itself; the orchestrator persists the outcome in one atomic store
// call so a crash mid-task cannot leave a record half-updated.
type Task interface {
	Name() string
	Run(ctx context.Context, rec model.IngestRecord) (Outcome, error)
}

// taskTable maps each eligible stage to its task. Built once at pipeline
// construction; a missing entry for an eligible stage is a programming error.
type taskTable map[model.Stage]Task
