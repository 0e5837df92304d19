package model

// Stage represents a record's position in the enrichment pipeline.
type Stage string

const (
	StageNew            Stage = "new"
	StageClassified     Stage = "classified"
	StageEnriched       Stage = "enriched"
	StageRewritten      Stage = "rewritten"
	StageScored         Stage = "scored"
	StagePublished      Stage = "published"
	StageReadyForReview Stage = "ready_for_review"
)

// AllStages returns every stage in pipeline order.
func AllStages() []Stage {
	return []Stage{
		StageNew,
		StageClassified,
		StageEnriched,
		StageRewritten,
		StageScored,
		StagePublished,
		StageReadyForReview,
	}
}

// EligibleStages returns the stages the batch loop picks up. Terminal
// stages are excluded; only a maintenance reset moves a record out of them.
func EligibleStages() []Stage {
	return []Stage{
		StageNew,
		StageClassified,
		StageEnriched,
		StageRewritten,
		StageScored,
	}
}

// IsTerminal reports whether no further automatic processing applies.
func (s Stage) IsTerminal() bool {
	return s == StagePublished || s == StageReadyForReview
}

// Valid reports whether s is a known stage value.
func (s Stage) Valid() bool {
	for _, known := range AllStages() {
		if s == known {
			return true
		}
	}
	return false
}

// NextStage returns the happy-path successor of s. Publish has two legal
// destinations, so StageScored maps to StagePublished here and the publish
// task overrides it with StageReadyForReview below the score threshold.
func NextStage(s Stage) (Stage, bool) {
	switch s {
	case StageNew:
		return StageClassified, true
	case StageClassified:
		return StageEnriched, true
	case StageEnriched:
		return StageRewritten, true
	case StageRewritten:
		return StageScored, true
	case StageScored:
		return StagePublished, true
	default:
		return "", false
	}
}
