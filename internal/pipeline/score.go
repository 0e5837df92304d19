package pipeline

import (
	"context"

	"github.com/placefeed/curator/internal/model"
)

// scoreTask computes the 0-100 quality score from the accumulated derived
// fields. Scoring is deterministic: the same derived input always yields the
// same score, so the publish decision is reproducible.
type scoreTask struct{}

func (t *scoreTask) Name() string { return "score" }

func (t *scoreTask) Run(_ context.Context, rec model.IngestRecord) (Outcome, error) {
	score := Score(rec.Derived)
	return Outcome{
		NextStage: model.StageScored,
		Patch:     model.DerivedPatch{Score: &score},
	}, nil
}

// Score rates derived content completeness and quality on a 0-100 scale.
//
// Rubric:
//   - classification:  up to 25 (15 for a specific category, 10 x confidence)
//   - enrichment:      up to 40 (15 summary, 10 population, 15 ratings)
//   - rewritten copy:  up to 35 by length
func Score(d model.Derived) int {
	score := 0

	if d.Category != "" && d.Category != "general" {
		score += 15
	}
	score += int(clamp01(d.Confidence) * 10)

	if d.Summary != "" {
		score += 15
	}
	if d.Population > 0 {
		score += 10
	}
	switch {
	case d.Rating >= 4.0 && d.RatingCount >= 50:
		score += 15
	case d.Rating >= 3.5:
		score += 10
	case d.Rating > 0:
		score += 5
	}

	switch n := len(d.Rewritten); {
	case n >= 400:
		score += 35
	case n >= 150:
		score += 20
	case n > 0:
		score += 10
	}

	if score > 100 {
		score = 100
	}
	return score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
