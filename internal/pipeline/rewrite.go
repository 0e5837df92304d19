package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/placefeed/curator/internal/model"
	"github.com/placefeed/curator/pkg/textgen"
)

const rewriteSystemPrompt = `You write concise, factual editorial copy for a local content site. Write 2-3 paragraphs of plain prose about the subject using only the facts provided. No headings, no lists, no invented details.`

// rewriteTask produces the human-readable copy from raw data plus everything
// earlier stages derived.
type rewriteTask struct {
	provider textgen.Provider
}

func (t *rewriteTask) Name() string { return "rewrite" }

func (t *rewriteTask) Run(ctx context.Context, rec model.IngestRecord) (Outcome, error) {
	text, err := t.provider.Generate(ctx, textgen.Request{
		System:    rewriteSystemPrompt,
		Prompt:    rewritePrompt(rec),
		MaxTokens: 1024,
	})
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{
		NextStage: model.StageRewritten,
		Patch:     model.DerivedPatch{Rewritten: &text},
	}, nil
}

func rewritePrompt(rec model.IngestRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Subject: %s (%s)\n", rec.RawData.Name, rec.TargetType)
	if rec.RawData.Region != "" {
		fmt.Fprintf(&sb, "Region: %s\n", rec.RawData.Region)
	}
	if rec.Derived.Category != "" {
		fmt.Fprintf(&sb, "Category: %s\n", rec.Derived.Category)
	}
	if rec.Derived.Summary != "" {
		fmt.Fprintf(&sb, "Background: %s\n", rec.Derived.Summary)
	}
	if rec.Derived.Population > 0 {
		fmt.Fprintf(&sb, "Population: %d\n", rec.Derived.Population)
	}
	if rec.Derived.Rating > 0 {
		fmt.Fprintf(&sb, "Visitor rating: %.1f from %d reviews\n", rec.Derived.Rating, rec.Derived.RatingCount)
	}
	if rec.RawData.Body != "" {
		fmt.Fprintf(&sb, "Existing copy to rework:\n%s\n", rec.RawData.Body)
	}
	return sb.String()
}
