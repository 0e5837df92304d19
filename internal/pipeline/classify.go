package pipeline

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/placefeed/curator/internal/model"
	"github.com/placefeed/curator/pkg/textgen"
)

//go:embed categories.yaml
var categoriesYAML []byte

// categoryTable maps source type tags to content categories, loaded from the
// embedded table at startup.
var categoryTable = mustLoadCategories()

func mustLoadCategories() map[string]string {
	var doc struct {
		Categories map[string]string `yaml:"categories"`
	}
	if err := yaml.Unmarshal(categoriesYAML, &doc); err != nil {
		panic("pipeline: parse categories.yaml: " + err.Error())
	}
	return doc.Categories
}

const classifySystemPrompt = `You classify places, localities and events into exactly one of these categories: dining, nightlife, culture, outdoors, lodging, shopping, attractions, events, locality, general. Respond with a valid JSON object: {"category": "<category>", "confidence": <0.0-1.0>}`

const classifyUserPrompt = `Name: %s
Region: %s
Type tags: %s`

// classifyTask assigns a content category from raw data. Known type tags are
// classified from the embedded table without a provider call.
type classifyTask struct {
	provider textgen.Provider
}

func (t *classifyTask) Name() string { return "classify" }

func (t *classifyTask) Run(ctx context.Context, rec model.IngestRecord) (Outcome, error) {
	if strings.TrimSpace(rec.RawData.Name) == "" {
		return Outcome{}, &ValidationError{Field: "name", Reason: "is empty"}
	}

	// 1. Table lookup on the raw type tags.
	if category, ok := classifyByTags(rec.RawData.Types); ok {
		zap.L().Debug("classify: matched type tag",
			zap.String("record_id", rec.ID),
			zap.String("category", category),
		)
		return classifiedOutcome(category, 0.95), nil
	}

	// 2. Provider fallback for unrecognized tag sets.
	prompt := fmt.Sprintf(classifyUserPrompt,
		rec.RawData.Name, rec.RawData.Region, strings.Join(rec.RawData.Types, ", "))

	text, err := t.provider.Generate(ctx, textgen.Request{
		System:    classifySystemPrompt,
		Prompt:    prompt,
		MaxTokens: 128,
	})
	if err != nil {
		return Outcome{}, err
	}

	category, confidence := parseClassification(text)
	return classifiedOutcome(category, confidence), nil
}

func classifiedOutcome(category string, confidence float64) Outcome {
	return Outcome{
		NextStage: model.StageClassified,
		Patch: model.DerivedPatch{
			Category:   &category,
			Confidence: &confidence,
		},
	}
}

// classifyByTags returns the table category shared by the record's type tags.
// When tags map to different categories the result is ambiguous and the
// provider decides instead.
func classifyByTags(tags []string) (string, bool) {
	found := ""
	for _, tag := range tags {
		category, ok := categoryTable[strings.ToLower(tag)]
		if !ok {
			continue
		}
		if found != "" && found != category {
			return "", false
		}
		found = category
	}
	return found, found != ""
}

var validCategories = map[string]bool{
	"dining": true, "nightlife": true, "culture": true, "outdoors": true,
	"lodging": true, "shopping": true, "attractions": true, "events": true,
	"locality": true, "general": true,
}

func parseClassification(text string) (string, float64) {
	text = cleanJSON(text)

	var result struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return "general", 0.0
	}

	category := strings.ToLower(result.Category)
	if !validCategories[category] {
		return "general", 0.0
	}
	return category, result.Confidence
}

// cleanJSON strips markdown code fences the provider sometimes wraps around
// JSON output.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
