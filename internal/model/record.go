package model

import (
	"strings"
	"time"
)

// SourceType identifies the connector that produced a record's raw data.
type SourceType string

const (
	SourcePlacesLookup SourceType = "places_lookup"
	SourceGenerated    SourceType = "generated_template"
	SourceReimport     SourceType = "reimport"
)

// TargetType is the kind of content entity a record becomes when published.
type TargetType string

const (
	TargetPlace    TargetType = "place"
	TargetLocality TargetType = "locality"
	TargetEvent    TargetType = "event"
)

// RawData is the payload captured at ingestion. It is write-once: every
// later stage reads it but only Derived accumulates pipeline output.
type RawData struct {
	Name   string   `json:"name"`
	Region string   `json:"region,omitempty"`
	Types  []string `json:"types,omitempty"`
	Title  string   `json:"title,omitempty"`
	Body   string   `json:"body,omitempty"`
}

// HasType reports whether raw data carries the given source type tag.
func (r RawData) HasType(t string) bool {
	for _, rt := range r.Types {
		if strings.EqualFold(rt, t) {
			return true
		}
	}
	return false
}

// Derived is the accumulating structured output written by the stage tasks.
type Derived struct {
	Category     string  `json:"category,omitempty"`
	Confidence   float64 `json:"confidence,omitempty"`
	Summary      string  `json:"summary,omitempty"`
	Population   int     `json:"population,omitempty"`
	Rating       float64 `json:"rating,omitempty"`
	RatingCount  int     `json:"rating_count,omitempty"`
	Rewritten    string  `json:"rewritten,omitempty"`
	Score        *int    `json:"score,omitempty"`
	ReviewReason string  `json:"review_reason,omitempty"`
}

// DerivedPatch is a partial Derived merged into a record on stage advance.
// Nil-able fields distinguish "leave as is" from "set to zero".
type DerivedPatch struct {
	Category     *string  `json:"category,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
	Summary      *string  `json:"summary,omitempty"`
	Population   *int     `json:"population,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	RatingCount  *int     `json:"rating_count,omitempty"`
	Rewritten    *string  `json:"rewritten,omitempty"`
	Score        *int     `json:"score,omitempty"`
	ReviewReason *string  `json:"review_reason,omitempty"`
	LinkedEntity *string  `json:"linked_entity,omitempty"`
}

// Apply merges the patch into d.
func (p DerivedPatch) Apply(d *Derived) {
	if p.Category != nil {
		d.Category = *p.Category
	}
	if p.Confidence != nil {
		d.Confidence = *p.Confidence
	}
	if p.Summary != nil {
		d.Summary = *p.Summary
	}
	if p.Population != nil {
		d.Population = *p.Population
	}
	if p.Rating != nil {
		d.Rating = *p.Rating
	}
	if p.RatingCount != nil {
		d.RatingCount = *p.RatingCount
	}
	if p.Rewritten != nil {
		d.Rewritten = *p.Rewritten
	}
	if p.Score != nil {
		score := *p.Score
		d.Score = &score
	}
	if p.ReviewReason != nil {
		d.ReviewReason = *p.ReviewReason
	}
}

// RecordFailure is the last failed attempt for a record. Count accumulates
// across attempts at the same stage and is cleared on a successful advance
// or a soft reset.
type RecordFailure struct {
	Stage   Stage  `json:"stage"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// IngestRecord is one unit of work flowing through the pipeline.
type IngestRecord struct {
	ID             string         `json:"id"`
	Stage          Stage          `json:"stage"`
	SourceType     SourceType     `json:"source_type"`
	TargetType     TargetType     `json:"target_type"`
	RawData        RawData        `json:"raw_data"`
	Derived        Derived        `json:"derived"`
	Failure        *RecordFailure `json:"failure,omitempty"`
	LinkedEntityID string         `json:"linked_entity_id,omitempty"`
	SourceDedupKey string         `json:"source_dedup_key,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// BatchSummary is the outcome of one orchestrator batch run.
type BatchSummary struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// StageCounts maps stages to the number of records currently in them.
type StageCounts map[Stage]int

// StatusReport is the read-only pipeline status snapshot.
type StatusReport struct {
	Stages          StageCounts       `json:"stages"`
	Failed          int               `json:"failed"`
	Breakers        map[string]string `json:"breakers,omitempty"`
	ProviderName    string            `json:"provider_name"`
	ProviderOK      bool              `json:"provider_ok"`
	ProviderMessage string            `json:"provider_message"`
}

// ReimportResult reports a reimport pass.
type ReimportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// ScrubAction selects what Scrub does with locality-like records.
type ScrubAction string

const (
	ScrubRetag  ScrubAction = "retag"
	ScrubDelete ScrubAction = "delete"
)

// ScrubResult reports a scrub pass.
type ScrubResult struct {
	Retagged int `json:"retagged"`
	Deleted  int `json:"deleted"`
	Skipped  int `json:"skipped"`
}
