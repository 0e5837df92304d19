package model

import "time"

// ContentEntity is the published target of a completed ingest record.
type ContentEntity struct {
	ID          string     `json:"id"`
	Type        TargetType `json:"type"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Body        string     `json:"body"`
	Population  int        `json:"population,omitempty"`
	Rating      float64    `json:"rating,omitempty"`
	Score       int        `json:"score"`
	PublishedAt time.Time  `json:"published_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
