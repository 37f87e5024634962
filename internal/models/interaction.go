package models

import "time"

// Interaction is one orchestrated query/response pair. Records are append-only:
// once written to the interaction log they are never mutated or deleted.
type Interaction struct {
	Timestamp time.Time `json:"timestamp"`
	Query     string    `json:"query"`
	Context   string    `json:"context"`
	Response  string    `json:"response"`
}
