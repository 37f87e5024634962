// Package models defines the data types shared across the kotae pipeline.
package models

// Record is one historical support exchange from the corpus.
// The corpus is an ordered sequence of records, addressed by position:
// embeddings[i] always describes the record at corpus position i.
type Record struct {
	Query string `json:"query"`
	Reply string `json:"reply"`
}
