package models

import "fmt"

// AskRequest is a request for a generated answer grounded in retrieved replies.
type AskRequest struct {
	Query string `json:"query"`
}

// Validate returns an error if the request is empty.
func (r *AskRequest) Validate() error {
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	return nil
}

// AskResponse carries exactly one generated answer per call.
type AskResponse struct {
	Results []string `json:"results"`
}

// SearchRequest is a retrieval-only request against the vector store.
type SearchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

// Validate ensures the query is non-empty and normalizes top_k.
func (r *SearchRequest) Validate(defaultTopK, maxTopK int) error {
	if r.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if r.TopK <= 0 {
		r.TopK = defaultTopK
	}
	if r.TopK > maxTopK {
		r.TopK = maxTopK
	}
	return nil
}

// SearchHit is a single retrieval result. Distance is the squared L2 distance
// between the query embedding and the matched record's embedding.
type SearchHit struct {
	Reply    string  `json:"reply"`
	Question string  `json:"question"`
	Distance float64 `json:"distance"`
	Rank     int     `json:"rank"`
}

// SearchResponse is the response for a retrieval-only search.
type SearchResponse struct {
	Hits      []SearchHit `json:"hits"`
	Total     int         `json:"total"`
	QueryTime int64       `json:"query_time_ms"`
	Query     string      `json:"query"`
}
