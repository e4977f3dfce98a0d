// Package ai defines the optional batch categorization oracle. The pipeline
// must behave identically, minus automation, with the Noop implementation.
package ai

import "context"

// Candidate is one uncategorized transaction offered to the classifier.
type Candidate struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
}

// CategoryOption is one category the classifier may assign, by id.
type CategoryOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// BatchRequest carries all leftover candidates of one pipeline run.
type BatchRequest struct {
	Candidates []Candidate      `json:"candidates"`
	Categories []CategoryOption `json:"categories"`
}

// BatchResponse maps candidate ids to assigned category ids. Missing ids
// mean the classifier declined to categorize them.
type BatchResponse struct {
	Assignments map[string]string `json:"assignments"`
}

// Classifier is the external batch oracle.
type Classifier interface {
	ClassifyBatch(ctx context.Context, req BatchRequest) (BatchResponse, error)
}

// Noop always returns no assignments.
type Noop struct{}

func (Noop) ClassifyBatch(context.Context, BatchRequest) (BatchResponse, error) {
	return BatchResponse{}, nil
}
