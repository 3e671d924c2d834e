package in

import (
	"context"

	"triage_server/core/domain"
)

// TriageRequest is one classification request: pasted text XOR uploaded files.
type TriageRequest struct {
	Text    string
	Uploads []domain.Upload
}

// TriageService classifies every item of a request and suggests replies.
type TriageService interface {
	// Process validates the request, extracts text from uploads and classifies each item.
	// The returned slice follows input order: pasted text first, then uploads.
	Process(ctx context.Context, req TriageRequest) ([]domain.ItemOutcome, error)

	// Decide classifies a single piece of text.
	Decide(ctx context.Context, text string) domain.ClassificationResult

	// Mode reports the operating mode resolved at start-up.
	Mode() domain.OperatingMode
}
