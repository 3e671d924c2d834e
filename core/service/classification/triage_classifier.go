// Package classification decides whether an email needs action.
//
// Decision order used by the triage pipeline:
//
//	Rule:   holiday greeting      → Improdutivo at a fixed 0.95
//	Remote: hosted zero-shot model (remote mode only)
//	Local:  TF-IDF + Complement Naive Bayes fitted on embedded seed phrases
//
// The remote classifier wraps the local one and falls back to it on any failure, so
// callers always receive a prediction.
package classification

import (
	"context"

	"triage_server/core/domain"
)

// Classifier assigns a category and a confidence to a text. Implementations never fail:
// degraded paths still return a usable prediction.
type Classifier interface {
	// Name returns the classifier name (for logging)
	Name() string

	// Classify returns the predicted category and the probability of that category.
	Classify(ctx context.Context, text string) domain.Prediction
}
