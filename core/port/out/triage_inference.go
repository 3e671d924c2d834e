package out

import (
	"context"

	"triage_server/core/domain"
)

// ZeroShotClassifier ranks candidate labels for a text using a hosted model.
type ZeroShotClassifier interface {
	ZeroShot(ctx context.Context, text string, labels []string) ([]domain.LabelScore, error)
}

// TextGenerator produces free text from a prompt using a hosted model.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string, params domain.GenerationParams) (string, error)
}

// TextExtractor turns an uploaded file into plain text.
// It returns an error wrapping domain.ErrExtractionFailed when no usable text exists.
type TextExtractor interface {
	Extract(ctx context.Context, upload domain.Upload) (string, error)
}
