package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"triage_server/core/domain"
	"triage_server/core/port/in"
	"triage_server/core/port/out"
	"triage_server/pkg/apperr"
)

// DefaultConcurrency bounds how many items of one request are classified at once.
const DefaultConcurrency = 4

// defaultUploadName labels uploads that arrive without a filename.
const defaultUploadName = "file"

var _ in.TriageService = (*Service)(nil)

// Service processes whole requests: validation, extraction and ordered batch classification.
type Service struct {
	pipeline    *Pipeline
	extractor   out.TextExtractor
	concurrency int
	log         zerolog.Logger
}

// NewService creates the triage service. concurrency <= 0 uses DefaultConcurrency.
func NewService(pipeline *Pipeline, extractor out.TextExtractor, concurrency int, log zerolog.Logger) *Service {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Service{
		pipeline:    pipeline,
		extractor:   extractor,
		concurrency: concurrency,
		log:         log.With().Str("component", "triage_service").Logger(),
	}
}

func (s *Service) Mode() domain.OperatingMode {
	return s.pipeline.Mode()
}

func (s *Service) Decide(ctx context.Context, text string) domain.ClassificationResult {
	return s.pipeline.Decide(ctx, text)
}

// Validate enforces the request contract: pasted text XOR at least one upload.
func Validate(req in.TriageRequest) error {
	hasText := strings.TrimSpace(req.Text) != ""
	hasFiles := len(req.Uploads) > 0

	switch {
	case hasText && hasFiles:
		return apperr.InvalidRequest("send either text or files, not both")
	case !hasText && !hasFiles:
		return apperr.InvalidRequest("no text or files provided")
	}
	return nil
}

// Process classifies every item of the request. Items run concurrently but the result
// keeps input order: pasted text first, then uploads as submitted. Extraction problems
// are reported per item and never abort the batch.
func (s *Service) Process(ctx context.Context, req in.TriageRequest) ([]domain.ItemOutcome, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	start := time.Now()
	var outcomes []domain.ItemOutcome

	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	if strings.TrimSpace(req.Text) != "" {
		outcomes = make([]domain.ItemOutcome, 1)
		text := req.Text
		g.Go(func() error {
			result := s.pipeline.Decide(ctx, text)
			outcomes[0] = domain.ItemOutcome{Source: domain.SourceInputText, Result: &result}
			return nil
		})
	} else {
		outcomes = make([]domain.ItemOutcome, len(req.Uploads))
		for i, upload := range req.Uploads {
			i, upload := i, upload
			g.Go(func() error {
				outcomes[i] = s.processUpload(ctx, upload)
				return nil
			})
		}
	}

	// Workers never return errors; every failure is captured in its outcome slot.
	_ = g.Wait()

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	s.log.Info().
		Int("items", len(outcomes)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("request processed")

	return outcomes, nil
}

func (s *Service) processUpload(ctx context.Context, upload domain.Upload) domain.ItemOutcome {
	source := upload.Filename
	if source == "" {
		source = defaultUploadName
	}

	text, err := s.extract(ctx, upload)
	if err != nil {
		s.log.Warn().Err(err).Str("source", source).Msg("text extraction failed")
		return domain.ItemOutcome{Source: source, Err: err}
	}

	result := s.pipeline.Decide(ctx, text)
	return domain.ItemOutcome{Source: source, Result: &result}
}

func (s *Service) extract(ctx context.Context, upload domain.Upload) (text string, err error) {
	if s.extractor == nil {
		return "", fmt.Errorf("%w: no extractor configured", domain.ErrExtractionFailed)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: extractor panicked: %v", domain.ErrExtractionFailed, r)
		}
	}()

	text, err = s.extractor.Extract(ctx, upload)
	if err != nil {
		if errors.Is(err, domain.ErrExtractionFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrExtractionFailed, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: no text content", domain.ErrExtractionFailed)
	}
	return text, nil
}
