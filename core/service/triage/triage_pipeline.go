// Package triage orchestrates classification and reply composition for incoming emails.
package triage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"triage_server/core/domain"
	"triage_server/core/service/classification"
	"triage_server/core/service/reply"
	"triage_server/pkg/metrics"
)

// =============================================================================
// Decision Pipeline
// =============================================================================

// Pipeline turns one text into a category, a confidence and a reply.
//
// Rule:   holiday greeting → Improdutivo 0.95 + template (any mode)
// Remote: zero-shot model (falls back to local internally) + generated reply
// Local:  TF-IDF/ComplementNB model + template reply
type Pipeline struct {
	mode     domain.OperatingMode
	local    classification.Classifier
	remote   classification.Classifier
	composer *reply.Composer
	stats    *metrics.Registry
	log      zerolog.Logger
}

// PipelineDeps holds dependencies for creating a Pipeline.
type PipelineDeps struct {
	Mode     domain.OperatingMode
	Local    classification.Classifier
	Remote   classification.Classifier // only used in remote mode
	Composer *reply.Composer
	Stats    *metrics.Registry // optional
	Logger   zerolog.Logger
}

// NewPipeline creates a decision pipeline.
func NewPipeline(deps PipelineDeps) (*Pipeline, error) {
	if deps.Local == nil {
		return nil, fmt.Errorf("triage pipeline: local classifier is required")
	}
	if deps.Composer == nil {
		return nil, fmt.Errorf("triage pipeline: reply composer is required")
	}
	mode := deps.Mode
	if mode == domain.ModeRemote && deps.Remote == nil {
		return nil, fmt.Errorf("triage pipeline: remote mode needs a remote classifier")
	}
	if mode != domain.ModeRemote {
		mode = domain.ModeLocal
	}

	return &Pipeline{
		mode:     mode,
		local:    deps.Local,
		remote:   deps.Remote,
		composer: deps.Composer,
		stats:    deps.Stats,
		log:      deps.Logger.With().Str("component", "triage_pipeline").Logger(),
	}, nil
}

// Mode returns the operating mode.
func (p *Pipeline) Mode() domain.OperatingMode {
	return p.mode
}

// Decide classifies text and suggests a reply. It never fails: unexpected panics
// degrade to a local classification with the template reply.
func (p *Pipeline) Decide(ctx context.Context, text string) (result domain.ClassificationResult) {
	start := time.Now()

	if classification.IsGreeting(text) {
		result = domain.ClassificationResult{
			Category:   domain.CategoryNonProductive,
			Confidence: domain.GreetingConfidence,
			Reply:      domain.NonProductiveReply,
			Source:     domain.SourceGreeting,
		}
		p.stats.Record(string(result.Source), time.Since(start))
		return result
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("decision pipeline panicked, recovering")
			result = p.degrade(ctx, text)
		}
		p.stats.Record(string(result.Source), time.Since(start))
	}()

	classifier := p.local
	if p.mode == domain.ModeRemote {
		classifier = p.remote
	}

	pred := classifier.Classify(ctx, text)
	return domain.ClassificationResult{
		Category:   pred.Category,
		Confidence: pred.Confidence,
		Reply:      p.composer.Compose(ctx, pred.Category, text),
		Source:     pred.Source,
	}
}

// degrade reclassifies locally with the template reply. A failing local model yields
// Improdutivo with zero confidence.
func (p *Pipeline) degrade(ctx context.Context, text string) (result domain.ClassificationResult) {
	result = domain.ClassificationResult{
		Category:   domain.CategoryNonProductive,
		Confidence: 0,
		Reply:      domain.NonProductiveReply,
		Source:     domain.SourceRecovery,
	}

	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("local classifier panicked during recovery")
		}
	}()

	pred := p.local.Classify(ctx, text)
	result.Category = pred.Category
	result.Confidence = pred.Confidence
	result.Reply = domain.TemplateReply(pred.Category)
	return result
}
