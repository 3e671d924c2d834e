package classification

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"triage_server/core/domain"
	"triage_server/core/port/out"
)

// DefaultRemoteTimeout bounds one zero-shot call.
const DefaultRemoteTimeout = 45 * time.Second

// RemoteClassifier asks a hosted zero-shot model first and falls back to the wrapped
// classifier on any failure. It never returns an error.
type RemoteClassifier struct {
	zeroShot out.ZeroShotClassifier
	fallback Classifier
	timeout  time.Duration
	log      zerolog.Logger
}

// NewRemoteClassifier creates a remote classifier; timeout <= 0 uses DefaultRemoteTimeout.
func NewRemoteClassifier(zeroShot out.ZeroShotClassifier, fallback Classifier, timeout time.Duration, log zerolog.Logger) *RemoteClassifier {
	if timeout <= 0 {
		timeout = DefaultRemoteTimeout
	}
	return &RemoteClassifier{
		zeroShot: zeroShot,
		fallback: fallback,
		timeout:  timeout,
		log:      log.With().Str("component", "remote_classifier").Logger(),
	}
}

func (c *RemoteClassifier) Name() string { return "remote" }

// Classify returns the top-ranked zero-shot label, or the fallback prediction tagged
// with SourceFallback.
func (c *RemoteClassifier) Classify(ctx context.Context, text string) domain.Prediction {
	pred, err := c.classifyRemote(ctx, text)
	if err == nil {
		return pred
	}

	c.log.Warn().Err(err).Msg("zero-shot classification failed, using local model")
	pred = c.fallback.Classify(ctx, text)
	pred.Source = domain.SourceFallback
	return pred
}

func (c *RemoteClassifier) classifyRemote(ctx context.Context, text string) (domain.Prediction, error) {
	if c.zeroShot == nil {
		return domain.Prediction{}, fmt.Errorf("%w: no zero-shot client", domain.ErrRemoteUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	labels := lo.Map(domain.Categories, func(cat domain.Category, _ int) string { return string(cat) })
	scores, err := c.zeroShot.ZeroShot(ctx, text, labels)
	if err != nil {
		if errors.Is(err, domain.ErrRemoteUnavailable) {
			return domain.Prediction{}, err
		}
		return domain.Prediction{}, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}

	category, score, err := TopLabel(scores)
	if err != nil {
		return domain.Prediction{}, fmt.Errorf("%w: %v", domain.ErrRemoteUnavailable, err)
	}
	return domain.Prediction{Category: category, Confidence: score, Source: domain.SourceRemote}, nil
}

// TopLabel validates a zero-shot response and picks the highest score.
// Unknown labels and scores outside [0, 1] invalidate the whole response.
func TopLabel(scores []domain.LabelScore) (domain.Category, float64, error) {
	if len(scores) == 0 {
		return "", 0, errors.New("empty zero-shot response")
	}

	var (
		best      domain.Category
		bestScore float64
	)
	for i, s := range scores {
		cat, err := domain.ParseCategory(s.Label)
		if err != nil {
			return "", 0, err
		}
		if math.IsNaN(s.Score) || s.Score < 0 || s.Score > 1 {
			return "", 0, fmt.Errorf("score %v for %q out of range", s.Score, s.Label)
		}
		if i == 0 || s.Score > bestScore {
			best, bestScore = cat, s.Score
		}
	}
	return best, bestScore, nil
}
