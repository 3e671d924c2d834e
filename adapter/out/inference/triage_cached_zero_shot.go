package inference

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/cache"
)

// DefaultScoreCacheTTL keeps zero-shot scores for repeated texts.
const DefaultScoreCacheTTL = time.Hour

// ScoreCache is the subset of pkg/cache.RedisCache the decorator needs.
type ScoreCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

var _ out.ZeroShotClassifier = (*CachedZeroShot)(nil)

// CachedZeroShot serves repeated texts from the cache so identical emails do not spend
// the provider quota twice. Cache errors are logged and ignored.
type CachedZeroShot struct {
	next  out.ZeroShotClassifier
	store ScoreCache
	model string
	ttl   time.Duration
	log   zerolog.Logger
}

// NewCachedZeroShot wraps next. model is part of the key so switching models starts cold.
func NewCachedZeroShot(next out.ZeroShotClassifier, store ScoreCache, model string, ttl time.Duration, log zerolog.Logger) *CachedZeroShot {
	if ttl <= 0 {
		ttl = DefaultScoreCacheTTL
	}
	return &CachedZeroShot{
		next:  next,
		store: store,
		model: model,
		ttl:   ttl,
		log:   log.With().Str("component", "zero_shot_cache").Logger(),
	}
}

func (c *CachedZeroShot) ZeroShot(ctx context.Context, text string, labels []string) ([]domain.LabelScore, error) {
	key := cache.HashKey(c.model, strings.Join(labels, "|"), text)

	var cached []domain.LabelScore
	found, err := c.store.GetJSON(ctx, key, &cached)
	if err != nil {
		c.log.Warn().Err(err).Msg("score cache read failed")
	}
	if found && len(cached) > 0 {
		return cached, nil
	}

	scores, err := c.next.ZeroShot(ctx, text, labels)
	if err != nil {
		return nil, err
	}

	if !cacheable(scores) {
		return scores, nil
	}
	if err := c.store.SetJSON(ctx, key, scores, c.ttl); err != nil {
		c.log.Warn().Err(err).Msg("score cache write failed")
	}
	return scores, nil
}

// cacheable reports whether every score names a known category with a
// probability in [0, 1]. Anything else would be rejected downstream on every hit.
func cacheable(scores []domain.LabelScore) bool {
	if len(scores) == 0 {
		return false
	}
	for _, s := range scores {
		if _, err := domain.ParseCategory(s.Label); err != nil {
			return false
		}
		if math.IsNaN(s.Score) || s.Score < 0 || s.Score > 1 {
			return false
		}
	}
	return true
}
