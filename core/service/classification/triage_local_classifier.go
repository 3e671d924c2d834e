package classification

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/samber/lo"

	"triage_server/core/domain"
)

// LocalClassifier is a TF-IDF (unigram + bigram) vectorizer feeding a Complement Naive
// Bayes model. It is fitted once at construction and read-only afterwards, so a single
// instance is safe for any number of concurrent callers.
type LocalClassifier struct {
	tokenizer *Tokenizer
	version   string

	vocab []string       // sorted terms
	index map[string]int // term → position in vocab
	idf   []float64

	classes        []domain.Category // sorted
	featureLogProb [][]float64       // [class][term]
}

// LocalModelInfo describes a fitted local model.
type LocalModelInfo struct {
	Version    string   `json:"version"`
	Classes    []string `json:"classes"`
	Vocabulary int      `json:"vocabulary"`
}

// NewLocalClassifier fits the model on the training set.
func NewLocalClassifier(ts *TrainingSet, tokenizer *Tokenizer) (*LocalClassifier, error) {
	if ts == nil || len(ts.Examples) == 0 {
		return nil, errors.New("local classifier: empty training set")
	}
	if tokenizer == nil {
		tokenizer = NewTokenizer(nil)
	}

	c := &LocalClassifier{tokenizer: tokenizer, version: ts.Version}

	docs := make([][]string, len(ts.Examples))
	df := make(map[string]int)
	for i, ex := range ts.Examples {
		docs[i] = ngrams(tokenizer.Tokens(ex.Text))
		for _, term := range lo.Uniq(docs[i]) {
			df[term]++
		}
	}
	if len(df) == 0 {
		return nil, fmt.Errorf("local classifier: training set %q yields an empty vocabulary", ts.Version)
	}

	c.vocab = lo.Keys(df)
	sort.Strings(c.vocab)
	c.index = make(map[string]int, len(c.vocab))
	c.idf = make([]float64, len(c.vocab))
	n := float64(len(docs))
	for i, term := range c.vocab {
		c.index[term] = i
		c.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1
	}

	c.classes = lo.Uniq(lo.Map(ts.Examples, func(ex TrainingExample, _ int) domain.Category {
		return ex.Label
	}))
	sort.Slice(c.classes, func(i, j int) bool { return c.classes[i] < c.classes[j] })

	// Per-class sums of the weighted document vectors.
	featureCount := make([][]float64, len(c.classes))
	for k := range featureCount {
		featureCount[k] = make([]float64, len(c.vocab))
	}
	for i, ex := range ts.Examples {
		k := lo.IndexOf(c.classes, ex.Label)
		x := c.weigh(docs[i])
		for f, v := range x {
			featureCount[k][f] += v
		}
	}

	featureAll := make([]float64, len(c.vocab))
	for k := range featureCount {
		for f, v := range featureCount[k] {
			featureAll[f] += v
		}
	}

	// Complement counts with alpha = 1; weights are the negated log of the normalised
	// complement counts.
	const alpha = 1.0
	c.featureLogProb = make([][]float64, len(c.classes))
	for k := range c.classes {
		comp := make([]float64, len(c.vocab))
		total := 0.0
		for f := range comp {
			comp[f] = featureAll[f] + alpha - featureCount[k][f]
			total += comp[f]
		}
		flp := make([]float64, len(c.vocab))
		for f := range comp {
			flp[f] = -math.Log(comp[f] / total)
		}
		c.featureLogProb[k] = flp
	}

	return c, nil
}

// NewDefaultLocalClassifier fits the model on the embedded training set and stop words.
func NewDefaultLocalClassifier() (*LocalClassifier, error) {
	ts, err := DefaultTrainingSet()
	if err != nil {
		return nil, err
	}
	return NewLocalClassifier(ts, NewTokenizer(DefaultStopwords()))
}

func (c *LocalClassifier) Name() string { return "local" }

// Info returns the fitted model description.
func (c *LocalClassifier) Info() LocalModelInfo {
	return LocalModelInfo{
		Version:    c.version,
		Classes:    lo.Map(c.classes, func(cat domain.Category, _ int) string { return string(cat) }),
		Vocabulary: len(c.vocab),
	}
}

// Classify returns the most likely category and the probability assigned to it.
// Text without any known term gets a uniform distribution and the first class.
func (c *LocalClassifier) Classify(_ context.Context, text string) domain.Prediction {
	proba := c.probabilities(text)

	best := 0
	for k := 1; k < len(proba); k++ {
		if proba[k] > proba[best] {
			best = k
		}
	}
	return domain.Prediction{
		Category:   c.classes[best],
		Confidence: proba[best],
		Source:     domain.SourceLocal,
	}
}

// Probabilities returns the probability of every class for text.
func (c *LocalClassifier) Probabilities(text string) map[domain.Category]float64 {
	proba := c.probabilities(text)
	out := make(map[domain.Category]float64, len(proba))
	for k, cat := range c.classes {
		out[cat] = proba[k]
	}
	return out
}

func (c *LocalClassifier) probabilities(text string) []float64 {
	x := c.weigh(ngrams(c.tokenizer.Tokens(text)))

	jll := make([]float64, len(c.classes))
	for k := range c.classes {
		sum := 0.0
		for f, v := range x {
			if v != 0 {
				sum += v * c.featureLogProb[k][f]
			}
		}
		jll[k] = sum
	}
	return softmax(jll)
}

// weigh builds the L2-normalised TF-IDF vector of a term list; unknown terms are ignored.
func (c *LocalClassifier) weigh(terms []string) []float64 {
	x := make([]float64, len(c.vocab))
	for _, term := range terms {
		if f, ok := c.index[term]; ok {
			x[f]++
		}
	}

	norm := 0.0
	for f := range x {
		x[f] *= c.idf[f]
		norm += x[f] * x[f]
	}
	if norm == 0 {
		return x
	}
	norm = math.Sqrt(norm)
	for f := range x {
		x[f] /= norm
	}
	return x
}

func softmax(scores []float64) []float64 {
	maxScore := lo.Max(scores)
	out := make([]float64, len(scores))
	total := 0.0
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}
