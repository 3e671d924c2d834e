package classification

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"triage_server/core/domain"
)

//go:embed assets/training_set.json
var trainingSetJSON []byte

//go:embed assets/stopwords_pt.txt
var stopwordsText []byte

// TrainingExample is one labeled seed phrase.
type TrainingExample struct {
	Text  string          `json:"text"`
	Label domain.Category `json:"label"`
}

// TrainingSet is the versioned seed data the local model is fitted on.
type TrainingSet struct {
	Version     string            `json:"version"`
	Description string            `json:"description"`
	Examples    []TrainingExample `json:"examples"`
}

// ParseTrainingSet decodes and validates a training set document.
func ParseTrainingSet(data []byte) (*TrainingSet, error) {
	var ts TrainingSet
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("decode training set: %w", err)
	}
	if len(ts.Examples) == 0 {
		return nil, fmt.Errorf("training set %q has no examples", ts.Version)
	}

	seen := make(map[domain.Category]bool)
	for i, ex := range ts.Examples {
		if !ex.Label.Valid() {
			return nil, fmt.Errorf("training example %d: unknown label %q", i, ex.Label)
		}
		seen[ex.Label] = true
	}
	for _, c := range domain.Categories {
		if !seen[c] {
			return nil, fmt.Errorf("training set %q has no %s examples", ts.Version, c)
		}
	}
	return &ts, nil
}

// ParseStopwords reads one word per line, skipping blank lines and # comments.
func ParseStopwords(data []byte) []string {
	var words []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words
}

// DefaultTrainingSet returns the embedded training set.
func DefaultTrainingSet() (*TrainingSet, error) {
	return ParseTrainingSet(trainingSetJSON)
}

// DefaultStopwords returns the embedded Portuguese stop-word list.
func DefaultStopwords() []string {
	return ParseStopwords(stopwordsText)
}
