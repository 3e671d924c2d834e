package classification

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	urlPattern = regexp.MustCompile(`https?://\S+|www\.\S+`)
	// Word characters are letters and non-decimal numerics. Decimal digits,
	// underscores and everything else split tokens.
	nonWordRun = regexp.MustCompile(`[^\p{L}\p{Nl}\p{No}]+`)
)

const minTokenRunes = 3

// Tokenizer turns raw text into the token stream fed to the vectorizer.
type Tokenizer struct {
	stopwords map[string]struct{}
}

// NewTokenizer creates a tokenizer dropping the given stop words.
func NewTokenizer(stopwords []string) *Tokenizer {
	set := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		set[strings.ToLower(w)] = struct{}{}
	}
	return &Tokenizer{stopwords: set}
}

// Tokens lowercases text, strips URLs, splits on non-word runs and drops stop words and
// tokens shorter than three runes.
func (t *Tokenizer) Tokens(text string) []string {
	text = strings.ToLower(text)
	text = urlPattern.ReplaceAllString(text, " ")
	text = nonWordRun.ReplaceAllString(text, " ")

	fields := strings.Fields(text)
	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) < minTokenRunes {
			continue
		}
		if _, stop := t.stopwords[f]; stop {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// Clean returns the kept tokens joined by single spaces.
func (t *Tokenizer) Clean(text string) string {
	return strings.Join(t.Tokens(text), " ")
}

// ngrams returns unigrams followed by space-joined bigrams.
func ngrams(tokens []string) []string {
	if len(tokens) == 0 {
		return nil
	}
	out := make([]string, 0, 2*len(tokens)-1)
	out = append(out, tokens...)
	for i := 0; i+1 < len(tokens); i++ {
		out = append(out, tokens[i]+" "+tokens[i+1])
	}
	return out
}
