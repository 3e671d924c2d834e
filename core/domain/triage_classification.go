package domain

import (
	"errors"
	"fmt"
)

// Category is the triage outcome for one email.
type Category string

const (
	CategoryProductive    Category = "Produtivo"   // requires action
	CategoryNonProductive Category = "Improdutivo" // no action needed
)

// Categories lists the candidate labels in the order sent to zero-shot models.
var Categories = []Category{CategoryProductive, CategoryNonProductive}

// ParseCategory maps a label returned by a model onto a Category.
func ParseCategory(label string) (Category, error) {
	switch Category(label) {
	case CategoryProductive:
		return CategoryProductive, nil
	case CategoryNonProductive:
		return CategoryNonProductive, nil
	default:
		return "", fmt.Errorf("unknown category label %q", label)
	}
}

// Valid reports whether c is one of the two known categories.
func (c Category) Valid() bool {
	return c == CategoryProductive || c == CategoryNonProductive
}

// Reply templates used whenever generated text is unavailable.
const (
	ProductiveReply = "Olá! Recebemos sua mensagem e ela já foi encaminhada para a equipe responsável. " +
		"Retornaremos com uma atualização em até 2 dias úteis. Obrigado pelo contato."
	NonProductiveReply = "Olá! Agradecemos muito a sua mensagem. " +
		"Não é necessária nenhuma ação da nossa parte no momento. Tenha um ótimo dia!"
)

// TemplateReply returns the fixed reply for a category.
// Anything that is not Productive gets the non-productive template.
func TemplateReply(c Category) string {
	if c == CategoryProductive {
		return ProductiveReply
	}
	return NonProductiveReply
}

// GreetingConfidence is the fixed confidence assigned by the holiday-greeting rule.
const GreetingConfidence = 0.95

// DecisionSource records which path produced a classification.
type DecisionSource string

const (
	SourceGreeting DecisionSource = "greeting"
	SourceLocal    DecisionSource = "local"
	SourceRemote   DecisionSource = "remote"
	SourceFallback DecisionSource = "fallback" // remote failed, local model answered
	SourceRecovery DecisionSource = "recovery" // pipeline recovered from an unexpected failure
)

// Prediction is what a classifier returns: a label and the probability of that label.
type Prediction struct {
	Category   Category
	Confidence float64
	Source     DecisionSource
}

// ClassificationResult is the immutable outcome for one input item.
type ClassificationResult struct {
	Category   Category
	Confidence float64
	Reply      string
	Source     DecisionSource
}

// SourceInputText is the source label used for pasted text.
const SourceInputText = "input_text"

// Upload is a raw file received with a request, before extraction.
type Upload struct {
	Filename  string
	MediaType string
	Data      []byte
}

// ItemOutcome is the per-item entry of a processed request: either a result or an error.
type ItemOutcome struct {
	Source string
	Result *ClassificationResult
	Err    error
}

// OperatingMode selects the primary classification path.
type OperatingMode string

const (
	ModeLocal  OperatingMode = "LOCAL"
	ModeRemote OperatingMode = "REMOTE"
)

// ResolveMode returns remote only when it is requested AND a credential is present.
func ResolveMode(useRemote bool, credential string) OperatingMode {
	if useRemote && credential != "" {
		return ModeRemote
	}
	return ModeLocal
}

// LabelScore is one ranked entry returned by a zero-shot model.
type LabelScore struct {
	Label string
	Score float64
}

// GenerationParams bounds a text-generation call.
type GenerationParams struct {
	MaxTokens   int
	Temperature float64
}

var (
	// ErrExtractionFailed marks uploads that produced no usable text.
	ErrExtractionFailed = errors.New("text extraction failed")
	// ErrRemoteUnavailable wraps any failure talking to a hosted model.
	ErrRemoteUnavailable = errors.New("remote service unavailable")
)
