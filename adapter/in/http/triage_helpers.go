package http

import (
	"errors"

	"triage_server/core/domain"
	"triage_server/pkg/apperr"
)

// ItemResponse is one entry of the /api/process response array. Successful items carry
// category, confidence and reply; failed items carry an error code and message.
type ItemResponse struct {
	Source     string   `json:"source"`
	Category   string   `json:"category,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
	Reply      string   `json:"reply,omitempty"`
	Code       string   `json:"code,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// ToItemResponses maps service outcomes to the wire format, keeping order.
func ToItemResponses(outcomes []domain.ItemOutcome) []ItemResponse {
	out := make([]ItemResponse, len(outcomes))
	for i, o := range outcomes {
		out[i] = toItemResponse(o)
	}
	return out
}

func toItemResponse(o domain.ItemOutcome) ItemResponse {
	if o.Err != nil || o.Result == nil {
		code, msg := itemError(o.Err)
		return ItemResponse{Source: o.Source, Code: code, Error: msg}
	}
	confidence := o.Result.Confidence
	return ItemResponse{
		Source:     o.Source,
		Category:   string(o.Result.Category),
		Confidence: &confidence,
		Reply:      o.Result.Reply,
	}
}

// itemError keeps the message as is: extraction errors already read
// "text extraction failed: ...".
func itemError(err error) (code, message string) {
	switch {
	case err == nil:
		return apperr.CodeInternalError, "no result"
	case errors.Is(err, domain.ErrExtractionFailed):
		return apperr.CodeExtractionFailed, err.Error()
	default:
		return apperr.CodeInternalError, err.Error()
	}
}
