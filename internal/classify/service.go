// Package classify assigns semantic types to raw page fields. A pattern
// lookup answers first; fields the pattern table cannot settle go to a
// ClassificationService, and high-confidence service answers are written
// back as new patterns.
package classify

import (
	"context"

	"github.com/IRakow/aiaviizn-capture/internal/model"
)

// Request carries one field to classify.
type Request struct {
	Label       string
	SampleValue string
	PageContext string
}

// Result is a service's verdict for one field. A zero-confidence result with
// SemanticUnknown means the service could not produce a usable answer.
type Result struct {
	SemanticType model.SemanticType
	DataType     model.DataType
	Confidence   float64
}

// Usable reports whether the result carries an actual classification.
func (r Result) Usable() bool {
	return r.SemanticType != model.SemanticUnknown && r.Confidence > 0
}

// Service resolves field labels the pattern table cannot. Implementations:
// ClaudeService (live LLM) and RuleService (deterministic, offline). Callers
// never branch on which one is active.
type Service interface {
	Classify(ctx context.Context, req Request) (Result, error)
}
