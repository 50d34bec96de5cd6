package classify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/IRakow/aiaviizn-capture/internal/model"
	"github.com/IRakow/aiaviizn-capture/internal/pattern"
	"github.com/IRakow/aiaviizn-capture/internal/resilience"
)

// DefaultThreshold is the confidence at or above which a classification is
// accepted without consulting the service.
const DefaultThreshold = 0.85

// DefaultServiceTimeout bounds a single service call.
const DefaultServiceTimeout = 30 * time.Second

const (
	// SourcePattern and SourceLLM record which path produced a field's type.
	SourcePattern = "pattern"
	SourceLLM     = "llm"
)

// Classifier assigns a semantic type and data type to each raw field.
type Classifier struct {
	patterns       *pattern.Store
	service        Service
	threshold      float64
	serviceTimeout time.Duration
	retry          resilience.RetryConfig
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithThreshold overrides the acceptance threshold.
func WithThreshold(t float64) Option {
	return func(c *Classifier) { c.threshold = t }
}

// WithServiceTimeout overrides the per-call service timeout.
func WithServiceTimeout(d time.Duration) Option {
	return func(c *Classifier) { c.serviceTimeout = d }
}

// New creates a Classifier. service may be nil, in which case only the
// pattern table is consulted.
func New(patterns *pattern.Store, service Service, opts ...Option) *Classifier {
	c := &Classifier{
		patterns:       patterns,
		service:        service,
		threshold:      DefaultThreshold,
		serviceTimeout: DefaultServiceTimeout,
		retry:          resilience.DefaultRetryConfig(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Classify resolves one field. It never returns an error: a field nothing
// can identify comes back as unknown with zero confidence, and the caller
// decides whether that degrades the page to partial.
func (c *Classifier) Classify(ctx context.Context, label, sampleValue, pageContext string) model.Field {
	field := model.Field{
		ID:           uuid.NewString(),
		Label:        label,
		SampleValue:  sampleValue,
		SemanticType: model.SemanticUnknown,
		DataType:     InferDataType(sampleValue),
		Confidence:   0.0,
		Source:       SourcePattern,
	}
	if label == "" {
		field.Normalize()
		return field
	}

	hit, hasHit := c.patterns.Lookup(label)
	if hasHit && hit.Confidence >= c.threshold {
		applyPattern(&field, hit)
		field.Normalize()
		return field
	}

	if c.service != nil {
		if result, ok := c.classifyViaService(ctx, label, sampleValue, pageContext); ok {
			field.SemanticType = result.SemanticType
			field.Confidence = result.Confidence
			field.Source = SourceLLM
			if result.DataType != "" {
				field.DataType = result.DataType
			}
			if result.Confidence >= c.threshold {
				c.patterns.Reinforce(ctx, label, result.SemanticType, field.DataType, result.Confidence)
			}
			field.Normalize()
			return field
		}
	}

	// Service unavailable or unusable: fall back to the best pattern hit
	// even below threshold, else leave the unknown sentinel.
	if hasHit {
		applyPattern(&field, hit)
	}
	field.Normalize()
	return field
}

func (c *Classifier) classifyViaService(ctx context.Context, label, sampleValue, pageContext string) (Result, bool) {
	req := Request{Label: label, SampleValue: sampleValue, PageContext: pageContext}

	result, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (Result, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.serviceTimeout)
		defer cancel()
		return c.service.Classify(callCtx, req)
	})
	if err != nil {
		zap.L().Warn("classify: service call failed",
			zap.String("label", label),
			zap.Error(err),
		)
		return Result{}, false
	}
	if !result.Usable() || !model.ValidSemanticType(result.SemanticType) {
		zap.L().Debug("classify: service returned unusable result",
			zap.String("label", label),
			zap.String("semantic_type", string(result.SemanticType)),
			zap.Float64("confidence", result.Confidence),
		)
		return Result{}, false
	}
	return result, true
}

func applyPattern(field *model.Field, hit model.Pattern) {
	field.SemanticType = hit.SemanticType
	field.Confidence = hit.Confidence
	field.Source = SourcePattern
	if hit.DataType != "" {
		field.DataType = hit.DataType
	}
}
