// Package capture orchestrates the per-page pipeline: fingerprint the
// content, decide skip/insert/update against the store, extract and classify
// fields, map formulas, and persist the result under the (tenant, url)
// at-most-once guarantee.
package capture

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/IRakow/aiaviizn-capture/internal/classify"
	"github.com/IRakow/aiaviizn-capture/internal/extract"
	"github.com/IRakow/aiaviizn-capture/internal/fingerprint"
	"github.com/IRakow/aiaviizn-capture/internal/formula"
	"github.com/IRakow/aiaviizn-capture/internal/model"
	"github.com/IRakow/aiaviizn-capture/internal/resilience"
	"github.com/IRakow/aiaviizn-capture/internal/store"
)

// maxConflictRetries bounds how often a capture re-decides after losing an
// optimistic-concurrency race.
const maxConflictRetries = 3

// contextSnippetLimit caps the page context passed to classification prompts.
const contextSnippetLimit = 2000

// ErrConflictRetriesExhausted is returned when a page keeps losing version
// races. The condition is retryable from the caller's point of view.
var ErrConflictRetriesExhausted = eris.New("capture: conflict retries exhausted")

// Pipeline runs the capture flow for a single page.
type Pipeline struct {
	store      store.Store
	classifier *classify.Classifier
	mapper     *formula.Mapper
	retry      resilience.RetryConfig
	now        func() time.Time
}

// NewPipeline wires the pipeline. Persistence writes get one bounded retry
// on transient errors; version conflicts are handled by re-deciding instead.
func NewPipeline(st store.Store, classifier *classify.Classifier, mapper *formula.Mapper) *Pipeline {
	return &Pipeline{
		store:      st,
		classifier: classifier,
		mapper:     mapper,
		retry:      resilience.DefaultRetryConfig(),
		now:        time.Now,
	}
}

// CapturePage processes one page of content. Collaborator failures degrade
// the page to partial rather than aborting it; only fingerprinting and
// storage failures are returned to the caller, and only for this page.
func (p *Pipeline) CapturePage(ctx context.Context, tenantID, url, content string) (*model.Page, model.CaptureResult, error) {
	result := model.CaptureResult{TenantID: tenantID, URL: url}

	digest, err := fingerprint.Fingerprint(content)
	if err != nil {
		result.PagesFailed++
		return nil, result, eris.Wrapf(err, "capture: fingerprint %s %s", tenantID, url)
	}

	var page *model.Page
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		existing, err := p.store.GetPage(ctx, tenantID, url)
		if err != nil {
			result.PagesFailed++
			return nil, result, eris.Wrapf(err, "capture: lookup %s %s", tenantID, url)
		}

		decision, version := decide(existing, digest)
		if decision == model.DecisionSkip {
			result.Decision = model.DecisionSkip
			result.Version = existing.Version
			zap.L().Debug("capture: content unchanged, skipping",
				zap.String("tenant_id", tenantID),
				zap.String("url", url),
				zap.Int("version", existing.Version),
			)
			return existing, result, nil
		}

		// Extraction runs once; a lost version race only re-decides and
		// re-versions the already-extracted page.
		if page == nil {
			page = p.extractPage(ctx, tenantID, url, content, digest, &result)
		}
		page.Version = version
		page.CapturedAt = p.now().UTC()

		if decision == model.DecisionInsert {
			page.ID = uuid.NewString()
			err = resilience.Do(ctx, p.retry, func(ctx context.Context) error {
				return p.store.InsertPage(ctx, page)
			})
			if errors.Is(err, store.ErrPageExists) {
				zap.L().Debug("capture: lost insert race, re-deciding",
					zap.String("tenant_id", tenantID),
					zap.String("url", url),
				)
				continue
			}
		} else {
			err = resilience.Do(ctx, p.retry, func(ctx context.Context) error {
				return p.store.UpdatePage(ctx, page, existing.Version)
			})
			if errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrPageNotFound) {
				zap.L().Debug("capture: lost update race, re-deciding",
					zap.String("tenant_id", tenantID),
					zap.String("url", url),
					zap.Int("expected_version", existing.Version),
				)
				continue
			}
		}
		if err != nil {
			result.PagesFailed++
			return nil, result, eris.Wrapf(err, "capture: persist %s %s", tenantID, url)
		}

		result.Decision = decision
		result.Version = page.Version
		zap.L().Info("capture: page stored",
			zap.String("tenant_id", tenantID),
			zap.String("url", url),
			zap.String("decision", string(decision)),
			zap.Int("version", page.Version),
			zap.String("status", string(page.Status)),
			zap.Int("fields", len(page.Fields)),
			zap.Int("calculations", len(page.Calculations)),
		)
		return page, result, nil
	}

	result.PagesFailed++
	return nil, result, eris.Wrapf(ErrConflictRetriesExhausted, "%s %s", tenantID, url)
}

// decide maps the store lookup onto the duplicate-guard decision.
func decide(existing *model.Page, digest string) (model.Decision, int) {
	switch {
	case existing == nil:
		return model.DecisionInsert, 1
	case existing.Digest == digest:
		return model.DecisionSkip, existing.Version
	default:
		return model.DecisionUpdate, existing.Version + 1
	}
}

// extractPage runs extraction, classification, and formula mapping for one
// page. Extraction is sequential within a page; only collaborator calls and
// the persistence write may block.
func (p *Pipeline) extractPage(ctx context.Context, tenantID, url, content, digest string, result *model.CaptureResult) *model.Page {
	page := &model.Page{
		TenantID: tenantID,
		URL:      url,
		Digest:   digest,
	}

	snippet := extract.ContextSnippet(content, contextSnippetLimit)

	for _, raw := range extract.Fields(content) {
		field := p.classifier.Classify(ctx, raw.Label, raw.Value, snippet)
		page.Fields = append(page.Fields, field)

		result.FieldsClassified++
		switch {
		case field.SemanticType == model.SemanticUnknown:
			result.UnknownFields++
		case field.Source == classify.SourceLLM:
			result.LLMClassifications++
		default:
			result.PatternHits++
		}
	}

	for _, f := range extract.Formulas(content) {
		calc := p.mapper.Map(ctx, f, page.Fields)
		page.Calculations = append(page.Calculations, calc)

		result.CalculationsMapped++
		result.TokensUnresolved += calc.UnresolvedCount()
		result.TokensResolved += len(calc.Mappings) - calc.UnresolvedCount()
	}

	page.Status = model.CaptureComplete
	if result.UnknownFields > 0 || result.TokensUnresolved > 0 {
		page.Status = model.CapturePartial
	}
	return page
}
