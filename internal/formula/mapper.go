package formula

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/IRakow/aiaviizn-capture/internal/model"
	"github.com/IRakow/aiaviizn-capture/internal/pattern"
	"github.com/IRakow/aiaviizn-capture/internal/resilience"
)

// Resolution confidences by match tier.
const (
	confExact      = 1.0
	confNormalized = 0.9
	confSubstring  = 0.7
)

// DefaultServiceTimeout bounds a single disambiguation call.
const DefaultServiceTimeout = 30 * time.Second

// DisambiguationService picks a field for a token the deterministic ladder
// could not settle. Implementations mirror the classify services: a live
// Claude one and a rule-based offline one.
type DisambiguationService interface {
	Disambiguate(ctx context.Context, token, formula string, candidates []model.Field) (string, float64, error)
}

// Mapper resolves formula variable tokens against a page's classified fields.
type Mapper struct {
	service        DisambiguationService
	serviceTimeout time.Duration
	retry          resilience.RetryConfig
}

// NewMapper creates a Mapper. service may be nil, in which case ambiguous
// tokens stay unresolved.
func NewMapper(service DisambiguationService) *Mapper {
	return &Mapper{
		service:        service,
		serviceTimeout: DefaultServiceTimeout,
		retry:          resilience.DefaultRetryConfig(),
	}
}

// Map parses a formula and resolves every distinct variable token. Each
// token gets exactly one mapping entry; tokens nothing can resolve carry an
// empty field reference. Map never fails a whole calculation over one token.
func (m *Mapper) Map(ctx context.Context, formula string, fields []model.Field) model.Calculation {
	calc := model.Calculation{
		ID:      uuid.NewString(),
		Formula: formula,
	}

	tokens := Tokenize(formula)
	for _, token := range tokens {
		calc.Mappings = append(calc.Mappings, m.resolve(ctx, token, formula, fields))
	}

	calc.Type = classifyFormulaType(formula, calc.Mappings, fields)
	return calc
}

func (m *Mapper) resolve(ctx context.Context, token, formula string, fields []model.Field) model.VariableMapping {
	// Exact label match.
	for i := range fields {
		if fields[i].Label == token {
			return model.VariableMapping{Token: token, FieldID: fields[i].ID, Confidence: confExact}
		}
	}

	// Normalized match: case folding, whitespace and underscores stripped,
	// so "totalRent" matches the label "Total Rent".
	normToken := normalizeToken(token)
	var normHits []int
	for i := range fields {
		if normalizeToken(fields[i].Label) == normToken {
			normHits = append(normHits, i)
		}
	}
	if len(normHits) == 1 {
		return model.VariableMapping{Token: token, FieldID: fields[normHits[0]].ID, Confidence: confNormalized}
	}

	// Substring containment, accepted only on a unique hit.
	var subHits []int
	if len(normHits) == 0 {
		for i := range fields {
			normLabel := normalizeToken(fields[i].Label)
			if strings.Contains(normLabel, normToken) || strings.Contains(normToken, normLabel) {
				subHits = append(subHits, i)
			}
		}
		if len(subHits) == 1 {
			return model.VariableMapping{Token: token, FieldID: fields[subHits[0]].ID, Confidence: confSubstring}
		}
	}

	// Ambiguous or missing: hand the candidates to the disambiguation
	// service. Its failure leaves the token unresolved, never aborts.
	candidates := fields
	if len(normHits) > 1 {
		candidates = pick(fields, normHits)
	} else if len(subHits) > 1 {
		candidates = pick(fields, subHits)
	}

	if m.service != nil && len(candidates) > 0 {
		if fieldID, conf, ok := m.disambiguate(ctx, token, formula, candidates); ok {
			return model.VariableMapping{Token: token, FieldID: fieldID, Confidence: conf}
		}
	}

	return model.VariableMapping{Token: token, Confidence: 0.0}
}

type disambiguation struct {
	fieldID    string
	confidence float64
}

func (m *Mapper) disambiguate(ctx context.Context, token, formula string, candidates []model.Field) (string, float64, bool) {
	result, err := resilience.DoVal(ctx, m.retry, func(ctx context.Context) (disambiguation, error) {
		callCtx, cancel := context.WithTimeout(ctx, m.serviceTimeout)
		defer cancel()
		id, conf, err := m.service.Disambiguate(callCtx, token, formula, candidates)
		return disambiguation{fieldID: id, confidence: conf}, err
	})
	if err != nil {
		zap.L().Warn("formula: disambiguation failed",
			zap.String("token", token),
			zap.Error(err),
		)
		return "", 0, false
	}
	if result.fieldID == "" {
		return "", 0, false
	}
	// Mappings may only reference fields of the owning page.
	for i := range candidates {
		if candidates[i].ID == result.fieldID {
			return result.fieldID, result.confidence, true
		}
	}
	zap.L().Warn("formula: disambiguation returned foreign field reference",
		zap.String("token", token),
		zap.String("field_id", result.fieldID),
	)
	return "", 0, false
}

func pick(fields []model.Field, idx []int) []model.Field {
	out := make([]model.Field, 0, len(idx))
	for _, i := range idx {
		out = append(out, fields[i])
	}
	return out
}

var tokenFolder = strings.NewReplacer("_", "", " ", "")

func normalizeToken(s string) string {
	return tokenFolder.Replace(pattern.Normalize(s))
}
