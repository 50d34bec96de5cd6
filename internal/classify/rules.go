package classify

import (
	"context"
	"strings"

	"github.com/IRakow/aiaviizn-capture/internal/model"
)

// labelRule maps a label keyword to a semantic type. Rules are checked in
// order; the first keyword contained in the normalized label wins.
type labelRule struct {
	keyword      string
	semanticType model.SemanticType
	dataType     model.DataType
	confidence   float64
}

// labelRules is ordered most-specific first so "past due" beats "due" and
// "market rent" beats "rent".
var labelRules = []labelRule{
	{"past due", model.SemanticPastDue, model.DataTypeCurrency, 0.92},
	{"market rent", model.SemanticMarketRent, model.DataTypeCurrency, 0.92},
	{"late fee", model.SemanticLateFee, model.DataTypeCurrency, 0.92},
	{"late charge", model.SemanticLateFee, model.DataTypeCurrency, 0.88},
	{"security deposit", model.SemanticDepositAmount, model.DataTypeCurrency, 0.92},
	{"deposit", model.SemanticDepositAmount, model.DataTypeCurrency, 0.85},
	{"balance due", model.SemanticBalanceDue, model.DataTypeCurrency, 0.92},
	{"balance", model.SemanticBalanceDue, model.DataTypeCurrency, 0.8},
	{"amount due", model.SemanticBalanceDue, model.DataTypeCurrency, 0.85},
	{"lease start", model.SemanticLeaseStart, model.DataTypeDate, 0.92},
	{"lease begin", model.SemanticLeaseStart, model.DataTypeDate, 0.88},
	{"lease end", model.SemanticLeaseEnd, model.DataTypeDate, 0.92},
	{"lease expir", model.SemanticLeaseEnd, model.DataTypeDate, 0.88},
	{"move in", model.SemanticMoveInDate, model.DataTypeDate, 0.9},
	{"move-in", model.SemanticMoveInDate, model.DataTypeDate, 0.9},
	{"tenant name", model.SemanticTenantName, model.DataTypeText, 0.92},
	{"tenant", model.SemanticTenantName, model.DataTypeText, 0.8},
	{"resident", model.SemanticTenantName, model.DataTypeText, 0.8},
	{"lessee", model.SemanticTenantName, model.DataTypeText, 0.8},
	{"unit number", model.SemanticUnitNumber, model.DataTypeText, 0.92},
	{"unit #", model.SemanticUnitNumber, model.DataTypeText, 0.9},
	{"apt", model.SemanticUnitNumber, model.DataTypeText, 0.8},
	{"unit", model.SemanticUnitNumber, model.DataTypeText, 0.75},
	{"property name", model.SemanticPropertyName, model.DataTypeText, 0.92},
	{"property", model.SemanticPropertyName, model.DataTypeText, 0.75},
	{"building", model.SemanticPropertyName, model.DataTypeText, 0.7},
	{"square footage", model.SemanticSquareFootage, model.DataTypeNumber, 0.92},
	{"square feet", model.SemanticSquareFootage, model.DataTypeNumber, 0.92},
	{"sq ft", model.SemanticSquareFootage, model.DataTypeNumber, 0.9},
	{"sqft", model.SemanticSquareFootage, model.DataTypeNumber, 0.9},
	{"occupancy", model.SemanticOccupancyRate, model.DataTypePercentage, 0.9},
	{"rent", model.SemanticRentAmount, model.DataTypeCurrency, 0.85},
}

// RuleService is a deterministic keyword classifier. It backs tests and
// offline runs so nothing upstream has to know whether an LLM is wired in.
type RuleService struct{}

// NewRuleService creates the deterministic service.
func NewRuleService() *RuleService {
	return &RuleService{}
}

// Classify matches the label against the keyword table.
func (s *RuleService) Classify(ctx context.Context, req Request) (Result, error) {
	label := strings.ToLower(strings.TrimSpace(req.Label))
	if label == "" {
		return Result{SemanticType: model.SemanticUnknown}, nil
	}
	for _, rule := range labelRules {
		if strings.Contains(label, rule.keyword) {
			dt := rule.dataType
			if dt == model.DataTypeText {
				if inferred := InferDataType(req.SampleValue); inferred != model.DataTypeText {
					dt = inferred
				}
			}
			return Result{
				SemanticType: rule.semanticType,
				DataType:     dt,
				Confidence:   rule.confidence,
			}, nil
		}
	}
	return Result{SemanticType: model.SemanticUnknown}, nil
}
