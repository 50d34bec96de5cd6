package formula

import (
	"regexp"
	"strings"

	"github.com/IRakow/aiaviizn-capture/internal/model"
)

var (
	conditionalRe = regexp.MustCompile(`(?i)\b(if|when|then|else)\b|\?`)
	lookupRe      = regexp.MustCompile(`(?i)\b(lookup|vlookup)\b|\[[^\]]+\]`)
	sumFnRe       = regexp.MustCompile(`(?i)\bsum\s*\(`)
)

// classifyFormulaType tags a formula from its structure and the semantic
// types of its resolved variables. Purely rule-based, no external call.
func classifyFormulaType(formula string, mappings []model.VariableMapping, fields []model.Field) model.FormulaType {
	switch {
	case conditionalRe.MatchString(formula):
		return model.FormulaConditional
	case lookupRe.MatchString(formula):
		return model.FormulaLookup
	case strings.Contains(formula, "/"):
		return model.FormulaRatio
	case resolvesToPercentage(mappings, fields):
		return model.FormulaRatio
	case sumFnRe.MatchString(formula), strings.Contains(formula, "+"):
		return model.FormulaSum
	case strings.Contains(formula, "-") && len(Tokenize(formula)) >= 2:
		return model.FormulaDifference
	}
	return model.FormulaUnknown
}

func resolvesToPercentage(mappings []model.VariableMapping, fields []model.Field) bool {
	byID := make(map[string]model.DataType, len(fields))
	for _, f := range fields {
		byID[f.ID] = f.DataType
	}
	for _, m := range mappings {
		if m.Resolved() && byID[m.FieldID] == model.DataTypePercentage {
			return true
		}
	}
	return false
}
