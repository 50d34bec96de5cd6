package model

// FormulaType classifies the shape of a discovered calculation.
type FormulaType string

const (
	FormulaSum         FormulaType = "sum"
	FormulaRatio       FormulaType = "ratio"
	FormulaConditional FormulaType = "conditional"
	FormulaLookup      FormulaType = "lookup"
	FormulaDifference  FormulaType = "difference"
	FormulaUnknown     FormulaType = "unknown"
)

// VariableMapping resolves one variable token in a formula to a field on the
// owning page. An empty FieldID means the token could not be resolved; the
// entry is still recorded so no token is silently dropped.
type VariableMapping struct {
	Token      string  `json:"token"`
	FieldID    string  `json:"field_id,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Resolved reports whether the mapping points at a field.
func (m VariableMapping) Resolved() bool {
	return m.FieldID != ""
}

// Calculation is one formula discovered on a page, with one mapping entry
// per distinct variable token in order of first appearance.
type Calculation struct {
	ID       string            `json:"id"`
	PageID   string            `json:"page_id"`
	Formula  string            `json:"formula"`
	Type     FormulaType       `json:"formula_type"`
	Mappings []VariableMapping `json:"variable_mappings"`
}

// UnresolvedCount returns the number of tokens with no field reference.
func (c *Calculation) UnresolvedCount() int {
	n := 0
	for _, m := range c.Mappings {
		if !m.Resolved() {
			n++
		}
	}
	return n
}
