package model

import "time"

// CaptureStatus tags a stored page so downstream consumers can tell fully
// resolved captures from ones where some fields or formula tokens degraded.
type CaptureStatus string

const (
	CaptureComplete CaptureStatus = "complete"
	CapturePartial  CaptureStatus = "partial"
)

// Decision is the DuplicateGuard outcome for a (tenant, url, digest) triple.
type Decision string

const (
	DecisionSkip   Decision = "skip"
	DecisionInsert Decision = "insert"
	DecisionUpdate Decision = "update"
)

// Field is one detected data point on a captured page. Fields are immutable
// once persisted; a content-changed re-capture produces a new field set tied
// to the new page version.
type Field struct {
	ID           string       `json:"id"`
	PageID       string       `json:"page_id"`
	Label        string       `json:"label"`
	SampleValue  string       `json:"sample_value"`
	SemanticType SemanticType `json:"semantic_type"`
	DataType     DataType     `json:"data_type"`
	Confidence   float64      `json:"confidence"`
	Source       string       `json:"source"` // "pattern" or "llm"
}

// Normalize enforces the field invariants: semantic type is never empty,
// an unresolved classification is the unknown sentinel with zero confidence,
// and confidence stays within [0, 1].
func (f *Field) Normalize() {
	if f.SemanticType == "" || !ValidSemanticType(f.SemanticType) {
		f.SemanticType = SemanticUnknown
		f.Confidence = 0.0
	}
	if !ValidDataType(f.DataType) {
		f.DataType = DataTypeText
	}
	if f.Confidence < 0 {
		f.Confidence = 0
	}
	if f.Confidence > 1 {
		f.Confidence = 1
	}
}

// Page is one captured unit of content at a URL under a tenant. The
// (tenant_id, url) pair is a unique key in the store; version starts at 1
// and increments by exactly one on each content-changed re-capture.
type Page struct {
	ID           string        `json:"id"`
	TenantID     string        `json:"tenant_id"`
	URL          string        `json:"url"`
	Digest       string        `json:"digest"`
	Version      int           `json:"version"`
	Status       CaptureStatus `json:"status"`
	CapturedAt   time.Time     `json:"captured_at"`
	Fields       []Field       `json:"fields"`
	Calculations []Calculation `json:"calculations"`
}

// FieldByID returns the page's field with the given ID, or nil.
func (p *Page) FieldByID(id string) *Field {
	for i := range p.Fields {
		if p.Fields[i].ID == id {
			return &p.Fields[i]
		}
	}
	return nil
}
