package model

// CaptureResult carries per-run extraction statistics. It is returned by the
// pipeline and merged by the caller; there is no process-wide counter state.
type CaptureResult struct {
	TenantID string   `json:"tenant_id,omitempty"`
	URL      string   `json:"url,omitempty"`
	Decision Decision `json:"decision,omitempty"`
	Version  int      `json:"version,omitempty"`

	FieldsClassified   int `json:"fields_classified"`
	PatternHits        int `json:"pattern_hits"`
	LLMClassifications int `json:"llm_classifications"`
	UnknownFields      int `json:"unknown_fields"`

	CalculationsMapped int `json:"calculations_mapped"`
	TokensResolved     int `json:"tokens_resolved"`
	TokensUnresolved   int `json:"tokens_unresolved"`

	PagesSkipped  int `json:"pages_skipped,omitempty"`
	PagesInserted int `json:"pages_inserted,omitempty"`
	PagesUpdated  int `json:"pages_updated,omitempty"`
	PagesFailed   int `json:"pages_failed,omitempty"`
}

// Add merges other's counters into r. Per-page identity fields are left
// untouched so a run-level aggregate keeps only the totals.
func (r *CaptureResult) Add(other CaptureResult) {
	r.FieldsClassified += other.FieldsClassified
	r.PatternHits += other.PatternHits
	r.LLMClassifications += other.LLMClassifications
	r.UnknownFields += other.UnknownFields
	r.CalculationsMapped += other.CalculationsMapped
	r.TokensResolved += other.TokensResolved
	r.TokensUnresolved += other.TokensUnresolved
	r.PagesSkipped += other.PagesSkipped
	r.PagesInserted += other.PagesInserted
	r.PagesUpdated += other.PagesUpdated
	r.PagesFailed += other.PagesFailed

	switch other.Decision {
	case DecisionSkip:
		r.PagesSkipped++
	case DecisionInsert:
		r.PagesInserted++
	case DecisionUpdate:
		r.PagesUpdated++
	}
}
