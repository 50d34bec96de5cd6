package model

import "time"

// Pattern is a learned rule mapping label text to a semantic type. Patterns
// are read-only during a classification pass; reinforcement only increments
// the hit count and raises (never lowers) the confidence.
type Pattern struct {
	ID           string       `json:"id" yaml:"-"`
	Trigger      string       `json:"trigger" yaml:"trigger"`
	SemanticType SemanticType `json:"semantic_type" yaml:"semantic_type"`
	DataType     DataType     `json:"data_type" yaml:"data_type"`
	Confidence   float64      `json:"confidence" yaml:"confidence"`
	HitCount     int          `json:"hit_count" yaml:"-"`
	LastHitAt    time.Time    `json:"last_hit_at" yaml:"-"`
}
