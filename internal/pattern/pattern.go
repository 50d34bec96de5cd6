// Package pattern maintains the learned mapping from field labels to
// semantic types. Patterns are loaded from the store at startup, optionally
// seeded from a YAML file, and reinforced as classifications succeed so
// repeat captures skip the LLM entirely.
package pattern

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"

	"github.com/IRakow/aiaviizn-capture/internal/model"
	"github.com/IRakow/aiaviizn-capture/internal/store"
)

var folder = cases.Fold()

// Normalize lowercases a label with Unicode case folding and collapses
// whitespace runs. All pattern keys and lookups go through this.
func Normalize(label string) string {
	return strings.Join(strings.Fields(folder.String(label)), " ")
}

// Store holds patterns in memory keyed by normalized trigger text.
type Store struct {
	mu       sync.RWMutex
	patterns map[string]model.Pattern
	backend  store.Store
}

// NewStore loads all persisted patterns into memory.
func NewStore(ctx context.Context, backend store.Store) (*Store, error) {
	s := &Store{
		patterns: make(map[string]model.Pattern),
		backend:  backend,
	}
	persisted, err := backend.LoadPatterns(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pattern: load persisted patterns")
	}
	for _, p := range persisted {
		s.patterns[Normalize(p.Trigger)] = p
	}
	return s, nil
}

// SeedFromFile merges patterns from a YAML seed file. Seeded entries never
// overwrite a persisted pattern with higher confidence.
func (s *Store) SeedFromFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, eris.Wrapf(err, "pattern: read seed file %s", path)
	}
	var seed struct {
		Patterns []model.Pattern `yaml:"patterns"`
	}
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, eris.Wrapf(err, "pattern: parse seed file %s", path)
	}

	added := 0
	for _, p := range seed.Patterns {
		if p.Trigger == "" || !model.ValidSemanticType(p.SemanticType) {
			zap.L().Warn("skipping invalid seed pattern",
				zap.String("trigger", p.Trigger),
				zap.String("semantic_type", string(p.SemanticType)))
			continue
		}
		key := Normalize(p.Trigger)
		s.mu.Lock()
		existing, ok := s.patterns[key]
		if ok && existing.Confidence >= p.Confidence {
			s.mu.Unlock()
			continue
		}
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		s.patterns[key] = p
		s.mu.Unlock()

		if err := s.backend.UpsertPattern(ctx, p); err != nil {
			zap.L().Warn("failed to persist seed pattern",
				zap.String("trigger", p.Trigger), zap.Error(err))
			continue
		}
		added++
	}
	return added, nil
}

// Lookup finds the best pattern for a field label. Match order: exact match
// on the normalized label, then the longest trigger contained in the label
// (or containing it), breaking ties by higher confidence, then by most
// recent hit, then by the lexicographically smaller trigger so the result
// never depends on map iteration order. Returns false when nothing matches.
func (s *Store) Lookup(label string) (model.Pattern, bool) {
	key := Normalize(label)
	if key == "" {
		return model.Pattern{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.patterns[key]; ok {
		return p, true
	}

	var best model.Pattern
	bestKey := ""
	found := false
	for trigger, p := range s.patterns {
		if !strings.Contains(key, trigger) && !strings.Contains(trigger, key) {
			continue
		}
		n := len(trigger)
		switch {
		case !found, n > len(bestKey):
		case n < len(bestKey):
			continue
		case p.Confidence != best.Confidence:
			if p.Confidence < best.Confidence {
				continue
			}
		case !p.LastHitAt.Equal(best.LastHitAt):
			if p.LastHitAt.Before(best.LastHitAt) {
				continue
			}
		case trigger >= bestKey:
			continue
		}
		best, bestKey, found = p, trigger, true
	}
	return best, found
}

// Reinforce records a successful classification for a trigger. Confidence
// never decreases, the hit count is incremented, and the change is persisted
// best-effort.
func (s *Store) Reinforce(ctx context.Context, trigger string, semanticType model.SemanticType, dataType model.DataType, confidence float64) {
	if trigger == "" || semanticType == model.SemanticUnknown {
		return
	}
	key := Normalize(trigger)

	s.mu.Lock()
	p, ok := s.patterns[key]
	if !ok {
		p = model.Pattern{
			ID:           uuid.NewString(),
			Trigger:      trigger,
			SemanticType: semanticType,
			DataType:     dataType,
			Confidence:   confidence,
		}
	} else if confidence > p.Confidence {
		p.Confidence = confidence
		p.SemanticType = semanticType
		p.DataType = dataType
	}
	p.HitCount++
	p.LastHitAt = time.Now().UTC()
	s.patterns[key] = p
	s.mu.Unlock()

	if err := s.backend.UpsertPattern(ctx, p); err != nil {
		zap.L().Warn("failed to persist pattern reinforcement",
			zap.String("trigger", trigger), zap.Error(err))
	}
}

// All returns a snapshot of every pattern, for the CLI listing.
func (s *Store) All() []model.Pattern {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Pattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p)
	}
	return out
}

// Len reports how many patterns are loaded.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}
