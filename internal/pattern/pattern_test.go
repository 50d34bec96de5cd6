package pattern

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IRakow/aiaviizn-capture/internal/model"
	"github.com/IRakow/aiaviizn-capture/internal/store"
)

// fakeBackend implements store.Store with only the pattern operations live.
type fakeBackend struct {
	mu       sync.Mutex
	patterns []model.Pattern
	upserts  int
	loadErr  error
}

func (f *fakeBackend) LoadPatterns(ctx context.Context) ([]model.Pattern, error) {
	return f.patterns, f.loadErr
}

func (f *fakeBackend) UpsertPattern(ctx context.Context, p model.Pattern) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	return nil
}

func (f *fakeBackend) GetPage(ctx context.Context, tenantID, url string) (*model.Page, error) {
	return nil, nil
}
func (f *fakeBackend) InsertPage(ctx context.Context, page *model.Page) error { return nil }
func (f *fakeBackend) UpdatePage(ctx context.Context, page *model.Page, expectedVersion int) error {
	return nil
}
func (f *fakeBackend) ListPages(ctx context.Context, filter store.PageFilter) ([]model.Page, error) {
	return nil, nil
}
func (f *fakeBackend) Migrate(ctx context.Context) error { return nil }
func (f *fakeBackend) Close() error                      { return nil }

func seedPattern(trigger string, st model.SemanticType, conf float64, lastHit time.Time) model.Pattern {
	return model.Pattern{
		ID:           trigger,
		Trigger:      trigger,
		SemanticType: st,
		DataType:     model.DataTypeText,
		Confidence:   conf,
		HitCount:     1,
		LastHitAt:    lastHit,
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "monthly rent", Normalize("  Monthly   Rent "))
	assert.Equal(t, "tenant name", Normalize("TENANT\tNAME"))
	assert.Equal(t, "", Normalize("   "))
}

func TestLookup_ExactMatchWins(t *testing.T) {
	backend := &fakeBackend{patterns: []model.Pattern{
		seedPattern("Monthly Rent", model.SemanticRentAmount, 0.9, time.Now()),
		seedPattern("Rent", model.SemanticMarketRent, 0.99, time.Now()),
	}}
	s, err := NewStore(context.Background(), backend)
	require.NoError(t, err)

	p, ok := s.Lookup("monthly rent")
	require.True(t, ok)
	assert.Equal(t, model.SemanticRentAmount, p.SemanticType)
}

func TestLookup_LongestSubstringWins(t *testing.T) {
	backend := &fakeBackend{patterns: []model.Pattern{
		seedPattern("rent", model.SemanticRentAmount, 0.99, time.Now()),
		seedPattern("past due rent", model.SemanticPastDue, 0.7, time.Now()),
	}}
	s, err := NewStore(context.Background(), backend)
	require.NoError(t, err)

	p, ok := s.Lookup("Past Due Rent Balance")
	require.True(t, ok)
	assert.Equal(t, model.SemanticPastDue, p.SemanticType)
}

func TestLookup_TieBreaksOnConfidenceThenRecency(t *testing.T) {
	old := time.Now().Add(-time.Hour)
	recent := time.Now()
	backend := &fakeBackend{patterns: []model.Pattern{
		seedPattern("unit", model.SemanticUnitNumber, 0.8, old),
		seedPattern("name", model.SemanticTenantName, 0.9, old),
	}}
	s, err := NewStore(context.Background(), backend)
	require.NoError(t, err)

	p, ok := s.Lookup("unit name")
	require.True(t, ok)
	assert.Equal(t, model.SemanticTenantName, p.SemanticType, "equal-length triggers resolve by confidence")

	backend = &fakeBackend{patterns: []model.Pattern{
		seedPattern("unit", model.SemanticUnitNumber, 0.9, recent),
		seedPattern("name", model.SemanticTenantName, 0.9, old),
	}}
	s, err = NewStore(context.Background(), backend)
	require.NoError(t, err)

	p, ok = s.Lookup("unit name")
	require.True(t, ok)
	assert.Equal(t, model.SemanticUnitNumber, p.SemanticType, "equal confidence resolves by recency")
}

func TestLookup_FullTieResolvesByTrigger(t *testing.T) {
	ts := time.Now()
	backend := &fakeBackend{patterns: []model.Pattern{
		seedPattern("unit", model.SemanticUnitNumber, 0.9, ts),
		seedPattern("name", model.SemanticTenantName, 0.9, ts),
	}}

	// Length, confidence, and last hit all tie; the smaller trigger must win
	// on every run regardless of map iteration order.
	for i := 0; i < 20; i++ {
		s, err := NewStore(context.Background(), backend)
		require.NoError(t, err)

		p, ok := s.Lookup("unit name")
		require.True(t, ok)
		assert.Equal(t, model.SemanticTenantName, p.SemanticType)
	}
}

func TestLookup_NoMatch(t *testing.T) {
	backend := &fakeBackend{patterns: []model.Pattern{
		seedPattern("rent", model.SemanticRentAmount, 0.9, time.Now()),
	}}
	s, err := NewStore(context.Background(), backend)
	require.NoError(t, err)

	_, ok := s.Lookup("Occupancy")
	assert.False(t, ok)
	_, ok = s.Lookup("")
	assert.False(t, ok)
}

func TestReinforce(t *testing.T) {
	backend := &fakeBackend{}
	s, err := NewStore(context.Background(), backend)
	require.NoError(t, err)

	s.Reinforce(context.Background(), "Security Deposit", model.SemanticDepositAmount, model.DataTypeCurrency, 0.92)
	p, ok := s.Lookup("security deposit")
	require.True(t, ok)
	assert.Equal(t, model.SemanticDepositAmount, p.SemanticType)
	assert.InDelta(t, 0.92, p.Confidence, 1e-9)
	assert.Equal(t, 1, p.HitCount)

	// Lower confidence never regresses the stored value.
	s.Reinforce(context.Background(), "Security Deposit", model.SemanticDepositAmount, model.DataTypeCurrency, 0.5)
	p, ok = s.Lookup("security deposit")
	require.True(t, ok)
	assert.InDelta(t, 0.92, p.Confidence, 1e-9)
	assert.Equal(t, 2, p.HitCount)

	assert.Equal(t, 2, backend.upserts)
}

func TestReinforce_IgnoresUnknown(t *testing.T) {
	backend := &fakeBackend{}
	s, err := NewStore(context.Background(), backend)
	require.NoError(t, err)

	s.Reinforce(context.Background(), "Mystery", model.SemanticUnknown, model.DataTypeText, 0.9)
	s.Reinforce(context.Background(), "", model.SemanticRentAmount, model.DataTypeCurrency, 0.9)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, backend.upserts)
}

func TestSeedFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patterns.yaml")
	seed := `patterns:
  - trigger: "Monthly Rent"
    semantic_type: rent_amount
    data_type: currency
    confidence: 0.9
  - trigger: "Lease Start"
    semantic_type: lease_start
    data_type: date
    confidence: 0.85
  - trigger: "Bogus"
    semantic_type: not_a_type
    confidence: 0.9
`
	require.NoError(t, os.WriteFile(path, []byte(seed), 0o644))

	backend := &fakeBackend{patterns: []model.Pattern{
		seedPattern("Monthly Rent", model.SemanticRentAmount, 0.95, time.Now()),
	}}
	s, err := NewStore(context.Background(), backend)
	require.NoError(t, err)

	added, err := s.SeedFromFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, added, "existing higher-confidence pattern and invalid entry are skipped")

	p, ok := s.Lookup("Monthly Rent")
	require.True(t, ok)
	assert.InDelta(t, 0.95, p.Confidence, 1e-9)

	p, ok = s.Lookup("Lease Start")
	require.True(t, ok)
	assert.Equal(t, model.SemanticLeaseStart, p.SemanticType)
}
