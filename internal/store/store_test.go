package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IRakow/aiaviizn-capture/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testPage(tenant, url, digest string) *model.Page {
	return &model.Page{
		TenantID:   tenant,
		URL:        url,
		Digest:     digest,
		Version:    1,
		Status:     model.CaptureComplete,
		CapturedAt: time.Now().UTC().Truncate(time.Second),
		Fields: []model.Field{
			{Label: "Monthly Rent", SampleValue: "1250.00", SemanticType: model.SemanticRentAmount, DataType: model.DataTypeCurrency, Confidence: 0.95, Source: "pattern"},
			{Label: "Tenant", SampleValue: "John Smith", SemanticType: model.SemanticTenantName, DataType: model.DataTypeText, Confidence: 0.9, Source: "llm"},
		},
		Calculations: []model.Calculation{
			{
				Formula: "totalRent - totalPastDue",
				Type:    model.FormulaDifference,
				Mappings: []model.VariableMapping{
					{Token: "totalRent", FieldID: "f1", Confidence: 1.0},
					{Token: "totalPastDue", Confidence: 0.0},
				},
			},
		},
	}
}

func TestSQLiteStore_InsertAndGetPage(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	page := testPage("T1", "/reports/rent_roll", "abc123")
	require.NoError(t, s.InsertPage(ctx, page))
	assert.NotEmpty(t, page.ID)

	got, err := s.GetPage(ctx, "T1", "/reports/rent_roll")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "abc123", got.Digest)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, model.CaptureComplete, got.Status)
	require.Len(t, got.Fields, 2)
	assert.Equal(t, "Monthly Rent", got.Fields[0].Label)
	assert.Equal(t, model.SemanticRentAmount, got.Fields[0].SemanticType)
	require.Len(t, got.Calculations, 1)
	assert.Equal(t, model.FormulaDifference, got.Calculations[0].Type)
	require.Len(t, got.Calculations[0].Mappings, 2)
	assert.False(t, got.Calculations[0].Mappings[1].Resolved())
}

func TestSQLiteStore_GetPage_Missing(t *testing.T) {
	s := newTestSQLite(t)

	got, err := s.GetPage(context.Background(), "T1", "/nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_InsertPage_Duplicate(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.InsertPage(ctx, testPage("T1", "/reports/rent_roll", "abc")))

	err := s.InsertPage(ctx, testPage("T1", "/reports/rent_roll", "def"))
	assert.ErrorIs(t, err, ErrPageExists)

	// Same URL under a different tenant is a distinct page.
	require.NoError(t, s.InsertPage(ctx, testPage("T2", "/reports/rent_roll", "abc")))
}

func TestSQLiteStore_UpdatePage_ReplacesChildren(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	page := testPage("T1", "/units", "v1digest")
	require.NoError(t, s.InsertPage(ctx, page))

	updated := testPage("T1", "/units", "v2digest")
	updated.Version = 2
	updated.Fields = []model.Field{
		{Label: "Unit", SampleValue: "4B", SemanticType: model.SemanticUnitNumber, DataType: model.DataTypeText, Confidence: 0.99, Source: "pattern"},
	}
	updated.Calculations = nil
	require.NoError(t, s.UpdatePage(ctx, updated, 1))

	got, err := s.GetPage(ctx, "T1", "/units")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Version)
	assert.Equal(t, "v2digest", got.Digest)
	require.Len(t, got.Fields, 1)
	assert.Equal(t, "Unit", got.Fields[0].Label)
	assert.Empty(t, got.Calculations)
	// The page row is updated in place, never duplicated.
	assert.Equal(t, page.ID, got.ID)
}

func TestSQLiteStore_UpdatePage_VersionConflict(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	page := testPage("T1", "/units", "v1digest")
	require.NoError(t, s.InsertPage(ctx, page))

	stale := testPage("T1", "/units", "v2digest")
	stale.Version = 2
	err := s.UpdatePage(ctx, stale, 7)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestSQLiteStore_UpdatePage_NotFound(t *testing.T) {
	s := newTestSQLite(t)

	ghost := testPage("T1", "/ghost", "digest")
	err := s.UpdatePage(context.Background(), ghost, 1)
	assert.ErrorIs(t, err, ErrPageNotFound)
}

func TestSQLiteStore_ListPages_Filter(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.InsertPage(ctx, testPage("T1", "/a", "d1")))
	require.NoError(t, s.InsertPage(ctx, testPage("T1", "/b", "d2")))
	require.NoError(t, s.InsertPage(ctx, testPage("T2", "/a", "d3")))

	pages, err := s.ListPages(ctx, PageFilter{TenantID: "T1"})
	require.NoError(t, err)
	assert.Len(t, pages, 2)

	pages, err = s.ListPages(ctx, PageFilter{TenantID: "T1", Limit: 1})
	require.NoError(t, err)
	assert.Len(t, pages, 1)
}

func TestSQLiteStore_UpsertPattern_ConfidenceRatchet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPattern(ctx, model.Pattern{
		Trigger:      "rent",
		SemanticType: model.SemanticRentAmount,
		DataType:     model.DataTypeCurrency,
		Confidence:   0.95,
	}))

	// A later lower-confidence hit must not regress the stored confidence.
	require.NoError(t, s.UpsertPattern(ctx, model.Pattern{
		Trigger:      "rent",
		SemanticType: model.SemanticRentAmount,
		DataType:     model.DataTypeCurrency,
		Confidence:   0.6,
	}))

	patterns, err := s.LoadPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.InDelta(t, 0.95, patterns[0].Confidence, 0.001)
	assert.Equal(t, 1, patterns[0].HitCount)
}

func TestSQLiteStore_UpsertPattern_WeakHitKeepsLearnedType(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPattern(ctx, model.Pattern{
		Trigger:      "rent",
		SemanticType: model.SemanticRentAmount,
		DataType:     model.DataTypeCurrency,
		Confidence:   0.95,
	}))

	// A conflicting low-confidence hit must not overwrite the learned types
	// while the old high confidence sticks to them.
	require.NoError(t, s.UpsertPattern(ctx, model.Pattern{
		Trigger:      "rent",
		SemanticType: model.SemanticBalanceDue,
		DataType:     model.DataTypeText,
		Confidence:   0.5,
	}))

	patterns, err := s.LoadPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, model.SemanticRentAmount, patterns[0].SemanticType)
	assert.Equal(t, model.DataTypeCurrency, patterns[0].DataType)
	assert.InDelta(t, 0.95, patterns[0].Confidence, 0.001)

	// An equally or more confident hit may revise the types.
	require.NoError(t, s.UpsertPattern(ctx, model.Pattern{
		Trigger:      "rent",
		SemanticType: model.SemanticMarketRent,
		DataType:     model.DataTypeCurrency,
		Confidence:   0.95,
	}))

	patterns, err = s.LoadPatterns(ctx)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, model.SemanticMarketRent, patterns[0].SemanticType)
	assert.Equal(t, 2, patterns[0].HitCount)
}
