package classify

import (
	"context"
	"testing"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/IRakow/aiaviizn-capture/internal/model"
	"github.com/IRakow/aiaviizn-capture/internal/pattern"
	"github.com/IRakow/aiaviizn-capture/internal/store"
)

// nopStore satisfies store.Store with inert pattern persistence.
type nopStore struct {
	patterns []model.Pattern
}

func (n *nopStore) LoadPatterns(ctx context.Context) ([]model.Pattern, error) {
	return n.patterns, nil
}
func (n *nopStore) UpsertPattern(ctx context.Context, p model.Pattern) error { return nil }
func (n *nopStore) GetPage(ctx context.Context, tenantID, url string) (*model.Page, error) {
	return nil, nil
}
func (n *nopStore) InsertPage(ctx context.Context, page *model.Page) error { return nil }
func (n *nopStore) UpdatePage(ctx context.Context, page *model.Page, expectedVersion int) error {
	return nil
}
func (n *nopStore) ListPages(ctx context.Context, filter store.PageFilter) ([]model.Page, error) {
	return nil, nil
}
func (n *nopStore) Migrate(ctx context.Context) error { return nil }
func (n *nopStore) Close() error                      { return nil }

// mockService implements Service with testify mocks.
type mockService struct {
	mock.Mock
}

func (m *mockService) Classify(ctx context.Context, req Request) (Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Result), args.Error(1)
}

func newPatterns(t *testing.T, seeds ...model.Pattern) *pattern.Store {
	t.Helper()
	ps, err := pattern.NewStore(context.Background(), &nopStore{patterns: seeds})
	require.NoError(t, err)
	return ps
}

func TestClassify_PatternHitSkipsService(t *testing.T) {
	ps := newPatterns(t, model.Pattern{
		ID:           "p1",
		Trigger:      "Monthly Rent",
		SemanticType: model.SemanticRentAmount,
		DataType:     model.DataTypeCurrency,
		Confidence:   0.95,
	})
	svc := new(mockService)
	c := New(ps, svc)

	field := c.Classify(context.Background(), "Monthly Rent", "$1,250.00", "")
	assert.Equal(t, model.SemanticRentAmount, field.SemanticType)
	assert.Equal(t, model.DataTypeCurrency, field.DataType)
	assert.InDelta(t, 0.95, field.Confidence, 1e-9)
	assert.Equal(t, SourcePattern, field.Source)
	svc.AssertNotCalled(t, "Classify")
}

func TestClassify_ServiceAnswersWhenPatternWeak(t *testing.T) {
	ps := newPatterns(t, model.Pattern{
		ID:           "p1",
		Trigger:      "charges",
		SemanticType: model.SemanticBalanceDue,
		Confidence:   0.4,
	})
	svc := new(mockService)
	svc.On("Classify", mock.Anything, mock.Anything).Return(Result{
		SemanticType: model.SemanticLateFee,
		DataType:     model.DataTypeCurrency,
		Confidence:   0.9,
	}, nil)

	c := New(ps, svc)
	field := c.Classify(context.Background(), "Charges This Month", "$45.00", "statement page")

	assert.Equal(t, model.SemanticLateFee, field.SemanticType)
	assert.Equal(t, SourceLLM, field.Source)
	assert.InDelta(t, 0.9, field.Confidence, 1e-9)
	svc.AssertExpectations(t)
}

func TestClassify_WriteBackLearnsPattern(t *testing.T) {
	ps := newPatterns(t)
	svc := new(mockService)
	svc.On("Classify", mock.Anything, mock.Anything).Return(Result{
		SemanticType: model.SemanticDepositAmount,
		DataType:     model.DataTypeCurrency,
		Confidence:   0.91,
	}, nil).Once()

	c := New(ps, svc)
	first := c.Classify(context.Background(), "Security Deposit Held", "$500", "")
	require.Equal(t, SourceLLM, first.Source)

	// Second classification of the same label hits the learned pattern.
	second := c.Classify(context.Background(), "Security Deposit Held", "$500", "")
	assert.Equal(t, SourcePattern, second.Source)
	assert.Equal(t, model.SemanticDepositAmount, second.SemanticType)
	svc.AssertExpectations(t)
}

func TestClassify_ServiceFailureFallsBackToWeakPattern(t *testing.T) {
	ps := newPatterns(t, model.Pattern{
		ID:           "p1",
		Trigger:      "balance",
		SemanticType: model.SemanticBalanceDue,
		DataType:     model.DataTypeCurrency,
		Confidence:   0.5,
	})
	svc := new(mockService)
	svc.On("Classify", mock.Anything, mock.Anything).Return(Result{}, eris.New("api down"))

	c := New(ps, svc)
	field := c.Classify(context.Background(), "Balance Forward", "$12.00", "")

	assert.Equal(t, model.SemanticBalanceDue, field.SemanticType)
	assert.InDelta(t, 0.5, field.Confidence, 1e-9)
	assert.Equal(t, SourcePattern, field.Source)
}

func TestClassify_NothingMatchesReturnsUnknown(t *testing.T) {
	ps := newPatterns(t)
	svc := new(mockService)
	svc.On("Classify", mock.Anything, mock.Anything).Return(Result{
		SemanticType: model.SemanticUnknown,
	}, nil)

	c := New(ps, svc)
	field := c.Classify(context.Background(), "Mystery Column", "??", "")

	assert.Equal(t, model.SemanticUnknown, field.SemanticType)
	assert.Equal(t, 0.0, field.Confidence)
}

func TestClassify_EmptyLabel(t *testing.T) {
	ps := newPatterns(t)
	c := New(ps, nil)

	field := c.Classify(context.Background(), "", "$5.00", "")
	assert.Equal(t, model.SemanticUnknown, field.SemanticType)
	assert.Equal(t, 0.0, field.Confidence)
	assert.Equal(t, model.DataTypeCurrency, field.DataType)
}

func TestClassify_NilServiceUsesPatternsOnly(t *testing.T) {
	ps := newPatterns(t, model.Pattern{
		ID:           "p1",
		Trigger:      "Unit",
		SemanticType: model.SemanticUnitNumber,
		DataType:     model.DataTypeText,
		Confidence:   0.6,
	})
	c := New(ps, nil)

	field := c.Classify(context.Background(), "Unit", "4B", "")
	assert.Equal(t, model.SemanticUnitNumber, field.SemanticType)
	assert.InDelta(t, 0.6, field.Confidence, 1e-9)
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantType model.SemanticType
		wantConf float64
	}{
		{
			name:     "clean json",
			text:     `{"semantic_type": "rent_amount", "data_type": "currency", "confidence": 0.93}`,
			wantType: model.SemanticRentAmount,
			wantConf: 0.93,
		},
		{
			name:     "fenced json",
			text:     "```json\n{\"semantic_type\": \"tenant_name\", \"data_type\": \"text\", \"confidence\": 0.88}\n```",
			wantType: model.SemanticTenantName,
			wantConf: 0.88,
		},
		{
			name:     "json with preamble",
			text:     `Here is the classification: {"semantic_type": "lease_start", "data_type": "date", "confidence": 0.9}`,
			wantType: model.SemanticLeaseStart,
			wantConf: 0.9,
		},
		{
			name:     "invalid json",
			text:     `not json at all`,
			wantType: model.SemanticUnknown,
			wantConf: 0.0,
		},
		{
			name:     "unknown semantic type",
			text:     `{"semantic_type": "made_up_type", "confidence": 0.99}`,
			wantType: model.SemanticUnknown,
			wantConf: 0.0,
		},
		{
			name:     "confidence above one is clamped",
			text:     `{"semantic_type": "rent_amount", "confidence": 1.7}`,
			wantType: model.SemanticRentAmount,
			wantConf: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseClassification(tt.text)
			assert.Equal(t, tt.wantType, got.SemanticType)
			assert.InDelta(t, tt.wantConf, got.Confidence, 1e-9)
		})
	}
}

func TestRuleService(t *testing.T) {
	svc := NewRuleService()
	tests := []struct {
		label    string
		value    string
		wantType model.SemanticType
		wantData model.DataType
	}{
		{"Monthly Rent", "$1,250.00", model.SemanticRentAmount, model.DataTypeCurrency},
		{"Market Rent", "$1,400.00", model.SemanticMarketRent, model.DataTypeCurrency},
		{"Past Due Amount", "$320.00", model.SemanticPastDue, model.DataTypeCurrency},
		{"Tenant Name", "John Smith", model.SemanticTenantName, model.DataTypeText},
		{"Lease Start Date", "2024-01-01", model.SemanticLeaseStart, model.DataTypeDate},
		{"Occupancy", "94%", model.SemanticOccupancyRate, model.DataTypePercentage},
		{"Sq Ft", "850", model.SemanticSquareFootage, model.DataTypeNumber},
		{"Something Else", "abc", model.SemanticUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := svc.Classify(context.Background(), Request{Label: tt.label, SampleValue: tt.value})
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, got.SemanticType)
			if tt.wantData != "" {
				assert.Equal(t, tt.wantData, got.DataType)
			}
		})
	}
}

func TestInferDataType(t *testing.T) {
	tests := []struct {
		value string
		want  model.DataType
	}{
		{"$1,250.00", model.DataTypeCurrency},
		{"$500", model.DataTypeCurrency},
		{"94%", model.DataTypePercentage},
		{"94.5 %", model.DataTypePercentage},
		{"2024-01-15", model.DataTypeDate},
		{"1/15/2024", model.DataTypeDate},
		{"Jan 15, 2024", model.DataTypeDate},
		{"850", model.DataTypeNumber},
		{"1,234.56", model.DataTypeNumber},
		{"John Smith", model.DataTypeText},
		{"", model.DataTypeText},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, InferDataType(tt.value))
		})
	}
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 10))
	assert.Equal(t, "abcde", truncateRunes("abcdefgh", 5))

	// "é" is two bytes; the cut backs off instead of splitting it.
	got := truncateRunes("abcé def", 4)
	assert.Equal(t, "abc", got)
	assert.True(t, utf8.ValidString(got))
}
