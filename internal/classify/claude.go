package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/IRakow/aiaviizn-capture/internal/model"
	"github.com/IRakow/aiaviizn-capture/pkg/anthropic"
)

const classifySystemPrompt = `You classify data fields scraped from property management web pages. Assign exactly one semantic type from: tenant_name, unit_number, rent_amount, market_rent, deposit_amount, balance_due, past_due_amount, late_fee, lease_start, lease_end, move_in_date, property_name, square_footage, occupancy_rate, unknown. Also assign a data type from: text, number, currency, date, percentage. Respond with a valid JSON object: {"semantic_type": "<type>", "data_type": "<type>", "confidence": <0.0-1.0>}`

const classifyUserPrompt = `Field label: %s
Sample value: %s

Surrounding page content:
%s`

// ClaudeService classifies fields with the Anthropic API.
type ClaudeService struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	system    []anthropic.SystemBlock
}

// NewClaudeService creates a live classification service.
func NewClaudeService(client anthropic.Client, modelID string) *ClaudeService {
	return &ClaudeService{
		client:    client,
		model:     modelID,
		maxTokens: 128,
		system:    anthropic.BuildCachedSystemBlocks(classifySystemPrompt),
	}
}

// Classify sends one field to the model. A response that is not valid JSON
// or names an unknown type comes back as a zero-confidence Result, never an
// error; errors are reserved for transport failures.
func (s *ClaudeService) Classify(ctx context.Context, req Request) (Result, error) {
	pageContext := truncateRunes(req.PageContext, 2000)

	prompt := fmt.Sprintf(classifyUserPrompt, req.Label, req.SampleValue, pageContext)
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    s.system,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return Result{}, err
	}

	return parseClassification(extractText(resp)), nil
}

func parseClassification(text string) Result {
	text = cleanJSON(text)

	var result struct {
		SemanticType string  `json:"semantic_type"`
		DataType     string  `json:"data_type"`
		Confidence   float64 `json:"confidence"`
	}

	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return Result{SemanticType: model.SemanticUnknown, Confidence: 0.0}
	}

	st := model.SemanticType(strings.ToLower(strings.TrimSpace(result.SemanticType)))
	if !model.ValidSemanticType(st) {
		return Result{SemanticType: model.SemanticUnknown, Confidence: 0.0}
	}

	dt := model.DataType(strings.ToLower(strings.TrimSpace(result.DataType)))
	if !model.ValidDataType(dt) {
		dt = ""
	}

	conf := result.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	return Result{SemanticType: st, DataType: dt, Confidence: conf}
}

// truncateRunes cuts s to at most limit bytes without splitting a rune.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func extractText(resp *anthropic.MessageResponse) string {
	if resp == nil {
		return ""
	}
	var parts []string
	for _, block := range resp.Content {
		if block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// cleanJSON attempts to extract a JSON object from text that may contain
// markdown code fences or other wrapping.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	// Strip markdown code fences.
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	// Find first { and last }.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
