package formula

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/IRakow/aiaviizn-capture/internal/model"
	"github.com/IRakow/aiaviizn-capture/pkg/anthropic"
)

const disambiguateSystemPrompt = `You resolve variable tokens in formulas found on property management pages. Given a token, the formula it appears in, and a list of candidate fields, pick the field the token refers to. Respond with a valid JSON object: {"field_id": "<id or empty string>", "confidence": <0.0-1.0>}. Use an empty field_id when no candidate fits.`

const disambiguateUserPrompt = `Formula: %s
Token: %s

Candidate fields:
%s`

// ClaudeDisambiguator resolves ambiguous tokens with the Anthropic API.
type ClaudeDisambiguator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	system    []anthropic.SystemBlock
}

// NewClaudeDisambiguator creates a live disambiguation service.
func NewClaudeDisambiguator(client anthropic.Client, modelID string) *ClaudeDisambiguator {
	return &ClaudeDisambiguator{
		client:    client,
		model:     modelID,
		maxTokens: 128,
		system:    anthropic.BuildCachedSystemBlocks(disambiguateSystemPrompt),
	}
}

// Disambiguate asks the model to pick a candidate. Unusable output maps to
// an empty field reference; only transport failures return an error.
func (s *ClaudeDisambiguator) Disambiguate(ctx context.Context, token, formula string, candidates []model.Field) (string, float64, error) {
	var sb strings.Builder
	for _, f := range candidates {
		fmt.Fprintf(&sb, "- id=%s label=%q semantic_type=%s sample=%q\n", f.ID, f.Label, f.SemanticType, f.SampleValue)
	}

	prompt := fmt.Sprintf(disambiguateUserPrompt, formula, token, sb.String())
	resp, err := s.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    s.system,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", 0, eris.Wrapf(err, "formula: disambiguate token %s", token)
	}

	fieldID, conf := parseDisambiguation(extractText(resp))
	return fieldID, conf, nil
}

func parseDisambiguation(text string) (string, float64) {
	text = cleanJSON(text)

	var result struct {
		FieldID    string  `json:"field_id"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return "", 0
	}

	conf := result.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return strings.TrimSpace(result.FieldID), conf
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

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
