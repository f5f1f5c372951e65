package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go-catalog/internal/config"
	"go-catalog/internal/features/catalog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// newModel creates an LLM model based on configuration.
func newModel(cfg *config.Config) (llms.Model, error) {
	switch cfg.LLMProvider {
	case "ollama":
		model, err := ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}
		return model, nil

	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		model, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return model, nil

	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("Anthropic API key required")
		}
		model, err := anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}
		return model, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}
}

const mappingSystemPrompt = `You map spreadsheet columns onto catalog schema fields.
Given column headers, a few sample values per column, and the candidate fields,
respond with ONLY a JSON array, no prose:
[{"source_column": "<header>", "target_field": "<field name>", "confidence": <0.0-1.0>}]
Rules:
- target_field must be one of the candidate field names, never invented
- omit columns you cannot map with reasonable confidence
- confidence reflects how certain the assignment is`

// LLMSuggester asks a language model to map leftover columns. Responses are
// parsed strictly; anything that is not valid JSON or names an unknown field
// is dropped rather than guessed at.
type LLMSuggester struct {
	llm    llms.Model
	logger *zap.Logger
}

func NewLLMSuggester(model llms.Model, logger *zap.Logger) *LLMSuggester {
	return &LLMSuggester{
		llm:    model,
		logger: logger,
	}
}

func (s *LLMSuggester) Suggest(ctx context.Context, headers []string, sample [][]string, fields []catalog.SchemaField) ([]Suggestion, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, mappingSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, buildMappingPrompt(headers, sample, fields)),
	}

	response, err := s.llm.GenerateContent(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("generate suggestions: %w", err)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}

	suggestions, err := parseSuggestions(response.Choices[0].Content)
	if err != nil {
		return nil, err
	}

	// Keep only suggestions that name a real field.
	known := make(map[string]bool, len(fields))
	for _, f := range fields {
		known[f.Name] = true
	}
	valid := suggestions[:0]
	for _, sg := range suggestions {
		if known[sg.TargetField] {
			valid = append(valid, sg)
		} else {
			s.logger.Debug("Dropping suggestion for unknown field",
				zap.String("column", sg.SourceColumn),
				zap.String("field", sg.TargetField))
		}
	}
	return valid, nil
}

func buildMappingPrompt(headers []string, sample [][]string, fields []catalog.SchemaField) string {
	var b strings.Builder

	b.WriteString("Columns:\n")
	for i, h := range headers {
		b.WriteString("- ")
		b.WriteString(h)
		var values []string
		for _, row := range sample {
			if i < len(row) && row[i] != "" {
				values = append(values, row[i])
			}
		}
		if len(values) > 0 {
			b.WriteString(" (samples: ")
			b.WriteString(strings.Join(values, ", "))
			b.WriteString(")")
		}
		b.WriteString("\n")
	}

	b.WriteString("\nCandidate fields:\n")
	for _, f := range fields {
		fmt.Fprintf(&b, "- %s (%s, type %s", f.Name, f.Label, f.Type)
		if len(f.Synonyms) > 0 {
			fmt.Fprintf(&b, ", also known as: %s", strings.Join(f.Synonyms, ", "))
		}
		b.WriteString(")\n")
	}

	b.WriteString("\nJSON array:")
	return b.String()
}

// parseSuggestions tolerates models that wrap the JSON in a markdown fence.
func parseSuggestions(content string) ([]Suggestion, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}

	var raw []struct {
		SourceColumn string  `json:"source_column"`
		TargetField  string  `json:"target_field"`
		Confidence   float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("parse suggestions: %w", err)
	}

	suggestions := make([]Suggestion, 0, len(raw))
	for _, r := range raw {
		if r.SourceColumn == "" || r.TargetField == "" {
			continue
		}
		suggestions = append(suggestions, Suggestion(r))
	}
	return suggestions, nil
}
