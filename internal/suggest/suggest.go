package suggest

import (
	"context"
	"time"

	"go-catalog/internal/config"
	"go-catalog/internal/features/catalog"

	"go.uber.org/zap"
)

// Suggestion is one proposed column-to-field assignment from a provider.
// Confidence is whatever the provider reported; callers clamp it into [0,1].
type Suggestion struct {
	SourceColumn string  `json:"source_column"`
	TargetField  string  `json:"target_field"`
	Confidence   float64 `json:"confidence"`
}

// Suggester proposes target schema fields for the source columns that no
// deterministic match resolved. Implementations must honor ctx cancellation;
// the timeout wrapper cuts them off regardless.
type Suggester interface {
	Suggest(ctx context.Context, headers []string, sample [][]string, fields []catalog.SchemaField) ([]Suggestion, error)
}

// NewSuggester builds the provider selected by configuration and wraps it
// with the suggestion timeout. Unknown providers degrade to the no-op
// suggester so a misconfigured deployment still reaches mapping_ready.
func NewSuggester(cfg *config.Config, logger *zap.Logger) Suggester {
	var inner Suggester

	switch cfg.SuggestProvider {
	case "llm":
		model, err := newModel(cfg)
		if err != nil {
			logger.Warn("LLM suggester unavailable, suggestions disabled", zap.Error(err))
			inner = &NoopSuggester{}
		} else {
			inner = NewLLMSuggester(model, logger)
		}
	case "http":
		if cfg.SuggestURL == "" {
			logger.Warn("SUGGEST_URL not set, suggestions disabled")
			inner = &NoopSuggester{}
		} else {
			inner = NewRestSuggester(cfg.SuggestURL, cfg.SuggestAPIKey, cfg.SuggestTimeout)
		}
	case "heuristic":
		inner = NewHeuristicSuggester()
	case "none":
		inner = &NoopSuggester{}
	default:
		logger.Warn("Unknown suggest provider, suggestions disabled", zap.String("provider", cfg.SuggestProvider))
		inner = &NoopSuggester{}
	}

	return &timeoutSuggester{inner: inner, timeout: cfg.SuggestTimeout}
}

// NoopSuggester returns no suggestions; unmatched columns stay unmapped for
// the user to assign manually.
type NoopSuggester struct{}

func (s *NoopSuggester) Suggest(ctx context.Context, headers []string, sample [][]string, fields []catalog.SchemaField) ([]Suggestion, error) {
	return nil, nil
}

// timeoutSuggester bounds every provider call. The inner call runs in its own
// goroutine so a provider that ignores ctx still cannot stall the pipeline.
type timeoutSuggester struct {
	inner   Suggester
	timeout time.Duration
}

func (s *timeoutSuggester) Suggest(ctx context.Context, headers []string, sample [][]string, fields []catalog.SchemaField) ([]Suggestion, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		suggestions []Suggestion
		err         error
	}

	ch := make(chan result, 1)
	go func() {
		suggestions, err := s.inner.Suggest(ctx, headers, sample, fields)
		ch <- result{suggestions, err}
	}()

	select {
	case res := <-ch:
		return res.suggestions, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
