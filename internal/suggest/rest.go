package suggest

import (
	"context"
	"fmt"
	"time"

	"go-catalog/internal/features/catalog"

	"github.com/go-resty/resty/v2"
)

// RestSuggester calls an external mapping-suggestion HTTP service. The
// request carries the unmatched headers, a bounded sample and the candidate
// fields; the service answers with scored assignments.
type RestSuggester struct {
	http *resty.Client
	url  string
}

func NewRestSuggester(url, apiKey string, timeout time.Duration) *RestSuggester {
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r.StatusCode() == 429 || (r.StatusCode() >= 500 && r.StatusCode() <= 504)
		})
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}

	return &RestSuggester{
		http: client,
		url:  url,
	}
}

type suggestRequest struct {
	Headers []string         `json:"headers"`
	Sample  [][]string       `json:"sample"`
	Fields  []candidateField `json:"fields"`
}

type candidateField struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Synonyms []string `json:"synonyms,omitempty"`
}

type suggestResponse struct {
	Suggestions []Suggestion `json:"suggestions"`
}

func (s *RestSuggester) Suggest(ctx context.Context, headers []string, sample [][]string, fields []catalog.SchemaField) ([]Suggestion, error) {
	candidates := make([]candidateField, 0, len(fields))
	for _, f := range fields {
		candidates = append(candidates, candidateField{
			Name:     f.Name,
			Label:    f.Label,
			Type:     string(f.Type),
			Synonyms: f.Synonyms,
		})
	}

	var out suggestResponse
	resp, err := s.http.R().
		SetContext(ctx).
		SetBody(suggestRequest{Headers: headers, Sample: sample, Fields: candidates}).
		SetResult(&out).
		Post(s.url)
	if err != nil {
		return nil, fmt.Errorf("suggestion service: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("suggestion service returned %d", resp.StatusCode())
	}

	return out.Suggestions, nil
}
