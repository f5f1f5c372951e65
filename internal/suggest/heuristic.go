package suggest

import (
	"context"
	"regexp"
	"strings"

	"go-catalog/internal/features/catalog"

	"github.com/agnivade/levenshtein"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize lowers a header and collapses separators so "Product Name",
// "product_name" and "ProductName" all compare equal.
func Normalize(s string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(s), "")
}

// Similarity is the normalized Levenshtein ratio of two already-normalized
// strings, 1.0 for identical.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	return 1.0 - float64(dist)/float64(max)
}

// HeuristicSuggester is the in-process fallback provider: pure string
// similarity against field names, labels and synonyms. It needs no network
// and never errors.
type HeuristicSuggester struct {
	// MinScore is the similarity floor below which no suggestion is made.
	MinScore float64
}

func NewHeuristicSuggester() *HeuristicSuggester {
	return &HeuristicSuggester{MinScore: 0.5}
}

func (s *HeuristicSuggester) Suggest(ctx context.Context, headers []string, sample [][]string, fields []catalog.SchemaField) ([]Suggestion, error) {
	var suggestions []Suggestion

	for _, header := range headers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		normHeader := Normalize(header)
		bestField := ""
		bestScore := 0.0

		for _, field := range fields {
			score := Similarity(normHeader, Normalize(field.Name))
			if labelScore := Similarity(normHeader, Normalize(field.Label)); labelScore > score {
				score = labelScore
			}
			for _, syn := range field.Synonyms {
				if synScore := Similarity(normHeader, Normalize(syn)); synScore > score {
					score = synScore
				}
			}
			if score > bestScore {
				bestScore = score
				bestField = field.Name
			}
		}

		if bestField != "" && bestScore >= s.MinScore {
			suggestions = append(suggestions, Suggestion{
				SourceColumn: header,
				TargetField:  bestField,
				Confidence:   bestScore,
			})
		}
	}

	return suggestions, nil
}
