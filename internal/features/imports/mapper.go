package imports

import (
	"context"

	"go-catalog/internal/config"
	"go-catalog/internal/features/catalog"
	"go-catalog/internal/suggest"

	"go.uber.org/zap"
)

const (
	exactConfidence = 1.0
	fuzzyConfidence = 0.6
	fuzzyThreshold  = 0.8
)

// Mapper proposes column-to-field assignments. Deterministic name matching
// runs first; only the leftovers go to the suggestion provider, in one
// batched call bounded by the provider timeout.
type Mapper struct {
	Suggester  suggest.Suggester
	Logger     *zap.Logger
	SampleRows int
}

func NewMapper(suggester suggest.Suggester, cfg *config.Config, logger *zap.Logger) *Mapper {
	return &Mapper{
		Suggester:  suggester,
		Logger:     logger,
		SampleRows: cfg.SampleRows,
	}
}

// BuildMappings maps every header to at most one schema field. Columns the
// suggester cannot place stay unmapped for manual assignment; a suggester
// failure degrades to the deterministic result rather than failing the
// session.
func (m *Mapper) BuildMappings(ctx context.Context, headers []string, rows []RawRecord, schema *catalog.Schema) []FieldMapping {
	mappings := make([]FieldMapping, len(headers))
	var unmatched []string

	for i, header := range headers {
		if field, method, confidence := matchField(header, schema); field != "" {
			mappings[i] = FieldMapping{
				SourceColumn: header,
				TargetField:  field,
				Confidence:   confidence,
				Method:       method,
			}
			continue
		}
		mappings[i] = FieldMapping{SourceColumn: header}
		unmatched = append(unmatched, header)
	}

	if len(unmatched) > 0 && m.Suggester != nil {
		m.applySuggestions(ctx, mappings, unmatched, rows, schema)
	}

	dedupeTargets(mappings)
	return mappings
}

// matchField tries exact then fuzzy name matching against field names, labels
// and synonyms. Exact matches are certain; fuzzy ones get a fixed reduced
// confidence.
func matchField(header string, schema *catalog.Schema) (string, MappingMethod, float64) {
	norm := suggest.Normalize(header)

	for _, field := range schema.Fields {
		if norm == suggest.Normalize(field.Name) || norm == suggest.Normalize(field.Label) {
			return field.Name, MethodExact, exactConfidence
		}
		for _, syn := range field.Synonyms {
			if norm == suggest.Normalize(syn) {
				return field.Name, MethodExact, exactConfidence
			}
		}
	}

	bestField := ""
	bestScore := 0.0
	for _, field := range schema.Fields {
		score := suggest.Similarity(norm, suggest.Normalize(field.Name))
		if s := suggest.Similarity(norm, suggest.Normalize(field.Label)); s > score {
			score = s
		}
		for _, syn := range field.Synonyms {
			if s := suggest.Similarity(norm, suggest.Normalize(syn)); s > score {
				score = s
			}
		}
		if score > bestScore {
			bestScore = score
			bestField = field.Name
		}
	}
	if bestScore >= fuzzyThreshold {
		return bestField, MethodHeuristic, fuzzyConfidence
	}

	return "", "", 0
}

func (m *Mapper) applySuggestions(ctx context.Context, mappings []FieldMapping, unmatched []string, rows []RawRecord, schema *catalog.Schema) {
	sample := buildSample(unmatched, rows, m.SampleRows)

	suggestions, err := m.Suggester.Suggest(ctx, unmatched, sample, schema.Fields)
	if err != nil {
		// Degrade: the columns stay unmapped and the user assigns them.
		m.Logger.Warn("Suggestion service unavailable, leaving columns unmapped",
			zap.Int("columns", len(unmatched)), zap.Error(err))
		return
	}

	known := make(map[string]bool, len(schema.Fields))
	for _, f := range schema.Fields {
		known[f.Name] = true
	}

	byColumn := make(map[string]suggest.Suggestion, len(suggestions))
	for _, sg := range suggestions {
		if !known[sg.TargetField] {
			continue
		}
		if prev, ok := byColumn[sg.SourceColumn]; ok && prev.Confidence >= sg.Confidence {
			continue
		}
		byColumn[sg.SourceColumn] = sg
	}

	for i := range mappings {
		if mappings[i].TargetField != "" {
			continue
		}
		if sg, ok := byColumn[mappings[i].SourceColumn]; ok {
			mappings[i].TargetField = sg.TargetField
			mappings[i].Confidence = clamp01(sg.Confidence)
			mappings[i].Method = MethodSuggested
		}
	}
}

// buildSample extracts up to sampleRows values for each unmatched column, in
// column order, so suggestion cost stays bounded by the sample not the file.
func buildSample(columns []string, rows []RawRecord, sampleRows int) [][]string {
	if sampleRows > len(rows) {
		sampleRows = len(rows)
	}
	sample := make([][]string, 0, sampleRows)
	for _, row := range rows[:sampleRows] {
		values := make([]string, len(columns))
		for i, col := range columns {
			values[i] = row[col]
		}
		sample = append(sample, values)
	}
	return sample
}

// dedupeTargets enforces the one-column-per-target rule: when several columns
// claim the same field, the highest confidence wins and the rest are ignored.
func dedupeTargets(mappings []FieldMapping) {
	winner := make(map[string]int)
	for i, mp := range mappings {
		if mp.TargetField == "" {
			continue
		}
		w, ok := winner[mp.TargetField]
		if !ok {
			winner[mp.TargetField] = i
			continue
		}
		if mp.Confidence > mappings[w].Confidence {
			mappings[w].TargetField = ""
			winner[mp.TargetField] = i
		} else {
			mappings[i].TargetField = ""
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
