package imports

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"go-catalog/internal/features/catalog"
)

// Recovery applies fix actions to a session and re-runs validation scoped to
// the touched fields. Callers hold the session's write slot; the status
// choreography around the fix loop lives in the service.
type Recovery struct {
	logger *zap.Logger
}

func NewRecovery(logger *zap.Logger) *Recovery {
	return &Recovery{logger: logger}
}

// Apply runs the actions in order. Each action is applied independently and
// reported in its own result; one bad action never aborts the rest. Touched
// fields are revalidated once at the end, and touching a unique field re-runs
// that column across the whole batch.
func (r *Recovery) Apply(sess *ImportSession, v *Validator, actions []FixAction) []FixResult {
	if sess.Issues == nil {
		sess.Issues = make(map[int][]ValidationIssue)
	}

	results := make([]FixResult, 0, len(actions))
	touched := make(map[string]map[int]struct{})

	applied := 0
	for _, action := range actions {
		result := r.applyOne(sess, v, action)
		results = append(results, result)
		if !result.OK {
			continue
		}
		applied++
		if touched[action.Field] == nil {
			touched[action.Field] = make(map[int]struct{})
		}
		touched[action.Field][action.RecordIndex] = struct{}{}
	}

	r.revalidate(sess, v, touched)
	sess.RecomputeProgress()

	r.logger.Debug("applied fixes",
		zap.String("session_id", sess.ID),
		zap.Int("requested", len(actions)),
		zap.Int("applied", applied))

	return results
}

// AutoFixAction resolves the stored auto-fix on one record field into a
// concrete action. ErrNoIssue when no issue on that field carries a repair.
func (r *Recovery) AutoFixAction(sess *ImportSession, recordIndex int, field string) (FixAction, error) {
	if sess.recordAt(recordIndex) == nil {
		return FixAction{}, ErrRecordNotFound
	}
	for _, issue := range sess.Issues[recordIndex] {
		if issue.Field == field && issue.AutoFix != nil {
			return FixAction{
				RecordIndex: recordIndex,
				Field:       field,
				NewValue:    issue.AutoFix.NewValue,
				Origin:      OriginAuto,
			}, nil
		}
	}
	return FixAction{}, ErrNoIssue
}

// Skip excludes one record from the committed batch. Its issues stay visible
// but no longer block the run.
func (r *Recovery) Skip(sess *ImportSession, recordIndex int) error {
	entry := sess.recordAt(recordIndex)
	if entry == nil {
		return ErrRecordNotFound
	}
	entry.Skipped = true
	sess.RecomputeProgress()

	r.logger.Debug("skipped record",
		zap.String("session_id", sess.ID),
		zap.Int("record_index", recordIndex))
	return nil
}

func (r *Recovery) applyOne(sess *ImportSession, v *Validator, action FixAction) FixResult {
	result := FixResult{RecordIndex: action.RecordIndex, Field: action.Field}

	entry := sess.recordAt(action.RecordIndex)
	if entry == nil {
		result.Error = ErrRecordNotFound.Error()
		return result
	}
	if v.schema.FieldByName(action.Field) == nil {
		result.Error = fmt.Sprintf("schema %s has no field %q", v.schema.Name, action.Field)
		return result
	}
	if _, mapped := entry.Resolved[action.Field]; !mapped {
		result.Error = ErrFieldNotMapped.Error()
		return result
	}

	entry.Resolved[action.Field] = action.NewValue
	// Editing a skipped record puts it back in the running.
	if entry.Skipped {
		entry.Skipped = false
	}
	result.OK = true
	return result
}

// revalidate re-runs the field rules for every touched (field, record) pair
// and refreshes the column pass for touched unique fields. Fields are walked
// in schema order so merged output is stable across runs.
func (r *Recovery) revalidate(sess *ImportSession, v *Validator, touched map[string]map[int]struct{}) {
	if len(touched) == 0 {
		return
	}

	var uniqueCols []string
	for fi := range v.schema.Fields {
		field := &v.schema.Fields[fi]
		indexes, ok := touched[field.Name]
		if !ok {
			continue
		}
		if field.Unique {
			uniqueCols = append(uniqueCols, field.Name)
		}
		for idx := range indexes {
			entry := sess.recordAt(idx)
			if entry == nil {
				continue
			}
			fresh := v.ValidateField(entry, field)
			sess.Issues[idx] = replaceFieldIssues(sess.Issues[idx], field.Name, fresh)
		}
	}

	if len(uniqueCols) > 0 {
		r.refreshUniqueColumns(sess, v, uniqueCols)
	}

	for idx := range sess.Issues {
		if len(sess.Issues[idx]) == 0 {
			delete(sess.Issues, idx)
			continue
		}
		sess.Issues[idx] = normalizeIssues(v.schema, sess.Issues[idx])
	}
}

// refreshUniqueColumns drops every stale unique issue for the given columns
// and merges the recomputed column pass back in. A fixed value can clear the
// collision partner's issue too, so the sweep covers all records.
func (r *Recovery) refreshUniqueColumns(sess *ImportSession, v *Validator, cols []string) {
	fresh := v.UniqueIssues(sess.Records)

	for _, col := range cols {
		for idx, list := range sess.Issues {
			kept := list[:0]
			for _, issue := range list {
				if issue.Rule == RuleUnique && issue.Field == col {
					continue
				}
				kept = append(kept, issue)
			}
			sess.Issues[idx] = kept
		}
		for _, issue := range fresh[col] {
			sess.Issues[issue.RecordIndex] = append(sess.Issues[issue.RecordIndex], issue)
		}
	}
}

func replaceFieldIssues(existing []ValidationIssue, field string, fresh []ValidationIssue) []ValidationIssue {
	var out []ValidationIssue
	for _, issue := range existing {
		if issue.Field == field && issue.Rule != RuleUnique {
			continue
		}
		out = append(out, issue)
	}
	return append(out, fresh...)
}

// normalizeIssues orders one record's issues canonically: field rules in
// schema field order first, then unique issues in the same order. Relative
// order within a field is preserved, keeping rules in evaluation order.
func normalizeIssues(schema *catalog.Schema, issues []ValidationIssue) []ValidationIssue {
	order := make(map[string]int, len(schema.Fields))
	for i := range schema.Fields {
		order[schema.Fields[i].Name] = i
	}
	pos := func(name string) int {
		if p, ok := order[name]; ok {
			return p
		}
		return len(schema.Fields)
	}

	sort.SliceStable(issues, func(i, j int) bool {
		iu, ju := issues[i].Rule == RuleUnique, issues[j].Rule == RuleUnique
		if iu != ju {
			return ju
		}
		return pos(issues[i].Field) < pos(issues[j].Field)
	})
	return issues
}

func (s *ImportSession) recordAt(index int) *RecordEntry {
	if index < 0 || index >= len(s.Records) {
		return nil
	}
	return s.Records[index]
}
