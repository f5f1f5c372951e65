package imports

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func recoverySession(t *testing.T, v *Validator, rows []map[string]string) *ImportSession {
	t.Helper()
	sess := &ImportSession{ID: "rec-test", Status: StatusPreviewReady}
	for i, resolved := range rows {
		sess.Records = append(sess.Records, entryWith(i, resolved))
	}
	issues, err := v.ValidateAll(context.Background(), sess.Records, nil)
	require.NoError(t, err)
	sess.Issues = issues
	sess.RecomputeProgress()
	return sess
}

func TestApplyFixClearsIssue(t *testing.T) {
	v := newTestValidator(t)
	r := NewRecovery(zap.NewNop())
	sess := recoverySession(t, v, []map[string]string{
		{"name": "Widget", "price": "abc"},
	})
	require.Len(t, sess.Issues[0], 1)

	results := r.Apply(sess, v, []FixAction{
		{RecordIndex: 0, Field: "price", NewValue: "19.99", Origin: OriginManual},
	})

	require.Len(t, results, 1)
	assert.True(t, results[0].OK)
	assert.Equal(t, "19.99", sess.Records[0].Resolved["price"])
	assert.Empty(t, sess.Issues, "resolved record drops out of the issue map")
}

func TestApplyReportsPerAction(t *testing.T) {
	v := newTestValidator(t)
	r := NewRecovery(zap.NewNop())
	sess := recoverySession(t, v, []map[string]string{
		{"name": "Widget", "price": "abc"},
	})

	results := r.Apply(sess, v, []FixAction{
		{RecordIndex: 5, Field: "price", NewValue: "1"},
		{RecordIndex: 0, Field: "no_such_field", NewValue: "1"},
		{RecordIndex: 0, Field: "category", NewValue: "home"},
		{RecordIndex: 0, Field: "price", NewValue: "19.99"},
	})

	require.Len(t, results, 4)
	assert.False(t, results[0].OK)
	assert.Equal(t, ErrRecordNotFound.Error(), results[0].Error)
	assert.False(t, results[1].OK)
	assert.Contains(t, results[1].Error, "no field")
	assert.False(t, results[2].OK, "category is not mapped on this session")
	assert.Equal(t, ErrFieldNotMapped.Error(), results[2].Error)
	assert.True(t, results[3].OK, "one bad action never blocks the rest")
	assert.Empty(t, sess.Issues)
}

func TestApplyFixRevalidatesUniqueColumn(t *testing.T) {
	v := newTestValidator(t)
	r := NewRecovery(zap.NewNop())
	sess := recoverySession(t, v, []map[string]string{
		{"name": "a", "price": "1", "sku": "DUP-1"},
		{"name": "b", "price": "1", "sku": "DUP-1"},
	})
	require.Len(t, sess.Issues[0], 1)
	require.Len(t, sess.Issues[1], 1)

	results := r.Apply(sess, v, []FixAction{
		{RecordIndex: 1, Field: "sku", NewValue: "NEW-2"},
	})

	require.True(t, results[0].OK)
	assert.Empty(t, sess.Issues, "fixing one side clears the collision partner too")
}

func TestApplyFixCanIntroduceIssue(t *testing.T) {
	v := newTestValidator(t)
	r := NewRecovery(zap.NewNop())
	sess := recoverySession(t, v, []map[string]string{
		{"name": "Widget", "price": "9.99"},
	})
	require.Empty(t, sess.Issues)

	results := r.Apply(sess, v, []FixAction{
		{RecordIndex: 0, Field: "price", NewValue: "abc"},
	})

	assert.True(t, results[0].OK, "the edit lands; validation reports on it")
	require.Len(t, sess.Issues[0], 1)
	assert.Equal(t, RuleType, sess.Issues[0][0].Rule)
}

func TestAutoFixAction(t *testing.T) {
	v := newTestValidator(t)
	r := NewRecovery(zap.NewNop())
	sess := recoverySession(t, v, []map[string]string{
		{"name": "Widget", "price": "$5"},
	})

	action, err := r.AutoFixAction(sess, 0, "price")
	require.NoError(t, err)
	assert.Equal(t, "5", action.NewValue)
	assert.Equal(t, OriginAuto, action.Origin)

	_, err = r.AutoFixAction(sess, 0, "name")
	assert.ErrorIs(t, err, ErrNoIssue)

	_, err = r.AutoFixAction(sess, 9, "price")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestSkipAndUnskip(t *testing.T) {
	v := newTestValidator(t)
	r := NewRecovery(zap.NewNop())
	sess := recoverySession(t, v, []map[string]string{
		{"name": "Widget", "price": "abc"},
	})

	require.NoError(t, r.Skip(sess, 0))
	assert.True(t, sess.Records[0].Skipped)
	assert.Equal(t, 1, sess.Progress.Skipped)

	assert.ErrorIs(t, r.Skip(sess, 3), ErrRecordNotFound)

	// Editing a skipped record puts it back in the running.
	results := r.Apply(sess, v, []FixAction{
		{RecordIndex: 0, Field: "price", NewValue: "19.99"},
	})
	require.True(t, results[0].OK)
	assert.False(t, sess.Records[0].Skipped)
	assert.Equal(t, 0, sess.Progress.Skipped)
}

func TestNormalizeIssues(t *testing.T) {
	schema := testSchema()
	issues := []ValidationIssue{
		{Field: "sku", Rule: RuleUnique},
		{Field: "price", Rule: RuleType},
		{Field: "name", Rule: RuleRequired},
	}

	out := normalizeIssues(schema, issues)

	require.Len(t, out, 3)
	assert.Equal(t, "name", out[0].Field)
	assert.Equal(t, "price", out[1].Field)
	assert.Equal(t, RuleUnique, out[2].Rule, "unique issues sort after the field rules")
}
