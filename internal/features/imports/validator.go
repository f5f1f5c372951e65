package imports

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go-catalog/internal/features/catalog"

	"github.com/d5/tengo/v2"
)

// ContextCheckInterval is how many rows the engine validates between
// cancellation checks on large datasets.
const ContextCheckInterval = 100

// Rule names, in evaluation order. A required failure suppresses the later
// rules for that field; a type failure suppresses format, range and custom
// (they need a typed value). Uniqueness runs as its own column-wide pass.
const (
	RuleRequired = "required"
	RuleType     = "type"
	RuleFormat   = "format"
	RuleRange    = "range"
	RuleUnique   = "unique"
	RuleCustom   = "custom"
)

// Auto-fix actions.
const (
	FixTrimWhitespace = "trim_whitespace"
	FixNumericCleanup = "numeric_cleanup"
	FixBooleanCoerce  = "boolean_coercion"
	FixDateFormat     = "date_format"
	FixEnumCase       = "enum_case"
	FixApplyDefault   = "apply_default"
)

var (
	numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)
	emailRegex   = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// twoDigitYearPivot: two-digit years resolving more than this many years into
// the future are shifted back a century.
const twoDigitYearPivot = 20

var (
	isoDateLayout        = "2006-01-02"
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006/01/02", "2006.01.02",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
	}
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
)

// Validator evaluates resolved records against one schema. It is pure with
// respect to session state: callers pass records in and get issue lists back.
type Validator struct {
	schema   *catalog.Schema
	patterns map[string]*regexp.Regexp
	scripts  map[string]*tengo.Compiled
}

// NewValidator compiles the schema's field patterns and validation scripts
// up front so per-record evaluation stays cheap.
func NewValidator(schema *catalog.Schema) (*Validator, error) {
	v := &Validator{
		schema:   schema,
		patterns: make(map[string]*regexp.Regexp),
		scripts:  make(map[string]*tengo.Compiled),
	}

	for _, field := range schema.Fields {
		if field.Pattern != "" {
			re, err := regexp.Compile(field.Pattern)
			if err != nil {
				return nil, fmt.Errorf("field %s: invalid pattern: %w", field.Name, err)
			}
			v.patterns[field.Name] = re
		}
		if field.Validate != "" {
			script := tengo.NewScript([]byte(field.Validate))
			_ = script.Add("value", nil)
			_ = script.Add("record", nil)
			compiled, err := script.Compile()
			if err != nil {
				return nil, fmt.Errorf("field %s: invalid validation script: %w", field.Name, err)
			}
			v.scripts[field.Name] = compiled
		}
	}

	return v, nil
}

// Resolve projects a raw row through the mapping, producing the target-keyed
// value map the rest of the pipeline works on.
func Resolve(mappings []FieldMapping, raw RawRecord) map[string]string {
	resolved := make(map[string]string)
	for _, mp := range mappings {
		if mp.TargetField == "" {
			continue
		}
		resolved[mp.TargetField] = raw[mp.SourceColumn]
	}
	return resolved
}

// ValidateAll evaluates every record and returns the full issue map, keyed by
// record index. Skipped records are still validated so their issues remain
// visible. Cancellation is cooperative: the flag is consulted every
// ContextCheckInterval rows.
func (v *Validator) ValidateAll(ctx context.Context, entries []*RecordEntry, isCancelled func() bool) (map[int][]ValidationIssue, error) {
	issues := make(map[int][]ValidationIssue)

	for i, entry := range entries {
		if i%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if isCancelled != nil && isCancelled() {
				return nil, context.Canceled
			}
		}

		var recordIssues []ValidationIssue
		for fi := range v.schema.Fields {
			field := &v.schema.Fields[fi]
			if _, mapped := entry.Resolved[field.Name]; !mapped {
				continue
			}
			recordIssues = append(recordIssues, v.ValidateField(entry, field)...)
		}
		if len(recordIssues) > 0 {
			issues[entry.Index] = recordIssues
		}
	}

	// Column pass, in schema field order so re-runs produce identical output.
	unique := v.UniqueIssues(entries)
	for fi := range v.schema.Fields {
		for _, issue := range unique[v.schema.Fields[fi].Name] {
			issues[issue.RecordIndex] = append(issues[issue.RecordIndex], issue)
		}
	}

	return issues, nil
}

// ValidateField runs the per-field rules (everything except uniqueness) for
// one record and returns the issues found, in rule order.
func (v *Validator) ValidateField(entry *RecordEntry, field *catalog.SchemaField) []ValidationIssue {
	raw := entry.Resolved[field.Name]
	trimmed := strings.TrimSpace(raw)
	var issues []ValidationIssue

	newIssue := func(rule string, severity Severity, message string) *ValidationIssue {
		return &ValidationIssue{
			RecordIndex: entry.Index,
			Field:       field.Name,
			RawValue:    raw,
			Rule:        rule,
			Severity:    severity,
			Message:     message,
		}
	}

	// required
	if trimmed == "" {
		if field.Required {
			issue := newIssue(RuleRequired, SeverityError, fmt.Sprintf("%s is required", field.Label))
			if field.Default != "" {
				issue.AutoFix = &AutoFix{Action: FixApplyDefault, NewValue: field.Default, Confidence: 0.75}
				issue.Suggestion = fmt.Sprintf("the schema default is %q", field.Default)
			}
			issues = append(issues, *issue)
		}
		// An empty optional field has nothing further to check.
		return issues
	}

	// type
	canonical, typeOK := v.CanonicalValue(field, raw)
	if !typeOK {
		issue := newIssue(RuleType, SeverityError, typeMessage(field, raw))
		if fix := typeAutoFix(field, raw); fix != nil {
			issue.AutoFix = fix
		}
		issues = append(issues, *issue)
		return issues
	}

	// format
	if issue := v.checkFormat(entry, field, raw, trimmed); issue != nil {
		issues = append(issues, *issue)
	}

	// range
	if issue := v.checkRange(entry, field, raw, canonical); issue != nil {
		issues = append(issues, *issue)
	}

	// custom script
	if issue := v.runScript(entry, field, raw, canonical); issue != nil {
		issues = append(issues, *issue)
	}

	return issues
}

func (v *Validator) checkFormat(entry *RecordEntry, field *catalog.SchemaField, raw, trimmed string) *ValidationIssue {
	issue := func(message string) *ValidationIssue {
		out := &ValidationIssue{
			RecordIndex: entry.Index,
			Field:       field.Name,
			RawValue:    raw,
			Rule:        RuleFormat,
			Severity:    SeverityWarning,
			Message:     message,
		}
		// Stray whitespace is the one format problem with a safe repair.
		if trimmed != raw && v.formatOK(field, trimmed) {
			out.AutoFix = &AutoFix{Action: FixTrimWhitespace, NewValue: trimmed, Confidence: 0.95}
		}
		return out
	}

	switch field.Type {
	case catalog.FieldTypeEmail:
		if !emailRegex.MatchString(raw) {
			return issue(fmt.Sprintf("%s is not a valid email address", field.Label))
		}
	case catalog.FieldTypeURL:
		if !urlOK(raw) {
			return issue(fmt.Sprintf("%s is not a valid URL", field.Label))
		}
	}

	if re, ok := v.patterns[field.Name]; ok && !re.MatchString(raw) {
		out := issue(fmt.Sprintf("%s does not match the expected format", field.Label))
		out.Suggestion = fmt.Sprintf("expected pattern %s", field.Pattern)
		return out
	}

	return nil
}

// formatOK reports whether a candidate value passes the field's format rules,
// used to decide if trimming alone repairs the value.
func (v *Validator) formatOK(field *catalog.SchemaField, value string) bool {
	switch field.Type {
	case catalog.FieldTypeEmail:
		if !emailRegex.MatchString(value) {
			return false
		}
	case catalog.FieldTypeURL:
		if !urlOK(value) {
			return false
		}
	}
	if re, ok := v.patterns[field.Name]; ok && !re.MatchString(value) {
		return false
	}
	return true
}

func (v *Validator) checkRange(entry *RecordEntry, field *catalog.SchemaField, raw string, canonical interface{}) *ValidationIssue {
	issue := func(message string) *ValidationIssue {
		return &ValidationIssue{
			RecordIndex: entry.Index,
			Field:       field.Name,
			RawValue:    raw,
			Rule:        RuleRange,
			Severity:    SeverityWarning,
			Message:     message,
		}
	}

	switch field.Type {
	case catalog.FieldTypeNumber, catalog.FieldTypeCurrency:
		n, ok := canonical.(float64)
		if !ok {
			return nil
		}
		if field.Min != nil && n < *field.Min {
			return issue(fmt.Sprintf("%s must be at least %g", field.Label, *field.Min))
		}
		if field.Max != nil && n > *field.Max {
			return issue(fmt.Sprintf("%s must be at most %g", field.Label, *field.Max))
		}

	case catalog.FieldTypeSelect:
		value := canonical.(string)
		if optionValue(field, value) != "" {
			return nil
		}
		// Not an exact option: a case or spacing mismatch is repairable,
		// anything else is up to the user.
		out := issue(fmt.Sprintf("%s has no option %q", field.Label, value))
		out.Suggestion = fmt.Sprintf("allowed values: %s", strings.Join(optionValues(field), ", "))
		if folded := foldToOption(field, value); folded != "" {
			out.AutoFix = &AutoFix{Action: FixEnumCase, NewValue: folded, Confidence: 0.9}
		}
		return out
	}

	return nil
}

// runScript evaluates the field's validation script with the typed value and
// record in scope. Scripts set ok and msg; a script runtime failure becomes a
// warning so a broken rule never blocks an import silently.
func (v *Validator) runScript(entry *RecordEntry, field *catalog.SchemaField, raw string, canonical interface{}) *ValidationIssue {
	compiled, ok := v.scripts[field.Name]
	if !ok {
		return nil
	}

	record := make(map[string]interface{}, len(entry.Resolved))
	for name, value := range entry.Resolved {
		f := v.schema.FieldByName(name)
		if f == nil {
			continue
		}
		if typed, valid := v.CanonicalValue(f, value); valid {
			record[name] = typed
		}
	}

	run := compiled.Clone()
	issue := &ValidationIssue{
		RecordIndex: entry.Index,
		Field:       field.Name,
		RawValue:    raw,
		Rule:        RuleCustom,
		Severity:    SeverityWarning,
	}

	if err := run.Set("value", canonical); err != nil {
		issue.Message = fmt.Sprintf("validation script failed: %v", err)
		return issue
	}
	if err := run.Set("record", record); err != nil {
		issue.Message = fmt.Sprintf("validation script failed: %v", err)
		return issue
	}
	if err := run.Run(); err != nil {
		issue.Message = fmt.Sprintf("validation script failed: %v", err)
		return issue
	}

	if run.Get("ok").Bool() {
		return nil
	}
	issue.Message = run.Get("msg").String()
	if issue.Message == "" {
		issue.Message = fmt.Sprintf("%s failed a validation rule", field.Label)
	}
	return issue
}

// UniqueIssues runs the column-wide uniqueness pass. Every record sharing a
// duplicated value is flagged, not just the later occurrences. Values that
// already fail the type rule are excluded; they carry their own issue.
func (v *Validator) UniqueIssues(entries []*RecordEntry) map[string][]ValidationIssue {
	out := make(map[string][]ValidationIssue)

	for fi := range v.schema.Fields {
		field := &v.schema.Fields[fi]
		if !field.Unique {
			continue
		}

		groups := make(map[string][]*RecordEntry)
		for _, entry := range entries {
			raw, mapped := entry.Resolved[field.Name]
			if !mapped || strings.TrimSpace(raw) == "" {
				continue
			}
			key, ok := v.canonicalKey(field, raw)
			if !ok {
				continue
			}
			groups[key] = append(groups[key], entry)
		}

		var issues []ValidationIssue
		for _, group := range groups {
			if len(group) < 2 {
				continue
			}
			for _, entry := range group {
				issues = append(issues, ValidationIssue{
					RecordIndex: entry.Index,
					Field:       field.Name,
					RawValue:    entry.Resolved[field.Name],
					Rule:        RuleUnique,
					Severity:    SeverityError,
					Message:     fmt.Sprintf("%s %q appears on %d records in this upload", field.Label, strings.TrimSpace(entry.Resolved[field.Name]), len(group)),
					Suggestion:  fmt.Sprintf("%s values must be unique within one import", field.Label),
				})
			}
		}
		if len(issues) > 0 {
			sortIssuesByRecord(issues)
			out[field.Name] = issues
		}
	}

	return out
}

// CanonicalValue converts a raw string into the field's typed value. The
// boolean result is false when the value does not strictly conform; repairable
// shapes are handled by auto-fixes, not silent coercion.
func (v *Validator) CanonicalValue(field *catalog.SchemaField, raw string) (interface{}, bool) {
	trimmed := strings.TrimSpace(raw)

	switch field.Type {
	case catalog.FieldTypeNumber, catalog.FieldTypeCurrency:
		n, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, false
		}
		return n, true

	case catalog.FieldTypeBoolean:
		switch strings.ToLower(trimmed) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return nil, false

	case catalog.FieldTypeDate:
		if _, err := time.Parse(isoDateLayout, trimmed); err != nil {
			return nil, false
		}
		return trimmed, true

	default:
		return trimmed, true
	}
}

// canonicalKey folds a value into the representation used for duplicate
// grouping. Text comparisons are case-insensitive.
func (v *Validator) canonicalKey(field *catalog.SchemaField, raw string) (string, bool) {
	canonical, ok := v.CanonicalValue(field, raw)
	if !ok {
		return "", false
	}
	switch typed := canonical.(type) {
	case float64:
		return strconv.FormatFloat(typed, 'g', -1, 64), true
	case bool:
		return strconv.FormatBool(typed), true
	case string:
		return strings.ToLower(typed), true
	default:
		return fmt.Sprintf("%v", typed), true
	}
}

func typeMessage(field *catalog.SchemaField, raw string) string {
	switch field.Type {
	case catalog.FieldTypeNumber, catalog.FieldTypeCurrency:
		return fmt.Sprintf("%s must be a number, got %q", field.Label, raw)
	case catalog.FieldTypeBoolean:
		return fmt.Sprintf("%s must be true or false, got %q", field.Label, raw)
	case catalog.FieldTypeDate:
		return fmt.Sprintf("%s is not a date in YYYY-MM-DD form, got %q", field.Label, raw)
	default:
		return fmt.Sprintf("%s has an invalid value %q", field.Label, raw)
	}
}

// typeAutoFix returns the deterministic repair for a type failure when one
// exists: currency cleanup, boolean coercion or date reformatting.
func typeAutoFix(field *catalog.SchemaField, raw string) *AutoFix {
	trimmed := strings.TrimSpace(raw)

	switch field.Type {
	case catalog.FieldTypeNumber, catalog.FieldTypeCurrency:
		if n, ok := parseLooseNumber(trimmed); ok {
			return &AutoFix{
				Action:     FixNumericCleanup,
				NewValue:   strconv.FormatFloat(n, 'f', -1, 64),
				Confidence: 0.85,
			}
		}

	case catalog.FieldTypeBoolean:
		if b, ok := parseLooseBool(trimmed); ok {
			return &AutoFix{
				Action:     FixBooleanCoerce,
				NewValue:   strconv.FormatBool(b),
				Confidence: 0.9,
			}
		}

	case catalog.FieldTypeDate:
		if t, ok := parseLooseDate(trimmed); ok {
			return &AutoFix{
				Action:     FixDateFormat,
				NewValue:   t.Format(isoDateLayout),
				Confidence: 0.8,
			}
		}

	default:
		if trimmed != raw {
			return &AutoFix{Action: FixTrimWhitespace, NewValue: trimmed, Confidence: 0.95}
		}
	}

	return nil
}

// parseLooseNumber accepts the messy numeric shapes spreadsheets produce:
// currency symbols, thousands separators and accounting-style negatives.
func parseLooseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if negative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseLooseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1", "on":
		return true, true
	case "false", "f", "no", "n", "0", "off":
		return false, true
	}
	return false, false
}

// parseLooseDate tries unambiguous four-digit-year layouts first, then
// two-digit years with a pivot.
func parseLooseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if t, err := time.Parse(isoDateLayout, s); err == nil {
		return t, true
	}
	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	pivot := time.Now().Year() + twoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivot {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

func urlOK(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func optionValue(field *catalog.SchemaField, value string) string {
	for _, opt := range field.Options {
		if opt.Value == value {
			return opt.Value
		}
	}
	return ""
}

func optionValues(field *catalog.SchemaField) []string {
	values := make([]string, 0, len(field.Options))
	for _, opt := range field.Options {
		values = append(values, opt.Value)
	}
	return values
}

// foldToOption matches a value to an option by case- and spacing-insensitive
// comparison against option values and labels.
func foldToOption(field *catalog.SchemaField, value string) string {
	fold := func(s string) string {
		return strings.ToLower(strings.Join(strings.Fields(s), " "))
	}
	needle := fold(value)
	for _, opt := range field.Options {
		if fold(opt.Value) == needle || fold(opt.Label) == needle {
			return opt.Value
		}
	}
	return ""
}

func sortIssuesByRecord(issues []ValidationIssue) {
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].RecordIndex < issues[j].RecordIndex
	})
}
