package imports

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of one import session.
type Status string

const (
	StatusUploaded         Status = "uploaded"
	StatusAnalyzing        Status = "analyzing"
	StatusMappingReady     Status = "mapping_ready"
	StatusValidating       Status = "validating"
	StatusPreviewReady     Status = "preview_ready"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusImporting        Status = "importing"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
)

// forwardTransitions lists the legal forward edges. Cancellation is handled
// separately: cancelled is reachable from any non-terminal state.
var forwardTransitions = map[Status][]Status{
	StatusUploaded:         {StatusAnalyzing},
	StatusAnalyzing:        {StatusMappingReady, StatusFailed},
	StatusMappingReady:     {StatusValidating},
	StatusValidating:       {StatusPreviewReady, StatusFailed},
	StatusPreviewReady:     {StatusValidating, StatusAwaitingApproval},
	StatusAwaitingApproval: {StatusValidating, StatusImporting},
	StatusImporting:        {StatusCompleted, StatusFailed},
	StatusCompleted:        {},
	StatusFailed:           {},
	StatusCancelled:        {},
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether the edge from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	if next == StatusCancelled {
		return !s.IsTerminal()
	}
	for _, t := range forwardTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Severity classifies a validation issue. Errors block the affected record
// from import until fixed or skipped; warnings never block.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// MappingMethod tags how a column-to-field assignment was produced.
type MappingMethod string

const (
	MethodExact     MappingMethod = "exact"
	MethodHeuristic MappingMethod = "heuristic"
	MethodSuggested MappingMethod = "suggested"
	MethodManual    MappingMethod = "manual"
)

// FixOrigin tags where a fix action came from.
type FixOrigin string

const (
	OriginManual FixOrigin = "manual"
	OriginAuto   FixOrigin = "auto"
	OriginSkip   FixOrigin = "skip"
)

// Parse failure reason codes, surfaced verbatim in the failed session.
const (
	ReasonUnreadableFile    = "unreadable_file"
	ReasonEmptyFile         = "empty_file"
	ReasonUnsupportedFormat = "unsupported_format"
	ReasonByteLimitExceeded = "byte_limit_exceeded"
	ReasonRowLimitExceeded  = "row_limit_exceeded"
	ReasonSessionExpired    = "session_expired"
	ReasonStoreUnavailable  = "store_unavailable"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrRecordNotFound  = errors.New("record not found")
	ErrFieldNotMapped  = errors.New("field is not mapped")
	ErrActorMismatch   = errors.New("session belongs to a different actor")
	ErrNoIssue         = errors.New("no issue with an auto-fix on this field")

	// ErrUnresolvedIssues rejects execution while any non-skipped record
	// still carries an error-severity issue.
	ErrUnresolvedIssues = errors.New("unresolved blocking issues remain")

	// ErrBadOverride marks a mapping override that names an unknown column
	// or target field.
	ErrBadOverride = errors.New("invalid mapping override")
)

// StateError reports a rejected session transition.
type StateError struct {
	From Status
	To   Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("illegal transition from %s to %s", e.From, e.To)
}

// ParseError is a fatal parse failure carrying a machine-readable reason code.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ParseError) Unwrap() error { return e.Err }

// SourceMeta describes the uploaded file.
type SourceMeta struct {
	Filename    string `json:"filename" bson:"filename"`
	ByteSize    int64  `json:"byte_size" bson:"byte_size"`
	RowCount    int    `json:"row_count" bson:"row_count"`
	ContentType string `json:"content_type,omitempty" bson:"content_type,omitempty"`
}

// FieldMapping assigns one source column to a target schema field.
// TargetField == "" means the column is ignored.
type FieldMapping struct {
	SourceColumn string        `json:"source_column" bson:"source_column"`
	TargetField  string        `json:"target_field,omitempty" bson:"target_field,omitempty"`
	Confidence   float64       `json:"confidence" bson:"confidence"`
	Method       MappingMethod `json:"method" bson:"method"`
}

// RawRecord is one parsed row keyed by source column header.
type RawRecord map[string]string

// RecordEntry pairs a raw row with its resolved values, keyed by target
// field. Raw is never mutated after parse; Resolved is mutated only by the
// recovery workflow.
type RecordEntry struct {
	Index    int               `json:"index" bson:"index"`
	Raw      RawRecord         `json:"raw" bson:"raw"`
	Resolved map[string]string `json:"resolved" bson:"resolved"`
	Skipped  bool              `json:"skipped" bson:"skipped"`
}

// AutoFix is a deterministic repair suggestion attached to an issue.
type AutoFix struct {
	Action     string  `json:"action" bson:"action"`
	NewValue   string  `json:"new_value" bson:"new_value"`
	Confidence float64 `json:"confidence" bson:"confidence"`
}

// ValidationIssue is one rule violation on one field of one record.
type ValidationIssue struct {
	RecordIndex int      `json:"record_index" bson:"record_index"`
	Field       string   `json:"field" bson:"field"`
	RawValue    string   `json:"raw_value" bson:"raw_value"`
	Rule        string   `json:"rule" bson:"rule"`
	Severity    Severity `json:"severity" bson:"severity"`
	Message     string   `json:"message" bson:"message"`
	Suggestion  string   `json:"suggestion,omitempty" bson:"suggestion,omitempty"`
	AutoFix     *AutoFix `json:"auto_fix,omitempty" bson:"auto_fix,omitempty"`
}

// FixAction is the ephemeral input to the recovery workflow.
type FixAction struct {
	RecordIndex int       `json:"record_index"`
	Field       string    `json:"field"`
	NewValue    string    `json:"new_value"`
	Origin      FixOrigin `json:"origin"`
}

// FixResult reports the outcome of one action in a bulk fix.
type FixResult struct {
	RecordIndex int    `json:"record_index"`
	Field       string `json:"field,omitempty"`
	OK          bool   `json:"ok"`
	Error       string `json:"error,omitempty"`
}

// Progress holds the monotonic session counters. At completed,
// processed == total and succeeded + failed + skipped == processed.
type Progress struct {
	Total     int `json:"total" bson:"total"`
	Processed int `json:"processed" bson:"processed"`
	Succeeded int `json:"succeeded" bson:"succeeded"`
	Failed    int `json:"failed" bson:"failed"`
	Skipped   int `json:"skipped" bson:"skipped"`
}

// ImportSession is one bounded import attempt. All mutation goes through the
// SessionStore accessors; nothing outside this package touches it directly.
type ImportSession struct {
	ID         string                    `json:"id" bson:"_id"`
	ActorID    string                    `json:"actor_id" bson:"actor_id"`
	SchemaName string                    `json:"schema_name" bson:"schema_name"`
	Status     Status                    `json:"status" bson:"status"`
	Reason     string                    `json:"reason,omitempty" bson:"reason,omitempty"`
	SourceMeta SourceMeta                `json:"source_meta" bson:"source_meta"`
	Mappings   []FieldMapping            `json:"mappings" bson:"mappings"`
	Records    []*RecordEntry            `json:"records" bson:"records"`
	Issues     map[int][]ValidationIssue `json:"issues" bson:"-"`
	Progress   Progress                  `json:"progress" bson:"progress"`
	Warnings   []string                  `json:"warnings,omitempty" bson:"warnings,omitempty"`

	// CancelRequested is the cooperative cancellation flag, inspected at
	// batch and row-chunk checkpoints.
	CancelRequested bool `json:"-" bson:"-"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// BlockingIssues reports whether the record at index carries any unresolved
// error-severity issue. Skipped records are excluded from the committed batch
// regardless.
func (s *ImportSession) BlockingIssues(index int) bool {
	for _, issue := range s.Issues[index] {
		if issue.Severity == SeverityError {
			return true
		}
	}
	return false
}

// EligibleRecords returns the records ready for commit: not skipped and
// carrying no error-severity issues.
func (s *ImportSession) EligibleRecords() []*RecordEntry {
	var eligible []*RecordEntry
	for _, entry := range s.Records {
		if entry.Skipped || s.BlockingIssues(entry.Index) {
			continue
		}
		eligible = append(eligible, entry)
	}
	return eligible
}

// IssueCounts returns remaining issue totals by severity.
func (s *ImportSession) IssueCounts() (errors, warnings int) {
	for _, list := range s.Issues {
		for _, issue := range list {
			if issue.Severity == SeverityError {
				errors++
			} else {
				warnings++
			}
		}
	}
	return errors, warnings
}
