package imports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"go-catalog/internal/config"
	"go-catalog/internal/features/catalog"
)

const (
	defaultPreviewLimit = 100
	maxPreviewLimit     = 1000
	archiveTimeout      = 5 * time.Second
)

// UploadView is the upload response: the session id plus everything the
// mapping screen needs.
type UploadView struct {
	ID               string         `json:"id"`
	Status           Status         `json:"status"`
	Reason           string         `json:"reason,omitempty"`
	SchemaName       string         `json:"schema_name"`
	SourceMeta       SourceMeta     `json:"source_meta"`
	Mappings         []FieldMapping `json:"mappings,omitempty"`
	UnmappedRequired []string       `json:"unmapped_required,omitempty"`
	Warnings         []string       `json:"warnings,omitempty"`
	Sample           []RawRecord    `json:"sample,omitempty"`
}

// StatusView is the compact snapshot returned by the status query.
type StatusView struct {
	ID           string   `json:"id"`
	Status       Status   `json:"status"`
	Reason       string   `json:"reason,omitempty"`
	Progress     Progress `json:"progress"`
	OpenErrors   int      `json:"open_errors"`
	OpenWarnings int      `json:"open_warnings"`
}

// MappingView is the current column-to-field assignment.
type MappingView struct {
	ID               string         `json:"id"`
	Status           Status         `json:"status"`
	SchemaName       string         `json:"schema_name"`
	Mappings         []FieldMapping `json:"mappings"`
	UnmappedRequired []string       `json:"unmapped_required,omitempty"`
}

// MappingOverride reassigns one source column. An empty target ignores the
// column.
type MappingOverride struct {
	SourceColumn string `json:"source_column"`
	TargetField  string `json:"target_field"`
}

// RecordView is one resolved record as shown in the preview.
type RecordView struct {
	Index    int               `json:"index"`
	Resolved map[string]string `json:"resolved"`
	Skipped  bool              `json:"skipped"`
	Blocked  bool              `json:"blocked"`
}

// PreviewView is a window of resolved records with their issues.
type PreviewView struct {
	ID           string                    `json:"id"`
	Status       Status                    `json:"status"`
	Total        int                       `json:"total"`
	Offset       int                       `json:"offset"`
	Records      []RecordView              `json:"records"`
	Issues       map[int][]ValidationIssue `json:"issues"`
	Progress     Progress                  `json:"progress"`
	OpenErrors   int                       `json:"open_errors"`
	OpenWarnings int                       `json:"open_warnings"`
}

// FixOutcome reports the per-action results of a recovery call plus the
// refreshed issue counts.
type FixOutcome struct {
	ID           string      `json:"id"`
	Status       Status      `json:"status"`
	Results      []FixResult `json:"results,omitempty"`
	Progress     Progress    `json:"progress"`
	OpenErrors   int         `json:"open_errors"`
	OpenWarnings int         `json:"open_warnings"`
}

type ImportService interface {
	CreateSession(ctx context.Context, actorID, schemaName, filename, contentType string, file io.Reader) (*UploadView, error)
	GetStatus(ctx context.Context, id string) (*StatusView, error)
	GetMappings(ctx context.Context, id string) (*MappingView, error)
	OverrideMappings(ctx context.Context, id, actorID string, overrides []MappingOverride) (*MappingView, error)
	GeneratePreview(ctx context.Context, id, actorID string) (*PreviewView, error)
	GetPreview(ctx context.Context, id string, offset, limit int) (*PreviewView, error)
	FixSingle(ctx context.Context, id, actorID string, action FixAction) (*FixOutcome, error)
	FixBulk(ctx context.Context, id, actorID string, actions []FixAction) (*FixOutcome, error)
	ApplyAutoFix(ctx context.Context, id, actorID string, recordIndex int, field string) (*FixOutcome, error)
	SkipRecord(ctx context.Context, id, actorID string, recordIndex int) (*FixOutcome, error)
	Execute(ctx context.Context, id, actorID string) (*StatusView, error)
	Cancel(ctx context.Context, id, actorID string) (*StatusView, error)
	ListSessions(ctx context.Context, actorID string, limit int64) ([]SessionArchive, error)
	Subscribe(id string) (<-chan ProgressEvent, func(), *StatusView, error)
}

type ImportServiceImpl struct {
	Config   *config.Config
	Store    *SessionStore
	Parser   *Parser
	Mapper   *Mapper
	Recovery *Recovery
	Executor *Executor
	Repo     SessionRepository
	Schemas  catalog.SchemaService
	Hub      *Broadcaster
	Logger   *zap.Logger

	mu         sync.RWMutex
	validators map[string]*Validator
}

func NewImportService(
	cfg *config.Config,
	store *SessionStore,
	parser *Parser,
	mapper *Mapper,
	recovery *Recovery,
	executor *Executor,
	repo SessionRepository,
	schemas catalog.SchemaService,
	hub *Broadcaster,
	logger *zap.Logger,
) ImportService {
	return &ImportServiceImpl{
		Config:     cfg,
		Store:      store,
		Parser:     parser,
		Mapper:     mapper,
		Recovery:   recovery,
		Executor:   executor,
		Repo:       repo,
		Schemas:    schemas,
		Hub:        hub,
		Logger:     logger,
		validators: make(map[string]*Validator),
	}
}

// CreateSession runs the synchronous half of the pipeline: parse the upload,
// build the mapping, register the session. A file the parser rejects still
// produces a session, failed with the parser's reason code.
func (s *ImportServiceImpl) CreateSession(ctx context.Context, actorID, schemaName, filename, contentType string, file io.Reader) (*UploadView, error) {
	v, err := s.getValidator(ctx, schemaName)
	if err != nil {
		return nil, err
	}
	schema := v.schema

	sess := &ImportSession{
		ID:         uuid.NewString(),
		ActorID:    actorID,
		SchemaName: schema.Name,
		Status:     StatusUploaded,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := sess.Transition(StatusAnalyzing); err != nil {
		return nil, err
	}

	result, err := s.Parser.Parse(filename, contentType, file)
	if err != nil {
		reason := ReasonUnreadableFile
		var pe *ParseError
		if errors.As(err, &pe) {
			reason = pe.Reason
		}
		sess.Reason = reason
		sess.SourceMeta = SourceMeta{Filename: filename, ContentType: contentType}
		if terr := sess.Transition(StatusFailed); terr != nil {
			return nil, terr
		}
		s.Store.Put(sess)
		s.archiveAsync(sess)

		s.Logger.Warn("upload rejected",
			zap.String("session_id", sess.ID),
			zap.String("reason", reason),
			zap.Error(err))
		return s.uploadView(sess, schema), nil
	}

	sess.SourceMeta = SourceMeta{
		Filename:    filename,
		ByteSize:    result.ByteSize,
		RowCount:    len(result.Rows),
		ContentType: contentType,
	}
	sess.Warnings = result.Warnings
	sess.Records = make([]*RecordEntry, len(result.Rows))
	for i, raw := range result.Rows {
		sess.Records[i] = &RecordEntry{Index: i, Raw: raw}
	}

	sess.Mappings = s.Mapper.BuildMappings(ctx, result.Headers, result.Rows, schema)
	for _, entry := range sess.Records {
		entry.Resolved = Resolve(sess.Mappings, entry.Raw)
	}

	if err := sess.Transition(StatusMappingReady); err != nil {
		return nil, err
	}
	sess.RecomputeProgress()
	s.Store.Put(sess)
	s.archiveAsync(sess)

	s.Logger.Info("import session created",
		zap.String("session_id", sess.ID),
		zap.String("schema", schema.Name),
		zap.String("filename", filename),
		zap.Int("rows", len(sess.Records)),
		zap.Int("columns", len(result.Headers)))

	return s.uploadView(sess, schema), nil
}

func (s *ImportServiceImpl) GetStatus(ctx context.Context, id string) (*StatusView, error) {
	var view *StatusView
	err := s.Store.View(id, func(sess *ImportSession) error {
		view = s.statusView(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *ImportServiceImpl) GetMappings(ctx context.Context, id string) (*MappingView, error) {
	v, err := s.sessionValidator(ctx, id)
	if err != nil {
		return nil, err
	}

	var view *MappingView
	err = s.Store.View(id, func(sess *ImportSession) error {
		view = s.mappingView(sess, v.schema)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// OverrideMappings replaces column assignments while the session sits in
// mapping_ready. Manual picks displace earlier automatic picks of the same
// target, and every record is re-projected through the new mapping.
func (s *ImportServiceImpl) OverrideMappings(ctx context.Context, id, actorID string, overrides []MappingOverride) (*MappingView, error) {
	v, err := s.sessionValidator(ctx, id)
	if err != nil {
		return nil, err
	}

	var view *MappingView
	err = s.Store.Update(id, func(sess *ImportSession) error {
		if err := requireActor(sess, actorID); err != nil {
			return err
		}
		if sess.Status != StatusMappingReady {
			return &StateError{From: sess.Status, To: StatusMappingReady}
		}

		byColumn := make(map[string]*FieldMapping, len(sess.Mappings))
		for i := range sess.Mappings {
			byColumn[sess.Mappings[i].SourceColumn] = &sess.Mappings[i]
		}
		for _, ov := range overrides {
			mp, ok := byColumn[ov.SourceColumn]
			if !ok {
				return fmt.Errorf("%w: no column %q in this upload", ErrBadOverride, ov.SourceColumn)
			}
			if ov.TargetField != "" && v.schema.FieldByName(ov.TargetField) == nil {
				return fmt.Errorf("%w: schema %s has no field %q", ErrBadOverride, sess.SchemaName, ov.TargetField)
			}
			mp.TargetField = ov.TargetField
			mp.Method = MethodManual
			mp.Confidence = 1
			if ov.TargetField == "" {
				mp.Confidence = 0
			}
		}

		// A manual pick owns its target; automatic picks of the same target
		// are cleared before the usual dedupe.
		claimed := make(map[string]bool)
		for i := range sess.Mappings {
			mp := &sess.Mappings[i]
			if mp.Method == MethodManual && mp.TargetField != "" {
				claimed[mp.TargetField] = true
			}
		}
		for i := range sess.Mappings {
			mp := &sess.Mappings[i]
			if mp.Method != MethodManual && claimed[mp.TargetField] {
				mp.TargetField = ""
				mp.Confidence = 0
			}
		}
		dedupeTargets(sess.Mappings)

		for _, entry := range sess.Records {
			entry.Resolved = Resolve(sess.Mappings, entry.Raw)
		}
		sess.UpdatedAt = time.Now()
		s.archiveAsync(sess)

		view = s.mappingView(sess, v.schema)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// GeneratePreview runs the validation engine over the whole dataset and
// advances the session to preview_ready. The engine itself runs outside the
// session lock so a cancel request can land mid-run; record mutation is
// impossible meanwhile because every mutating operation rejects the
// validating status.
func (s *ImportServiceImpl) GeneratePreview(ctx context.Context, id, actorID string) (*PreviewView, error) {
	v, err := s.sessionValidator(ctx, id)
	if err != nil {
		return nil, err
	}

	var records []*RecordEntry
	err = s.Store.Update(id, func(sess *ImportSession) error {
		if err := requireActor(sess, actorID); err != nil {
			return err
		}
		switch sess.Status {
		case StatusMappingReady, StatusPreviewReady, StatusAwaitingApproval:
		default:
			return &StateError{From: sess.Status, To: StatusValidating}
		}
		if missing := unmappedRequired(v.schema, sess.Mappings); len(missing) > 0 {
			return fmt.Errorf("%w: %s", ErrFieldNotMapped, strings.Join(missing, ", "))
		}
		if err := sess.Transition(StatusValidating); err != nil {
			return err
		}
		s.publish(sess)
		records = sess.Records
		return nil
	})
	if err != nil {
		return nil, err
	}

	issues, verr := v.ValidateAll(ctx, records, s.cancelPoll(id))

	var view *PreviewView
	err = s.Store.Update(id, func(sess *ImportSession) error {
		if verr != nil {
			if terr := sess.Transition(StatusCancelled); terr != nil {
				return terr
			}
			sess.CancelRequested = false
			s.publish(sess)
			s.archiveAsync(sess)
			s.Hub.CloseSession(sess.ID)
			view = &PreviewView{ID: sess.ID, Status: sess.Status, Total: len(sess.Records), Progress: sess.Progress}
			return nil
		}

		sess.Issues = issues
		sess.RecomputeProgress()
		if terr := sess.Transition(StatusPreviewReady); terr != nil {
			return terr
		}
		s.publish(sess)
		s.archiveAsync(sess)
		view = s.previewView(sess, 0, defaultPreviewLimit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *ImportServiceImpl) GetPreview(ctx context.Context, id string, offset, limit int) (*PreviewView, error) {
	var view *PreviewView
	err := s.Store.View(id, func(sess *ImportSession) error {
		view = s.previewView(sess, offset, limit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *ImportServiceImpl) FixSingle(ctx context.Context, id, actorID string, action FixAction) (*FixOutcome, error) {
	if action.Origin == "" {
		action.Origin = OriginManual
	}
	return s.runFixes(ctx, id, actorID, func(sess *ImportSession, v *Validator) ([]FixAction, error) {
		return []FixAction{action}, nil
	})
}

func (s *ImportServiceImpl) FixBulk(ctx context.Context, id, actorID string, actions []FixAction) (*FixOutcome, error) {
	for i := range actions {
		if actions[i].Origin == "" {
			actions[i].Origin = OriginManual
		}
	}
	return s.runFixes(ctx, id, actorID, func(sess *ImportSession, v *Validator) ([]FixAction, error) {
		return actions, nil
	})
}

func (s *ImportServiceImpl) ApplyAutoFix(ctx context.Context, id, actorID string, recordIndex int, field string) (*FixOutcome, error) {
	return s.runFixes(ctx, id, actorID, func(sess *ImportSession, v *Validator) ([]FixAction, error) {
		action, err := s.Recovery.AutoFixAction(sess, recordIndex, field)
		if err != nil {
			return nil, err
		}
		return []FixAction{action}, nil
	})
}

// SkipRecord removes one record from the committed batch. No resolved value
// changes, so no revalidation cycle runs.
func (s *ImportServiceImpl) SkipRecord(ctx context.Context, id, actorID string, recordIndex int) (*FixOutcome, error) {
	var outcome *FixOutcome
	err := s.Store.Update(id, func(sess *ImportSession) error {
		if err := requireActor(sess, actorID); err != nil {
			return err
		}
		if sess.Status != StatusPreviewReady && sess.Status != StatusAwaitingApproval {
			return &StateError{From: sess.Status, To: StatusValidating}
		}
		if err := s.Recovery.Skip(sess, recordIndex); err != nil {
			return err
		}
		sess.UpdatedAt = time.Now()
		s.publish(sess)
		s.archiveAsync(sess)
		outcome = s.fixOutcome(sess, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// Execute gates eligibility, walks the approval edge and hands the session to
// the executor on its own goroutine.
func (s *ImportServiceImpl) Execute(ctx context.Context, id, actorID string) (*StatusView, error) {
	v, err := s.sessionValidator(ctx, id)
	if err != nil {
		return nil, err
	}

	var plan *CommitPlan
	var view *StatusView
	err = s.Store.Update(id, func(sess *ImportSession) error {
		if err := requireActor(sess, actorID); err != nil {
			return err
		}
		if sess.Status != StatusPreviewReady && sess.Status != StatusAwaitingApproval {
			return &StateError{From: sess.Status, To: StatusImporting}
		}
		for _, entry := range sess.Records {
			if !entry.Skipped && sess.BlockingIssues(entry.Index) {
				return ErrUnresolvedIssues
			}
		}

		if sess.Status == StatusPreviewReady {
			if err := sess.Transition(StatusAwaitingApproval); err != nil {
				return err
			}
			s.publish(sess)
		}
		if err := sess.Transition(StatusImporting); err != nil {
			return err
		}
		plan = s.Executor.BuildPlan(sess, v)
		s.publish(sess)
		s.archiveAsync(sess)
		view = s.statusView(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("import execution started",
		zap.String("session_id", id),
		zap.Int("batches", len(plan.Batches)))

	go func() {
		bgCtx := context.Background()
		s.Executor.Run(bgCtx, plan)
	}()

	return view, nil
}

// Cancel ends a session. Stages that are mid-run (validating, importing) are
// asked to stop and land the transition at their next checkpoint; everything
// else cancels immediately.
func (s *ImportServiceImpl) Cancel(ctx context.Context, id, actorID string) (*StatusView, error) {
	var view *StatusView
	err := s.Store.Update(id, func(sess *ImportSession) error {
		if err := requireActor(sess, actorID); err != nil {
			return err
		}
		if sess.Status.IsTerminal() {
			return &StateError{From: sess.Status, To: StatusCancelled}
		}

		if sess.Status == StatusValidating || sess.Status == StatusImporting {
			sess.CancelRequested = true
			sess.UpdatedAt = time.Now()
		} else {
			if err := sess.Transition(StatusCancelled); err != nil {
				return err
			}
			s.publish(sess)
			s.archiveAsync(sess)
			s.Hub.CloseSession(sess.ID)
		}
		view = s.statusView(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

func (s *ImportServiceImpl) ListSessions(ctx context.Context, actorID string, limit int64) ([]SessionArchive, error) {
	return s.Repo.List(ctx, actorID, limit)
}

// Subscribe attaches a listener to a session's push channel and returns the
// current snapshot to send first, since events are not replayed.
func (s *ImportServiceImpl) Subscribe(id string) (<-chan ProgressEvent, func(), *StatusView, error) {
	var view *StatusView
	if err := s.Store.View(id, func(sess *ImportSession) error {
		view = s.statusView(sess)
		return nil
	}); err != nil {
		return nil, nil, nil, err
	}
	ch, unsubscribe := s.Hub.Subscribe(id)
	return ch, unsubscribe, view, nil
}

// runFixes is the shared fix choreography: gate the status, walk the
// validating loop, apply the actions, come back to preview_ready.
func (s *ImportServiceImpl) runFixes(ctx context.Context, id, actorID string, build func(*ImportSession, *Validator) ([]FixAction, error)) (*FixOutcome, error) {
	v, err := s.sessionValidator(ctx, id)
	if err != nil {
		return nil, err
	}

	var outcome *FixOutcome
	err = s.Store.Update(id, func(sess *ImportSession) error {
		if err := requireActor(sess, actorID); err != nil {
			return err
		}
		if sess.Status != StatusPreviewReady && sess.Status != StatusAwaitingApproval {
			return &StateError{From: sess.Status, To: StatusValidating}
		}

		actions, err := build(sess, v)
		if err != nil {
			return err
		}

		if err := sess.Transition(StatusValidating); err != nil {
			return err
		}
		s.publish(sess)
		results := s.Recovery.Apply(sess, v, actions)
		if err := sess.Transition(StatusPreviewReady); err != nil {
			return err
		}
		s.publish(sess)
		s.archiveAsync(sess)

		outcome = s.fixOutcome(sess, results)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// getValidator returns the compiled validator for a schema, building and
// caching it on first use. Failing here fails the upload early instead of at
// preview time.
func (s *ImportServiceImpl) getValidator(ctx context.Context, schemaName string) (*Validator, error) {
	s.mu.RLock()
	v, ok := s.validators[schemaName]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}

	schema, err := s.Schemas.GetSchemaByName(ctx, schemaName)
	if err != nil {
		return nil, err
	}
	v, err = NewValidator(schema)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.validators[schemaName] = v
	s.mu.Unlock()
	return v, nil
}

// sessionValidator resolves the validator for an existing session's schema.
func (s *ImportServiceImpl) sessionValidator(ctx context.Context, id string) (*Validator, error) {
	var schemaName string
	if err := s.Store.View(id, func(sess *ImportSession) error {
		schemaName = sess.SchemaName
		return nil
	}); err != nil {
		return nil, err
	}
	return s.getValidator(ctx, schemaName)
}

// cancelPoll is the cooperative cancellation probe handed to the validation
// engine; it takes the session lock briefly on each check.
func (s *ImportServiceImpl) cancelPoll(id string) func() bool {
	return func() bool {
		cancelled := false
		if err := s.Store.View(id, func(sess *ImportSession) error {
			cancelled = sess.CancelRequested
			return nil
		}); err != nil {
			return true
		}
		return cancelled
	}
}

func (s *ImportServiceImpl) publish(sess *ImportSession) {
	s.Hub.Publish(ProgressEvent{
		SessionID: sess.ID,
		Status:    sess.Status,
		Progress:  sess.Progress,
		Reason:    sess.Reason,
	})
}

// archiveAsync persists the session summary without holding up the caller.
// The document is built under the session lock; only the write is deferred.
func (s *ImportServiceImpl) archiveAsync(sess *ImportSession) {
	archive := newSessionArchive(sess)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.Repo.Save(ctx, archive); err != nil {
			s.Logger.Warn("session archive failed",
				zap.String("session_id", archive.ID),
				zap.Error(err))
		}
	}()
}

func (s *ImportServiceImpl) statusView(sess *ImportSession) *StatusView {
	openErrors, openWarnings := sess.IssueCounts()
	return &StatusView{
		ID:           sess.ID,
		Status:       sess.Status,
		Reason:       sess.Reason,
		Progress:     sess.Progress,
		OpenErrors:   openErrors,
		OpenWarnings: openWarnings,
	}
}

func (s *ImportServiceImpl) mappingView(sess *ImportSession, schema *catalog.Schema) *MappingView {
	return &MappingView{
		ID:               sess.ID,
		Status:           sess.Status,
		SchemaName:       sess.SchemaName,
		Mappings:         append([]FieldMapping(nil), sess.Mappings...),
		UnmappedRequired: unmappedRequired(schema, sess.Mappings),
	}
}

func (s *ImportServiceImpl) uploadView(sess *ImportSession, schema *catalog.Schema) *UploadView {
	view := &UploadView{
		ID:               sess.ID,
		Status:           sess.Status,
		Reason:           sess.Reason,
		SchemaName:       sess.SchemaName,
		SourceMeta:       sess.SourceMeta,
		Mappings:         append([]FieldMapping(nil), sess.Mappings...),
		UnmappedRequired: unmappedRequired(schema, sess.Mappings),
		Warnings:         append([]string(nil), sess.Warnings...),
	}
	for i := 0; i < len(sess.Records) && i < s.Config.SampleRows; i++ {
		view.Sample = append(view.Sample, sess.Records[i].Raw)
	}
	return view
}

// previewView copies a window of records and their issues so the response can
// be marshalled after the session lock is released.
func (s *ImportServiceImpl) previewView(sess *ImportSession, offset, limit int) *PreviewView {
	if limit <= 0 {
		limit = defaultPreviewLimit
	}
	if limit > maxPreviewLimit {
		limit = maxPreviewLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset > len(sess.Records) {
		offset = len(sess.Records)
	}
	end := offset + limit
	if end > len(sess.Records) {
		end = len(sess.Records)
	}

	openErrors, openWarnings := sess.IssueCounts()
	view := &PreviewView{
		ID:           sess.ID,
		Status:       sess.Status,
		Total:        len(sess.Records),
		Offset:       offset,
		Records:      make([]RecordView, 0, end-offset),
		Issues:       make(map[int][]ValidationIssue),
		Progress:     sess.Progress,
		OpenErrors:   openErrors,
		OpenWarnings: openWarnings,
	}

	for _, entry := range sess.Records[offset:end] {
		resolved := make(map[string]string, len(entry.Resolved))
		for name, value := range entry.Resolved {
			resolved[name] = value
		}
		view.Records = append(view.Records, RecordView{
			Index:    entry.Index,
			Resolved: resolved,
			Skipped:  entry.Skipped,
			Blocked:  sess.BlockingIssues(entry.Index),
		})
		if list := sess.Issues[entry.Index]; len(list) > 0 {
			view.Issues[entry.Index] = append([]ValidationIssue(nil), list...)
		}
	}
	return view
}

func (s *ImportServiceImpl) fixOutcome(sess *ImportSession, results []FixResult) *FixOutcome {
	openErrors, openWarnings := sess.IssueCounts()
	return &FixOutcome{
		ID:           sess.ID,
		Status:       sess.Status,
		Results:      results,
		Progress:     sess.Progress,
		OpenErrors:   openErrors,
		OpenWarnings: openWarnings,
	}
}

func requireActor(sess *ImportSession, actorID string) error {
	if sess.ActorID != actorID {
		return ErrActorMismatch
	}
	return nil
}

// unmappedRequired lists required schema fields no mapping covers.
func unmappedRequired(schema *catalog.Schema, mappings []FieldMapping) []string {
	covered := make(map[string]bool, len(mappings))
	for _, mp := range mappings {
		if mp.TargetField != "" {
			covered[mp.TargetField] = true
		}
	}
	var missing []string
	for _, name := range schema.RequiredFields() {
		if !covered[name] {
			missing = append(missing, name)
		}
	}
	return missing
}
