package imports

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"go-catalog/internal/config"
	"go-catalog/internal/features/catalog"
)

// Executor commits a session's eligible records to the catalog in fixed-size
// batches. A failing batch is cleared and retried once, then written off;
// later batches still run, so one bad batch never aborts outstanding work.
type Executor struct {
	sessions  *SessionStore
	store     catalog.RecordStore
	archive   SessionRepository
	hub       *Broadcaster
	logger    *zap.Logger
	batchSize int
	timeout   time.Duration
}

func NewExecutor(cfg *config.Config, sessions *SessionStore, store catalog.RecordStore, archive SessionRepository, hub *Broadcaster, logger *zap.Logger) *Executor {
	return &Executor{
		sessions:  sessions,
		store:     store,
		archive:   archive,
		hub:       hub,
		logger:    logger,
		batchSize: cfg.BatchSize,
		timeout:   cfg.BatchTimeout,
	}
}

// CommitPlan is the immutable snapshot Run works from, taken under the
// session's write slot so the run never touches live record state.
type CommitPlan struct {
	SessionID  string
	SchemaName string
	ActorID    string
	Batches    [][]map[string]interface{}
}

// BuildPlan converts the eligible records into typed documents split into
// fixed batches, and seeds the progress counters for the run. Must be called
// under the session's write slot, after the transition into importing.
func (e *Executor) BuildPlan(sess *ImportSession, v *Validator) *CommitPlan {
	eligible := sess.EligibleRecords()

	rows := make([]map[string]interface{}, 0, len(eligible))
	for _, entry := range eligible {
		rows = append(rows, buildDocument(v, entry))
	}

	plan := &CommitPlan{
		SessionID:  sess.ID,
		SchemaName: sess.SchemaName,
		ActorID:    sess.ActorID,
	}
	for start := 0; start < len(rows); start += e.batchSize {
		end := start + e.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		plan.Batches = append(plan.Batches, rows[start:end])
	}

	// Skipped records are accounted for up front; each batch adds its own
	// share, so processed reaches total exactly when the run ends.
	sess.RecomputeProgress()
	sess.Progress.Processed = sess.Progress.Skipped
	sess.Progress.Succeeded = 0
	sess.Progress.Failed = 0

	return plan
}

// buildDocument converts one record's resolved values into the typed document
// committed to the store. Empty optional fields fall back to the schema
// default or are omitted.
func buildDocument(v *Validator, entry *RecordEntry) map[string]interface{} {
	doc := make(map[string]interface{}, len(entry.Resolved))
	for fi := range v.schema.Fields {
		field := &v.schema.Fields[fi]
		raw, mapped := entry.Resolved[field.Name]
		if !mapped {
			continue
		}
		if strings.TrimSpace(raw) == "" {
			if field.Default == "" {
				continue
			}
			raw = field.Default
		}
		if typed, ok := v.CanonicalValue(field, raw); ok {
			doc[field.Name] = typed
		}
	}
	return doc
}

// Run commits the plan batch by batch and drives the session to its terminal
// state. It is started on its own goroutine; cancellation is checked between
// batches, never mid-write.
func (e *Executor) Run(ctx context.Context, plan *CommitPlan) {
	var runErrs error
	committed := 0

	for bi, batch := range plan.Batches {
		if e.cancelRequested(ctx, plan.SessionID) {
			e.finish(plan, StatusCancelled, "", runErrs)
			return
		}

		err := e.commitBatch(ctx, plan, bi, batch)
		if err != nil {
			runErrs = multierr.Append(runErrs, fmt.Errorf("batch %d: %w", bi, err))
			e.logger.Error("batch failed after retry",
				zap.String("session_id", plan.SessionID),
				zap.Int("batch_index", bi),
				zap.Int("batch_rows", len(batch)),
				zap.Error(err))
		} else {
			committed++
		}

		advanceErr := e.sessions.Update(plan.SessionID, func(sess *ImportSession) error {
			sess.Progress.Processed += len(batch)
			if err != nil {
				sess.Progress.Failed += len(batch)
			} else {
				sess.Progress.Succeeded += len(batch)
			}
			sess.UpdatedAt = time.Now()
			return nil
		})
		if advanceErr != nil {
			// Session evicted mid-run, nothing left to report to.
			e.logger.Warn("session vanished during import",
				zap.String("session_id", plan.SessionID))
			return
		}
		e.publish(plan.SessionID)
	}

	status := StatusCompleted
	reason := ""
	if committed == 0 && len(plan.Batches) > 0 {
		status = StatusFailed
		reason = ReasonStoreUnavailable
	}
	e.finish(plan, status, reason, runErrs)
}

// commitBatch writes one batch with a per-attempt timeout. On failure the
// partial batch is cleared and the insert retried exactly once.
func (e *Executor) commitBatch(ctx context.Context, plan *CommitPlan, batchIndex int, rows []map[string]interface{}) error {
	insert := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		return e.store.CreateBatch(attemptCtx, plan.SchemaName, plan.SessionID, plan.ActorID, batchIndex, rows)
	}
	clearBatch := func() error {
		clearCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()
		return e.store.DeleteBatch(clearCtx, plan.SessionID, batchIndex)
	}

	err := insert()
	if err == nil {
		return nil
	}

	e.logger.Warn("batch insert failed, retrying once",
		zap.String("session_id", plan.SessionID),
		zap.Int("batch_index", batchIndex),
		zap.Error(err))

	if clearErr := clearBatch(); clearErr != nil {
		return multierr.Append(err, fmt.Errorf("clearing partial batch: %w", clearErr))
	}
	retryErr := insert()
	if retryErr == nil {
		return nil
	}
	if clearErr := clearBatch(); clearErr != nil {
		retryErr = multierr.Append(retryErr, fmt.Errorf("clearing partial batch: %w", clearErr))
	}
	return multierr.Append(err, retryErr)
}

func (e *Executor) cancelRequested(ctx context.Context, id string) bool {
	if ctx.Err() != nil {
		return true
	}
	cancelled := false
	if err := e.sessions.View(id, func(sess *ImportSession) error {
		cancelled = sess.CancelRequested
		return nil
	}); err != nil {
		return true
	}
	return cancelled
}

// finish drives the session to its terminal state, archives it and closes the
// push channel.
func (e *Executor) finish(plan *CommitPlan, status Status, reason string, runErrs error) {
	var snap ImportSession
	err := e.sessions.Update(plan.SessionID, func(sess *ImportSession) error {
		if terr := sess.Transition(status); terr != nil {
			return terr
		}
		sess.Reason = reason
		for _, batchErr := range multierr.Errors(runErrs) {
			sess.Warnings = append(sess.Warnings, fmt.Sprintf("commit failed: %v", batchErr))
		}
		snap = *sess
		return nil
	})
	if err != nil {
		e.logger.Error("could not finalize import session",
			zap.String("session_id", plan.SessionID),
			zap.Error(err))
		return
	}

	e.logger.Info("import finished",
		zap.String("session_id", snap.ID),
		zap.String("status", string(snap.Status)),
		zap.Int("succeeded", snap.Progress.Succeeded),
		zap.Int("failed", snap.Progress.Failed),
		zap.Int("skipped", snap.Progress.Skipped))

	archiveCtx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()
	if saveErr := e.archive.Save(archiveCtx, newSessionArchive(&snap)); saveErr != nil {
		e.logger.Warn("session archive failed",
			zap.String("session_id", snap.ID),
			zap.Error(saveErr))
	}

	e.hub.Publish(ProgressEvent{SessionID: snap.ID, Status: snap.Status, Progress: snap.Progress, Reason: snap.Reason})
	e.hub.CloseSession(snap.ID)
}

func (e *Executor) publish(id string) {
	_ = e.sessions.View(id, func(sess *ImportSession) error {
		e.hub.Publish(ProgressEvent{SessionID: sess.ID, Status: sess.Status, Progress: sess.Progress, Reason: sess.Reason})
		return nil
	})
}
