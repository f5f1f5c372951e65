package imports

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"go-catalog/internal/config"
	"go-catalog/internal/features/catalog"
)

type fakeSchemaService struct {
	schema *catalog.Schema
}

func (f *fakeSchemaService) GetSchemaByName(ctx context.Context, name string) (*catalog.Schema, error) {
	if f.schema != nil && f.schema.Name == name {
		return f.schema, nil
	}
	return nil, catalog.ErrSchemaNotFound
}

func (f *fakeSchemaService) ListSchemas(ctx context.Context) ([]catalog.Schema, error) {
	if f.schema == nil {
		return nil, nil
	}
	return []catalog.Schema{*f.schema}, nil
}

func (f *fakeSchemaService) SeedDefaults(ctx context.Context) error { return nil }

type serviceHarness struct {
	svc     ImportService
	store   *SessionStore
	records *fakeRecordStore
	archive *fakeArchive
	hub     *Broadcaster
}

func newTestService(t *testing.T) *serviceHarness {
	t.Helper()
	cfg := &config.Config{
		MaxUploadBytes: 1 << 20,
		MaxRows:        100,
		BatchSize:      2,
		BatchTimeout:   time.Second,
		SampleRows:     3,
		SessionTTL:     time.Hour,
	}
	logger := zap.NewNop()
	store := NewSessionStore()
	hub := NewBroadcaster()
	records := newFakeRecordStore()
	archive := &fakeArchive{}
	executor := NewExecutor(cfg, store, records, archive, hub, logger)
	svc := NewImportService(
		cfg,
		store,
		NewParser(cfg),
		NewMapper(&fakeSuggester{}, cfg, logger),
		NewRecovery(logger),
		executor,
		archive,
		&fakeSchemaService{schema: testSchema()},
		hub,
		logger,
	)
	return &serviceHarness{svc: svc, store: store, records: records, archive: archive, hub: hub}
}

func uploadCSV(t *testing.T, h *serviceHarness, actorID, data string) *UploadView {
	t.Helper()
	view, err := h.svc.CreateSession(context.Background(), actorID, "product", "items.csv", "text/csv", strings.NewReader(data))
	require.NoError(t, err)
	return view
}

func waitForTerminal(t *testing.T, h *serviceHarness, id string) *StatusView {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		view, err := h.svc.GetStatus(context.Background(), id)
		require.NoError(t, err)
		if view.Status.IsTerminal() {
			return view
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session never reached a terminal state")
	return nil
}

func TestImportLifecycle(t *testing.T) {
	h := newTestService(t)
	ctx := context.Background()

	up := uploadCSV(t, h, "alice", "Name,Price\nWidget,9.99\nGadget,abc\nGizmo,4.50\n")
	require.Equal(t, StatusMappingReady, up.Status)
	assert.Empty(t, up.UnmappedRequired)
	assert.Equal(t, 3, up.SourceMeta.RowCount)
	assert.Len(t, up.Sample, 3)

	preview, err := h.svc.GeneratePreview(ctx, up.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusPreviewReady, preview.Status)
	assert.Equal(t, 3, preview.Total)
	assert.Equal(t, 1, preview.OpenErrors, "the unparseable price blocks one record")
	assert.Equal(t, 0, preview.OpenWarnings)
	require.Len(t, preview.Records, 3)
	assert.False(t, preview.Records[0].Blocked)
	assert.True(t, preview.Records[1].Blocked)

	_, err = h.svc.Execute(ctx, up.ID, "alice")
	require.ErrorIs(t, err, ErrUnresolvedIssues)

	skipped, err := h.svc.SkipRecord(ctx, up.ID, "alice", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped.Progress.Skipped)

	events, unsubscribe, snap, err := h.svc.Subscribe(up.ID)
	require.NoError(t, err)
	defer unsubscribe()
	assert.Equal(t, StatusPreviewReady, snap.Status)

	started, err := h.svc.Execute(ctx, up.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusImporting, started.Status)

	final := waitForTerminal(t, h, up.ID)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, Progress{Total: 3, Processed: 3, Succeeded: 2, Failed: 0, Skipped: 1}, final.Progress)

	got := drainEvents(t, events)
	require.NotEmpty(t, got)
	assert.Equal(t, StatusCompleted, got[len(got)-1].Status)

	inserts := h.records.insertedBatches()
	require.Len(t, inserts, 1, "two eligible rows fit one batch")
	require.Len(t, inserts[0].rows, 2)
	assert.Equal(t, "product", inserts[0].schema)
	assert.Equal(t, up.ID, inserts[0].importID)
	assert.Equal(t, "alice", inserts[0].actorID)
	assert.Equal(t, map[string]interface{}{"name": "Widget", "price": 9.99}, inserts[0].rows[0])
	assert.Equal(t, map[string]interface{}{"name": "Gizmo", "price": 4.5}, inserts[0].rows[1])

	assert.Eventually(t, func() bool {
		return h.archive.hasSave(up.ID, StatusCompleted)
	}, 2*time.Second, 5*time.Millisecond, "terminal snapshot reaches the archive")
}

func TestCreateSessionUnknownSchema(t *testing.T) {
	h := newTestService(t)
	_, err := h.svc.CreateSession(context.Background(), "alice", "invoice", "items.csv", "text/csv", strings.NewReader("A\n1\n"))
	require.ErrorIs(t, err, catalog.ErrSchemaNotFound)
}

func TestCreateSessionRowCeilingFailsSession(t *testing.T) {
	h := newTestService(t)

	var sb strings.Builder
	sb.WriteString("Name,Price\n")
	for i := 0; i < 101; i++ {
		fmt.Fprintf(&sb, "Item %d,1.00\n", i)
	}

	view := uploadCSV(t, h, "alice", sb.String())
	assert.Equal(t, StatusFailed, view.Status)
	assert.Equal(t, ReasonRowLimitExceeded, view.Reason)

	// The rejected upload still leaves a queryable session behind.
	status, err := h.svc.GetStatus(context.Background(), view.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, status.Status)
	assert.Equal(t, ReasonRowLimitExceeded, status.Reason)
}

func TestGeneratePreviewRequiresMappedRequiredFields(t *testing.T) {
	h := newTestService(t)

	up := uploadCSV(t, h, "alice", "SKU,Price\nABC-1,9.99\n")
	assert.Contains(t, up.UnmappedRequired, "name")

	_, err := h.svc.GeneratePreview(context.Background(), up.ID, "alice")
	require.ErrorIs(t, err, ErrFieldNotMapped)

	status, err := h.svc.GetStatus(context.Background(), up.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusMappingReady, status.Status, "a rejected preview leaves the mapping stage intact")
}

func TestOverrideMappings(t *testing.T) {
	h := newTestService(t)
	ctx := context.Background()

	up := uploadCSV(t, h, "alice", "Product Name,Cost,Price\nWidget,5.00,9.99\n")
	require.Equal(t, "price", mappingFor(t, up.Mappings, "Price").TargetField)
	require.Empty(t, mappingFor(t, up.Mappings, "Cost").TargetField)

	view, err := h.svc.OverrideMappings(ctx, up.ID, "alice", []MappingOverride{
		{SourceColumn: "Cost", TargetField: "price"},
	})
	require.NoError(t, err)

	cost := mappingFor(t, view.Mappings, "Cost")
	assert.Equal(t, "price", cost.TargetField)
	assert.Equal(t, MethodManual, cost.Method)
	assert.Equal(t, 1.0, cost.Confidence)
	assert.Empty(t, mappingFor(t, view.Mappings, "Price").TargetField,
		"the manual pick displaces the automatic one")

	// Records are re-projected through the new assignment.
	preview, err := h.svc.GetPreview(ctx, up.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, preview.Records, 1)
	assert.Equal(t, "5.00", preview.Records[0].Resolved["price"])
}

func TestOverrideMappingsRejections(t *testing.T) {
	h := newTestService(t)
	ctx := context.Background()

	up := uploadCSV(t, h, "alice", "Name,Price\nWidget,9.99\n")

	_, err := h.svc.OverrideMappings(ctx, up.ID, "alice", []MappingOverride{
		{SourceColumn: "Weight", TargetField: "price"},
	})
	require.ErrorIs(t, err, ErrBadOverride)

	_, err = h.svc.OverrideMappings(ctx, up.ID, "alice", []MappingOverride{
		{SourceColumn: "Price", TargetField: "weight_kg"},
	})
	require.ErrorIs(t, err, ErrBadOverride)

	_, err = h.svc.OverrideMappings(ctx, up.ID, "mallory", []MappingOverride{
		{SourceColumn: "Price", TargetField: "quantity"},
	})
	require.ErrorIs(t, err, ErrActorMismatch)

	_, err = h.svc.GeneratePreview(ctx, up.ID, "alice")
	require.NoError(t, err)
	_, err = h.svc.OverrideMappings(ctx, up.ID, "alice", []MappingOverride{
		{SourceColumn: "Price", TargetField: "quantity"},
	})
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr, "mappings are frozen once the preview exists")
}

func TestExecuteActorIsolation(t *testing.T) {
	h := newTestService(t)
	ctx := context.Background()

	up := uploadCSV(t, h, "alice", "Name,Price\nWidget,9.99\n")
	_, err := h.svc.GeneratePreview(ctx, up.ID, "alice")
	require.NoError(t, err)

	_, err = h.svc.Execute(ctx, up.ID, "mallory")
	require.ErrorIs(t, err, ErrActorMismatch)
	assert.Empty(t, h.records.insertedBatches())
}

func TestCancelBeforeExecute(t *testing.T) {
	h := newTestService(t)
	ctx := context.Background()

	up := uploadCSV(t, h, "alice", "Name,Price\nWidget,9.99\n")

	view, err := h.svc.Cancel(ctx, up.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, view.Status)

	_, err = h.svc.Cancel(ctx, up.ID, "alice")
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)

	// The archive write is deferred off the request path.
	assert.Eventually(t, func() bool {
		return h.archive.hasSave(up.ID, StatusCancelled)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestApplyAutoFixFlow(t *testing.T) {
	h := newTestService(t)
	ctx := context.Background()

	up := uploadCSV(t, h, "alice", "Name,Price\nWidget,$12.50\n")
	preview, err := h.svc.GeneratePreview(ctx, up.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, preview.OpenErrors)

	outcome, err := h.svc.ApplyAutoFix(ctx, up.ID, "alice", 0, "price")
	require.NoError(t, err)
	require.Len(t, outcome.Results, 1)
	assert.True(t, outcome.Results[0].OK)
	assert.Equal(t, 0, outcome.OpenErrors)
	assert.Equal(t, StatusPreviewReady, outcome.Status)

	fixed, err := h.svc.GetPreview(ctx, up.ID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, "12.50", fixed.Records[0].Resolved["price"])

	_, err = h.svc.ApplyAutoFix(ctx, up.ID, "alice", 0, "price")
	require.ErrorIs(t, err, ErrNoIssue, "nothing left to repair on that field")
}

func TestAutoFixAndSkipThenExecute(t *testing.T) {
	h := newTestService(t)
	ctx := context.Background()

	up := uploadCSV(t, h, "alice", "Name,Price\n,4.20\nWidget,$8.75\nGizmo,1.10\n")
	preview, err := h.svc.GeneratePreview(ctx, up.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, 2, preview.OpenErrors)
	assert.True(t, preview.Records[0].Blocked, "missing required name")
	assert.True(t, preview.Records[1].Blocked, "currency-formatted price")
	assert.False(t, preview.Records[2].Blocked)

	outcome, err := h.svc.ApplyAutoFix(ctx, up.ID, "alice", 1, "price")
	require.NoError(t, err)
	require.True(t, outcome.Results[0].OK)
	assert.Equal(t, 1, outcome.OpenErrors, "the unfixable name error remains")

	skipped, err := h.svc.SkipRecord(ctx, up.ID, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, skipped.Progress.Skipped)

	_, err = h.svc.Execute(ctx, up.ID, "alice")
	require.NoError(t, err)

	final := waitForTerminal(t, h, up.ID)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, Progress{Total: 3, Processed: 3, Succeeded: 2, Failed: 0, Skipped: 1}, final.Progress)

	inserts := h.records.insertedBatches()
	require.Len(t, inserts, 1)
	require.Len(t, inserts[0].rows, 2)
	assert.Equal(t, map[string]interface{}{"name": "Widget", "price": 8.75}, inserts[0].rows[0])
	assert.Equal(t, map[string]interface{}{"name": "Gizmo", "price": 1.1}, inserts[0].rows[1])
}

func TestFixSingleRevalidates(t *testing.T) {
	h := newTestService(t)
	ctx := context.Background()

	up := uploadCSV(t, h, "alice", "Name,Price\nWidget,abc\n")
	preview, err := h.svc.GeneratePreview(ctx, up.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, 1, preview.OpenErrors)

	outcome, err := h.svc.FixSingle(ctx, up.ID, "alice", FixAction{
		RecordIndex: 0,
		Field:       "price",
		NewValue:    "19.99",
	})
	require.NoError(t, err)
	require.Len(t, outcome.Results, 1)
	assert.True(t, outcome.Results[0].OK)
	assert.Equal(t, 0, outcome.OpenErrors)
}

func TestSkipRecordEmitsProgressEvent(t *testing.T) {
	h := newTestService(t)
	ctx := context.Background()

	up := uploadCSV(t, h, "alice", "Name,Price\nWidget,9.99\nGadget,1.25\n")
	_, err := h.svc.GeneratePreview(ctx, up.ID, "alice")
	require.NoError(t, err)

	events, unsubscribe, snap, err := h.svc.Subscribe(up.ID)
	require.NoError(t, err)
	defer unsubscribe()
	require.Equal(t, StatusPreviewReady, snap.Status)

	_, err = h.svc.SkipRecord(ctx, up.ID, "alice", 1)
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, up.ID, ev.SessionID)
		assert.Equal(t, 1, ev.Progress.Skipped)
	case <-time.After(time.Second):
		t.Fatal("no progress event after the skip")
	}
}

func TestGetPreviewWindow(t *testing.T) {
	h := newTestService(t)
	ctx := context.Background()

	up := uploadCSV(t, h, "alice", "Name,Price\nA,1.00\nB,2.00\nC,3.00\n")
	_, err := h.svc.GeneratePreview(ctx, up.ID, "alice")
	require.NoError(t, err)

	window, err := h.svc.GetPreview(ctx, up.ID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, window.Total)
	assert.Equal(t, 1, window.Offset)
	require.Len(t, window.Records, 1)
	assert.Equal(t, 1, window.Records[0].Index)
	assert.Equal(t, "B", window.Records[0].Resolved["name"])

	past, err := h.svc.GetPreview(ctx, up.ID, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, past.Offset, "offset clamps to the record count")
	assert.Empty(t, past.Records)

	_, err = h.svc.GetPreview(ctx, "no-such-session", 0, 10)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSubscribeUnknownSession(t *testing.T) {
	h := newTestService(t)
	_, _, _, err := h.svc.Subscribe("no-such-session")
	require.ErrorIs(t, err, ErrSessionNotFound)
}
