package imports

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"go-catalog/internal/features/catalog"
	"go-catalog/internal/middleware"
)

type ImportController struct {
	ImportService ImportService
}

func NewImportController(importService ImportService) *ImportController {
	return &ImportController{
		ImportService: importService,
	}
}

// CreateSession godoc
// @Summary Upload a file and open an import session
// @Description Parse a CSV/Excel upload, build the column mapping and return the new session
// @Tags imports
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Import File"
// @Param schema formData string true "Target Schema Name"
// @Success 201 {object} UploadView
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/imports/sessions [post]
func (c *ImportController) CreateSession(ctx *fiber.Ctx) error {
	schemaName := ctx.FormValue("schema")
	if schemaName == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "schema is required"})
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required"})
	}
	file, err := fileHeader.Open()
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to open file"})
	}
	defer file.Close()

	view, err := c.ImportService.CreateSession(
		ctx.UserContext(),
		middleware.ActorFromCtx(ctx),
		schemaName,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.Status(fiber.StatusCreated).JSON(view)
}

// ListSessions godoc
// @Summary List recent import sessions
// @Tags imports
// @Produce json
// @Param limit query int false "Max results"
// @Success 200 {array} SessionArchive
// @Failure 500 {object} map[string]interface{}
// @Router /api/imports/sessions [get]
func (c *ImportController) ListSessions(ctx *fiber.Ctx) error {
	limit := ctx.QueryInt("limit", 50)
	archives, err := c.ImportService.ListSessions(ctx.UserContext(), middleware.ActorFromCtx(ctx), int64(limit))
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(archives)
}

// GetStatus godoc
// @Summary Get session status and progress
// @Tags imports
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} StatusView
// @Failure 404 {object} map[string]interface{}
// @Router /api/imports/sessions/{id}/status [get]
func (c *ImportController) GetStatus(ctx *fiber.Ctx) error {
	view, err := c.ImportService.GetStatus(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(view)
}

// GetMappings godoc
// @Summary Get the current column-to-field mapping
// @Tags imports
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} MappingView
// @Failure 404 {object} map[string]interface{}
// @Router /api/imports/sessions/{id}/mappings [get]
func (c *ImportController) GetMappings(ctx *fiber.Ctx) error {
	view, err := c.ImportService.GetMappings(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(view)
}

// UpdateMappings godoc
// @Summary Override column assignments
// @Description Reassign source columns while the session is in mapping_ready
// @Tags imports
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} MappingView
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/imports/sessions/{id}/mappings [put]
func (c *ImportController) UpdateMappings(ctx *fiber.Ctx) error {
	var req struct {
		Overrides []MappingOverride `json:"overrides"`
	}
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if len(req.Overrides) == 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "overrides are required"})
	}

	view, err := c.ImportService.OverrideMappings(ctx.UserContext(), ctx.Params("id"), middleware.ActorFromCtx(ctx), req.Overrides)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(view)
}

// GeneratePreview godoc
// @Summary Validate the dataset and build the preview
// @Tags imports
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} PreviewView
// @Failure 409 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/imports/sessions/{id}/preview [post]
func (c *ImportController) GeneratePreview(ctx *fiber.Ctx) error {
	view, err := c.ImportService.GeneratePreview(ctx.UserContext(), ctx.Params("id"), middleware.ActorFromCtx(ctx))
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(view)
}

// GetPreview godoc
// @Summary Get a window of resolved records with their issues
// @Tags imports
// @Produce json
// @Param id path string true "Session ID"
// @Param offset query int false "Window offset"
// @Param limit query int false "Window size"
// @Success 200 {object} PreviewView
// @Failure 404 {object} map[string]interface{}
// @Router /api/imports/sessions/{id}/preview [get]
func (c *ImportController) GetPreview(ctx *fiber.Ctx) error {
	view, err := c.ImportService.GetPreview(
		ctx.UserContext(),
		ctx.Params("id"),
		ctx.QueryInt("offset", 0),
		ctx.QueryInt("limit", defaultPreviewLimit),
	)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(view)
}

// FixSingle godoc
// @Summary Apply one fix to one record field
// @Tags imports
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} FixOutcome
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/imports/sessions/{id}/fixes [post]
func (c *ImportController) FixSingle(ctx *fiber.Ctx) error {
	var action FixAction
	if err := ctx.BodyParser(&action); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if action.Field == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "field is required"})
	}

	outcome, err := c.ImportService.FixSingle(ctx.UserContext(), ctx.Params("id"), middleware.ActorFromCtx(ctx), action)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(outcome)
}

// FixBulk godoc
// @Summary Apply a batch of fixes
// @Description Each action is applied independently; the response carries a per-action result list
// @Tags imports
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} FixOutcome
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/imports/sessions/{id}/fixes/bulk [post]
func (c *ImportController) FixBulk(ctx *fiber.Ctx) error {
	var req struct {
		Actions []FixAction `json:"actions"`
	}
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if len(req.Actions) == 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "actions are required"})
	}

	outcome, err := c.ImportService.FixBulk(ctx.UserContext(), ctx.Params("id"), middleware.ActorFromCtx(ctx), req.Actions)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(outcome)
}

// ApplyAutoFix godoc
// @Summary Accept the suggested auto-fix for one record field
// @Tags imports
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} FixOutcome
// @Failure 409 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/imports/sessions/{id}/fixes/auto [post]
func (c *ImportController) ApplyAutoFix(ctx *fiber.Ctx) error {
	var req struct {
		RecordIndex int    `json:"record_index"`
		Field       string `json:"field"`
	}
	if err := ctx.BodyParser(&req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if req.Field == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "field is required"})
	}

	outcome, err := c.ImportService.ApplyAutoFix(ctx.UserContext(), ctx.Params("id"), middleware.ActorFromCtx(ctx), req.RecordIndex, req.Field)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(outcome)
}

// SkipRecord godoc
// @Summary Exclude one record from the import
// @Tags imports
// @Produce json
// @Param id path string true "Session ID"
// @Param index path int true "Record Index"
// @Success 200 {object} FixOutcome
// @Failure 404 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /api/imports/sessions/{id}/records/{index}/skip [post]
func (c *ImportController) SkipRecord(ctx *fiber.Ctx) error {
	index, err := ctx.ParamsInt("index")
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid record index"})
	}

	outcome, err := c.ImportService.SkipRecord(ctx.UserContext(), ctx.Params("id"), middleware.ActorFromCtx(ctx), index)
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(outcome)
}

// Execute godoc
// @Summary Approve the preview and start the import
// @Description Rejected while any non-skipped record still carries a blocking issue
// @Tags imports
// @Produce json
// @Param id path string true "Session ID"
// @Success 202 {object} StatusView
// @Failure 409 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Router /api/imports/sessions/{id}/execute [post]
func (c *ImportController) Execute(ctx *fiber.Ctx) error {
	view, err := c.ImportService.Execute(ctx.UserContext(), ctx.Params("id"), middleware.ActorFromCtx(ctx))
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.Status(fiber.StatusAccepted).JSON(view)
}

// Cancel godoc
// @Summary Cancel a session
// @Description Running stages stop at their next checkpoint; idle sessions cancel immediately
// @Tags imports
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} StatusView
// @Failure 409 {object} map[string]interface{}
// @Router /api/imports/sessions/{id}/cancel [post]
func (c *ImportController) Cancel(ctx *fiber.Ctx) error {
	view, err := c.ImportService.Cancel(ctx.UserContext(), ctx.Params("id"), middleware.ActorFromCtx(ctx))
	if err != nil {
		return respondError(ctx, err)
	}
	return ctx.JSON(view)
}

// StreamSession pushes {session_id, status, progress} events over a
// websocket. The current snapshot is sent first; dropped events are not
// replayed, a reconnecting client re-syncs from that snapshot.
func (c *ImportController) StreamSession(conn *websocket.Conn) {
	defer conn.Close()

	events, unsubscribe, snapshot, err := c.ImportService.Subscribe(conn.Params("id"))
	if err != nil {
		_ = conn.WriteJSON(fiber.Map{"error": err.Error()})
		return
	}
	defer unsubscribe()

	first := ProgressEvent{
		SessionID: snapshot.ID,
		Status:    snapshot.Status,
		Progress:  snapshot.Progress,
		Reason:    snapshot.Reason,
	}
	if err := conn.WriteJSON(first); err != nil {
		return
	}

	// Drain reads so a client close is noticed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				// Terminal state reached, the hub closed the channel.
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func respondError(ctx *fiber.Ctx, err error) error {
	var stateErr *StateError
	switch {
	case errors.As(err, &stateErr):
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": stateErr.Error(),
			"from":  stateErr.From,
			"to":    stateErr.To,
		})
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrRecordNotFound),
		errors.Is(err, catalog.ErrSchemaNotFound):
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrActorMismatch):
		return ctx.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrBadOverride):
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrFieldNotMapped),
		errors.Is(err, ErrUnresolvedIssues),
		errors.Is(err, ErrNoIssue):
		return ctx.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": err.Error()})
	default:
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
