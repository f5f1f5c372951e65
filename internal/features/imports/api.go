package imports

import (
	"go-catalog/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type ImportApi struct {
	ImportController *ImportController
}

func NewImportApi(importController *ImportController) *ImportApi {
	return &ImportApi{
		ImportController: importController,
	}
}

func (api *ImportApi) Setup(app *fiber.App) {
	group := app.Group("/api/imports", middleware.ActorMiddleware())

	group.Post("/sessions", api.ImportController.CreateSession)
	group.Get("/sessions", api.ImportController.ListSessions)
	group.Get("/sessions/:id/status", api.ImportController.GetStatus)
	group.Get("/sessions/:id/mappings", api.ImportController.GetMappings)
	group.Put("/sessions/:id/mappings", api.ImportController.UpdateMappings)
	group.Post("/sessions/:id/preview", api.ImportController.GeneratePreview)
	group.Get("/sessions/:id/preview", api.ImportController.GetPreview)
	group.Post("/sessions/:id/fixes", api.ImportController.FixSingle)
	group.Post("/sessions/:id/fixes/bulk", api.ImportController.FixBulk)
	group.Post("/sessions/:id/fixes/auto", api.ImportController.ApplyAutoFix)
	group.Post("/sessions/:id/records/:index/skip", api.ImportController.SkipRecord)
	group.Post("/sessions/:id/execute", api.ImportController.Execute)
	group.Post("/sessions/:id/cancel", api.ImportController.Cancel)
	group.Get("/sessions/:id/ws", websocket.New(api.ImportController.StreamSession))
}
