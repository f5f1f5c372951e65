package catalog

import (
	"go-catalog/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type SchemaApi struct {
	SchemaController *SchemaController
}

func NewSchemaApi(schemaController *SchemaController) *SchemaApi {
	return &SchemaApi{
		SchemaController: schemaController,
	}
}

func (api *SchemaApi) Setup(app *fiber.App) {
	group := app.Group("/api/catalog", middleware.ActorMiddleware())

	group.Get("/schemas", api.SchemaController.ListSchemas)
	group.Get("/schemas/:name", api.SchemaController.GetSchema)
}
