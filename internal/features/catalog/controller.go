package catalog

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

type SchemaController struct {
	Service SchemaService
}

func NewSchemaController(service SchemaService) *SchemaController {
	return &SchemaController{
		Service: service,
	}
}

// ListSchemas godoc
func (ctrl *SchemaController) ListSchemas(c *fiber.Ctx) error {
	schemas, err := ctrl.Service.ListSchemas(c.Context())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch schemas",
		})
	}

	return c.JSON(schemas)
}

// GetSchema godoc
func (ctrl *SchemaController) GetSchema(c *fiber.Ctx) error {
	name := c.Params("name")

	schema, err := ctrl.Service.GetSchemaByName(c.Context(), name)
	if err != nil {
		if errors.Is(err, ErrSchemaNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Schema not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(schema)
}
