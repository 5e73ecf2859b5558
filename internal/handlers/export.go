package handlers

import (
	"bytes"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/jjenkins/docregistry/internal/query"
	"github.com/jjenkins/docregistry/internal/service"
)

// ExportHandler downloads every filtered document as XLSX or CSV
func ExportHandler(deps *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		format := c.Query("format", service.FormatXLSX)
		mime, filename, err := service.ContentType(format)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		spec, err := query.ParseSpec(queryValues(c))
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if _, err := deps.Registry.Export(c.UserContext(), spec, format, &buf); err != nil {
			return err
		}

		c.Set(fiber.HeaderContentType, mime)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
		return c.Send(buf.Bytes())
	}
}
