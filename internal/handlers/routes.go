package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jjenkins/docregistry/internal/query"
	"github.com/jjenkins/docregistry/internal/service"
	"github.com/jjenkins/docregistry/internal/storage"
	"github.com/jjenkins/docregistry/internal/templates"
	"go.uber.org/zap"
)

// Deps are shared by every handler
type Deps struct {
	Registry    *service.Registry
	Logger      *zap.Logger
	AllowedExts []string
	// BodyLimit caps request bodies in bytes
	BodyLimit int
	// AccessLog enables the request logger middleware
	AccessLog bool
}

func (d *Deps) newView() templates.HomeView {
	return templates.HomeView{
		AllowedExts: d.AllowedExts,
		PageSizes:   query.PageSizes,
	}
}

// NewApp builds the fiber app with every route registered
func NewApp(deps *Deps) *fiber.App {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:      "Document Registry",
		BodyLimit:    deps.BodyLimit,
		ErrorHandler: errorHandler(deps.Logger),
	})

	app.Use(recover.New())
	if deps.AccessLog {
		app.Use(logger.New())
	}

	// Routes
	app.Get("/", HomeHandler(deps))
	app.Get("/healthz", HealthHandler())

	// Document routes
	app.Post("/documents", CreateDocumentHandler(deps))
	app.Get("/documents/download", DownloadHandler(deps))
	app.Post("/documents/delete", DeleteDocumentHandler(deps))

	app.Get("/export", ExportHandler(deps))

	return app
}

// statusFor maps domain errors onto HTTP statuses
func statusFor(err error) int {
	var verr *service.ValidationError
	var serr *service.ExternalStorageError
	switch {
	case errors.As(err, &verr):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, query.ErrInvalidDate), errors.Is(err, query.ErrInvalidPageSize):
		return fiber.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return fiber.StatusNotFound
	case errors.As(err, &serr):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func errorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var ferr *fiber.Error
		if errors.As(err, &ferr) {
			return c.Status(ferr.Code).SendString(ferr.Message)
		}

		status := statusFor(err)
		if status >= fiber.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}
		return c.Status(status).SendString(err.Error())
	}
}
