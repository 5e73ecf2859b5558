package handlers

import (
	"errors"
	"net/url"

	"github.com/a-h/templ"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/jjenkins/docregistry/internal/query"
	"github.com/jjenkins/docregistry/internal/templates"
	"go.uber.org/zap"
)

var flashMessages = map[string]string{
	"created":  "Đã lưu văn bản.",
	"deleted":  "Đã xóa văn bản.",
	"orphaned": "Đã xóa văn bản, nhưng không xóa được file đính kèm trên kho lưu trữ.",
	"noop":     "Không tìm thấy văn bản cần xóa.",
}

// queryValues keeps repeated keys, which c.Query drops
func queryValues(c *fiber.Ctx) url.Values {
	values := url.Values{}
	c.Context().QueryArgs().VisitAll(func(k, v []byte) {
		values.Add(string(k), string(v))
	})
	return values
}

func renderPage(c *fiber.Ctx, status int, page templ.Component) error {
	handler := adaptor.HTTPHandler(templ.Handler(page, templ.WithStatus(status)))
	return handler(c)
}

// HomeHandler renders the form, the filter panel and one page of documents.
// HTMX requests receive only the documents fragment.
func HomeHandler(deps *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		view := deps.newView()
		view.Flash = flashMessages[c.Query("flash")]

		// unparseable parameters are dropped, the rest of the filter still applies
		spec, err := query.ParseSpec(queryValues(c))
		if err != nil {
			view.Error = err.Error()
		}
		view.Spec = spec

		status := fiber.StatusOK
		list, err := deps.Registry.List(c.UserContext(), spec)
		if errors.Is(err, query.ErrInvalidPageSize) {
			view.Error = err.Error()
			spec.PageSize = 0
			view.Spec.PageSize = 0
			list, err = deps.Registry.List(c.UserContext(), spec)
		}
		if err != nil {
			deps.Logger.Error("failed to list documents", zap.Error(err))
			view.Error = "Không đọc được danh sách văn bản: " + err.Error()
			status = fiber.StatusInternalServerError
		}
		view.List = list

		if c.Get("HX-Request") == "true" {
			return renderPage(c, status, templates.DocumentsTable(view))
		}
		return renderPage(c, status, templates.Home(view))
	}
}

// HealthHandler reports liveness
func HealthHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
