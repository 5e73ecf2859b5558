package handlers

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/jjenkins/docregistry/internal/query"
	"github.com/jjenkins/docregistry/internal/service"
	"github.com/jjenkins/docregistry/internal/templates"
	"go.uber.org/zap"
)

// CreateDocumentHandler accepts the multipart registration form
func CreateDocumentHandler(deps *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		in := service.SubmitInput{
			Number:    c.FormValue("number"),
			Title:     c.FormValue("title"),
			Authority: c.FormValue("authority"),
			Field:     c.FormValue("field"),
			IssueDate: c.FormValue("issue_date"),
		}

		// an empty file input still posts a part with no name
		if fh, err := c.FormFile("attachment"); err == nil && fh.Filename != "" {
			f, err := fh.Open()
			if err != nil {
				return fmt.Errorf("failed to open upload: %w", err)
			}
			defer f.Close()
			in.Attachment = &service.Attachment{Name: fh.Filename, Size: fh.Size, Body: f}
		}

		_, err := deps.Registry.Submit(c.UserContext(), in)

		var verr *service.ValidationError
		var serr *service.ExternalStorageError
		switch {
		case err == nil:
			return c.Redirect("/?flash=created", fiber.StatusSeeOther)
		case errors.As(err, &verr):
			return renderFormError(c, deps, fiber.StatusUnprocessableEntity, in, verr.Fields, "")
		case errors.As(err, &serr):
			deps.Logger.Error("attachment upload failed", zap.Error(err))
			return renderFormError(c, deps, fiber.StatusBadGateway, in, nil, "Tải file lên kho lưu trữ thất bại: "+err.Error())
		default:
			return err
		}
	}
}

// renderFormError re-renders the page with the submitted values kept
func renderFormError(c *fiber.Ctx, deps *Deps, status int, in service.SubmitInput, fields map[string]string, msg string) error {
	view := deps.newView()
	in.Attachment = nil
	view.Form = in
	view.FormErrors = fields
	view.Error = msg
	if msg == "" {
		view.Error = "Vui lòng kiểm tra lại thông tin văn bản."
	}

	list, err := deps.Registry.List(c.UserContext(), query.Spec{})
	if err != nil {
		deps.Logger.Error("failed to list documents", zap.Error(err))
	}
	view.List = list

	return renderPage(c, status, templates.Home(view))
}

// DownloadHandler streams the attachment named by ?key=
func DownloadHandler(deps *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		data, name, err := deps.Registry.Download(c.UserContext(), c.Query("key"))
		if err != nil {
			return err
		}

		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(name)))
		return c.Send(data)
	}
}

// DeleteDocumentHandler removes a document by attachment key, or by id when
// the document has no attachment
func DeleteDocumentHandler(deps *Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var (
			res *service.DeleteResult
			err error
		)
		if key := c.FormValue("key"); key != "" {
			res, err = deps.Registry.Delete(c.UserContext(), key)
		} else {
			res, err = deps.Registry.DeleteByID(c.UserContext(), c.FormValue("id"))
		}
		if err != nil {
			return err
		}

		flash := "deleted"
		switch {
		case res.Removed == 0:
			flash = "noop"
		case res.Orphaned:
			flash = "orphaned"
		}
		return c.Redirect("/?flash="+flash, fiber.StatusSeeOther)
	}
}
