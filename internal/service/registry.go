package service

import (
	"context"
	"errors"
	"io"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/jjenkins/docregistry/internal/model"
	"github.com/jjenkins/docregistry/internal/query"
	"github.com/jjenkins/docregistry/internal/storage"
	"github.com/jjenkins/docregistry/internal/store"
	"go.uber.org/zap"
)

// Registry coordinates the record store and the attachment provider
type Registry struct {
	store       store.Store
	storage     storage.Provider
	allowedExts []string
	logger      *zap.Logger
}

// NewRegistry creates a new Registry. An empty allowedExts accepts any
// attachment type.
func NewRegistry(st store.Store, provider storage.Provider, allowedExts []string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		store:       st,
		storage:     provider,
		allowedExts: allowedExts,
		logger:      logger,
	}
}

// Attachment is an uploaded file waiting to be stored
type Attachment struct {
	Name string
	Size int64
	Body io.Reader
}

// SubmitInput is the raw content of the registration form
type SubmitInput struct {
	Number     string
	Title      string
	Authority  string
	Field      string
	IssueDate  string
	Attachment *Attachment
}

// validate trims in and converts it to a document without id or attachment
func (r *Registry) validate(in SubmitInput) (*model.Document, error) {
	verr := &ValidationError{}

	doc := &model.Document{
		Number:    strings.TrimSpace(in.Number),
		Title:     strings.TrimSpace(in.Title),
		Authority: strings.TrimSpace(in.Authority),
		Field:     strings.TrimSpace(in.Field),
	}

	if doc.Number == "" {
		verr.add("number", "is required")
	}
	if doc.Title == "" {
		verr.add("title", "is required")
	}

	date, err := model.ParseDate(in.IssueDate)
	if err != nil {
		verr.add("issue_date", "must be YYYY-MM-DD or DD/MM/YYYY")
	}
	doc.IssueDate = date

	if a := in.Attachment; a != nil && len(r.allowedExts) > 0 {
		probe := model.Document{Attachment: model.Ref(a.Name)}
		if !slices.Contains(r.allowedExts, probe.AttachmentExt()) {
			verr.add("attachment", "type must be one of "+strings.Join(r.allowedExts, ", "))
		}
	}

	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return doc, nil
}

// Submit validates in, uploads its attachment and appends the record. A
// failed upload appends nothing. A failed append removes the uploaded blob.
func (r *Registry) Submit(ctx context.Context, in SubmitInput) (*model.Document, error) {
	doc, err := r.validate(in)
	if err != nil {
		return nil, err
	}
	doc.ID = uuid.NewString()

	if a := in.Attachment; a != nil {
		ref, err := r.storage.Upload(ctx, a.Body, a.Size, a.Name)
		if err != nil {
			return nil, &ExternalStorageError{Op: "upload", Err: err}
		}
		doc.Attachment = model.Ref(ref)
	}

	if err := r.store.Append(ctx, doc); err != nil {
		if doc.HasAttachment() {
			if derr := r.storage.Delete(context.WithoutCancel(ctx), doc.Attachment.String); derr != nil {
				r.logger.Error("failed to remove attachment after append failure",
					zap.String("ref", doc.Attachment.String),
					zap.Error(derr),
				)
			}
		}
		return nil, err
	}

	r.logger.Info("document registered",
		zap.String("id", doc.ID),
		zap.String("number", doc.Number),
		zap.String("ref", doc.Attachment.String),
	)
	return doc, nil
}

// ListResult is one rendered view of the registry
type ListResult struct {
	*query.Result
	Facets  *query.Facets
	Stats   *Stats
	Skipped int
}

// List loads every record and applies spec
func (r *Registry) List(ctx context.Context, spec query.Spec) (*ListResult, error) {
	loaded, err := r.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	if loaded.Skipped > 0 {
		r.logger.Warn("malformed rows skipped", zap.Int("skipped", loaded.Skipped))
	}

	result, err := query.NewEngine(loaded.Documents).Filter(spec)
	if err != nil {
		return nil, err
	}

	return &ListResult{
		Result:  result,
		Facets:  query.BuildFacets(loaded.Documents),
		Stats:   CalculateStats(loaded.Documents),
		Skipped: loaded.Skipped,
	}, nil
}

// find returns the records accepted by match
func (r *Registry) find(ctx context.Context, match func(model.Document) bool) ([]model.Document, error) {
	loaded, err := r.store.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Document
	for _, d := range loaded.Documents {
		if match(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

func byRef(ref string) func(model.Document) bool {
	return func(d model.Document) bool {
		return d.HasAttachment() && d.Attachment.String == ref
	}
}

// Download returns the attachment registered under key with its file name.
// Keys that no record references yield storage.ErrNotFound.
func (r *Registry) Download(ctx context.Context, key string) ([]byte, string, error) {
	ref := store.NormalizeRef(key)
	if ref == "" {
		return nil, "", storage.ErrNotFound
	}

	docs, err := r.find(ctx, byRef(ref))
	if err != nil {
		return nil, "", err
	}
	if len(docs) == 0 {
		return nil, "", storage.ErrNotFound
	}

	data, err := r.storage.Download(ctx, ref)
	if err != nil {
		return nil, "", &ExternalStorageError{Op: "download", Ref: ref, Err: err}
	}
	return data, docs[0].AttachmentName(), nil
}

// DeleteResult reports the outcome of a delete
type DeleteResult struct {
	Removed int
	// Orphaned is set when the row went away but its blob could not be removed
	Orphaned bool
}

// Delete removes every record referencing key, then the attachment itself.
// A provider failure leaves an orphaned blob; a failed row delete leaves the
// blob untouched.
func (r *Registry) Delete(ctx context.Context, key string) (*DeleteResult, error) {
	ref := store.NormalizeRef(key)
	if ref == "" {
		return &DeleteResult{}, nil
	}

	docs, err := r.find(ctx, byRef(ref))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return &DeleteResult{}, nil
	}

	res := &DeleteResult{}
	res.Removed, err = r.store.DeleteByKey(ctx, ref)
	if err != nil {
		return nil, err
	}
	if res.Removed > 0 {
		res.Orphaned = r.deleteBlob(ctx, ref)
	}

	r.logger.Info("documents deleted", zap.String("ref", ref), zap.Int("removed", res.Removed))
	return res, nil
}

// DeleteByID removes one record by its id. Its attachment goes too, unless
// another record still references it.
func (r *Registry) DeleteByID(ctx context.Context, id string) (*DeleteResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return &DeleteResult{}, nil
	}

	docs, err := r.find(ctx, func(d model.Document) bool { return d.ID == id })
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return &DeleteResult{}, nil
	}

	ref := ""
	if docs[0].HasAttachment() {
		sharing, err := r.find(ctx, byRef(docs[0].Attachment.String))
		if err != nil {
			return nil, err
		}
		// legacy uploads overwrote one path, so several rows can share it
		if len(sharing) <= len(docs) {
			ref = docs[0].Attachment.String
		}
	}

	res := &DeleteResult{}
	res.Removed, err = r.store.DeleteByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.Removed > 0 && ref != "" {
		res.Orphaned = r.deleteBlob(ctx, ref)
	}

	r.logger.Info("document deleted", zap.String("id", id), zap.Int("removed", res.Removed))
	return res, nil
}

// deleteBlob reports whether the blob was left behind
func (r *Registry) deleteBlob(ctx context.Context, ref string) bool {
	err := r.storage.Delete(ctx, ref)
	switch {
	case err == nil:
		return false
	case errors.Is(err, storage.ErrNotFound):
		r.logger.Warn("attachment already gone", zap.String("ref", ref))
		return false
	default:
		r.logger.Error("orphaned attachment",
			zap.String("ref", ref),
			zap.Error(&ExternalStorageError{Op: "delete", Ref: ref, Err: err}),
		)
		return true
	}
}
