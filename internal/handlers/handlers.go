// Package handlers exposes the services over HTTP. Handlers answer JSON;
// file downloads stream with Content-Disposition set.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/diewo77/go-quotations/auth"
	"github.com/diewo77/go-quotations/gate"
	"github.com/diewo77/go-quotations/httpx"
	"github.com/diewo77/go-quotations/i18n"
	"github.com/diewo77/go-quotations/internal/services"
)

// Authorizer checks role permissions and record ownership for the user in
// the request context.
type Authorizer interface {
	Authorize(ctx context.Context, action gate.Action, resourceType string, resource any) error
	IsAdmin(ctx context.Context) bool
}

// maxUploadMemory bounds the multipart parts held in memory; the rest
// spills to temp files.
const maxUploadMemory = 32 << 20

func pathID(r *http.Request, name string) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func currentUser(r *http.Request) uint {
	uid, _ := auth.UserIDFromContext(r.Context())
	return uid
}

func viewerFor(r *http.Request, authz Authorizer) services.Viewer {
	return services.Viewer{ID: currentUser(r), Admin: authz.IsAdmin(r.Context())}
}

func badID(w http.ResponseWriter) {
	httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
}

// writeError maps service and gate errors to a JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *services.ValidationError
	switch {
	case errors.As(err, &verr):
		lang := i18n.DetectLanguage(r.Header.Get("Accept-Language"))
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", map[string]any{
			"fields":   verr.Violations,
			"messages": i18n.Messages(lang, verr.Violations),
		})
	case errors.Is(err, services.ErrNotFound):
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
	case errors.Is(err, services.ErrForbidden), errors.Is(err, gate.ErrForbidden), errors.Is(err, gate.ErrUnauthorized):
		httpx.JSONError(w, http.StatusForbidden, "forbidden", nil)
	case errors.Is(err, services.ErrVersionConflict):
		httpx.JSONError(w, http.StatusConflict, "version_conflict", err.Error())
	case errors.Is(err, services.ErrInvalidStatus):
		httpx.JSONError(w, http.StatusBadRequest, "invalid_status", nil)
	case errors.Is(err, services.ErrInvalidRole):
		httpx.JSONError(w, http.StatusBadRequest, "invalid_role", nil)
	case errors.Is(err, services.ErrEmailTaken):
		httpx.JSONError(w, http.StatusConflict, "email_taken", nil)
	case errors.Is(err, services.ErrInvalidCredentials):
		httpx.JSONError(w, http.StatusUnauthorized, "invalid_credentials", nil)
	case errors.Is(err, services.ErrStorage):
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		httpx.JSONError(w, http.StatusBadGateway, "storage_failed", nil)
	default:
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}

// readUploads collects the files posted under field. The returned close
// func releases them.
func readUploads(r *http.Request, field string) ([]services.FileUpload, func(), error) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return nil, func() {}, fmt.Errorf("parse upload: %w", err)
	}
	var (
		files   []services.FileUpload
		handles []multipart.File
	)
	release := func() {
		for _, f := range handles {
			f.Close()
		}
	}
	for _, fh := range r.MultipartForm.File[field] {
		f, err := fh.Open()
		if err != nil {
			release()
			return nil, func() {}, fmt.Errorf("open upload %s: %w", fh.Filename, err)
		}
		handles = append(handles, f)
		files = append(files, services.FileUpload{
			Name:        fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		})
	}
	return files, release, nil
}

// readUpload returns the single file posted under field.
func readUpload(r *http.Request, field string) (services.FileUpload, func(), error) {
	files, release, err := readUploads(r, field)
	if err != nil {
		return services.FileUpload{}, release, err
	}
	if len(files) == 0 {
		release()
		return services.FileUpload{}, func() {}, fmt.Errorf("missing file %q", field)
	}
	return files[0], release, nil
}

func stream(w http.ResponseWriter, contentType, filename string, body io.Reader) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		log.Printf("stream %s: %v", filename, err)
	}
}
