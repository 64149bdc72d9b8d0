// internal/app/features/files/handler.go
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"time"

	errorsfeature "github.com/dalemusser/groupdrop/internal/app/features/errors"
	groupstore "github.com/dalemusser/groupdrop/internal/app/store/groups"
	"github.com/dalemusser/groupdrop/internal/app/system/filestore"
	"github.com/dalemusser/groupdrop/internal/app/system/limits"
	"github.com/dalemusser/groupdrop/internal/app/system/membership"
	"github.com/dalemusser/groupdrop/internal/app/system/normalize"
	"github.com/dalemusser/groupdrop/internal/app/system/reassembly"
	"github.com/dalemusser/groupdrop/internal/app/system/timeouts"
	"github.com/dalemusser/groupdrop/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves single-shot uploads and downloads of group files.
type Handler struct {
	Groups        *groupstore.Store
	Members       *membership.Controller
	Storage       filestore.Store
	MaxUploadSize int64
	ErrLog        *errorsfeature.ErrorLogger
	Log           *zap.Logger
	now           func() time.Time
}

// NewHandler constructs a files Handler.
func NewHandler(groups *groupstore.Store, members *membership.Controller, storage filestore.Store, maxUploadSize int64, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	if maxUploadSize <= 0 {
		maxUploadSize = limits.DefaultMaxUploadSize
	}
	return &Handler{
		Groups:        groups,
		Members:       members,
		Storage:       storage,
		MaxUploadSize: maxUploadSize,
		ErrLog:        errLog,
		Log:           logger,
		now:           time.Now,
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| POST /upload/{groupCode}/{memberName}                                       |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeUpload stores the multipart field "file" in the group's namespace
// and records it in the group.
func (h *Handler) ServeUpload(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "groupCode")
	member := normalize.Name(chi.URLParam(r, "memberName"))

	if _, err := h.Groups.Get(code); err != nil {
		h.ErrLog.Write(w, r, err)
		return
	}
	if member == "" {
		h.ErrLog.Write(w, r, fmt.Errorf("%w: member name is required", groupstore.ErrInvalidArgument))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadSize+limits.MultipartOverhead)
	if err := r.ParseMultipartForm(limits.MultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.ErrLog.Write(w, r, errorsfeature.ErrTooLarge)
			return
		}
		h.ErrLog.Write(w, r, fmt.Errorf("%w: no file uploaded", groupstore.ErrInvalidArgument))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.ErrLog.Write(w, r, fmt.Errorf("%w: no file uploaded", groupstore.ErrInvalidArgument))
		return
	}
	defer file.Close()

	if header.Size > h.MaxUploadSize {
		h.ErrLog.Write(w, r, errorsfeature.ErrTooLarge)
		return
	}
	name := normalize.FileName(header.Filename)
	if name == "" {
		h.ErrLog.Write(w, r, fmt.Errorf("%w: file name is required", groupstore.ErrInvalidArgument))
		return
	}

	now := h.now()
	rec := models.FileRecord{
		Filename:   name,
		StoredName: filestore.StoredName(name, now),
		Size:       header.Size,
		Uploader:   member,
		Time:       now.UTC(),
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Storage(), h.Log, "upload file")
	defer cancel()

	if err := h.store(ctx, code, rec, file); err != nil {
		h.ErrLog.Write(w, r, err)
		return
	}
	if err := h.Members.RecordFile(ctx, code, rec); err != nil {
		if rmErr := h.Storage.Remove(context.WithoutCancel(ctx), code, rec.StoredName); rmErr != nil {
			h.Log.Warn("failed to remove orphaned upload",
				zap.String("group_code", code),
				zap.String("stored_name", rec.StoredName),
				zap.Error(rmErr))
		}
		h.ErrLog.Write(w, r, err)
		return
	}

	errorsfeature.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"file":    rec,
	})
}

func (h *Handler) store(ctx context.Context, code string, rec models.FileRecord, body io.Reader) error {
	if err := h.Storage.EnsureNamespace(ctx, code); err != nil {
		return fmt.Errorf("%w: %v", reassembly.ErrStorage, err)
	}
	if _, err := h.Storage.WriteFile(ctx, code, rec.StoredName, body, rec.Size); err != nil {
		return fmt.Errorf("%w: %v", reassembly.ErrStorage, err)
	}
	return nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| GET /download/{groupCode}/{storedName}                                      |
*─────────────────────────────────────────────────────────────────────────────*/

// ServeDownload streams a group file under its original name.
func (h *Handler) ServeDownload(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "groupCode")
	storedName := chi.URLParam(r, "storedName")

	g, err := h.Groups.Get(code)
	if err != nil {
		h.ErrLog.Write(w, r, err)
		return
	}
	rec, ok := g.FindFile(storedName)
	if !ok {
		h.ErrLog.Write(w, r, filestore.ErrNotFound)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Storage(), h.Log, "download file")
	defer cancel()

	rc, err := h.Storage.Open(ctx, code, storedName)
	if err != nil {
		if !errors.Is(err, filestore.ErrNotFound) {
			err = fmt.Errorf("%w: %v", reassembly.ErrStorage, err)
		}
		h.ErrLog.Write(w, r, err)
		return
	}
	defer rc.Close()

	ctype := mime.TypeByExtension(path.Ext(rec.Filename))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": rec.Filename}))
	w.Header().Set("Content-Length", strconv.FormatInt(rec.Size, 10))
	w.Header().Set("Cache-Control", "no-store")

	if _, err := io.Copy(w, rc); err != nil {
		h.Log.Warn("download interrupted",
			zap.String("group_code", code),
			zap.String("stored_name", storedName),
			zap.Error(err))
	}
}
