package files_test

import (
	"bytes"
	"errors"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	errorsfeature "github.com/dalemusser/groupdrop/internal/app/features/errors"
	"github.com/dalemusser/groupdrop/internal/app/features/files"
	"github.com/dalemusser/groupdrop/internal/app/system/broadcast"
	"github.com/dalemusser/groupdrop/internal/domain/models"
	"github.com/dalemusser/groupdrop/internal/testutil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func newTestRouter(t *testing.T, maxUpload int64) (*testutil.Env, http.Handler) {
	t.Helper()
	env := testutil.NewEnv(t)
	logger := zap.NewNop()
	h := files.NewHandler(env.Groups, env.Members, env.Storage, maxUpload, errorsfeature.NewErrorLogger(logger), logger)
	r := chi.NewRouter()
	files.MountRoutes(r, h)
	return env, r
}

func multipartRequest(t *testing.T, target, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if field != "" {
		fw, err := mw.CreateFormFile(field, filename)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	} else if err := mw.WriteField("note", "no file here"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *testutil.ResponseRecorder {
	rec := testutil.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestUploadAndDownload(t *testing.T) {
	env, r := newTestRouter(t, 0)
	env.CreateGroup(t, "T1", "Team A", 5)
	alice := env.Join(t, "T1", "Alice", "c1")

	content := []byte("hello group")
	rec := serve(r, multipartRequest(t, "/upload/T1/Alice", "file", "report 1.txt", content))
	rec.AssertStatus(t, http.StatusOK)
	if rec.DecodeJSON(t)["success"] != true {
		t.Fatalf("expected success, got %s", rec.Body.String())
	}

	events := alice.Events(broadcast.EventGroupLog)
	snap := events[len(events)-1].Payload.(models.GroupSnapshot)
	if len(snap.Files) != 1 {
		t.Fatalf("files: got %d, want 1", len(snap.Files))
	}
	file := snap.Files[0]
	if file.Filename != "report 1.txt" || file.Size != int64(len(content)) || file.Uploader != "Alice" {
		t.Errorf("record: got %+v", file)
	}
	if msg := snap.Logs[len(snap.Logs)-1].Message; msg != "Alice sent file report 1.txt (11 bytes)" {
		t.Errorf("log: got %q", msg)
	}

	dl := serve(r, httptest.NewRequest(http.MethodGet, "/download/T1/"+file.StoredName, nil))
	dl.AssertStatus(t, http.StatusOK)
	if dl.Body.String() != string(content) {
		t.Errorf("body: got %q, want %q", dl.Body.String(), content)
	}
	_, params, err := mime.ParseMediaType(dl.Header().Get("Content-Disposition"))
	if err != nil {
		t.Fatalf("parse Content-Disposition: %v", err)
	}
	if params["filename"] != "report 1.txt" {
		t.Errorf("filename: got %q, want %q", params["filename"], "report 1.txt")
	}
}

func TestUpload_UnknownGroup(t *testing.T) {
	_, r := newTestRouter(t, 0)
	rec := serve(r, multipartRequest(t, "/upload/nope/Alice", "file", "a.txt", []byte("x")))
	rec.AssertStatus(t, http.StatusNotFound)
}

func TestUpload_NoFile(t *testing.T) {
	env, r := newTestRouter(t, 0)
	env.CreateGroup(t, "T1", "Team A", 5)
	rec := serve(r, multipartRequest(t, "/upload/T1/Alice", "", "", nil))
	rec.AssertStatus(t, http.StatusBadRequest)
}

func TestUpload_TooLarge(t *testing.T) {
	env, r := newTestRouter(t, 16)
	env.CreateGroup(t, "T1", "Team A", 5)
	rec := serve(r, multipartRequest(t, "/upload/T1/Alice", "file", "big.bin", bytes.Repeat([]byte("x"), 64)))
	rec.AssertStatus(t, http.StatusRequestEntityTooLarge)

	g, _ := env.Groups.Get("T1")
	if len(g.Snapshot().Files) != 0 {
		t.Error("oversized upload must not be recorded")
	}
}

func TestUpload_StorageFailure(t *testing.T) {
	env, r := newTestRouter(t, 0)
	env.CreateGroup(t, "T1", "Team A", 5)
	env.Storage.FailWrites(errors.New("disk full"))

	rec := serve(r, multipartRequest(t, "/upload/T1/Alice", "file", "a.txt", []byte("abc")))
	rec.AssertStatus(t, http.StatusInternalServerError)
	if strings.Contains(rec.Body.String(), "disk full") {
		t.Error("storage details must not leak to clients")
	}
	g, _ := env.Groups.Get("T1")
	if len(g.Snapshot().Files) != 0 {
		t.Error("failed upload must not be recorded")
	}
}

func TestDownload_NotFound(t *testing.T) {
	env, r := newTestRouter(t, 0)
	env.CreateGroup(t, "T1", "Team A", 5)

	serve(r, httptest.NewRequest(http.MethodGet, "/download/T1/missing.txt", nil)).AssertStatus(t, http.StatusNotFound)
	serve(r, httptest.NewRequest(http.MethodGet, "/download/T9/missing.txt", nil)).AssertStatus(t, http.StatusNotFound)
}

func TestDownload_UnicodeFilename(t *testing.T) {
	env, r := newTestRouter(t, 0)
	env.CreateGroup(t, "T1", "Team A", 5)
	alice := env.Join(t, "T1", "Alice", "c1")

	serve(r, multipartRequest(t, "/upload/T1/Alice", "file", "báo cáo.txt", []byte("xin chào"))).AssertStatus(t, http.StatusOK)
	events := alice.Events(broadcast.EventGroupLog)
	stored := events[len(events)-1].Payload.(models.GroupSnapshot).Files[0].StoredName

	dl := serve(r, httptest.NewRequest(http.MethodGet, "/download/T1/"+stored, nil))
	dl.AssertStatus(t, http.StatusOK)
	_, params, err := mime.ParseMediaType(dl.Header().Get("Content-Disposition"))
	if err != nil {
		t.Fatalf("parse Content-Disposition: %v", err)
	}
	if params["filename"] != "báo cáo.txt" {
		t.Errorf("filename: got %q, want %q", params["filename"], "báo cáo.txt")
	}
}

func TestDownload_StorageFailure(t *testing.T) {
	env, r := newTestRouter(t, 0)
	env.CreateGroup(t, "T1", "Team A", 5)
	alice := env.Join(t, "T1", "Alice", "c1")

	serve(r, multipartRequest(t, "/upload/T1/Alice", "file", "a.txt", []byte("abc"))).AssertStatus(t, http.StatusOK)
	events := alice.Events(broadcast.EventGroupLog)
	stored := events[len(events)-1].Payload.(models.GroupSnapshot).Files[0].StoredName

	env.Storage.FailOpens(errors.New("connection reset"))
	rec := serve(r, httptest.NewRequest(http.MethodGet, "/download/T1/"+stored, nil))
	rec.AssertStatus(t, http.StatusInternalServerError)
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Error("storage details must not leak to clients")
	}
}
