// internal/app/system/filestore/filestore.go
// Package filestore persists committed group files on top of an object
// store. Each group owns a namespace, the key prefix "<code>/", which
// receives files on first write and is emptied when the group is torn
// down.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/waffle/pantry/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotFound is returned when a stored file does not exist.
	ErrNotFound = errors.New("stored file not found")
	// ErrInvalidName is returned for namespaces or stored names that could
	// escape their namespace.
	ErrInvalidName = errors.New("invalid storage name")
	// ErrSizeMismatch is returned when a writer delivers more or fewer
	// bytes than announced. Nothing is stored.
	ErrSizeMismatch = errors.New("stored size does not match")
)

// Store is the contract the group services depend on.
type Store interface {
	// Init verifies the backend before the first request.
	Init(ctx context.Context) error
	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	// EnsureNamespace makes sure a group's namespace can receive files.
	EnsureNamespace(ctx context.Context, code string) error
	// WriteFile stores size bytes from r and returns the object key.
	WriteFile(ctx context.Context, code, storedName string, r io.Reader, size int64) (string, error)
	// Open streams a stored file. Missing files yield ErrNotFound.
	Open(ctx context.Context, code, storedName string) (io.ReadCloser, error)
	// Remove deletes one stored file. Missing files are not an error.
	Remove(ctx context.Context, code, storedName string) error
	// DeleteNamespace removes a group's namespace and everything in it.
	// Deleting an absent namespace is not an error.
	DeleteNamespace(ctx context.Context, code string) error
}

// Files maps group namespaces onto a storage.Store.
type Files struct {
	objects storage.Store
	log     *zap.Logger
}

// New wraps objects. The backend is chosen by the caller.
func New(objects storage.Store, logger *zap.Logger) *Files {
	return &Files{objects: objects, log: logger}
}

// Objects returns the underlying object store.
func (f *Files) Objects() storage.Store { return f.objects }

// Key returns the object key of a stored file.
func Key(code, storedName string) string { return code + "/" + storedName }

func (f *Files) Init(ctx context.Context) error {
	if err := f.Ping(ctx); err != nil {
		return fmt.Errorf("%s storage: %w", f.objects.Backend(), err)
	}
	f.log.Info("file storage ready", zap.String("backend", f.objects.Backend()))
	return nil
}

// Ping lists at most one key, which fails when the bucket or root is
// unreachable.
func (f *Files) Ping(ctx context.Context) error {
	_, err := f.objects.List(ctx, "", &storage.ListOptions{MaxKeys: 1})
	return err
}

// EnsureNamespace only validates code: object stores have no
// directories, and the local backend creates them on write.
func (f *Files) EnsureNamespace(ctx context.Context, code string) error {
	return checkNames(code, "")
}

func (f *Files) WriteFile(ctx context.Context, code, storedName string, r io.Reader, size int64) (string, error) {
	if err := checkNames(code, storedName); err != nil {
		return "", err
	}
	key := Key(code, storedName)
	err := f.objects.Put(ctx, key, &sizedReader{r: io.LimitReader(r, size+1), want: size}, &storage.PutOptions{
		ContentType: storage.DetectContentType(storedName, nil),
	})
	if err != nil {
		return "", translate(err)
	}
	return key, nil
}

func (f *Files) Open(ctx context.Context, code, storedName string) (io.ReadCloser, error) {
	if err := checkNames(code, storedName); err != nil {
		return nil, err
	}
	rc, err := f.objects.Get(ctx, Key(code, storedName))
	if err != nil {
		return nil, translate(err)
	}
	return rc, nil
}

func (f *Files) Remove(ctx context.Context, code, storedName string) error {
	if err := checkNames(code, storedName); err != nil {
		return err
	}
	err := f.objects.Delete(ctx, Key(code, storedName))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return translate(err)
}

// DeleteNamespace deletes the namespace a page at a time. Listing always
// restarts from the top because the keys just deleted are gone.
func (f *Files) DeleteNamespace(ctx context.Context, code string) error {
	if err := checkNames(code, ""); err != nil {
		return err
	}
	prefix := code + "/"
	removed := 0
	for {
		page, err := f.objects.List(ctx, prefix, &storage.ListOptions{MaxKeys: 1000})
		if err != nil {
			return fmt.Errorf("list %s: %w", prefix, err)
		}
		var keys []string
		for _, obj := range page.Objects {
			// Some backends match "T1" against "T10/..." too.
			if strings.HasPrefix(obj.Path, prefix) {
				keys = append(keys, obj.Path)
			}
		}
		if len(keys) == 0 {
			break
		}
		n, err := f.objects.DeleteMany(ctx, keys)
		if err != nil {
			return fmt.Errorf("delete %s: %w", prefix, err)
		}
		if n == 0 {
			return fmt.Errorf("delete %s: %d objects could not be removed", prefix, len(keys))
		}
		removed += n
	}

	if local, ok := f.objects.(*storage.Local); ok {
		if err := removeEmptyDir(local, code); err != nil {
			return err
		}
	}
	f.log.Debug("namespace deleted", zap.String("group_code", code), zap.Int("files", removed))
	return nil
}

// removeEmptyDir drops the directory the local backend created for a
// namespace.
func removeEmptyDir(local *storage.Local, code string) error {
	dir, err := local.GetFullPath(code)
	if err != nil {
		return translate(err)
	}
	if err := os.Remove(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", dir, err)
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrInvalidPath):
		return ErrInvalidName
	default:
		return err
	}
}

// sizedReader fails the read that reaches EOF, or passes want, unless
// exactly want bytes were seen. Backends discard a Put whose reader
// fails.
type sizedReader struct {
	r    io.Reader
	want int64
	n    int64
}

func (s *sizedReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.n += int64(n)
	if s.n > s.want {
		return n, fmt.Errorf("%w: more than %d bytes", ErrSizeMismatch, s.want)
	}
	if err == io.EOF && s.n != s.want {
		return n, fmt.Errorf("%w: got %d of %d bytes", ErrSizeMismatch, s.n, s.want)
	}
	return n, err
}

// StoredName returns a collision-safe name for a file called original.
// The millisecond prefix keeps listings in upload order and the random
// token separates uploads that land in the same millisecond.
func StoredName(original string, now time.Time) string {
	token := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + token + "-" + SanitizeFilename(original)
}

// SanitizeFilename keeps letters, digits, '-', '_' and '.', replacing
// anything else with '_'. The result is at most 100 bytes and never empty.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if len(out) > 100 {
		out = out[len(out)-100:]
	}
	if out == "" {
		return "file"
	}
	return out
}

// validSegment reports whether s is safe as one key segment.
func validSegment(s string) bool {
	if s == "" || s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`) && !strings.Contains(s, "\x00")
}

func checkNames(code, storedName string) error {
	if !validSegment(code) || (storedName != "" && !validSegment(storedName)) {
		return ErrInvalidName
	}
	return nil
}
