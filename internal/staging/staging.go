// Package staging persists uploaded files to a per-request scratch
// directory and removes that directory when the request is done.
package staging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxBytes is the per-file upload limit.
const DefaultMaxBytes = 5 << 20

// ValidationError reports an unacceptable upload. It maps to HTTP 400.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// File is one uploaded payload. Open may be called more than once.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// FromHeader adapts a multipart file header.
func FromHeader(fh *multipart.FileHeader) File {
	return File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// BytesFile wraps an in-memory payload.
func BytesFile(name, contentType string, data []byte) File {
	return File{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Area is the scratch directory owned by one request.
type Area struct {
	ID           string
	Dir          string
	ImagePath    string
	CSVPath      string
	SchedulePath string

	once sync.Once
	err  error
}

// Release removes the directory and everything in it. Only the first call
// does any work; later calls return the first result.
func (a *Area) Release() error {
	a.once.Do(func() {
		a.err = os.RemoveAll(a.Dir)
	})
	return a.err
}

// Stager creates staging areas under a root directory.
type Stager struct {
	root     string
	maxBytes int64
	logger   *slog.Logger
}

// New returns a Stager. maxBytes <= 0 selects DefaultMaxBytes.
func New(root string, maxBytes int64) *Stager {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Stager{root: root, maxBytes: maxBytes, logger: slog.Default()}
}

// Root returns the directory holding all staging areas.
func (s *Stager) Root() string { return s.root }

// MaxBytes returns the per-file limit.
func (s *Stager) MaxBytes() int64 { return s.maxBytes }

// Stage validates both uploads and writes them to a fresh directory. Nothing
// touches the disk unless both files pass validation. The caller must
// Release the returned area.
func (s *Stager) Stage(ctx context.Context, image, csv File) (*Area, error) {
	if err := s.validateImage(image); err != nil {
		return nil, err
	}
	if err := s.validateCSV(csv); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating staging dir: %w", err)
	}
	area := &Area{
		ID:           id,
		Dir:          dir,
		ImagePath:    filepath.Join(dir, "timetable"+imageExt(image.Name)),
		CSVPath:      filepath.Join(dir, "courses.csv"),
		SchedulePath: filepath.Join(dir, "schedule.json"),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.copy(gctx, "image", image, area.ImagePath) })
	g.Go(func() error { return s.copy(gctx, "csv_file", csv, area.CSVPath) })
	if err := g.Wait(); err != nil {
		if rmErr := area.Release(); rmErr != nil {
			s.logger.Warn("releasing failed staging area", "dir", dir, "error", rmErr)
		}
		return nil, err
	}

	s.logger.Debug("staged upload", "id", id, "image_bytes", image.Size, "csv_bytes", csv.Size)
	return area, nil
}

func (s *Stager) validateImage(f File) error {
	if f.Open == nil || f.Size == 0 {
		return &ValidationError{Field: "image", Message: "an image file is required"}
	}
	if f.Size > s.maxBytes {
		return &ValidationError{Field: "image", Message: fmt.Sprintf("image must be %s or smaller", humanBytes(s.maxBytes))}
	}
	ctype := strings.ToLower(strings.TrimSpace(f.ContentType))
	if ctype == "" || ctype == "application/octet-stream" {
		sniffed, err := sniff(f)
		if err != nil {
			return err
		}
		ctype = sniffed
	}
	if !strings.HasPrefix(ctype, "image/") {
		return &ValidationError{Field: "image", Message: "file must be an image"}
	}
	return nil
}

func (s *Stager) validateCSV(f File) error {
	if f.Open == nil || f.Name == "" {
		return &ValidationError{Field: "csv_file", Message: "a CSV file is required"}
	}
	if !strings.EqualFold(filepath.Ext(f.Name), ".csv") {
		return &ValidationError{Field: "csv_file", Message: "file must have a .csv extension"}
	}
	if f.Size > s.maxBytes {
		return &ValidationError{Field: "csv_file", Message: fmt.Sprintf("CSV must be %s or smaller", humanBytes(s.maxBytes))}
	}
	return nil
}

func (s *Stager) copy(ctx context.Context, field string, f File, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening %s upload: %w", field, err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("creating %s file: %w", field, err)
	}
	n, err := io.Copy(out, io.LimitReader(src, s.maxBytes+1))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("writing %s file: %w", field, err)
	}
	if n > s.maxBytes {
		return &ValidationError{Field: field, Message: fmt.Sprintf("file must be %s or smaller", humanBytes(s.maxBytes))}
	}
	return nil
}

func sniff(f File) (string, error) {
	r, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("opening image upload: %w", err)
	}
	defer r.Close()

	buf := make([]byte, 512)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading image upload: %w", err)
	}
	return http.DetectContentType(buf[:n]), nil
}

var safeExt = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// imageExt keeps the client's extension only when it is plainly safe.
func imageExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if !safeExt.MatchString(ext) {
		return ".img"
	}
	return ext
}

func humanBytes(n int64) string {
	if n >= 1<<20 && n%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	return fmt.Sprintf("%d bytes", n)
}
