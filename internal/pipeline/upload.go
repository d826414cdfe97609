package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/joseph-ayodele/blood-report-parser/constants"
)

// Upload is one file handed over by a transport. Open may be called once.
type Upload struct {
	FileName string
	Open     func() (io.ReadCloser, error)
}

// FileUpload adapts a file on disk; the original is never modified.
func FileUpload(path string) Upload {
	return Upload{
		FileName: filepath.Base(path),
		Open:     func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// BytesUpload adapts an in-memory payload.
func BytesUpload(name string, data []byte) Upload {
	return Upload{
		FileName: name,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// RawImage is a materialized upload owned by one pipeline run.
type RawImage interface {
	Path() string
	// Release deletes the backing resource. Calls after the first are no-ops.
	Release() error
}

type Materializer interface {
	Materialize(ctx context.Context, u Upload) (RawImage, error)
}

// TempDirMaterializer copies uploads into temp files under Dir ("" = os.TempDir).
type TempDirMaterializer struct {
	Dir string
}

func (m TempDirMaterializer) Materialize(ctx context.Context, u Upload) (RawImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	src, err := u.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload %q: %w", u.FileName, err)
	}
	defer src.Close()

	f, err := os.CreateTemp(m.Dir, "upload-*"+safeExt(u.FileName))
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	img := &tempFile{path: f.Name()}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		_ = img.Release()
		return nil, fmt.Errorf("copy upload %q: %w", u.FileName, err)
	}
	if err := f.Close(); err != nil {
		_ = img.Release()
		return nil, fmt.Errorf("close temp: %w", err)
	}
	return img, nil
}

// safeExt keeps a known image extension so the OCR engine can sniff the format.
func safeExt(name string) string {
	ext := filepath.Ext(name)
	if constants.IsImageExt(ext) {
		return "." + constants.NormalizeExt(ext)
	}
	return ""
}

type tempFile struct {
	path string
	once sync.Once
	err  error
}

func (t *tempFile) Path() string { return t.path }

func (t *tempFile) Release() error {
	t.once.Do(func() {
		if err := os.Remove(t.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.err = err
		}
	})
	return t.err
}
