package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
)

// FileBackend stores each slot as <dir>/<escaped name>.json.
type FileBackend struct {
	dir    string
	logger *slog.Logger
}

// NewFileBackend creates dir if needed.
func NewFileBackend(dir string, logger *slog.Logger) (*FileBackend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file backend: mkdir %s: %w", dir, err)
	}
	return &FileBackend{dir: dir, logger: logger}, nil
}

func (b *FileBackend) Slot(name string) Slot {
	return &fileSlot{
		name:   name,
		path:   filepath.Join(b.dir, url.QueryEscape(name)+".json"),
		logger: b.logger,
	}
}

func (b *FileBackend) Ping(context.Context) error {
	st, err := os.Stat(b.dir)
	if err != nil {
		return err
	}
	if !st.IsDir() {
		return fmt.Errorf("%s is not a directory", b.dir)
	}
	return nil
}

func (b *FileBackend) Close() error { return nil }

type fileSlot struct {
	name   string
	path   string
	logger *slog.Logger
}

func (s *fileSlot) Name() string { return s.name }

func (s *fileSlot) Get(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSlotEmpty
	}
	return b, err
}

// Set writes a sibling temp file, fsyncs it and renames it over the target.
func (s *fileSlot) Set(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".slot-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		s.logger.Error("slot rename failed", "slot", s.name, "path", s.path, "error", err)
		return err
	}
	committed = true
	return nil
}

func (s *fileSlot) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
