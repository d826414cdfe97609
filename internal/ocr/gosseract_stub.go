//go:build !gosseract

package ocr

import (
	"errors"
	"log/slog"
)

// ErrGosseractUnavailable is returned when the binary was built without the
// gosseract tag (no cgo libtesseract).
var ErrGosseractUnavailable = errors.New("gosseract engine not compiled in; rebuild with -tags gosseract")

func newGosseractEngine(Config, *slog.Logger) (Engine, error) {
	return nil, ErrGosseractUnavailable
}
