package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// convertHEICtoPNG converts a HEIC/HEIF image to a PNG in a fresh temp dir.
// Returns (outPath, warnings, cleanup, err); cleanup is non-nil whenever the
// temp dir was created, including on error.
func convertHEICtoPNG(ctx context.Context, r Runner, converter, in string) (string, []string, func(), error) {
	tmpDir, err := os.MkdirTemp("", "bloodreport-heic-*")
	if err != nil {
		return "", nil, nil, err
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }
	out := filepath.Join(tmpDir, "page.png")

	var args []string
	switch converter {
	case "heif-convert", "magick":
		args = []string{in, out}
	case "sips":
		args = []string{"-s", "format", "png", in, "--out", out}
	default:
		return "", nil, cleanup, fmt.Errorf("HEIC not supported: set ocr.Config.HeicConverter to one of: heif-convert | magick | sips")
	}

	if _, errb, err := r.Run(ctx, converter, args...); err != nil {
		return "", nonEmpty(string(errb)), cleanup, fmt.Errorf("%s convert failed: %w", converter, err)
	}
	if _, err := os.Stat(out); err != nil {
		return "", nil, cleanup, fmt.Errorf("HEIC conversion produced no output: %w", err)
	}
	return out, nil, cleanup, nil
}
