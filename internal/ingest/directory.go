package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joseph-ayodele/blood-report-parser/constants"
)

// ListImages walks root and returns image files in lexical order.
func ListImages(root string, skipHidden bool) ([]string, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if skipHidden && path != root && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !constants.IsImageExt(filepath.Ext(path)) {
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// IngestDirectory runs IngestPath for every image under root. Per-file
// failures are recorded in the results and do not stop the walk.
func (i *Ingestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]Result, DirStats, error) {
	var stats DirStats
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			stats.Scanned++
		}
		return nil
	})
	if err != nil {
		return nil, stats, fmt.Errorf("walk: %w", err)
	}

	paths, err := ListImages(root, skipHidden)
	if err != nil {
		return nil, stats, err
	}
	results := make([]Result, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return results, stats, err
		}
		stats.Matched++
		res, err := i.IngestPath(ctx, p)
		if err != nil {
			res.Path = p
			res.Err = err.Error()
			stats.Failed++
			i.logger.Warn("ingest.file.failed", "path", p, "error", err)
		} else {
			stats.Succeeded++
			if res.Deduplicated {
				stats.Deduplicated++
			}
		}
		results = append(results, res)
	}
	i.logger.Info("ingest.directory.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"deduplicated", stats.Deduplicated,
		"failed", stats.Failed,
	)
	return results, stats, nil
}

func isHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
