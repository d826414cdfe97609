package ocr

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// stderrLogLimit caps how much engine stderr goes into one log record.
const stderrLogLimit = 8 << 10

// Runner executes an external command; tests swap in a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		exitCode := -1
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			exitCode = ee.ExitCode()
		}
		r.logger.Error("ocr.exec.failed",
			"cmd", name,
			"args", strings.Join(args, " "),
			"exit_code", exitCode,
			"duration_ms", elapsed,
			"error", err,
			"stderr", truncate(stderr.String(), stderrLogLimit),
		)
		return stdout.Bytes(), stderr.Bytes(), err
	}
	r.logger.Debug("ocr.exec.ok", "cmd", name, "duration_ms", elapsed, "stdout_bytes", stdout.Len())
	return stdout.Bytes(), stderr.Bytes(), nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
