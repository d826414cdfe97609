package async

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorkerQueueProcessesAllJobsBeforeShutdown(t *testing.T) {
	var mu sync.Mutex
	var got []string
	q := NewWorkerQueue(func(_ context.Context, j Job) error {
		mu.Lock()
		got = append(got, j.Path)
		mu.Unlock()
		if j.Path == "c.png" {
			return errors.New("ocr failed")
		}
		if j.Path == "d.png" {
			panic("boom")
		}
		return nil
	}, discardLogger(), WithWorkers(3), WithQueueSize(1))

	want := []string{"a.png", "b.png", "c.png", "d.png", "e.png"}
	for _, p := range want {
		if err := q.Enqueue(context.Background(), Job{Path: p}); err != nil {
			t.Fatalf("Enqueue(%s): %v", p, err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	sort.Strings(got)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("processed (-want +got):\n%s", diff)
	}
}

func TestWorkerLogsCarryTraceID(t *testing.T) {
	var buf syncBuffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	q := NewWorkerQueue(func(context.Context, Job) error {
		return errors.New("ocr failed")
	}, logger, WithWorkers(1))

	if err := q.Enqueue(context.Background(), Job{Path: "a.png", TraceID: "trace-123"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	var failed map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		if entry["msg"] == "processing failed" {
			failed = entry
		}
	}
	if failed == nil {
		t.Fatalf("no failure logged:\n%s", buf.String())
	}
	if failed["trace_id"] != "trace-123" || failed["path"] != "a.png" {
		t.Fatalf("failure log = %v", failed)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestEnqueueAfterShutdown(t *testing.T) {
	q := NewWorkerQueue(func(context.Context, Job) error { return nil }, discardLogger())
	q.Shutdown(context.Background())
	q.Shutdown(context.Background())
	if err := q.Enqueue(context.Background(), Job{Path: "x.png"}); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("err = %v, want ErrQueueClosed", err)
	}
}

func TestEnqueueRespectsContextWhenFull(t *testing.T) {
	release := make(chan struct{})
	q := NewWorkerQueue(func(context.Context, Job) error {
		<-release
		return nil
	}, discardLogger(), WithWorkers(1), WithQueueSize(1))
	defer func() {
		close(release)
		q.Shutdown(context.Background())
	}()

	// One job occupies the worker, one fills the buffer.
	_ = q.Enqueue(context.Background(), Job{Path: "busy"})
	deadline := time.Now().Add(2 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		err := q.Enqueue(ctx, Job{Path: "fill"})
		cancel()
		if errors.Is(err, context.DeadlineExceeded) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue never reported backpressure")
		}
	}
}
