package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/blood-report-parser/constants"
	"github.com/joseph-ayodele/blood-report-parser/internal/entity"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeOCR struct {
	text  string
	err   error
	panic bool
	paths []string
}

func (f *fakeOCR) Recognize(_ context.Context, path string) (string, error) {
	f.paths = append(f.paths, path)
	if f.panic {
		panic("engine crashed")
	}
	return f.text, f.err
}

type fakeStore struct {
	mu      sync.Mutex
	reports []entity.Report
	err     error
}

func (s *fakeStore) Append(_ context.Context, r entity.Report) (entity.History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.reports = append(s.reports, r)
	return append(entity.History(nil), s.reports...), nil
}

// countingMaterializer wraps a real materializer and counts releases.
type countingMaterializer struct {
	inner    Materializer
	released int
	paths    []string
}

type countingImage struct {
	RawImage
	m *countingMaterializer
}

func (c countingImage) Release() error {
	c.m.released++
	return c.RawImage.Release()
}

func (m *countingMaterializer) Materialize(ctx context.Context, u Upload) (RawImage, error) {
	img, err := m.inner.Materialize(ctx, u)
	if err != nil {
		return nil, err
	}
	m.paths = append(m.paths, img.Path())
	return countingImage{RawImage: img, m: m}, nil
}

const sampleText = "Hemoglobin: 13.5 RBC 4.8 WBC: 6000 Platelet Count: 250,000"

func newTestPipeline(t *testing.T, o *fakeOCR, s *fakeStore) (*Pipeline, *countingMaterializer) {
	t.Helper()
	m := &countingMaterializer{inner: TempDirMaterializer{Dir: t.TempDir()}}
	fixed := uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057")
	p := New(o, nil, s,
		WithMaterializer(m),
		WithClock(func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.FixedZone("X", 3600)) }),
		WithIDGenerator(func() (uuid.UUID, error) { return fixed, nil }),
		WithLogger(discardLogger()),
	)
	return p, m
}

func assertCleaned(t *testing.T, m *countingMaterializer) {
	t.Helper()
	if m.released != 1 {
		t.Fatalf("Release called %d times, want 1", m.released)
	}
	for _, p := range m.paths {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("temp file %s still exists (err=%v)", p, err)
		}
	}
}

func TestRunSuccess(t *testing.T) {
	o := &fakeOCR{text: sampleText}
	s := &fakeStore{}
	p, m := newTestPipeline(t, o, s)

	got, text, err := p.RunWithText(context.Background(), BytesUpload("cbc.png", []byte("img")))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := entity.Report{
		ID:       uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057"),
		FileName: "cbc.png",
		ExtractedValues: entity.ExtractedFields{
			{Parameter: constants.Hemoglobin, Value: "13.5"},
			{Parameter: constants.RBC, Value: "4.8"},
			{Parameter: constants.WBC, Value: "6000"},
			{Parameter: constants.PlateletCount, Value: "250,000"},
		},
		CreatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
	if text != sampleText {
		t.Fatalf("text = %q", text)
	}
	if len(s.reports) != 1 || s.reports[0].FileName != "cbc.png" {
		t.Fatalf("store = %+v", s.reports)
	}
	if len(o.paths) != 1 || filepath.Ext(o.paths[0]) != ".png" {
		t.Fatalf("ocr saw %v", o.paths)
	}
	assertCleaned(t, m)
}

func TestRunWithoutFileIsBadRequest(t *testing.T) {
	cases := map[string][]Upload{
		"none":       nil,
		"two":        {BytesUpload("a.png", nil), BytesUpload("b.png", nil)},
		"no opener":  {{FileName: "a.png"}},
		"empty name": {BytesUpload("", []byte("x"))},
	}
	for name, uploads := range cases {
		t.Run(name, func(t *testing.T) {
			o := &fakeOCR{text: sampleText}
			s := &fakeStore{}
			p, m := newTestPipeline(t, o, s)

			_, err := p.Run(context.Background(), uploads...)
			if KindOf(err) != BadRequest {
				t.Fatalf("KindOf(%v) = %v, want BadRequest", err, KindOf(err))
			}
			if len(s.reports) != 0 || len(o.paths) != 0 || m.released != 0 {
				t.Fatalf("side effects on bad request: store=%d ocr=%d released=%d", len(s.reports), len(o.paths), m.released)
			}
		})
	}
}

func TestRunOCRFailure(t *testing.T) {
	o := &fakeOCR{err: errors.New("tesseract: exit status 1")}
	s := &fakeStore{}
	p, m := newTestPipeline(t, o, s)

	r, err := p.Run(context.Background(), BytesUpload("cbc.png", []byte("img")))
	var f *Failure
	if !errors.As(err, &f) || f.Kind != OcrFailed {
		t.Fatalf("err = %v, want OcrFailed", err)
	}
	if r.FileName != "" {
		t.Fatalf("report returned on failure: %+v", r)
	}
	if len(s.reports) != 0 {
		t.Fatalf("store mutated on ocr failure")
	}
	assertCleaned(t, m)
}

func TestRunPanicIsInternalError(t *testing.T) {
	o := &fakeOCR{panic: true}
	s := &fakeStore{}
	p, m := newTestPipeline(t, o, s)

	_, err := p.Run(context.Background(), BytesUpload("cbc.png", []byte("img")))
	if KindOf(err) != InternalError {
		t.Fatalf("err = %v, want InternalError", err)
	}
	if !strings.Contains(err.Error(), "engine crashed") {
		t.Fatalf("panic value lost: %v", err)
	}
	assertCleaned(t, m)
}

func TestRunAppendFailureIsInternalError(t *testing.T) {
	o := &fakeOCR{text: sampleText}
	s := &fakeStore{err: errors.New("disk full")}
	p, m := newTestPipeline(t, o, s)

	if _, err := p.Run(context.Background(), BytesUpload("cbc.png", []byte("img"))); KindOf(err) != InternalError {
		t.Fatalf("err = %v, want InternalError", err)
	}
	assertCleaned(t, m)
}

func TestRunCancelledIsInternalError(t *testing.T) {
	o := &fakeOCR{text: sampleText}
	s := &fakeStore{}
	p, m := newTestPipeline(t, o, s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, BytesUpload("cbc.png", []byte("img")))
	if KindOf(err) != InternalError {
		t.Fatalf("err = %v, want InternalError", err)
	}
	if len(s.reports) != 0 {
		t.Fatalf("store mutated after cancellation")
	}
	if m.released != 0 {
		t.Fatalf("nothing was materialized, release count = %d", m.released)
	}
}

func TestRunMaterializeFailure(t *testing.T) {
	o := &fakeOCR{text: sampleText}
	p, _ := newTestPipeline(t, o, &fakeStore{})
	u := Upload{FileName: "cbc.png", Open: func() (io.ReadCloser, error) { return nil, errors.New("gone") }}
	if _, err := p.Run(context.Background(), u); KindOf(err) != InternalError {
		t.Fatalf("err = %v, want InternalError", err)
	}
	if len(o.paths) != 0 {
		t.Fatalf("ocr ran without an image")
	}
}

func TestWithStoreDoesNotAffectOriginal(t *testing.T) {
	a, b := &fakeStore{}, &fakeStore{}
	p, _ := newTestPipeline(t, &fakeOCR{text: sampleText}, a)
	if _, err := p.WithStore(b).Run(context.Background(), BytesUpload("x.png", nil)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(a.reports) != 0 || len(b.reports) != 1 {
		t.Fatalf("a=%d b=%d", len(a.reports), len(b.reports))
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		kind    Kind
		outcome constants.Outcome
		msg     string
	}{
		{BadRequest, constants.OutcomeBadRequest, "Please select a file"},
		{OcrFailed, constants.OutcomeOCRFailed, "OCR Processing Failed"},
		{InternalError, constants.OutcomeInternalError, "Something went wrong, please try again"},
	}
	for _, tt := range tests {
		if tt.kind.Outcome() != tt.outcome || tt.kind.UserMessage() != tt.msg {
			t.Fatalf("%d: outcome=%s msg=%q", tt.kind, tt.kind.Outcome(), tt.kind.UserMessage())
		}
	}
	if KindOf(nil) != NoFailure {
		t.Fatalf("KindOf(nil) = %v", KindOf(nil))
	}
	if KindOf(errors.New("raw")) != InternalError {
		t.Fatalf("untyped errors must classify as InternalError")
	}
}

func TestFileUploadLeavesOriginal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "scan.JPG")
	if err := os.WriteFile(src, []byte("jpeg"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	o := &fakeOCR{text: "WBC 5000"}
	p, m := newTestPipeline(t, o, &fakeStore{})
	r, err := p.Run(context.Background(), FileUpload(src))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r.FileName != "scan.JPG" || r.ExtractedValues.Get(constants.WBC) != "5000" {
		t.Fatalf("report = %+v", r)
	}
	if filepath.Ext(o.paths[0]) != ".jpg" {
		t.Fatalf("temp path %q lost the image extension", o.paths[0])
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("original removed: %v", err)
	}
	assertCleaned(t, m)
}
