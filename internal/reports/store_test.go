package reports

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/blood-report-parser/constants"
	"github.com/joseph-ayodele/blood-report-parser/internal/entity"
	"github.com/joseph-ayodele/blood-report-parser/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func report(name, hb string) entity.Report {
	return entity.Report{
		ID:       uuid.Must(uuid.NewV7()),
		FileName: name,
		ExtractedValues: entity.ExtractedFields{
			{Parameter: constants.Hemoglobin, Value: hb},
			{Parameter: constants.RBC, Value: "4.8"},
			{Parameter: constants.WBC, Value: constants.NotFound},
			{Parameter: constants.PlateletCount, Value: "250,000"},
		},
		CreatedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func fileNames(h entity.History) []string {
	out := make([]string, len(h))
	for i, r := range h {
		out[i] = r.FileName
	}
	return out
}

func TestAppendThenReload(t *testing.T) {
	ctx := context.Background()
	backend := repository.NewMemoryBackend()
	slot := backend.Slot(DefaultSlot)

	s := NewStore(slot, discardLogger())
	if h := s.Load(ctx); len(h) != 0 {
		t.Fatalf("fresh Load() = %v, want empty", h)
	}
	first := report("a.png", "13.5")
	second := report("b.png", "12.1")
	if _, err := s.Append(ctx, first); err != nil {
		t.Fatalf("Append: %v", err)
	}
	h, err := s.Append(ctx, second)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if diff := cmp.Diff([]string{"a.png", "b.png"}, fileNames(h)); diff != "" {
		t.Fatalf("Append result (-want +got):\n%s", diff)
	}

	// A new store over the same slot simulates a reload.
	reloaded := NewStore(slot, discardLogger()).Load(ctx)
	if diff := cmp.Diff(entity.History{first, second}, reloaded); diff != "" {
		t.Fatalf("reloaded history (-want +got):\n%s", diff)
	}
}

func TestClearThenAppendStartsFresh(t *testing.T) {
	ctx := context.Background()
	slot := repository.NewMemoryBackend().Slot(DefaultSlot)
	s := NewStore(slot, discardLogger())
	for i := 0; i < 3; i++ {
		if _, err := s.Append(ctx, report(fmt.Sprintf("%d.png", i), "13")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	h, err := s.Clear(ctx)
	if err != nil || len(h) != 0 {
		t.Fatalf("Clear() = %v, %v", h, err)
	}
	if _, err := slot.Get(ctx); !errors.Is(err, repository.ErrSlotEmpty) {
		t.Fatalf("slot not erased: %v", err)
	}
	if h := NewStore(slot, discardLogger()).Load(ctx); len(h) != 0 {
		t.Fatalf("Load after Clear = %v", h)
	}
	h, err = s.Append(ctx, report("fresh.png", "14"))
	if err != nil || len(h) != 1 || h[0].FileName != "fresh.png" {
		t.Fatalf("Append after Clear = %v, %v", h, err)
	}
}

func TestLoadDegradesToEmpty(t *testing.T) {
	cases := map[string]string{
		"not json":         `{{{`,
		"object":           `{"fileName":"a.png"}`,
		"wrong field type": `[{"fileName":1,"extractedValues":{}}]`,
		"missing values":   `[{"fileName":"a.png"}]`,
		"number value":     `[{"fileName":"a.png","extractedValues":{"Hemoglobin":13.5}}]`,
		"bad id":           `[{"id":"nope","fileName":"a.png","extractedValues":{}}]`,
	}
	ctx := context.Background()
	for name, blob := range cases {
		t.Run(name, func(t *testing.T) {
			slot := repository.NewMemoryBackend().Slot(DefaultSlot)
			if err := slot.Set(ctx, []byte(blob)); err != nil {
				t.Fatalf("Set: %v", err)
			}
			h := NewStore(slot, discardLogger()).Load(ctx)
			if h == nil || len(h) != 0 {
				t.Fatalf("Load() = %#v, want empty non-nil history", h)
			}
		})
	}
}

func TestLoadBrowserHistory(t *testing.T) {
	ctx := context.Background()
	slot := repository.NewMemoryBackend().Slot(DefaultSlot)
	blob := `[{"fileName":"cbc.png","extractedValues":{"Hemoglobin":"13.5","RBC":"4.8","WBC":"6000","PlateletCount":"250,000"}}]`
	if err := slot.Set(ctx, []byte(blob)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	h := NewStore(slot, discardLogger()).Load(ctx)
	if len(h) != 1 {
		t.Fatalf("Load() = %v", h)
	}
	want := []entity.ReportSummary{{FileName: "cbc.png", Hemoglobin: "13.5"}}
	if diff := cmp.Diff(want, h.Summaries(), cmpopts.IgnoreFields(entity.ReportSummary{}, "ID")); diff != "" {
		t.Fatalf("summaries (-want +got):\n%s", diff)
	}
}

func TestLegacyReportsGetStableIDs(t *testing.T) {
	ctx := context.Background()
	slot := repository.NewMemoryBackend().Slot(DefaultSlot)
	blob := `[{"fileName":"a.png","extractedValues":{"Hemoglobin":"13"}},{"fileName":"b.png","extractedValues":{"Hemoglobin":"14"}}]`
	if err := slot.Set(ctx, []byte(blob)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	first := NewStore(slot, discardLogger()).Load(ctx)
	if len(first) != 2 {
		t.Fatalf("Load() = %v", first)
	}
	if first[0].ID == uuid.Nil || first[1].ID == uuid.Nil || first[0].ID == first[1].ID {
		t.Fatalf("legacy IDs = %v, %v; want distinct non-nil", first[0].ID, first[1].ID)
	}
	again := NewStore(slot, discardLogger()).Load(ctx)
	if diff := cmp.Diff(first, again); diff != "" {
		t.Fatalf("IDs changed across reloads (-first +again):\n%s", diff)
	}
	for _, r := range first {
		got, ok := again.Find(r.ID)
		if !ok || got.FileName != r.FileName {
			t.Fatalf("Find(%v) = %+v, %v; want %s", r.ID, got, ok, r.FileName)
		}
	}

	// Appending persists the derived IDs alongside the new report.
	s := NewStore(slot, discardLogger())
	h, err := s.Append(ctx, report("c.png", "15"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if h[0].ID != first[0].ID || h[1].ID != first[1].ID {
		t.Fatalf("Append changed legacy IDs: %v", h.Summaries())
	}
	if _, ok := h.Find(uuid.Nil); ok {
		t.Fatalf("Find(uuid.Nil) matched")
	}
}

// flakySlot fails the first getFailures reads.
type flakySlot struct {
	repository.Slot
	getFailures int
	sets        int
}

func (f *flakySlot) Get(ctx context.Context) ([]byte, error) {
	if f.getFailures > 0 {
		f.getFailures--
		return nil, errors.New("database is locked")
	}
	return f.Slot.Get(ctx)
}

func (f *flakySlot) Set(ctx context.Context, b []byte) error {
	f.sets++
	return f.Slot.Set(ctx, b)
}

func TestReadFailureDoesNotDropHistory(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryBackend().Slot(DefaultSlot)
	seed := NewStore(mem, discardLogger())
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		if _, err := seed.Append(ctx, report(name, "13")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	slot := &flakySlot{Slot: mem, getFailures: 2}
	s := NewStore(slot, discardLogger())
	if h := s.History(ctx); len(h) != 0 {
		t.Fatalf("History() with unreadable slot = %v, want empty", h)
	}
	if _, err := s.Append(ctx, report("d.png", "13")); err == nil {
		t.Fatalf("expected Append to fail while the slot is unreadable")
	}
	if slot.sets != 0 {
		t.Fatalf("Append wrote the slot %d times after a failed read", slot.sets)
	}
	if diff := cmp.Diff([]string{"a.png", "b.png", "c.png"}, fileNames(NewStore(mem, discardLogger()).Load(ctx))); diff != "" {
		t.Fatalf("persisted after failed read (-want +got):\n%s", diff)
	}

	h, err := s.Append(ctx, report("d.png", "13"))
	if err != nil {
		t.Fatalf("Append after recovery: %v", err)
	}
	want := []string{"a.png", "b.png", "c.png", "d.png"}
	if diff := cmp.Diff(want, fileNames(h)); diff != "" {
		t.Fatalf("Append after recovery (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, fileNames(NewStore(mem, discardLogger()).Load(ctx))); diff != "" {
		t.Fatalf("persisted after recovery (-want +got):\n%s", diff)
	}
}

type failingSlot struct {
	repository.Slot
	failSet bool
	failDel bool
}

func (f *failingSlot) Set(ctx context.Context, b []byte) error {
	if f.failSet {
		return errors.New("disk full")
	}
	return f.Slot.Set(ctx, b)
}

func (f *failingSlot) Delete(ctx context.Context) error {
	if f.failDel {
		return errors.New("read-only")
	}
	return f.Slot.Delete(ctx)
}

func TestWriteFailureLeavesHistoryUnchanged(t *testing.T) {
	ctx := context.Background()
	slot := &failingSlot{Slot: repository.NewMemoryBackend().Slot(DefaultSlot)}
	s := NewStore(slot, discardLogger())
	if _, err := s.Append(ctx, report("a.png", "13")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	slot.failSet = true
	h, err := s.Append(ctx, report("b.png", "14"))
	if err == nil {
		t.Fatalf("expected error")
	}
	if diff := cmp.Diff([]string{"a.png"}, fileNames(h)); diff != "" {
		t.Fatalf("history after failed append (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"a.png"}, fileNames(NewStore(slot, discardLogger()).Load(ctx))); diff != "" {
		t.Fatalf("persisted after failed append (-want +got):\n%s", diff)
	}

	slot.failDel = true
	if _, err := s.Clear(ctx); err == nil {
		t.Fatalf("expected Clear error")
	}
	if got := s.History(ctx); len(got) != 1 {
		t.Fatalf("history after failed clear = %v", got)
	}
}

func TestReturnedHistoryIsACopy(t *testing.T) {
	ctx := context.Background()
	s := NewStore(repository.NewMemoryBackend().Slot(DefaultSlot), discardLogger())
	h, err := s.Append(ctx, report("a.png", "13"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	h[0].FileName = "mutated"
	h[0].ExtractedValues[0].Value = "99"
	got := s.History(ctx)
	if got[0].FileName != "a.png" || got[0].ExtractedValues.Get(constants.Hemoglobin) != "13" {
		t.Fatalf("store was mutated through returned history: %+v", got[0])
	}
}

func TestSequentialAppendsKeepOrder(t *testing.T) {
	ctx := context.Background()
	slot := repository.NewMemoryBackend().Slot(DefaultSlot)
	s := NewStore(slot, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Append(ctx, report(fmt.Sprintf("%02d.png", i), "13")); err != nil {
				t.Errorf("Append: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if h := NewStore(slot, discardLogger()).Load(ctx); len(h) != 20 {
		t.Fatalf("persisted %d reports, want 20", len(h))
	}

	for i := 0; i < 5; i++ {
		if _, err := s.Append(ctx, report(fmt.Sprintf("seq-%d", i), "13")); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	h := NewStore(slot, discardLogger()).Load(ctx)
	tail := fileNames(h[len(h)-5:])
	if diff := cmp.Diff([]string{"seq-0", "seq-1", "seq-2", "seq-3", "seq-4"}, tail); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
}

func TestSessionsScopeByClient(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessions(repository.NewMemoryBackend(), "", discardLogger())

	if got := sessions.SlotName(""); got != "pastReports" {
		t.Fatalf("SlotName(\"\") = %q", got)
	}
	if got := sessions.SlotName(" alice "); got != "pastReports:alice" {
		t.Fatalf("SlotName(alice) = %q", got)
	}
	if sessions.For("alice") != sessions.For("alice") {
		t.Fatalf("For should reuse the store of a client")
	}
	if _, err := sessions.For("alice").Append(ctx, report("a.png", "13")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if h := sessions.For("bob").History(ctx); len(h) != 0 {
		t.Fatalf("bob sees alice's reports: %v", h)
	}
	if h := sessions.For("").History(ctx); len(h) != 0 {
		t.Fatalf("default slot sees alice's reports: %v", h)
	}
}
