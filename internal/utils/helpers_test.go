package utils

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/blood-report-parser/constants"
	"github.com/joseph-ayodele/blood-report-parser/internal/entity"
)

func TestReportStructKeepsFieldOrder(t *testing.T) {
	r := entity.Report{
		ID:       uuid.MustParse("01890a5d-ac96-774b-bcce-b302099a8057"),
		FileName: "cbc.png",
		ExtractedValues: entity.ExtractedFields{
			{Parameter: constants.PlateletCount, Value: "250,000"},
			{Parameter: constants.Hemoglobin, Value: "13.5"},
		},
		CreatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	s, err := ToPBReport(r)
	if err != nil {
		t.Fatalf("ToPBReport: %v", err)
	}
	got, err := ReportFromPB(s)
	if err != nil {
		t.Fatalf("ReportFromPB: %v", err)
	}
	if diff := cmp.Diff(r, got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	l, err := ToPBHistory(entity.History{r, {FileName: "legacy.png"}})
	if err != nil {
		t.Fatalf("ToPBHistory: %v", err)
	}
	if len(l.GetValues()) != 2 {
		t.Fatalf("list has %d values", len(l.GetValues()))
	}
	legacy := l.GetValues()[1].GetStructValue().GetFields()
	if _, ok := legacy["id"]; ok {
		t.Fatalf("zero id should be omitted")
	}
}
