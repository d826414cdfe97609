package utils

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/blood-report-parser/constants"
	"github.com/joseph-ayodele/blood-report-parser/internal/entity"
)

// ToPBReport encodes a report as a Struct. Fields travel as an ordered list of
// {parameter, value} objects since Struct maps have no order.
func ToPBReport(r entity.Report) (*structpb.Struct, error) {
	fields := make([]any, 0, len(r.ExtractedValues))
	for _, f := range r.ExtractedValues {
		fields = append(fields, map[string]any{
			"parameter": string(f.Parameter),
			"value":     f.Value,
		})
	}
	m := map[string]any{
		"fileName":        r.FileName,
		"extractedValues": fields,
	}
	if r.ID != uuid.Nil {
		m["id"] = r.ID.String()
	}
	if !r.CreatedAt.IsZero() {
		m["createdAt"] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return structpb.NewStruct(m)
}

func ToPBHistory(h entity.History) (*structpb.ListValue, error) {
	out := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(h))}
	for _, r := range h {
		s, err := ToPBReport(r)
		if err != nil {
			return nil, fmt.Errorf("report %s: %w", r.ID, err)
		}
		out.Values = append(out.Values, structpb.NewStructValue(s))
	}
	return out, nil
}

// ReportFromPB is the inverse of ToPBReport.
func ReportFromPB(s *structpb.Struct) (entity.Report, error) {
	f := s.GetFields()
	r := entity.Report{FileName: f["fileName"].GetStringValue()}
	if id := f["id"].GetStringValue(); id != "" {
		parsed, err := uuid.Parse(id)
		if err != nil {
			return entity.Report{}, fmt.Errorf("id: %w", err)
		}
		r.ID = parsed
	}
	if ts := f["createdAt"].GetStringValue(); ts != "" {
		parsed, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return entity.Report{}, fmt.Errorf("createdAt: %w", err)
		}
		r.CreatedAt = parsed
	}
	for _, v := range f["extractedValues"].GetListValue().GetValues() {
		item := v.GetStructValue().GetFields()
		r.ExtractedValues = append(r.ExtractedValues, entity.Field{
			Parameter: constants.Parameter(item["parameter"].GetStringValue()),
			Value:     item["value"].GetStringValue(),
		})
	}
	return r, nil
}
