package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/blood-report-parser/constants"
)

// Field is one parameter/value pair of an extraction.
type Field struct {
	Parameter constants.Parameter
	Value     string
}

// ExtractedFields is an ordered parameter -> value mapping. Order is the rule
// order of the extractor that produced it and survives a JSON round trip.
type ExtractedFields []Field

// Get returns the value for p, or constants.NotFound when p is absent.
func (f ExtractedFields) Get(p constants.Parameter) string {
	for _, fd := range f {
		if fd.Parameter == p {
			return fd.Value
		}
	}
	return constants.NotFound
}

// Pairs returns the ordered (parameter, value) rows consumed by exporters.
func (f ExtractedFields) Pairs() [][2]string {
	out := make([][2]string, len(f))
	for i, fd := range f {
		out[i] = [2]string{string(fd.Parameter), fd.Value}
	}
	return out
}

// Parameters returns the parameter names in order.
func (f ExtractedFields) Parameters() []constants.Parameter {
	out := make([]constants.Parameter, len(f))
	for i, fd := range f {
		out[i] = fd.Parameter
	}
	return out
}

func (f ExtractedFields) Clone() ExtractedFields {
	if f == nil {
		return nil
	}
	out := make(ExtractedFields, len(f))
	copy(out, f)
	return out
}

// MarshalJSON writes a JSON object whose keys keep the field order.
func (f ExtractedFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fd := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(string(fd.Parameter))
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(fd.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of string values, preserving key order.
func (f *ExtractedFields) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("extracted fields: expected object, got %v", tok)
	}
	out := ExtractedFields{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("extracted fields: expected key, got %v", tok)
		}
		var val string
		if err := dec.Decode(&val); err != nil {
			return fmt.Errorf("extracted fields: value of %q: %w", key, err)
		}
		out = append(out, Field{Parameter: constants.Parameter(key), Value: val})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*f = out
	return nil
}

// Report is one successful extraction. Treat as immutable once created.
type Report struct {
	ID              uuid.UUID       `json:"id,omitzero"`
	FileName        string          `json:"fileName"`
	ExtractedValues ExtractedFields `json:"extractedValues"`
	CreatedAt       time.Time       `json:"createdAt,omitzero"`
}

func (r Report) Clone() Report {
	r.ExtractedValues = r.ExtractedValues.Clone()
	return r
}

// ReportSummary is the short form shown in the past reports list.
type ReportSummary struct {
	ID         uuid.UUID `json:"id,omitzero"`
	FileName   string    `json:"fileName"`
	Hemoglobin string    `json:"hemoglobin"`
}

// History is the chronological list of reports of one client.
type History []Report

func (h History) Clone() History {
	out := make(History, len(h))
	for i, r := range h {
		out[i] = r.Clone()
	}
	return out
}

// Find returns the report with the given id. The nil UUID never matches.
func (h History) Find(id uuid.UUID) (Report, bool) {
	if id == uuid.Nil {
		return Report{}, false
	}
	for _, r := range h {
		if r.ID == id {
			return r.Clone(), true
		}
	}
	return Report{}, false
}

func (h History) Summaries() []ReportSummary {
	out := make([]ReportSummary, len(h))
	for i, r := range h {
		out[i] = ReportSummary{
			ID:         r.ID,
			FileName:   r.FileName,
			Hemoglobin: r.ExtractedValues.Get(constants.Hemoglobin),
		}
	}
	return out
}
