package constants

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseParameter(t *testing.T) {
	tests := []struct {
		in   string
		want Parameter
		ok   bool
	}{
		{"Hemoglobin", Hemoglobin, true},
		{" HGB ", Hemoglobin, true},
		{"haemoglobin", Hemoglobin, true},
		{"red blood cells", RBC, true},
		{"wbc", WBC, true},
		{"plt", PlateletCount, true},
		{"Platelet Count", PlateletCount, true},
		{"glucose", "", false},
		{"  ", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseParameter(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("ParseParameter(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseParameterList(t *testing.T) {
	got, err := ParseParameterList("plt, hb,,hemoglobin")
	if err != nil {
		t.Fatalf("ParseParameterList: %v", err)
	}
	if diff := cmp.Diff([]Parameter{PlateletCount, Hemoglobin}, got); diff != "" {
		t.Fatalf("ParseParameterList (-want +got):\n%s", diff)
	}

	if got, err := ParseParameterList(""); err != nil || len(got) != 0 {
		t.Fatalf("ParseParameterList(\"\") = %v, %v", got, err)
	}

	_, err = ParseParameterList("rbc,glucose")
	if err == nil {
		t.Fatalf("expected error for unknown parameter")
	}
	for _, want := range append([]string{`"glucose"`}, ParametersAsStringSlice()...) {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}
