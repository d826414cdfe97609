package constants

import (
	"fmt"
	"strings"
)

// Parameter names one clinical value parsed out of a blood report.
type Parameter string

const (
	Hemoglobin    Parameter = "Hemoglobin"
	RBC           Parameter = "RBC"
	WBC           Parameter = "WBC"
	PlateletCount Parameter = "PlateletCount"
)

// NotFound is stored for a parameter whose pattern matched nothing in the text.
const NotFound = "N/A"

// allParameters is the rule order; exports and JSON follow it.
var allParameters = []Parameter{
	Hemoglobin,
	RBC,
	WBC,
	PlateletCount,
}

// AllParameters returns the parameters in rule order.
func AllParameters() []Parameter {
	out := make([]Parameter, len(allParameters))
	copy(out, allParameters)
	return out
}

// ParametersAsStringSlice returns the parameter names in rule order.
func ParametersAsStringSlice() []string {
	result := make([]string, len(allParameters))
	for i, p := range allParameters {
		result[i] = string(p)
	}
	return result
}

// ParseParameter resolves a user supplied label to a known parameter.
func ParseParameter(input string) (Parameter, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return "", false
	}

	synonyms := map[string]Parameter{
		"hb":                Hemoglobin,
		"hgb":               Hemoglobin,
		"haemoglobin":       Hemoglobin,
		"red blood cells":   RBC,
		"white blood cells": WBC,
		"platelets":         PlateletCount,
		"platelet count":    PlateletCount,
		"plt":               PlateletCount,
	}
	if p, ok := synonyms[normalized]; ok {
		return p, true
	}

	for _, p := range allParameters {
		if normalized == strings.ToLower(string(p)) {
			return p, true
		}
	}
	return "", false
}

// ParseParameterList resolves a comma separated list of labels, keeping the
// first occurrence of each parameter. Blank entries are skipped.
func ParseParameterList(list string) ([]Parameter, error) {
	var out []Parameter
	seen := make(map[Parameter]bool)
	for _, label := range strings.Split(list, ",") {
		if strings.TrimSpace(label) == "" {
			continue
		}
		p, ok := ParseParameter(label)
		if !ok {
			return nil, fmt.Errorf("unknown parameter %q (known: %s)",
				strings.TrimSpace(label), strings.Join(ParametersAsStringSlice(), ", "))
		}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out, nil
}
