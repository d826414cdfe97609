package export

import (
	"fmt"
	"strings"
)

// Format is a supported download format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
	FormatXLSX Format = "xlsx"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatPDF, FormatXLSX:
		return f, nil
	case "":
		return "", fmt.Errorf("export format is required (csv|pdf|xlsx)")
	default:
		return "", fmt.Errorf("unsupported export format %q (csv|pdf|xlsx)", s)
	}
}

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatPDF:
		return "application/pdf"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/octet-stream"
}

// FileName is the download name used by the browser app.
func (f Format) FileName() string {
	switch f {
	case FormatXLSX:
		return "blood_reports.xlsx"
	default:
		return "blood_report." + string(f)
	}
}

// PerReport reports whether f renders a single report (csv, pdf) rather than a history.
func (f Format) PerReport() bool { return f == FormatCSV || f == FormatPDF }
