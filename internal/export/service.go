package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/blood-report-parser/constants"
	"github.com/joseph-ayodele/blood-report-parser/internal/entity"
)

// Service renders reports into downloadable documents.
type Service struct {
	now    func() time.Time
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{now: time.Now, logger: logger}
}

// Report renders r as a csv or pdf document.
func (s *Service) Report(f Format, r entity.Report) ([]byte, error) {
	switch f {
	case FormatCSV:
		return s.CSV(r)
	case FormatPDF:
		return s.PDF(r)
	default:
		return nil, fmt.Errorf("format %q does not render a single report", f)
	}
}

// CSV writes the header "Parameter,Value" and one row per field, in order.
// Values containing commas (250,000) are quoted.
func (s *Service) CSV(r entity.Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"Parameter", "Value"}); err != nil {
		return nil, err
	}
	for _, p := range r.ExtractedValues.Pairs() {
		if err := w.Write(p[:]); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv write: %w", err)
	}
	s.logger.Info("export.csv.ok", "report_id", r.ID, "rows", len(r.ExtractedValues))
	return buf.Bytes(), nil
}

// PDF renders an A4 page titled "Blood Report" with a Parameter | Value table.
func (s *Service) PDF(r entity.Report) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(s.now().UTC())
	pdf.SetTitle("Blood Report", true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 12, "Blood Report", "", 1, "L", false, 0, "")
	if r.FileName != "" {
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, tr(r.FileName), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	const colParam, colValue, rowH = 80.0, 60.0, 8.0
	pdf.SetFont("Helvetica", "B", 11)
	pdf.SetFillColor(41, 128, 185)
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(colParam, rowH, "Parameter", "1", 0, "L", true, 0, "")
	pdf.CellFormat(colValue, rowH, "Value", "1", 1, "L", true, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	pdf.SetTextColor(0, 0, 0)
	for _, p := range r.ExtractedValues.Pairs() {
		pdf.CellFormat(colParam, rowH, tr(p[0]), "1", 0, "L", false, 0, "")
		pdf.CellFormat(colValue, rowH, tr(p[1]), "1", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf write: %w", err)
	}
	s.logger.Info("export.pdf.ok", "report_id", r.ID, "bytes", buf.Len())
	return buf.Bytes(), nil
}

// XLSX returns a workbook with one row per report: File Name, Created At,
// then one column per parameter (defaults first, extra parameters after).
// XLSX renders the history as one sheet. Columns default to the known
// parameters followed by any extra ones seen in h; params overrides them.
func (s *Service) XLSX(h entity.History, params ...constants.Parameter) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("xlsx close failed", "error", err)
		}
	}()
	const sheet = "Reports"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	if len(params) == 0 {
		params = columns(h)
	}
	headers := append([]string{"File Name", "Created At"}, paramNames(params)...)
	for i, hd := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, hd)
	}

	for i, r := range h {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, r.FileName)
		if !r.CreatedAt.IsZero() {
			write(2, r.CreatedAt.UTC().Format(time.RFC3339))
		} else {
			write(2, "")
		}
		for j, p := range params {
			write(j+3, r.ExtractedValues.Get(p))
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 32)
	_ = f.SetColWidth(sheet, "B", "B", 22)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	s.logger.Info("export.xlsx.ok",
		"rows", len(h),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func columns(h entity.History) []constants.Parameter {
	seen := make(map[constants.Parameter]struct{})
	out := make([]constants.Parameter, 0, 4)
	add := func(p constants.Parameter) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	for _, p := range constants.AllParameters() {
		add(p)
	}
	for _, r := range h {
		for _, p := range r.ExtractedValues.Parameters() {
			add(p)
		}
	}
	return out
}

func paramNames(ps []constants.Parameter) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}
