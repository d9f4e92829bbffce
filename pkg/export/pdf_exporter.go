package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfPageWidth  = 277.0
	pdfLineHeight = 4.5
)

// PDFExporter renders a dataset as a landscape table, one page per document.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType of rendered documents.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Extension of rendered documents.
func (e *PDFExporter) Extension() string { return "pdf" }

// Render creates the PDF. Cells may contain newlines; each row grows to its tallest cell.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate("pdf"); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(data.Title), "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	colWidth := pdfPageWidth / float64(len(data.Headers))
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		record := data.record(row)
		lines := make([][][]byte, len(record))
		height := 1
		for i, cell := range record {
			lines[i] = pdf.SplitLines([]byte(tr(cell)), colWidth-2)
			height = max(height, len(lines[i]))
		}
		rowHeight := float64(height)*pdfLineHeight + 2
		if pdf.GetY()+rowHeight > 198 {
			pdf.AddPage()
		}
		x, y := pdf.GetXY()
		for i := range record {
			pdf.Rect(x+float64(i)*colWidth, y, colWidth, rowHeight, "D")
			text := make([]string, 0, len(lines[i]))
			for _, line := range lines[i] {
				text = append(text, string(line))
			}
			pdf.SetXY(x+float64(i)*colWidth+1, y+1)
			pdf.MultiCell(colWidth-2, pdfLineHeight, strings.Join(text, "\n"), "", "L", false)
		}
		pdf.SetXY(x, y+rowHeight)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
