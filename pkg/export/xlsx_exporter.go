package export

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	xlsxMaxSheetName = 31
	xlsxColumnWidth  = 24
	xlsxFirstColumn  = 16
)

// XLSXExporter renders a dataset as a single-sheet workbook. The title names the sheet.
type XLSXExporter struct{}

// NewXLSXExporter constructs a spreadsheet exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// ContentType of rendered documents.
func (e *XLSXExporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Extension of rendered documents.
func (e *XLSXExporter) Extension() string { return "xlsx" }

// Render writes headers in bold on row 1 and wraps multi-line cells.
func (e *XLSXExporter) Render(data Dataset) ([]byte, error) {
	if err := data.validate("xlsx"); err != nil {
		return nil, err
	}
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	sheet := sheetName(data.Title)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"E6E6E6"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	cellStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
	})
	if err != nil {
		return nil, fmt.Errorf("cell style: %w", err)
	}

	for col, header := range data.Headers {
		if err := setCell(f, sheet, col+1, 1, header); err != nil {
			return nil, err
		}
	}
	for i, row := range data.Rows {
		for col, value := range data.record(row) {
			if err := setCell(f, sheet, col+1, i+2, value); err != nil {
				return nil, err
			}
		}
	}

	last, _ := excelize.ColumnNumberToName(len(data.Headers))
	if err := f.SetCellStyle(sheet, "A1", last+"1", headerStyle); err != nil {
		return nil, fmt.Errorf("style headers: %w", err)
	}
	if len(data.Rows) > 0 {
		if err := f.SetCellStyle(sheet, "A2", fmt.Sprintf("%s%d", last, len(data.Rows)+1), cellStyle); err != nil {
			return nil, fmt.Errorf("style cells: %w", err)
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", xlsxFirstColumn); err != nil {
		return nil, fmt.Errorf("column width: %w", err)
	}
	if len(data.Headers) > 1 {
		if err := f.SetColWidth(sheet, "B", last, xlsxColumnWidth); err != nil {
			return nil, fmt.Errorf("column width: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func setCell(f *excelize.File, sheet string, col, row int, value string) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("write %s: %w", cell, err)
	}
	return nil
}

// sheetName strips characters Excel forbids in sheet names and truncates to 31 runes.
func sheetName(title string) string {
	name := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return ' '
		}
		return r
	}, strings.TrimSpace(title))
	name = strings.Trim(name, "' ")
	if name == "" {
		return "Timetable"
	}
	if runes := []rune(name); len(runes) > xlsxMaxSheetName {
		name = strings.TrimSpace(string(runes[:xlsxMaxSheetName]))
	}
	return name
}
