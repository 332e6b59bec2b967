package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidthMM   = 277.0
	labelWidthMM  = 28.0
	lineHeightMM  = 4.0
	cellPaddingMM = 1.0
)

// Grid is a timetable laid out as labelled rows of cells under column headers.
type Grid struct {
	Title    string
	Subtitle string
	Corner   string
	Columns  []string
	Rows     []GridRow
}

// GridRow is one row of a Grid. Cells align with Grid.Columns.
type GridRow struct {
	Label string
	Cells []string
}

// PDFExporter renders timetable grids into a landscape A4 document.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render draws the grid, growing each row to fit its tallest cell.
func (e *PDFExporter) Render(grid Grid) ([]byte, error) {
	if len(grid.Columns) == 0 {
		return nil, fmt.Errorf("pdf requires at least one column")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if grid.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(grid.Title), "", 1, "C", false, 0, "")
	}
	if grid.Subtitle != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, grid.Subtitle, "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	colWidth := (pageWidthMM - labelWidthMM) / float64(len(grid.Columns))

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(labelWidthMM, 8, grid.Corner, "1", 0, "C", true, 0, "")
	for _, column := range grid.Columns {
		pdf.CellFormat(colWidth, 8, column, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range grid.Rows {
		lines := 1
		for _, cell := range row.Cells {
			if n := len(pdf.SplitLines([]byte(cell), colWidth-2*cellPaddingMM)); n > lines {
				lines = n
			}
		}
		height := float64(lines)*lineHeightMM + 2*cellPaddingMM

		x, y := pdf.GetXY()
		pdf.SetFont("Arial", "B", 8)
		pdf.CellFormat(labelWidthMM, height, row.Label, "1", 0, "C", false, 0, "")
		pdf.SetFont("Arial", "", 8)
		for i := range grid.Columns {
			cx := x + labelWidthMM + float64(i)*colWidth
			pdf.Rect(cx, y, colWidth, height, "D")
			if i >= len(row.Cells) || row.Cells[i] == "" {
				continue
			}
			pdf.SetXY(cx+cellPaddingMM, y+cellPaddingMM)
			pdf.MultiCell(colWidth-2*cellPaddingMM, lineHeightMM, row.Cells[i], "", "L", false)
		}
		pdf.SetXY(x, y+height)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
