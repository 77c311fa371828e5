// Package export writes findings to spreadsheet workbooks for offline review.
package export

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xuri/excelize/v2"

	"contractlens/llm"
)

// SheetName is the worksheet holding the findings
const SheetName = "Findings"

// Columns are the header row, in order
var Columns = []string{
	"ID",
	"Document",
	"Related",
	"Type",
	"Severity",
	"Status",
	"Description",
	"Recommendation",
	"Evidence",
}

var columnWidths = map[string]float64{
	"A": 8,
	"B": 38,
	"C": 38,
	"D": 22,
	"E": 10,
	"F": 12,
	"G": 64,
	"H": 40,
	"I": 60,
}

// FindingsXLSX returns a workbook with one row per finding
func FindingsXLSX(ctx context.Context, findings []llm.Finding) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	for i, h := range Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SheetName, cell, h); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(Columns), 1)
	_ = f.SetCellStyle(SheetName, "A1", last, bold)

	for i, finding := range findings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		evidence := ""
		if len(finding.Evidence) > 0 {
			b, err := json.Marshal(finding.Evidence)
			if err != nil {
				return nil, fmt.Errorf("failed to encode evidence of finding %d: %w", finding.ID, err)
			}
			evidence = string(b)
		}

		values := []interface{}{
			finding.ID,
			finding.DocumentID,
			finding.RelatedDocumentID,
			string(finding.Type),
			string(finding.Severity),
			string(finding.Status),
			finding.Description,
			finding.Recommendation,
			evidence,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write finding %d: %w", finding.ID, err)
		}
	}

	for col, width := range columnWidths {
		_ = f.SetColWidth(SheetName, col, col, width)
	}
	_ = f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
