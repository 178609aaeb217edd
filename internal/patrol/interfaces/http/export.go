package http

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	care "carebot-cloud/internal/care/domain"
	patrol "carebot-cloud/internal/patrol/domain"
)

// BuildHistoryPDF renders a patrol history report for an elder.
func BuildHistoryPDF(elder *care.Elder, results []patrol.Result, generatedAt time.Time) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Home Patrol History")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Elder: %s (%s)", elder.Name, elder.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Patrols: %d", len(results)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", generatedAt.Format(time.RFC3339)))
	pdf.Ln(8)

	for _, result := range results {
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, fmt.Sprintf("%s  %s  %s", result.CompletedAt.Format("2006-01-02 15:04"), result.Status, result.PatrolID))
		pdf.Ln(7)
		pdf.CellFormat(40, 6, "Target", "1", 0, "C", false, 0, "")
		pdf.CellFormat(60, 6, "Label", "1", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, "Status", "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, "Checked", "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 10)
		for _, item := range result.Items {
			pdf.CellFormat(40, 6, string(item.Target), "1", 0, "L", false, 0, "")
			pdf.CellFormat(60, 6, item.Label, "1", 0, "L", false, 0, "")
			pdf.CellFormat(35, 6, string(item.Status), "1", 0, "C", false, 0, "")
			pdf.CellFormat(45, 6, item.CheckedAt.Format("2006-01-02 15:04"), "1", 0, "C", false, 0, "")
			pdf.Ln(-1)
		}
		pdf.Ln(4)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildHistoryXLSX renders the same report as a workbook with a patrols and an items sheet.
func BuildHistoryXLSX(elder *care.Elder, results []patrol.Result, generatedAt time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	patrolSheet := "patrols"
	itemSheet := "items"
	_ = f.SetSheetName("Sheet1", patrolSheet)
	if _, err := f.NewSheet(itemSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(patrolSheet, "A1", "Home Patrol History")
	_ = f.SetCellValue(patrolSheet, "A2", "Elder")
	_ = f.SetCellValue(patrolSheet, "B2", elder.Name)
	_ = f.SetCellValue(patrolSheet, "A3", "Generated")
	_ = f.SetCellValue(patrolSheet, "B3", generatedAt.Format(time.RFC3339))

	header := []string{"Patrol ID", "Robot", "Status", "Started", "Completed", "Items"}
	for col, title := range header {
		cell, _ := excelize.CoordinatesToCellName(col+1, 5)
		_ = f.SetCellValue(patrolSheet, cell, title)
	}
	itemHeader := []string{"Patrol ID", "Target", "Label", "Status", "Confidence", "Image", "Checked"}
	for col, title := range itemHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(itemSheet, cell, title)
	}

	itemRow := 2
	for i, result := range results {
		row := i + 6
		_ = f.SetCellValue(patrolSheet, fmt.Sprintf("A%d", row), result.PatrolID)
		_ = f.SetCellValue(patrolSheet, fmt.Sprintf("B%d", row), result.RobotID)
		_ = f.SetCellValue(patrolSheet, fmt.Sprintf("C%d", row), string(result.Status))
		_ = f.SetCellValue(patrolSheet, fmt.Sprintf("D%d", row), result.StartedAt.Format(time.RFC3339))
		_ = f.SetCellValue(patrolSheet, fmt.Sprintf("E%d", row), result.CompletedAt.Format(time.RFC3339))
		_ = f.SetCellValue(patrolSheet, fmt.Sprintf("F%d", row), len(result.Items))
		for _, item := range result.Items {
			_ = f.SetCellValue(itemSheet, fmt.Sprintf("A%d", itemRow), result.PatrolID)
			_ = f.SetCellValue(itemSheet, fmt.Sprintf("B%d", itemRow), string(item.Target))
			_ = f.SetCellValue(itemSheet, fmt.Sprintf("C%d", itemRow), item.Label)
			_ = f.SetCellValue(itemSheet, fmt.Sprintf("D%d", itemRow), string(item.Status))
			if item.Confidence != nil {
				_ = f.SetCellValue(itemSheet, fmt.Sprintf("E%d", itemRow), *item.Confidence)
			}
			_ = f.SetCellValue(itemSheet, fmt.Sprintf("F%d", itemRow), item.ImageURL)
			_ = f.SetCellValue(itemSheet, fmt.Sprintf("G%d", itemRow), item.CheckedAt.Format(time.RFC3339))
			itemRow++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
