package reports

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
	"github.com/xuri/excelize/v2"
)

// ExportHeader is the column layout shared by the CSV and XLSX exports.
var ExportHeader = []string{
	"Full Name",
	"Hotel",
	"Bed Number",
	"Nationality",
	"Purpose",
	"Timestamp",
}

const exportSheetName = "Guests"

// ExportFileName returns the download name for a window export.
func ExportFileName(window Window, extension string) string {
	return fmt.Sprintf("Begu_Engeda_Report_%s.%s", window, extension)
}

func exportRow(guest state.GuestRecord) []string {
	return []string{
		guest.FullName,
		guest.OriginName,
		guest.BedNumber,
		guest.Nationality,
		string(guest.Purpose),
		guest.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// ExportCSV renders guests as comma-separated values with a header row.
func ExportCSV(guests []state.GuestRecord) ([]byte, error) {
	var buffer bytes.Buffer
	writer := csv.NewWriter(&buffer)
	if err := writer.Write(ExportHeader); err != nil {
		return nil, err
	}
	for _, guest := range guests {
		if err := writer.Write(exportRow(guest)); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

// ExportXLSX renders guests as a single-sheet workbook.
func ExportXLSX(guests []state.GuestRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#F5C451"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeSheetRow(f, 1, ExportHeader); err != nil {
		return nil, err
	}
	lastHeader, err := excelize.CoordinatesToCellName(len(ExportHeader), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(exportSheetName, "A1", lastHeader, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	for offset, guest := range guests {
		if err := writeSheetRow(f, offset+2, exportRow(guest)); err != nil {
			return nil, err
		}
	}

	var buffer bytes.Buffer
	if err := f.Write(&buffer); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buffer.Bytes(), nil
}

func writeSheetRow(f *excelize.File, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, value := range values {
		cells[i] = value
	}
	if err := f.SetSheetRow(exportSheetName, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}
