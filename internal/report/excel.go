package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// ExcelSink publishes the table to one sheet of an xlsx workbook. The rest
// of the workbook is left alone.
type ExcelSink struct {
	Path  string
	Sheet string

	f *excelize.File
}

var _ Sink = (*ExcelSink)(nil)

// OpenExcelSink opens the workbook at path, or starts a new one when it does
// not exist yet, and makes sure sheet is present.
func OpenExcelSink(path, sheet string) (*ExcelSink, error) {
	var (
		f       *excelize.File
		err     error
		created bool
	)
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		f = excelize.NewFile()
		created = true
	} else {
		f, err = excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open workbook: %w", err)
		}
	}

	index, err := f.GetSheetIndex(sheet)
	if err != nil {
		f.Close()
		return nil, err
	}
	if index == -1 {
		index, err = f.NewSheet(sheet)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", sheet, err)
		}
		if created && sheet != "Sheet1" {
			_ = f.DeleteSheet("Sheet1")
			index, _ = f.GetSheetIndex(sheet)
		}
		f.SetActiveSheet(index)
	}

	return &ExcelSink{Path: path, Sheet: sheet, f: f}, nil
}

func (s *ExcelSink) Header() ([]string, error) {
	rows, err := s.f.GetRows(s.Sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (s *ExcelSink) Clear() error {
	rows, err := s.f.GetRows(s.Sheet)
	if err != nil {
		return err
	}
	for i := len(rows); i >= 1; i-- {
		if err := s.f.RemoveRow(s.Sheet, i); err != nil {
			return err
		}
	}
	return nil
}

// Write stores values at anchor, styles the first row as a header and saves
// the workbook.
func (s *ExcelSink) Write(anchor string, values [][]string) error {
	col, row, err := excelize.CellNameToCoordinates(anchor)
	if err != nil {
		return fmt.Errorf("invalid anchor %q: %w", anchor, err)
	}

	for i, record := range values {
		cell, err := excelize.CoordinatesToCellName(col, row+i)
		if err != nil {
			return err
		}
		if err := s.f.SetSheetRow(s.Sheet, cell, &record); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row+i, err)
		}
	}

	if len(values) > 0 && len(values[0]) > 0 {
		if err := s.styleHeader(col, row, len(values[0])); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := s.f.SaveAs(s.Path); err != nil {
		return fmt.Errorf("failed to save excel file: %w", err)
	}
	return nil
}

func (s *ExcelSink) styleHeader(col, row, width int) error {
	headerStyle, err := s.f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border: []excelize.Border{
			{Type: "left", Color: "#000000", Style: 1},
			{Type: "right", Color: "#000000", Style: 1},
			{Type: "top", Color: "#000000", Style: 1},
			{Type: "bottom", Color: "#000000", Style: 1},
		},
	})
	if err != nil {
		return err
	}

	first := cellName(col, row)
	last := cellName(col+width-1, row)
	if err := s.f.SetCellStyle(s.Sheet, first, last, headerStyle); err != nil {
		return err
	}
	if err := s.f.SetColWidth(s.Sheet, columnLetter(col), columnLetter(col+width-1), 20); err != nil {
		return err
	}

	return s.f.SetPanes(s.Sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      row,
		TopLeftCell: cellName(col, row+1),
		ActivePane:  "bottomLeft",
	})
}

func (s *ExcelSink) Close() error {
	return s.f.Close()
}

func cellName(col, row int) string {
	return fmt.Sprintf("%s%d", columnLetter(col), row)
}

func columnLetter(col int) string {
	result := ""
	for col > 0 {
		col--
		result = string(rune('A'+col%26)) + result
		col /= 26
	}
	return result
}
