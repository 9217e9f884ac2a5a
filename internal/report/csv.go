package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// CSVSink publishes the table to a CSV file. The first record of an existing
// file is taken as the header.
type CSVSink struct {
	Path string
}

func NewCSVSink(path string) *CSVSink {
	return &CSVSink{Path: path}
}

var _ Sink = (*CSVSink)(nil)

func (s *CSVSink) Header() ([]string, error) {
	file, err := os.Open(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.Path, err)
	}
	return header, nil
}

func (s *CSVSink) Clear() error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	return os.WriteFile(s.Path, nil, 0644)
}

// Write places values at anchor by padding with empty rows and columns, so
// anything other than "A1" leaves blank cells before the data. Padding rows
// carry at least two fields so they survive a CSV reader.
func (s *CSVSink) Write(anchor string, values [][]string) error {
	col, row, err := excelize.CellNameToCoordinates(anchor)
	if err != nil {
		return fmt.Errorf("invalid anchor %q: %w", anchor, err)
	}

	file, err := os.Create(s.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	width := col - 1
	if len(values) > 0 {
		width += len(values[0])
	}
	blank := make([]string, max(width, 2))
	for i := 1; i < row; i++ {
		if err := writer.Write(blank); err != nil {
			return err
		}
	}
	pad := make([]string, col-1)
	for _, record := range values {
		if err := writer.Write(append(pad[:len(pad):len(pad)], record...)); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
