package report

import (
	"fmt"
	"strings"
)

// Row maps a column name to a cell value. Columns missing from a row render
// as empty cells.
type Row map[string]string

const (
	ColumnCrisisID    = "ID"
	ColumnCrisisName  = "Crisis name"
	ColumnTitle       = "dataset title"
	ColumnDatasetID   = "dataset id"
	ColumnDatasetURL  = "dataset url"
	ColumnOrgName     = "org name"
	ColumnOrgID       = "org id"
	ColumnCreated     = "created"
	ColumnStatus      = "new or updated"
	ColumnUpdatedWhen = "updated when"
	ColumnUpdatedBy   = "updated by"
)

// DefaultColumns is used when the sink has no header row yet.
var DefaultColumns = []string{
	ColumnCrisisID,
	ColumnCrisisName,
	ColumnTitle,
	ColumnDatasetID,
	ColumnDatasetURL,
	ColumnOrgName,
	ColumnOrgID,
	ColumnCreated,
	ColumnStatus,
	ColumnUpdatedWhen,
	ColumnUpdatedBy,
}

// Values lays the row out in header order.
func (r Row) Values(header []string) []string {
	values := make([]string, len(header))
	for i, key := range header {
		values[i] = r[key]
	}
	return values
}

// Render returns the header followed by every row laid out against it.
func Render(header []string, rows []Row) [][]string {
	values := make([][]string, 0, len(rows)+1)
	values = append(values, header)
	for _, row := range rows {
		values = append(values, row.Values(header))
	}
	return values
}

// Sink is a rectangular table the report is published to.
type Sink interface {
	// Header returns the first row of the table, or nothing when it is empty.
	Header() ([]string, error)
	Clear() error
	// Write stores values with its top-left cell at anchor, e.g. "A1".
	Write(anchor string, values [][]string) error
}

// Publish replaces the contents of s with rows laid out against the header
// currently in s. It returns the number of data rows written.
func Publish(s Sink, rows []Row) (int, error) {
	header, err := s.Header()
	if err != nil {
		return 0, fmt.Errorf("failed to read header: %w", err)
	}
	header = trimHeader(header)
	if len(header) == 0 {
		header = DefaultColumns
	}

	if err := s.Clear(); err != nil {
		return 0, fmt.Errorf("failed to clear sink: %w", err)
	}
	if err := s.Write("A1", Render(header, rows)); err != nil {
		return 0, fmt.Errorf("failed to write rows: %w", err)
	}
	return len(rows), nil
}

// trimHeader drops trailing blank header cells.
func trimHeader(header []string) []string {
	end := len(header)
	for end > 0 && strings.TrimSpace(header[end-1]) == "" {
		end--
	}
	return header[:end]
}
