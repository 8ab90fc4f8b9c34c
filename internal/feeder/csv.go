package feeder

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// CSVFeeder reads records from a CSV file and provides them in round-robin order.
// It is safe for concurrent access.
type CSVFeeder struct {
	cycle
}

// NewCSVFeeder creates a new CSV feeder from the given file path.
// The first row is treated as the header containing field names.
func NewCSVFeeder(path string) (*CSVFeeder, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV file must have at least one header row and one data row")
	}

	header := make([]string, len(rows[0]))
	for i, field := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(field))
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d has %d fields, expected %d", i+2, len(row), len(header))
		}
		record := make(Record, len(header))
		for j, field := range header {
			record[field] = row[j]
		}
		records = append(records, record)
	}

	return &CSVFeeder{cycle: cycle{records: records}}, nil
}

// Next returns the next record in round-robin order.
func (f *CSVFeeder) Next(ctx context.Context) (Record, error) {
	return f.next(ctx)
}

// Close is a no-op; the file is read fully on construction.
func (f *CSVFeeder) Close() error {
	return nil
}

// Len returns the total number of records in the dataset.
func (f *CSVFeeder) Len() int {
	return len(f.records)
}
