package feeder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// JSONFeeder reads records from a JSON file containing an array of objects.
// It provides records in round-robin order and is safe for concurrent access.
type JSONFeeder struct {
	cycle
}

// NewJSONFeeder creates a new JSON feeder from the given file path.
// The file must contain a JSON array of objects.
func NewJSONFeeder(path string) (*JSONFeeder, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open JSON file: %w", err)
	}
	defer file.Close()

	var rawRecords []map[string]interface{}
	if err := json.NewDecoder(file).Decode(&rawRecords); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	if len(rawRecords) == 0 {
		return nil, fmt.Errorf("JSON file contains empty array")
	}

	records := make([]Record, 0, len(rawRecords))
	for i, rawRecord := range rawRecords {
		if len(rawRecord) == 0 {
			return nil, fmt.Errorf("record %d is empty", i)
		}
		record := make(Record, len(rawRecord))
		for key, value := range rawRecord {
			if value == nil {
				continue
			}
			record[strings.ToLower(key)] = fmt.Sprintf("%v", value)
		}
		records = append(records, record)
	}

	return &JSONFeeder{cycle: cycle{records: records}}, nil
}

// Next returns the next record in round-robin order.
func (f *JSONFeeder) Next(ctx context.Context) (Record, error) {
	return f.next(ctx)
}

// Close is a no-op; the file is read fully on construction.
func (f *JSONFeeder) Close() error {
	return nil
}

// Len returns the total number of records in the dataset.
func (f *JSONFeeder) Len() int {
	return len(f.records)
}
