package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is one raw term entry produced by a Source. Category may be empty.
type Record struct {
	ID         string
	Name       string
	Definition string
	Category   string
}

// Source supplies raw term records for a catalog load.
type Source interface {
	// Records reads all term records. Implementations return ErrSchema
	// (wrapped) when required fields are missing.
	Records(ctx context.Context) ([]Record, error)
}

// CSV column names. id, name and definition are required; category is optional.
const (
	columnID         = "id"
	columnName       = "name"
	columnDefinition = "definition"
	columnCategory   = "category"
)

// CSVSource reads term records from a CSV file with a header row.
type CSVSource struct {
	path string
}

// NewCSVSource creates a source reading from the given file path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Records reads and validates all rows from the CSV file.
func (s *CSVSource) Records(ctx context.Context) ([]Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog file: %w", err)
	}
	defer f.Close()

	return readRecords(ctx, f)
}

// readRecords parses CSV content from r. Split out for testability.
func readRecords(ctx context.Context, r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrSchema)
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, required := range []string{columnID, columnName, columnDefinition} {
		if _, ok := columns[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSchema, strings.Join(missing, ", "))
	}

	var records []Record
	seen := make(map[string]bool)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row: %w", err)
		}

		rec := Record{
			ID:         strings.TrimSpace(row[columns[columnID]]),
			Name:       strings.TrimSpace(row[columns[columnName]]),
			Definition: strings.TrimSpace(row[columns[columnDefinition]]),
		}
		if idx, ok := columns[columnCategory]; ok && idx < len(row) {
			rec.Category = strings.TrimSpace(row[idx])
		}

		if rec.ID == "" || rec.Name == "" || rec.Definition == "" {
			return nil, fmt.Errorf("%w: row with empty id, name or definition", ErrSchema)
		}
		if seen[rec.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrSchema, rec.ID)
		}
		seen[rec.ID] = true

		records = append(records, rec)
	}

	return records, nil
}
