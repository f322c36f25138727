package stats

import (
	"encoding/csv"
	"fmt"
	"os"
)

// MergeCSV joins per-source CSV tables column-wise. Every file must
// list the same metric names in its first column; the merged table
// keeps that column once and appends each file's remaining columns.
// With headers, one label per file is inserted as a header row,
// left-justified over that file's columns.
func MergeCSV(files []string, headers []string, delimiter rune) ([][]string, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("stats: no csv files to merge")
	}
	if headers != nil && len(headers) != len(files) {
		return nil, fmt.Errorf("stats: %d headers for %d files", len(headers), len(files))
	}

	first, err := readCSV(files[0], delimiter)
	if err != nil {
		return nil, err
	}
	table := make([][]string, 0, len(first))
	for _, row := range first {
		table = append(table, []string{row[0]})
	}

	var tableHeaders []string
	if headers != nil {
		tableHeaders = []string{""}
	}

	for i, file := range files {
		data, err := readCSV(file, delimiter)
		if err != nil {
			return nil, err
		}
		if len(data) != len(table) {
			return nil, fmt.Errorf("stats: %s has %d rows, want %d", file, len(data), len(table))
		}
		maxColumns := 0
		for _, row := range data {
			if len(row) > maxColumns {
				maxColumns = len(row)
			}
		}
		width := maxColumns - 1
		if headers != nil {
			tableHeaders = append(tableHeaders, ljust([]string{headers[i]}, width)...)
		}
		for rowIdx, row := range data {
			if table[rowIdx][0] != row[0] {
				return nil, fmt.Errorf("stats: %s row %d metric %q, want %q",
					file, rowIdx, row[0], table[rowIdx][0])
			}
			table[rowIdx] = append(table[rowIdx], ljust(row[1:], width)...)
		}
	}

	if tableHeaders != nil {
		return append([][]string{tableHeaders}, table...), nil
	}
	return table, nil
}

// WriteCSV writes rows with the given delimiter, padding is left to
// the caller.
func WriteCSV(path string, rows [][]string, delimiter rune) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	w.Comma = delimiter
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}

func readCSV(path string, delimiter rune) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("stats: read %s: %w", path, err)
	}
	return rows, nil
}

func ljust(row []string, width int) []string {
	for len(row) < width {
		row = append(row, "")
	}
	return row
}
