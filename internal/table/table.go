// Package table loads CSV uploads into in-memory tables and renders them the
// way a dataframe prints.
package table

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNoColumns is returned for input without a header row.
var ErrNoColumns = errors.New("no columns to parse from file")

// Table is one parsed CSV file. Rows are padded to len(Columns).
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Shape returns (rows, columns).
func (t *Table) Shape() (int, int) {
	return len(t.Rows), len(t.Columns)
}

// naValues are the cell values read as missing.
var naValues = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// IsMissing reports whether a cell value counts as missing.
func IsMissing(v string) bool {
	_, ok := naValues[v]
	return ok
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse reads CSV data with a header row. Blank lines are skipped, short
// rows are padded and rows wider than the header are rejected.
func Parse(name string, r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoColumns
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := &Table{Name: name, Columns: headerNames(header)}
	ncol := len(t.Columns)
	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(t.Rows)+1, err)
		}
		if len(rec) > ncol {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("expected %d fields in line %d, saw %d", ncol, line, len(rec))
		}
		row := make([]string, ncol)
		copy(row, rec)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ParseFile parses a CSV file from disk, naming the table after its base name.
func ParseFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return Parse(filepath.Base(path), f)
}

// headerNames fills empty names and suffixes duplicates: a, a.1, a.2.
func headerNames(header []string) []string {
	names := make([]string, len(header))
	counts := map[string]int{}
	for i, h := range header {
		col := h
		if strings.TrimSpace(col) == "" {
			col = fmt.Sprintf("Unnamed: %d", i)
		}
		cur := counts[col]
		for cur > 0 {
			counts[col] = cur + 1
			col = fmt.Sprintf("%s.%d", col, cur)
			cur = counts[col]
		}
		names[i] = col
		counts[col] = cur + 1
	}
	return names
}
