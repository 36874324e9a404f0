package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Table is one rectangular block of cells read from an input unit: a CSV file
// or a single worksheet. Rows are raw strings; typing happens downstream.
type Table struct {
	Source string
	Sheet  string
	Rows   [][]string
	// Err is set when this sheet could not be read while its siblings could.
	Err error
}

// Name identifies the table in messages, e.g. "runs.xlsx (sheet: Results)".
func (t *Table) Name() string {
	if t.Sheet == "" {
		return t.Source
	}
	return fmt.Sprintf("%s (sheet: %s)", t.Source, t.Sheet)
}

// Options tunes how tables are read.
type Options struct {
	// Sheet restricts workbook reads to one sheet (case-insensitive). When the
	// sheet is missing every sheet is returned and Pick falls back to the first.
	Sheet string
	// Delimiter for CSV. If 0, sniffed from the first line.
	Delimiter rune
}

// Reader reads one file format into tables.
type Reader interface {
	CanRead(name string) bool
	Read(name string, data []byte, opt Options) ([]*Table, error)
}

var registry []Reader

// Register adds a reader implementation to the registry.
func Register(r Reader) {
	registry = append(registry, r)
}

// Read selects a reader by file name and returns the tables it contains.
func Read(name string, data []byte, opt Options) ([]*Table, error) {
	for _, r := range registry {
		if r.CanRead(name) {
			return r.Read(filepath.Base(name), data, opt)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(name))
}

// ReadFile reads path from disk and parses it with Read.
func ReadFile(path string, opt Options) ([]*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return Read(path, data, opt)
}

// Pick returns the table whose sheet matches name, or the first table.
func Pick(tables []*Table, sheet string) *Table {
	if len(tables) == 0 {
		return nil
	}
	if sheet != "" {
		for _, t := range tables {
			if strings.EqualFold(strings.TrimSpace(t.Sheet), strings.TrimSpace(sheet)) {
				return t
			}
		}
	}
	return tables[0]
}

func init() {
	Register(csvReader{})
	Register(xlsxReader{})
}

// ErrUnsupported indicates a format is not supported.
var ErrUnsupported = errors.New("unsupported table format")
