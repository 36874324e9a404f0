package parser

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

type xlsxReader struct{}

func (xlsxReader) CanRead(name string) bool {
	n := strings.ToLower(name)
	return strings.HasSuffix(n, ".xlsx") || strings.HasSuffix(n, ".xlsm")
}

// Read returns one table per worksheet, with stored cell values rather than
// their display formatting. With opt.Sheet set and present, only
// that sheet is returned. A sheet that fails to read carries its own Err so
// callers can keep going with the others.
func (xlsxReader) Read(name string, data []byte, opt Options) ([]*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx %s: %w", name, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", name)
	}
	if opt.Sheet != "" {
		for _, s := range sheets {
			if strings.EqualFold(strings.TrimSpace(s), strings.TrimSpace(opt.Sheet)) {
				sheets = []string{s}
				break
			}
		}
	}
	tables := make([]*Table, 0, len(sheets))
	for _, s := range sheets {
		t := &Table{Source: name, Sheet: s}
		// Raw values: a styled 0.7234 must not come back as "72.34%".
		rows, err := f.GetRows(s, excelize.Options{RawCellValue: true})
		if err != nil {
			t.Err = fmt.Errorf("read sheet %q: %w", s, err)
		} else {
			t.Rows = rows
		}
		tables = append(tables, t)
	}
	return tables, nil
}
