package parser

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestReadCSV_SniffsSemicolonWithDecimalComma(t *testing.T) {
	data := []byte("Deformation;Standard_Stress\n0,1;12,5\n0,2;25,0\n")
	tables, err := Read("curve.csv", data, Options{})
	require.NoError(t, err)
	require.Len(t, tables, 1)
	tb := tables[0]
	assert.Equal(t, "curve.csv", tb.Name())
	require.Len(t, tb.Rows, 3)
	assert.Equal(t, []string{"Deformation", "Standard_Stress"}, tb.Rows[0])
	assert.Equal(t, []string{"0,1", "12,5"}, tb.Rows[1])
}

func TestReadCSV_CommaAndBOM(t *testing.T) {
	data := []byte("\xef\xbb\xbfa,b\n1,2\n")
	tables, err := Read("x.csv", data, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tables[0].Rows[0])
}

func TestRead_Unsupported(t *testing.T) {
	_, err := Read("notes.docx", []byte("x"), Options{})
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestReadXLSX_SheetSelectionAndFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.xlsx")
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"intro"}))
	_, err := f.NewSheet("Results")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Results", "A1", &[]any{"x", "y"}))
	require.NoError(t, f.SetSheetRow("Results", "A2", &[]any{1.5, 2}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	tables, err := ReadFile(path, Options{Sheet: "results"})
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "Results", tables[0].Sheet)
	assert.Equal(t, []string{"1.5", "2"}, tables[0].Rows[1])

	all, err := ReadFile(path, Options{Sheet: "missing"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Sheet1", Pick(all, "missing").Sheet)
	assert.Equal(t, "Results", Pick(all, "RESULTS").Sheet)
	assert.Nil(t, Pick(nil, "x"))
}

func TestReadXLSX_IgnoresNumberFormats(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"fiber", "share"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{72.3456, 0.7234}))
	twoDigits := "0.00"
	fixed, err := f.NewStyle(&excelize.Style{CustomNumFmt: &twoDigits})
	require.NoError(t, err)
	pct, err := f.NewStyle(&excelize.Style{NumFmt: 10}) // 0.00%
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle("Sheet1", "A2", "A2", fixed))
	require.NoError(t, f.SetCellStyle("Sheet1", "B2", "B2", pct))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	tables, err := Read("styled.xlsx", buf.Bytes(), Options{})
	require.NoError(t, err)
	row := tables[0].Rows[1]
	fiber, ok := ParseNumber(row[0], NumberFormat{})
	require.True(t, ok)
	assert.InDelta(t, 72.3456, fiber, 1e-9)
	share, ok := ParseNumber(row[1], NumberFormat{})
	require.True(t, ok)
	assert.InDelta(t, 0.7234, share, 1e-9)
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"12.5", 12.5, true},
		{"12,5", 12.5, true},
		{"1.000,5", 1000.5, true},
		{"1,000.5", 1000.5, true},
		{"72.3 %", 72.3, true},
		{"1e-3", 0.001, true},
		{"  7 ", 7, true},
		{"", 0, false},
		{"abc", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseNumber(c.in, NumberFormat{})
		assert.Equal(t, c.ok, ok, c.in)
		if c.ok {
			assert.InDelta(t, c.want, got, 1e-12, c.in)
		}
	}
	v, ok := ParseNumber("1.234", NumberFormat{Decimal: ',', Thousands: '.'})
	assert.True(t, ok)
	assert.InDelta(t, 1234, v, 1e-12)
}
