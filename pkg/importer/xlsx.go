package importer

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

func init() {
	Register(xlsxReader{})
}

type xlsxReader struct{}

func (xlsxReader) Format() string       { return "xlsx" }
func (xlsxReader) Extensions() []string { return []string{"xlsx", "xlsm"} }

func (xlsxReader) Read(r io.Reader, opts Options) ([]Record, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrNoHeader
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	// Leading blank rows are common above the header in exported workbooks.
	for len(rows) > 0 && blankRow(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return nil, ErrNoHeader
	}
	l, err := opts.Columns.resolve(rows[0])
	if err != nil {
		return nil, err
	}
	return l.records(rows[1:]), nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if c != "" {
			return false
		}
	}
	return true
}
