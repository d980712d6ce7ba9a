package register

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// XLSXSource reads register rows from a local workbook.
type XLSXSource struct {
	Path string
}

// ReadRange returns the rows of the sheet named in rangeSpec. The column part
// of the range is ignored; short rows are returned as read.
func (s XLSXSource) ReadRange(_ context.Context, rangeSpec string) ([][]interface{}, error) {
	const op = "ReadRange"

	sheet := rangeSpec
	if i := strings.LastIndex(rangeSpec, "!"); i >= 0 {
		sheet = rangeSpec[:i]
	}

	f, err := excelize.OpenFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: open %s: %w", op, s.Path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%s: read sheet %s: %w", op, sheet, err)
	}

	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		values[i] = make([]interface{}, len(row))
		for j, v := range row {
			values[i][j] = v
		}
	}
	return values, nil
}
