package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/san-kum/looptune/internal/dynamo"
)

// ReadColumns reads the named numeric columns of a CSV with a header row,
// for step-test data exported from a historian or spreadsheet. Rows with an
// empty or unparsable value in any requested column are skipped.
func ReadColumns(r io.Reader, names ...string) ([][]float64, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make([]int, len(names))
	for i, name := range names {
		idx[i] = -1
		for j, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("%w: column %q not in header %v", dynamo.ErrInvalidParameter, name, header)
		}
	}

	cols := make([][]float64, len(names))
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make([]float64, len(names))
		ok := true
		for i, j := range idx {
			if j >= len(rec) {
				ok = false
				break
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[j]), 64)
			if err != nil {
				ok = false
				break
			}
			row[i] = v
		}
		if !ok {
			continue
		}
		for i, v := range row {
			cols[i] = append(cols[i], v)
		}
	}
	if len(cols[0]) == 0 {
		return nil, fmt.Errorf("%w: no numeric rows", dynamo.ErrInsufficientData)
	}
	return cols, nil
}
