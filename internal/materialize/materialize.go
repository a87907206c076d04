// Package materialize turns raw service rows into tables.
package materialize

import (
	"errors"

	"athena-query-scheduler/internal/models"
)

// ErrEmptyResult means the service returned no rows at all, not even a header.
var ErrEmptyResult = errors.New("empty result: no header row")

// ToTable uses the first row as the header and the rest as data. Rows shorter than
// the header are padded with nulls; cells beyond the header are dropped. A header cell
// that is null becomes an empty column name.
func ToTable(rows []models.RawRow) (models.Table, error) {
	if len(rows) == 0 {
		return models.Table{}, ErrEmptyResult
	}
	header := make([]string, len(rows[0]))
	for i, c := range rows[0] {
		if c != nil {
			header[i] = *c
		}
	}
	data := make([][]*string, 0, len(rows)-1)
	for _, raw := range rows[1:] {
		row := make([]*string, len(header))
		copy(row, raw)
		data = append(data, row)
	}
	return models.Table{Columns: header, Rows: data}, nil
}
