package models

// RawRow is one row as returned by the query service. A nil cell is a SQL NULL.
type RawRow []*string

// Table is a materialized query result. Rows keep the order returned by the service.
type Table struct {
	Columns []string    `json:"columns"`
	Rows    [][]*string `json:"rows"`
}

// Empty reports whether the table carries no data rows.
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// ColumnIndex returns the position of name in the header, or -1.
func (t Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Values returns the non-null cells of column i in row order.
func (t Table) Values(i int) []string {
	out := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if i < len(row) && row[i] != nil {
			out = append(out, *row[i])
		}
	}
	return out
}
