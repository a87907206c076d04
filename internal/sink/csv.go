// Package sink persists result tables as CSV files, locally and optionally in S3.
package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"athena-query-scheduler/internal/models"
)

// CSVWriter writes tables to <baseDir>/<dir>/<name>.csv. Files are written to a
// temporary name and renamed, so rewriting the same name replaces it whole.
type CSVWriter struct {
	baseDir string
}

func NewCSVWriter(baseDir string) *CSVWriter {
	if baseDir == "" {
		baseDir = "./output"
	}
	return &CSVWriter{baseDir: baseDir}
}

// Path returns where Write puts dir/name.
func (w *CSVWriter) Path(dir, name string) (string, error) {
	rel, err := objectKey(dir, name)
	if err != nil {
		return "", err
	}
	return filepath.Join(w.baseDir, filepath.FromSlash(rel)), nil
}

func (w *CSVWriter) Write(_ context.Context, table models.Table, dir, name string) (string, error) {
	path, err := w.Path(dir, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create dirs: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after rename

	if err := EncodeCSV(tmp, table); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename result: %w", err)
	}
	return path, nil
}

// EncodeCSV writes the header then every row. Null cells become empty fields.
func EncodeCSV(w io.Writer, table models.Table) error {
	cw := csv.NewWriter(w)
	if len(table.Columns) > 0 {
		if err := cw.Write(table.Columns); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	record := make([]string, len(table.Columns))
	for _, row := range table.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) && row[i] != nil {
				record[i] = *row[i]
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ReadCSV loads a file written by CSVWriter. Empty fields read back as empty
// strings, not nulls.
func ReadCSV(path string) (models.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Table{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return models.Table{}, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return models.Table{}, nil
	}
	table := models.Table{Columns: records[0], Rows: make([][]*string, 0, len(records)-1)}
	for _, rec := range records[1:] {
		row := make([]*string, len(rec))
		for i := range rec {
			row[i] = &rec[i]
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// objectKey joins dir and name into a relative slash path ending in .csv and
// refuses anything that would escape the base directory.
func objectKey(dir, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", errors.New("empty result name")
	}
	key := filepath.ToSlash(filepath.Clean(filepath.Join(dir, name+".csv")))
	key = strings.TrimPrefix(key, "/")
	if key == ".." || strings.HasPrefix(key, "../") {
		return "", fmt.Errorf("result name %q escapes output dir", filepath.Join(dir, name))
	}
	return key, nil
}
