package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/saadabdullah098/networksecurity/internal/persist"
)

// ParseCell converts a raw cell to a number. Empty cells and the missing
// markers "na", "nan" and "null" (any case) become NaN.
func ParseCell(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToLower(s) {
	case "", "na", "nan", "null", "none":
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", raw)
	}
	return v, nil
}

// FormatCell writes the shortest representation that parses back to the same
// float64. NaN is written as an empty cell.
func FormatCell(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv has no header")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	var rows [][]float64
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}
		row := make([]float64, len(rec))
		for j, cell := range rec {
			v, err := ParseCell(cell)
			if err != nil {
				return nil, fmt.Errorf("line %d column %q: %w", line, columns[j], err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return New(columns, rows)
}

func WriteCSV(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.columns); err != nil {
		return err
	}
	rec := make([]string, len(f.columns))
	for _, row := range f.rows {
		for j, v := range row {
			rec[j] = FormatCell(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ReadCSVFile(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer file.Close()
	frame, err := ReadCSV(file)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return frame, nil
}

// WriteCSVFile writes the frame with a header row and no index column.
func WriteCSVFile(path string, f *Frame) error {
	var buf strings.Builder
	if err := WriteCSV(&buf, f); err != nil {
		return errors.Wrapf(err, "encode %s", path)
	}
	return persist.WriteFile(path, []byte(buf.String()))
}
