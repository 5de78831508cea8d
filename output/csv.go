package output

import (
	"bufio"
	"encoding/csv"
	"os"

	"gonum.org/v1/gonum/mat"
)

// create opens fn for writing and hands a buffered csv writer to f
func create(fn string, f func(*csv.Writer) error) error {
	fid, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer fid.Close()
	buf := bufio.NewWriter(fid)
	w := csv.NewWriter(buf)
	if err := f(w); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	return fid.Close()
}

// writeMatrixCSV writes one line per row of m
func writeMatrixCSV(fn string, m *mat.Dense) error {
	return create(fn, func(w *csv.Writer) error {
		r, c := m.Dims()
		line := make([]string, c)
		for i := 0; i < r; i++ {
			for j := range line {
				line[j] = format(m.At(i, j))
			}
			if err := w.Write(line); err != nil {
				return err
			}
		}
		return nil
	})
}

// writeTableCSV writes a header with the column names and one line per row.
// Short columns leave their trailing cells empty.
func writeTableCSV(fn string, cols []Column) error {
	return create(fn, func(w *csv.Writer) error {
		line := make([]string, len(cols))
		for j, c := range cols {
			line[j] = c.Name
		}
		if err := w.Write(line); err != nil {
			return err
		}
		for i := 0; i < rows(cols); i++ {
			for j, c := range cols {
				line[j] = ""
				if i < len(c.Values) {
					line[j] = format(c.Values[i])
				}
			}
			if err := w.Write(line); err != nil {
				return err
			}
		}
		return nil
	})
}
