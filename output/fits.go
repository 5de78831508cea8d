package output

import (
	"math"
	"os"

	"github.com/astrogo/fitsio"
	"gonum.org/v1/gonum/mat"
)

// writeFITS streams the primary HDU and the extensions of hdus to fn
func writeFITS(fn string, hdus ...fitsio.HDU) error {
	fh, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer fh.Close()
	f, err := fitsio.Create(fh)
	if err != nil {
		return err
	}
	for _, hdu := range hdus {
		if err := f.Write(hdu); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return fh.Close()
}

// writeMatrixFITS writes m as a 64 bit float image in electrons.  The first
// axis runs along the rows of m.
func writeMatrixFITS(fn string, m *mat.Dense, expTime float64) error {
	r, c := m.Dims()
	data := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		data = append(data, m.RawRowView(i)...)
	}
	im := fitsio.NewImage(-64, []int{c, r})
	defer im.Close()
	err := im.Header().Append(
		fitsio.Card{Name: "BUNIT", Value: "electron", Comment: "charge per pixel"},
		fitsio.Card{Name: "EXPTIME", Value: expTime, Comment: "exposure time in s"},
	)
	if err != nil {
		return err
	}
	if err := im.Write(data); err != nil {
		return err
	}
	return writeFITS(fn, im)
}

// writeTableFITS writes cols as a binary table extension.  Short columns are
// padded with NaN.
func writeTableFITS(fn string, cols []Column) error {
	phdu, err := fitsio.NewPrimaryHDU(nil)
	if err != nil {
		return err
	}
	fcols := make([]fitsio.Column, len(cols))
	for j, c := range cols {
		name, unit := c.label()
		fcols[j] = fitsio.Column{Name: name, Format: "D", Unit: unit}
	}
	tbl, err := fitsio.NewTable("RESULT", fcols, fitsio.BINARY_TBL)
	if err != nil {
		return err
	}
	defer tbl.Close()

	row := make([]float64, len(cols))
	ptrs := make([]interface{}, len(cols))
	for j := range row {
		ptrs[j] = &row[j]
	}
	for i := 0; i < rows(cols); i++ {
		for j, c := range cols {
			row[j] = math.NaN()
			if i < len(c.Values) {
				row[j] = c.Values[i]
			}
		}
		if err := tbl.Write(ptrs...); err != nil {
			return err
		}
	}
	return writeFITS(fn, phdu, tbl)
}
