package config

import (
	"encoding/csv"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/LukasK13/ESBO-ETC/units"
)

var headerUnit = regexp.MustCompile(`\[([^\]]*)\]`)

// ReadList reads the first column of a CSV file, e.g. a list of exposure
// times.  A header row is optional; a bracketed unit in it ("exp_time [ms]")
// is honoured, otherwise the values are taken to be in u.
func ReadList(path string, u units.Unit) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var (
		vals []float64
		from = u
	)
	for row := 0; ; row++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", path)
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[0]), 64)
		if err != nil {
			if row == 0 {
				if m := headerUnit.FindStringSubmatch(rec[0]); m != nil {
					if from, err = units.Parse(m[1]); err != nil {
						return nil, err
					}
				}
				continue
			}
			return nil, errors.Errorf("%s line %d: %q is not numeric", path, row+1, rec[0])
		}
		vals = append(vals, v)
	}
	if len(vals) == 0 {
		return nil, errors.Errorf("%s contains no values", path)
	}
	return units.Array{Values: vals, Unit: from}.To(u)
}
