package spectral

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/LukasK13/ESBO-ETC/units"
)

var (
	// headerUnit matches a bracketed unit in a column header, e.g. "wavelength [nm]"
	headerUnit = regexp.MustCompile(`\[([^\]]*)\]`)

	// metaUnit matches ECSV style column metadata, e.g. "# - {name: wavelength, unit: nm}"
	metaUnit = regexp.MustCompile(`^#\s*-\s*\{.*unit:\s*([^,}]+)`)
)

// FromFile reads a two column spectrum (wavelength, value).  Units are taken
// from bracketed column headers or ECSV style metadata if present, otherwise
// wlUnit and unit are assumed.  The result is expressed in wlUnit and unit and
// is truncated when resampled outside of its range unless opts say otherwise.
func FromFile(path string, wlUnit, unit units.Unit, opts ...Option) (*Qty, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening spectrum")
	}
	defer f.Close()
	q, err := Read(f, wlUnit, unit, opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return q, nil
}

// Read is FromFile on an io.Reader
func Read(r io.Reader, wlUnit, unit units.Unit, opts ...Option) (*Qty, error) {
	var (
		wl, val  []float64
		colUnits []string
		line     int
		header   bool
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line++
		txt := strings.TrimSpace(sc.Text())
		if txt == "" {
			continue
		}
		if strings.HasPrefix(txt, "#") {
			if m := metaUnit.FindStringSubmatch(txt); m != nil {
				colUnits = append(colUnits, strings.TrimSpace(m[1]))
			}
			continue
		}
		fields := splitRow(txt)
		if len(fields) != 2 {
			return nil, errors.Wrapf(ErrMalformedFile, "line %d: expected 2 columns, got %d", line, len(fields))
		}
		x, errX := strconv.ParseFloat(fields[0], 64)
		y, errY := strconv.ParseFloat(fields[1], 64)
		if errX != nil || errY != nil {
			if len(wl) == 0 && !header {
				// header row, its units give way to ECSV metadata
				header = true
				if len(colUnits) == 0 {
					for _, m := range headerUnit.FindAllStringSubmatch(txt, -1) {
						colUnits = append(colUnits, m[1])
					}
				}
				continue
			}
			return nil, errors.Wrapf(ErrMalformedFile, "line %d: %q is not numeric", line, txt)
		}
		wl = append(wl, x)
		val = append(val, y)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(wl) == 0 {
		return nil, errors.Wrap(ErrMalformedFile, "no data rows")
	}
	fileWL, fileVal := wlUnit, unit
	if len(colUnits) >= 2 {
		var err error
		if fileWL, err = units.Parse(colUnits[0]); err != nil {
			return nil, err
		}
		if fileVal, err = units.Parse(colUnits[1]); err != nil {
			return nil, err
		}
	}
	opts = append([]Option{WithFill(Truncate)}, opts...)
	return fromColumns(wl, val, fileWL, fileVal, wlUnit, unit, opts...)
}

// fromColumns converts raw columns to the requested units and sorts them by
// wavelength
func fromColumns(wl, val []float64, fileWL, fileVal, wlUnit, unit units.Unit, opts ...Option) (*Qty, error) {
	wlM := make([]float64, len(wl))
	target := make([]float64, len(wl))
	switch {
	case fileWL.Equivalent(units.Meter):
		f, err := fileWL.Factor(wlUnit)
		if err != nil {
			return nil, err
		}
		for i, w := range wl {
			wlM[i] = w * fileWL.Scale()
			target[i] = w * f
		}
	case fileWL.Equivalent(units.Hertz):
		for i, w := range wl {
			wlM[i] = units.C / (w * fileWL.Scale())
			target[i] = wlM[i] / wlUnit.Scale()
		}
	default:
		return nil, errors.Wrapf(units.ErrIncompatibleUnits, "wavelength column in %s", fileWL)
	}
	conv, err := convertDensity(val, wlM, fileVal, unit)
	if err != nil {
		return nil, err
	}
	idx := make([]int, len(wlM))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return wlM[idx[a]] < wlM[idx[b]] })
	outWL := make([]float64, len(idx))
	outVal := make([]float64, len(idx))
	for i, j := range idx {
		outWL[i] = target[j]
		outVal[i] = conv[j]
	}
	q, err := New(outWL, outVal, wlUnit, unit, opts...)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedFile, err.Error())
	}
	return q, nil
}

// splitRow splits a data row on commas, semicolons, tabs or runs of spaces
func splitRow(s string) []string {
	var fields []string
	switch {
	case strings.Contains(s, ","):
		fields = strings.Split(s, ",")
	case strings.Contains(s, ";"):
		fields = strings.Split(s, ";")
	default:
		fields = strings.Fields(s)
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	return fields
}
