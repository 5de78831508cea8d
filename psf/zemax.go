package psf

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"gonum.org/v1/gonum/mat"

	"github.com/LukasK13/ESBO-ETC/logging"
	"github.com/LukasK13/ESBO-ETC/units"
)

// zemaxHeaderLines is the length of the header of a Zemax PSF export
const zemaxHeaderLines = 21

var (
	zemaxGridRe   = regexp.MustCompile(`^\s*Image grid size:\s*(\d+)\s+by\s+(\d+)`)
	zemaxAreaRe   = regexp.MustCompile(`^\s*Data area is\s+([0-9]+(?:[.,][0-9]*)?)\s+by\s+([0-9]+(?:[.,][0-9]*)?)\s+(.+?)\.?\s*$`)
	zemaxCenterRe = regexp.MustCompile(`^\s*Center point is:\s*row\s+(\d+),\s*column\s+(\d+)`)
)

// ReadZemax reads a PSF from the text export of Zemax's Huygens or FFT PSF
// analysis.  Exports are UTF-16 with a byte order mark or UTF-8, decimals may
// be written with a comma.  Zemax counts rows from the bottom of the grid.
func ReadZemax(path string, p Params, opts ...Option) (*Gridded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	z, err := parseZemax(f)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	g, err := NewGridded(z.grid, z.delta, z.center, p, opts...)
	if err != nil {
		return nil, err
	}
	if r, c := z.grid.Dims(); r != z.shape[0] || c != z.shape[1] {
		g.log.Warn("Not all PSF entries read.", logging.String("file", path))
	}
	return g, nil
}

type zemaxExport struct {
	grid   *mat.Dense
	shape  [2]int
	delta  [2]units.Quantity
	center [2]float64
}

func parseZemax(r io.Reader) (zemaxExport, error) {
	var z zemaxExport
	dec := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		area        [2]float64
		areaUnit    string
		row, column int
		got         int
	)
	for i := 0; i < zemaxHeaderLines && sc.Scan(); i++ {
		line := sc.Text()
		if m := zemaxGridRe.FindStringSubmatch(line); m != nil {
			z.shape[0], _ = strconv.Atoi(m[1])
			z.shape[1], _ = strconv.Atoi(m[2])
			got |= 1
		} else if m := zemaxAreaRe.FindStringSubmatch(line); m != nil {
			area[0], _ = parseComma(m[1])
			area[1], _ = parseComma(m[2])
			areaUnit = m[3]
			got |= 2
		} else if m := zemaxCenterRe.FindStringSubmatch(line); m != nil {
			row, _ = strconv.Atoi(m[1])
			column, _ = strconv.Atoi(m[2])
			got |= 4
		}
	}
	switch {
	case got&1 == 0:
		return z, errors.New("header is missing 'Image grid size'")
	case got&2 == 0:
		return z, errors.New("header is missing 'Data area is'")
	case got&4 == 0:
		return z, errors.New("header is missing 'Center point is'")
	case z.shape[0] == 0 || z.shape[1] == 0:
		return z, errors.New("image grid size must be positive")
	}
	u, err := units.Parse(areaUnit)
	if err != nil || !u.Equivalent(units.Meter) {
		return z, errors.Errorf("data area must be given in a length unit, got '%s'", areaUnit)
	}

	var data []float64
	rows, cols := 0, 0
	for sc.Scan() {
		vals := make([]float64, 0, cols)
		for _, s := range strings.Split(sc.Text(), "\t") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			v, err := parseComma(s)
			if err != nil {
				return z, errors.Errorf("row %d: can not parse '%s'", rows+1, s)
			}
			vals = append(vals, v)
		}
		if len(vals) == 0 {
			continue
		}
		if cols == 0 {
			cols = len(vals)
		} else if len(vals) != cols {
			return z, errors.Errorf("row %d has %d values, expected %d", rows+1, len(vals), cols)
		}
		data = append(data, vals...)
		rows++
	}
	if err := sc.Err(); err != nil {
		return z, err
	}
	if rows == 0 {
		return z, errors.New("no PSF data")
	}

	z.grid = mat.NewDense(rows, cols, data)
	z.delta = [2]units.Quantity{
		units.Q(area[0]/float64(z.shape[0]), u),
		units.Q(area[1]/float64(z.shape[1]), u),
	}
	z.center = [2]float64{float64(rows - row), float64(column - 1)}
	return z, nil
}

func parseComma(s string) (float64, error) {
	return strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
}
