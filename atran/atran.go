// Package atran computes atmospheric transmission spectra with ATRAN, the
// atmospheric transmission model operated by the SOFIA science center, and
// reads its result files.
//
// ATRAN is reachable as a web form.  A Client posts the model parameters,
// follows the link to the result file in the returned page and parses it.
// Results are cached per parameter set for the lifetime of the Client.
package atran

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/LukasK13/ESBO-ETC/logging"
	"github.com/LukasK13/ESBO-ETC/spectral"
	"github.com/LukasK13/ESBO-ETC/units"
)

// ErrService is the cause of every error reported by the ATRAN service itself
var ErrService = errors.New("ATRAN service error")

// Latitudes are the observatory latitudes in degrees ATRAN has profiles for
var Latitudes = []float64{9, 30, 39, 43, 59}

// Layers are the numbers of atmospheric layers ATRAN accepts
var Layers = []int{2, 3, 4, 5}

// Request holds the parameters of an ATRAN model run
type Request struct {
	// Altitude of the observatory
	Altitude units.Quantity `mapstructure:"altitude"`

	// WLMin and WLMax bound the computed spectrum
	WLMin units.Quantity `mapstructure:"wl_min"`
	WLMax units.Quantity `mapstructure:"wl_max"`

	// Latitude of the observatory, snapped to the closest of Latitudes
	Latitude units.Quantity `mapstructure:"latitude"`

	// WaterVapor is the precipitable water vapor overburden
	WaterVapor units.Quantity `mapstructure:"water_vapor"`

	// Layers is the number of atmospheric layers, snapped to Layers
	Layers int `mapstructure:"n_layers"`

	// ZenithAngle of the line of sight
	ZenithAngle units.Quantity `mapstructure:"zenith_angle"`

	// Resolution of the smoothed spectrum, 0 for no smoothing
	Resolution int `mapstructure:"resolution"`
}

// DefaultRequest returns the defaults of the optional parameters: 39 deg
// latitude, no water vapor, two layers, zenith pointing and no smoothing
func DefaultRequest() Request {
	return Request{
		Latitude:    units.Q(39, units.Degree),
		WaterVapor:  units.Q(0, units.Micrometer),
		Layers:      2,
		ZenithAngle: units.Q(0, units.Degree),
	}
}

// form is a request reduced to the values sent to the service.  It is
// comparable and keys the cache.
type form struct {
	altitude float64 // ft
	latitude int     // deg
	vapor    float64 // um
	layers   int
	zenith   float64 // deg
	wlMin    float64 // um
	wlMax    float64 // um
	res      int
}

func (r Request) form() (form, error) {
	var f form
	var err error
	conv := func(q units.Quantity, u units.Unit, name string) float64 {
		if err != nil {
			return 0
		}
		v, e := q.To(u)
		if e != nil {
			err = errors.Wrapf(e, "ATRAN parameter %s", name)
		}
		return v
	}
	f.altitude = conv(r.Altitude, units.Foot, "altitude")
	f.vapor = conv(r.WaterVapor, units.Micrometer, "water_vapor")
	f.zenith = conv(r.ZenithAngle, units.Degree, "zenith_angle")
	f.wlMin = conv(r.WLMin, units.Micrometer, "wl_min")
	f.wlMax = conv(r.WLMax, units.Micrometer, "wl_max")
	lat := conv(r.Latitude, units.Degree, "latitude")
	if err != nil {
		return f, err
	}
	if !(f.wlMax > f.wlMin) || f.wlMin <= 0 {
		return f, errors.Errorf("ATRAN wavelength range [%g, %g] um is empty", f.wlMin, f.wlMax)
	}
	f.latitude = int(closest(Latitudes, lat))
	f.layers = closestInt(Layers, r.Layers)
	f.res = r.Resolution
	return f, nil
}

// values encodes the form the way the ATRAN web form posts it
func (f form) values() url.Values {
	v := url.Values{}
	v.Set("Altitude", strconv.FormatFloat(f.altitude, 'g', -1, 64))
	v.Set("Obslat", fmt.Sprintf("%d deg", f.latitude))
	v.Set("WVapor", strconv.FormatFloat(f.vapor, 'g', -1, 64))
	v.Set("NLayers", strconv.Itoa(f.layers))
	v.Set("ZenithAngle", strconv.FormatFloat(f.zenith, 'g', -1, 64))
	v.Set("WaveMin", strconv.FormatFloat(f.wlMin, 'g', -1, 64))
	v.Set("WaveMax", strconv.FormatFloat(f.wlMax, 'g', -1, 64))
	v.Set("Resolution", strconv.Itoa(f.res))
	return v
}

func closest(choices []float64, v float64) float64 {
	best := choices[0]
	for _, c := range choices[1:] {
		if math.Abs(c-v) < math.Abs(best-v) {
			best = c
		}
	}
	return best
}

func closestInt(choices []int, v int) int {
	best := choices[0]
	for _, c := range choices[1:] {
		if abs(c-v) < abs(best-v) {
			best = c
		}
	}
	return best
}

func abs(i int) int {
	if i < 0 {
		return -i
	}
	return i
}

// Parse reads an ATRAN result file.  Each row holds an index, the wavelength
// in um and the transmittance; further columns are ignored.  The returned
// quantity is dimensionless on a micrometer grid and truncates on resampling.
func Parse(r io.Reader, opts ...spectral.Option) (*spectral.Qty, error) {
	type row struct{ wl, t float64 }
	var rows []row
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		fields := strings.Fields(s)
		if len(fields) < 3 {
			return nil, errors.Wrapf(spectral.ErrMalformedFile, "ATRAN line %d: expected at least 3 columns, got %d", line, len(fields))
		}
		wl, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, errors.Wrapf(spectral.ErrMalformedFile, "ATRAN line %d: %s", line, err)
		}
		t, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, errors.Wrapf(spectral.ErrMalformedFile, "ATRAN line %d: %s", line, err)
		}
		rows = append(rows, row{wl, t})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.Wrap(spectral.ErrMalformedFile, "ATRAN result is empty")
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].wl < rows[j].wl })
	wl := make([]float64, 0, len(rows))
	t := make([]float64, 0, len(rows))
	for i, r := range rows {
		if i > 0 && r.wl == rows[i-1].wl {
			continue
		}
		wl = append(wl, r.wl)
		t = append(t, r.t)
	}
	opts = append([]spectral.Option{spectral.WithFill(spectral.Truncate)}, opts...)
	return spectral.New(wl, t, units.Micrometer, units.Dimensionless, opts...)
}

// ReadFile reads an ATRAN result file from disk
func ReadFile(path string, l logging.Logger) (*spectral.Qty, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	q, err := Parse(f, spectral.WithLogger(l))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return q, nil
}
