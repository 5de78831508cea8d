// Package psf models the point spread function of the telescope.
//
// A PSF answers two questions for the imager: how wide a photometric aperture
// has to be to contain a given share of the energy of a point source, and
// which share of that energy falls onto each pixel of the aperture.  Widths
// are reduced observation angles, the diameter of the aperture as seen from
// the telescope in units of lambda / D.
//
// Airy computes both from the analytic (optionally annular) Airy disk.
// Gridded works on a sampled PSF read from a FITS file or a Zemax export.
// Both blur the PSF with a Gaussian pointing jitter on request.
package psf

import (
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/LukasK13/ESBO-ETC/logging"
	"github.com/LukasK13/ESBO-ETC/mathx"
	"github.com/LukasK13/ESBO-ETC/pixelmask"
	"github.com/LukasK13/ESBO-ETC/units"
)

type ceKind int

const (
	cePercent ceKind = iota
	cePeak
	ceFWHM
	ceMin
)

// ContainedEnergy is the share of a point source's energy a photometric
// aperture has to contain.  It is a percentage or one of Peak, FWHM and Min.
type ContainedEnergy struct {
	kind ceKind
	frac float64
}

var (
	// Peak exposes the pixel holding the maximum of the PSF only
	Peak = ContainedEnergy{kind: cePeak}
	// FWHM is the full width at half maximum
	FWHM = ContainedEnergy{kind: ceFWHM}
	// Min is the diameter of the first dark ring of the Airy disk
	Min = ContainedEnergy{kind: ceMin}
)

// Percent returns the contained energy p in percent
func Percent(p float64) ContainedEnergy {
	return ContainedEnergy{kind: cePercent, frac: p / 100}
}

// ParseContainedEnergy parses "peak", "fwhm", "min" or a percentage with or
// without a trailing %
func ParseContainedEnergy(s string) (ContainedEnergy, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	switch t {
	case "peak":
		return Peak, nil
	case "fwhm":
		return FWHM, nil
	case "min":
		return Min, nil
	}
	p, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(t, "%")), 64)
	if err != nil || p <= 0 || p > 100 {
		return ContainedEnergy{}, errors.Errorf("contained energy must be 'peak', 'fwhm', 'min' or a percentage in (0, 100], got '%s'", s)
	}
	return Percent(p), nil
}

// Fraction returns the contained energy as a fraction of 1.  ok is false for
// Peak, FWHM and Min.
func (c ContainedEnergy) Fraction() (f float64, ok bool) {
	return c.frac, c.kind == cePercent
}

func (c ContainedEnergy) String() string {
	switch c.kind {
	case cePeak:
		return "peak"
	case ceFWHM:
		return "fwhm"
	case ceMin:
		return "min"
	}
	return strconv.FormatFloat(c.frac*100, 'g', -1, 64) + "%"
}

// PSF is a point spread function.  jitter is the standard deviation of the
// pointing jitter as an angle, nil for none.  obstruction is the share of the
// aperture area that is blocked.
type PSF interface {
	// ReducedObservationAngle returns the diameter of the circle containing
	// ce of the energy, in lambda / D
	ReducedObservationAngle(ce ContainedEnergy, jitter *units.Quantity, obstruction float64) (float64, error)

	// MapToPixelMask returns a mask holding the share of the energy that falls
	// onto each exposed pixel of m
	MapToPixelMask(m *pixelmask.Mask, jitter *units.Quantity, obstruction float64) (*pixelmask.Mask, error)
}

// Params describe the optical system a PSF belongs to
type Params struct {
	// FNumber is the working focal number
	FNumber float64
	// WL is the central wavelength the PSF is computed for
	WL units.Quantity
	// DAperture is the diameter of the telescope's aperture
	DAperture units.Quantity
	// OSF is the oversampling of a pixel when mapping the PSF onto a mask
	OSF float64
	// PixelSize is the edge length of a detector pixel
	PixelSize units.Quantity
}

// geom holds Params in SI units
type geom struct {
	fNumber float64
	wl, d   float64
	pix     float64
	osf     int
}

func (p Params) geom() (geom, error) {
	var g geom
	if !(p.FNumber > 0) {
		return g, errors.Errorf("f-number must be positive, got %g", p.FNumber)
	}
	if !(p.OSF >= 1) {
		return g, errors.Errorf("oversampling factor must be at least 1, got %g", p.OSF)
	}
	var err error
	if g.wl, err = p.WL.To(units.Meter); err != nil || !(g.wl > 0) {
		return g, errors.Errorf("central wavelength must be a positive length, got %s", p.WL)
	}
	if g.d, err = p.DAperture.To(units.Meter); err != nil || !(g.d > 0) {
		return g, errors.Errorf("aperture diameter must be a positive length, got %s", p.DAperture)
	}
	if g.pix, err = p.PixelSize.To(units.Meter); err != nil || !(g.pix > 0) {
		return g, errors.Errorf("pixel size must be a positive length, got %s", p.PixelSize)
	}
	g.fNumber = p.FNumber
	g.osf = int(mathx.Round(p.OSF, 1))
	return g, nil
}

// reduced converts a length in the focal plane to lambda / D
func (g geom) reduced(l float64) float64 {
	return l / (g.fNumber * g.d) * g.d / g.wl
}

// Option configures a PSF
type Option func(*options)

type options struct {
	log logging.Logger
}

// WithLogger sets the sink for warnings
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

func collect(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.log = logging.OrNoop(o.log)
	return o
}

// Open returns the PSF named by source: "airy" for the Airy disk, else the
// path of a FITS file (.fits, .fit, .fts) or of a Zemax text export
func Open(source string, p Params, opts ...Option) (PSF, error) {
	if strings.EqualFold(source, "airy") {
		return NewAiry(p, opts...)
	}
	switch strings.ToLower(filepath.Ext(source)) {
	case ".fits", ".fit", ".fts":
		return ReadFITS(source, p, opts...)
	}
	return ReadZemax(source, p, opts...)
}

// jitterAngle returns the jitter in rad, 0 for none
func jitterAngle(j *units.Quantity) (float64, error) {
	if j == nil {
		return 0, nil
	}
	v, err := j.To(units.Radian)
	if err != nil {
		return 0, errors.Errorf("jitter must be an angle, got %s", j)
	}
	if v < 0 {
		return 0, errors.Errorf("jitter must not be negative, got %s", j)
	}
	return v, nil
}

func checkObstruction(o float64) error {
	if !(o >= 0 && o < 1) {
		return errors.Errorf("obstruction must be within [0, 1), got %g", o)
	}
	return nil
}

func closeToZero(x float64) bool {
	return math.Abs(x) <= 1e-8
}

// crop returns the bounding box of m's exposed pixels as a view
func crop(m *pixelmask.Mask) (*pixelmask.View, error) {
	r0, r1, c0, c1, ok := m.BoundingBox()
	if !ok {
		return nil, errors.New("the photometric aperture does not expose any pixel")
	}
	return m.Sub(r0, r1, c0, c1)
}

// oversampledCenter returns the centre of v in the view oversampled by osf
func oversampledCenter(v *pixelmask.View, osf int) [2]float64 {
	f := float64(osf)
	return [2]float64{(v.PSFCenterInd[0]+0.5)*f - 0.5, (v.PSFCenterInd[1]+0.5)*f - 0.5}
}

// binDown sums blocks of osf x osf elements
func binDown(m *mat.Dense, osf int) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r/osf, c/osf, nil)
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		for j, v := range row[:c] {
			bi, bj := i/osf, j/osf
			out.Set(bi, bj, out.At(bi, bj)+v)
		}
	}
	return out
}

// finish weights the binned PSF with the mask, scales it and writes it back
func finish(m *pixelmask.Mask, v *pixelmask.View, binned *mat.Dense, scale float64) (*pixelmask.Mask, error) {
	binned.MulElem(binned, v.Data)
	binned.Scale(scale, binned)
	v.Data = binned
	return m.Replace(v)
}

func (c ContainedEnergy) errUnsupported(kind string) error {
	return errors.Errorf("contained energy '%s' is not supported by the %s PSF", c, kind)
}
