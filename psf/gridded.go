package psf

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/LukasK13/ESBO-ETC/logging"
	"github.com/LukasK13/ESBO-ETC/mathx"
	"github.com/LukasK13/ESBO-ETC/pixelmask"
	"github.com/LukasK13/ESBO-ETC/units"
)

// Gridded is a PSF sampled on a regular grid in the focal plane.  Row 0 of
// the grid is the top row.
type Gridded struct {
	g      geom
	grid   *mat.Dense
	delta  [2]float64 // row and column spacing in m
	center [2]float64 // row and column index of the PSF centre
	log    logging.Logger

	mu      sync.Mutex
	sampled map[float64]*sampled
}

// sampled is the grid oversampled to the pixel resolution and blurred with
// the jitter
type sampled struct {
	psf    *mat.Dense
	center [2]float64
	osf    int
	total  float64
}

// NewGridded creates a PSF from grid.  delta is the (row, column) spacing of
// the samples and center the (row, column) index of the PSF's centre.
func NewGridded(grid *mat.Dense, delta [2]units.Quantity, center [2]float64, p Params, opts ...Option) (*Gridded, error) {
	g, err := p.geom()
	if err != nil {
		return nil, err
	}
	out := &Gridded{
		g:       g,
		grid:    mat.DenseCopyOf(grid),
		center:  center,
		log:     collect(opts).log,
		sampled: make(map[float64]*sampled),
	}
	for i, d := range delta {
		v, err := d.To(units.Meter)
		if err != nil || !(v > 0) {
			return nil, errors.Errorf("grid spacing must be a positive length, got %s", d)
		}
		out.delta[i] = v
	}
	if mat.Sum(grid) <= 0 {
		return nil, errors.New("PSF grid does not contain any energy")
	}
	return out, nil
}

// Dims returns the number of rows and columns of the grid
func (g *Gridded) Dims() (rows, cols int) { return g.grid.Dims() }

// Center returns the (row, column) index of the PSF's centre
func (g *Gridded) Center() [2]float64 { return g.center }

// Delta returns the (row, column) spacing of the grid in m
func (g *Gridded) Delta() [2]float64 { return g.delta }

// sample returns the grid oversampled to at least the resolution of a pixel
// divided by the oversampling factor, convolved with a Gaussian of jitter rad
func (g *Gridded) sample(jitter float64) *sampled {
	g.mu.Lock()
	defer g.mu.Unlock()
	if s, ok := g.sampled[jitter]; ok {
		return s
	}
	s := &sampled{
		psf:    g.grid,
		center: g.center,
		osf:    int(math.Ceil(math.Max(g.delta[0], g.delta[1]) / (g.g.pix / float64(g.g.osf)))),
	}
	if s.osf > 1 {
		f := float64(s.osf)
		rows, cols := g.grid.Dims()
		ys, xs := centred(rows, g.center[0], 1), centred(cols, g.center[1], 1)
		s.center = [2]float64{(g.center[0]+0.5)*f - 0.5, (g.center[1]+0.5)*f - 0.5}
		yq, xq := centred(rows*s.osf, s.center[0], f), centred(cols*s.osf, s.center[1], f)
		s.psf = resample(g.grid, ys, xs, yq, xq, true)
	}
	if jitter > 0 {
		sigma := jitter * g.g.fNumber * g.g.d
		step := math.Min(g.delta[0], g.delta[1]) / float64(s.osf)
		if step < 6*sigma {
			n := int(math.Ceil(6 * sigma / step))
			if n%2 == 0 {
				n++
			}
			h := (n - 1) / 2
			kernel := mat.NewDense(n, n, nil)
			kernel.Apply(func(i, j int, _ float64) float64 {
				dy, dx := float64(i-h)*step, float64(j-h)*step
				return math.Exp(-(dx*dx + dy*dy) / (2 * sigma * sigma))
			}, kernel)
			kernel.Scale(1/mat.Sum(kernel), kernel)
			s.psf = convolve2D(s.psf, kernel)
			s.center = [2]float64{s.center[0] + float64(h), s.center[1] + float64(h)}
		}
	}
	s.total = mat.Sum(s.psf)
	g.sampled[jitter] = s
	return s
}

// centred returns the coordinates (i - c) / scale of n samples
func centred(n int, c, scale float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = (float64(i) - c) / scale
	}
	return out
}

// ReducedObservationAngle implements PSF.  Only percentages and Peak are
// supported.  The radius is found by bisection to a tenth of a sample.
func (g *Gridded) ReducedObservationAngle(ce ContainedEnergy, jitter *units.Quantity, obstruction float64) (float64, error) {
	switch ce.kind {
	case cePeak:
		return 0, nil
	case ceFWHM, ceMin:
		return 0, ce.errUnsupported("gridded")
	}
	sigma, err := jitterAngle(jitter)
	if err != nil {
		return 0, err
	}
	s := g.sample(sigma)
	rows, cols := s.psf.Dims()
	cy, cx := s.center[0], s.center[1]
	rMax := 0.
	for _, dy := range []float64{cy, float64(rows) - cy} {
		for _, dx := range []float64{cx, float64(cols) - cx} {
			rMax = math.Max(rMax, math.Hypot(dy, dx))
		}
	}
	r, err := mathx.Bisect(func(r float64) float64 {
		sum := 0.
		pixelmask.Rasterize(rows, cols, cy, cx, r, func(i, j int) { sum += s.psf.At(i, j) })
		return ce.frac - sum/s.total
	}, 0, rMax, 1e-1)
	if err != nil {
		return 0, errors.Errorf("no circle contains %s of the energy of the PSF", ce)
	}
	return 2 * g.g.reduced(r/float64(s.osf)*g.delta[0]), nil
}

// MapToPixelMask implements PSF.  The weights are normalised by the energy
// of the whole grid.
func (g *Gridded) MapToPixelMask(m *pixelmask.Mask, jitter *units.Quantity, obstruction float64) (*pixelmask.Mask, error) {
	sigma, err := jitterAngle(jitter)
	if err != nil {
		return nil, err
	}
	v, err := crop(m)
	if err != nil {
		return nil, err
	}
	pix, err := m.PixelSize.To(units.Meter)
	if err != nil {
		return nil, err
	}
	s := g.sample(sigma)
	osf := g.g.osf
	step := pix / float64(osf)
	pc := oversampledCenter(v, osf)
	rows, cols := v.Data.Dims()

	pr, pcols := s.psf.Dims()
	dy, dx := g.delta[0]/float64(s.osf), g.delta[1]/float64(s.osf)
	ys, xs := centred(pr, s.center[0], 1/dy), centred(pcols, s.center[1], 1/dx)
	yq, xq := centred(rows*osf, pc[0], 1/step), centred(cols*osf, pc[1], 1/step)
	fine := resample(s.psf, ys, xs, yq, xq, false)
	return finish(m, v, binDown(fine, osf), step*step/(s.total*dy*dx))
}
