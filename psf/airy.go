package psf

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate/quad"
	"gonum.org/v1/gonum/mat"

	"github.com/LukasK13/ESBO-ETC/logging"
	"github.com/LukasK13/ESBO-ETC/mathx"
	"github.com/LukasK13/ESBO-ETC/pixelmask"
	"github.com/LukasK13/ESBO-ETC/units"
)

// first zero of J1
const besselJ1Zero = 3.8317059702075125

// AiryPattern is the intensity of the Airy disk at x = pi * r, r in lambda / D,
// normalised to 1 in the centre.  eps is the ratio of the diameters of the
// central obstruction and of the aperture.
func AiryPattern(x, eps float64) float64 {
	if closeToZero(x) {
		return 1
	}
	if closeToZero(eps) {
		v := 2 * math.J1(x) / x
		return v * v
	}
	v := 2 * (math.J1(x) - eps*math.J1(eps*x)) / x
	return v * v / ((1 - eps*eps) * (1 - eps*eps))
}

// EncircledEnergy is the share of the energy of the Airy disk within x = pi * r
func EncircledEnergy(x, eps float64) float64 {
	if closeToZero(x) {
		return 0
	}
	j0, j1 := math.J0(x), math.J1(x)
	if closeToZero(eps) {
		return 1 - j0*j0 - j1*j1
	}
	e0, e1 := math.J0(eps*x), math.J1(eps*x)
	n := max(64, 4*int(math.Ceil(x)))
	cross := quad.Fixed(func(y float64) float64 {
		return math.J1(y) * math.J1(eps*y) / y
	}, 0, x, n, quad.Legendre{}, 0)
	return (1 - j0*j0 - j1*j1 + eps*eps*(1-e0*e0-e1*e1) - 4*eps*cross) / (1 - eps*eps)
}

// Airy is the PSF of a diffraction limited telescope with a circular, possibly
// centrally obstructed aperture
type Airy struct {
	g   geom
	log logging.Logger
}

// NewAiry creates an Airy PSF
func NewAiry(p Params, opts ...Option) (*Airy, error) {
	g, err := p.geom()
	if err != nil {
		return nil, err
	}
	return &Airy{g: g, log: collect(opts).log}, nil
}

// ReducedObservationAngle implements PSF.  Without jitter the widths follow
// from the Airy disk: 1.028 for the FWHM and 2.44 for the first minimum of an
// unobstructed aperture.  With jitter they are read off the blurred radial
// profile, sampled in steps of a pixel divided by the oversampling factor.
func (a *Airy) ReducedObservationAngle(ce ContainedEnergy, jitter *units.Quantity, obstruction float64) (float64, error) {
	if err := checkObstruction(obstruction); err != nil {
		return 0, err
	}
	sigma, err := jitterAngle(jitter)
	if err != nil {
		return 0, err
	}
	eps := math.Sqrt(obstruction)
	obstructed := !closeToZero(obstruction)

	var ra, frac float64
	switch ce.kind {
	case cePeak:
		return 0, nil
	case ceFWHM:
		ra = 1.028
		if obstructed {
			y, err := mathx.Newton(func(y float64) float64 {
				return AiryPattern(math.Pi*y, eps) - 0.5
			}, ra/2, 1e-12)
			if err != nil {
				return 0, errors.Wrap(err, "FWHM of the obstructed Airy disk")
			}
			ra = 2 * y
		}
	case ceMin:
		ra, frac = 2.44, 0.8377
		if obstructed {
			// the amplitude changes sign at the first dark ring
			y, err := mathx.Bisect(func(y float64) float64 {
				x := math.Pi * y
				return math.J1(x) - eps*math.J1(eps*x)
			}, 0.5, besselJ1Zero/math.Pi, 1e-12)
			if err != nil {
				return 0, errors.Wrap(err, "first minimum of the obstructed Airy disk")
			}
			ra, frac = 2*y, EncircledEnergy(math.Pi*y, eps)
		}
	default:
		frac = ce.frac
		y, err := mathx.Bisect(func(y float64) float64 {
			return EncircledEnergy(math.Pi*y, eps) - frac
		}, 0, 100, 1e-12)
		if err != nil {
			return 0, errors.Errorf("no circle contains %s of the energy of the Airy disk", ce)
		}
		ra = 2 * y
	}
	if sigma == 0 {
		return ra, nil
	}

	sr := sigma * a.g.d / a.g.wl
	p := a.jitterProfile(sr, obstruction, ra/2+3*sr)
	if ce.kind == ceFWHM {
		for i, v := range p.val {
			if v < p.val[0]/2 {
				return float64(i) * p.dx * 2, nil
			}
		}
		return 0, errors.New("the blurred PSF does not fall to half of its maximum")
	}
	for i, v := range p.cumulative(obstruction) {
		if v > frac {
			return float64(i) * p.dx * 2, nil
		}
	}
	return 0, errors.Errorf("no circle contains %s of the energy of the blurred PSF", ce)
}

// profile is a radial PSF sampled at i * dx, in lambda / D
type profile struct {
	val []float64
	dx  float64
}

// cumulative returns the share of the energy within each radius
func (p profile) cumulative(obstruction float64) []float64 {
	out := make([]float64, len(p.val))
	s := 0.
	scale := p.dx * 2 * math.Pi / (4 / math.Pi) * (1 - obstruction)
	for i, v := range p.val {
		s += v * float64(i) * p.dx
		out[i] = s * scale
	}
	return out
}

// jitterProfile blurs the radial profile of the Airy disk up to width with a
// Gaussian of standard deviation sigma, both in lambda / D.  The blurred
// profile keeps the energy of the sharp one.
func (a *Airy) jitterProfile(sigma, obstruction, width float64) profile {
	eps := math.Sqrt(obstruction)
	dx := a.g.reduced(a.g.pix) / float64(a.g.osf)
	n := max(1, int(math.Ceil(width/dx)))

	// mirrored profile, zero padded by n on both sides
	padded := make([]float64, 4*n+1)
	padded[2*n] = 1
	total := 0.
	for i := 0; i < n; i++ {
		x := float64(i+1) * dx
		v := AiryPattern(math.Pi*x, eps)
		padded[2*n+1+i], padded[2*n-1-i] = v, v
		total += v * x
	}
	total *= dx * 2 * math.Pi

	kernel := make([]float64, 2*n+1)
	for j := range kernel {
		x := float64(j-n) * dx
		kernel[j] = math.Exp(-x * x / (2 * sigma * sigma))
	}
	floats.Scale(1/floats.Sum(kernel), kernel)

	// centred part of the convolution, from the centre outwards
	full := convolve(padded, kernel)
	val := append([]float64(nil), full[3*n:5*n+1]...)
	s := 0.
	for i, v := range val {
		s += v * float64(i) * dx
	}
	floats.Scale(total/(s*dx*2*math.Pi), val)
	return profile{val: val, dx: dx}
}

// MapToPixelMask implements PSF
func (a *Airy) MapToPixelMask(m *pixelmask.Mask, jitter *units.Quantity, obstruction float64) (*pixelmask.Mask, error) {
	if err := checkObstruction(obstruction); err != nil {
		return nil, err
	}
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
	osf := a.g.osf
	step := a.g.reduced(pix) / float64(osf)
	pc := oversampledCenter(v, osf)
	rows, cols := v.Data.Dims()
	rows, cols = rows*osf, cols*osf
	eps := math.Sqrt(obstruction)

	eval := func(d float64) float64 { return AiryPattern(math.Pi*d, eps) }
	if sigma > 0 {
		far := 0.
		for _, r := range []float64{0, float64(rows - 1)} {
			for _, c := range []float64{0, float64(cols - 1)} {
				far = math.Max(far, math.Hypot((r-pc[0])*step, (c-pc[1])*step))
			}
		}
		sr := sigma * a.g.d / a.g.wl
		p := a.jitterProfile(sr, obstruction, far+3*sr)
		xs := make([]float64, len(p.val))
		for i := range xs {
			xs[i] = float64(i) * p.dx
		}
		f, last := fit(xs, p.val), xs[len(xs)-1]
		eval = func(d float64) float64 {
			if d > last {
				return 0
			}
			return f(d)
		}
	}

	fine := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if v.Data.At(r/osf, c/osf) == 0 {
				continue
			}
			fine.Set(r, c, eval(math.Hypot((float64(r)-pc[0])*step, (float64(c)-pc[1])*step)))
		}
	}
	return finish(m, v, binDown(fine, osf), step*step/(4/math.Pi)*(1-obstruction))
}
