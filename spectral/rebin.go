package spectral

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/interp"

	"github.com/LukasK13/ESBO-ETC/logging"
	"github.com/LukasK13/ESBO-ETC/units"
)

// minCubic is the smallest number of samples an Akima spline is fitted to
const minCubic = 5

// Rebin resamples q onto the wavelengths wl given in wlUnit.  The result is
// expressed on q's wavelength unit.  Points outside of q's range are handled
// by q's fill policy; with Truncate they are dropped and a warning is logged.
func (q *Qty) Rebin(wl []float64, wlUnit units.Unit) (*Qty, error) {
	grid, err := units.Array{Values: wl, Unit: wlUnit}.To(q.wlUnit)
	if err != nil {
		return nil, errors.Wrap(err, "rebin")
	}
	if sameGrid(grid, q.wl) {
		return q.derive(grid, q.Val(), q.unit), nil
	}
	if q.Len() == 0 {
		return nil, errors.New("rebin: empty spectrum")
	}
	lo, hi := q.wl[0], q.wl[len(q.wl)-1]
	if q.fill.kind == truncate {
		kept := grid[:0:0]
		for _, w := range grid {
			if (w >= lo || closeTo(w, lo)) && (w <= hi || closeTo(w, hi)) {
				kept = append(kept, w)
			}
		}
		if len(kept) < len(grid) {
			q.log.Warn("Extrapolation disabled, bandwidth will be reduced.",
				logging.Float("min", lo), logging.Float("max", hi))
		}
		grid = kept
	}
	if q.Len() == 1 {
		// a single sample is a constant
		val := make([]float64, len(grid))
		for i, w := range grid {
			val[i] = q.outside(w, q.val[0])
		}
		return q.derive(grid, val, q.unit), nil
	}
	pred, err := q.predictor()
	if err != nil {
		return nil, err
	}
	val := make([]float64, len(grid))
	for i, w := range grid {
		switch {
		case w < lo:
			val[i] = q.outside(w, q.extrapolate(w, 0, 1))
		case w > hi:
			n := len(q.wl)
			val[i] = q.outside(w, q.extrapolate(w, n-2, n-1))
		default:
			val[i] = pred.Predict(w)
		}
	}
	return q.derive(grid, val, q.unit), nil
}

// outside returns the value used for a wavelength outside the sampled range,
// given the extrapolated value ext
func (q *Qty) outside(w, ext float64) float64 {
	if q.fill.kind == constant {
		return q.fill.value
	}
	return ext
}

// extrapolate evaluates the straight line through samples i and j at w
func (q *Qty) extrapolate(w float64, i, j int) float64 {
	slope := (q.val[j] - q.val[i]) / (q.wl[j] - q.wl[i])
	return q.val[i] + slope*(w-q.wl[i])
}

func (q *Qty) predictor() (interp.Predictor, error) {
	if q.cubic && q.Len() >= minCubic {
		as := &interp.AkimaSpline{}
		if err := as.Fit(q.wl, q.val); err != nil {
			return nil, errors.Wrap(err, "fitting spline")
		}
		return as, nil
	}
	pl := &interp.PiecewiseLinear{}
	if err := pl.Fit(q.wl, q.val); err != nil {
		return nil, errors.Wrap(err, "fitting linear interpolator")
	}
	return pl, nil
}

// Integrate integrates q over wavelength with the trapezoidal rule.  The unit
// of the result is the value unit times the wavelength unit.
func (q *Qty) Integrate() units.Quantity {
	u := q.unit.Mul(q.wlUnit)
	if q.Len() < 2 {
		return units.Q(0, u)
	}
	return units.Q(integrate.Trapezoidal(q.wl, q.val), u)
}
