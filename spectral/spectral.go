// Package spectral implements wavelength-indexed physical quantities.
//
// A Qty pairs a strictly increasing wavelength grid with one value per
// wavelength, each with its unit.  Qtys are values: every operation returns a
// new Qty and never touches its operands.  Binary operations between Qtys on
// different grids resample the right operand onto the left grid, and fall back
// to resampling the left operand when the right one could only be truncated.
package spectral

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/LukasK13/ESBO-ETC/logging"
	"github.com/LukasK13/ESBO-ETC/units"
)

var (
	// ErrDimensionMismatch is returned when wavelengths and values differ in length
	ErrDimensionMismatch = errors.New("wavelengths and values differ in length")

	// ErrMalformedFile is returned for spectra files that can not be parsed
	ErrMalformedFile = errors.New("malformed spectrum file")

	// ErrNoOverlap is returned when two grids share no wavelength range
	ErrNoOverlap = errors.New("wavelength grids do not overlap")
)

// relTol is the relative tolerance used to compare grids and values
const relTol = 1e-5

type fillKind int

const (
	extrapolate fillKind = iota
	truncate
	constant
)

// FillPolicy governs resampling outside of the sampled wavelength range
type FillPolicy struct {
	kind  fillKind
	value float64
}

var (
	// Extrapolate extends the end segments linearly
	Extrapolate = FillPolicy{kind: extrapolate}

	// Truncate drops points outside of the sampled range
	Truncate = FillPolicy{kind: truncate}
)

// ConstantFill returns v outside of the sampled range
func ConstantFill(v float64) FillPolicy {
	return FillPolicy{kind: constant, value: v}
}

func (f FillPolicy) String() string {
	switch f.kind {
	case truncate:
		return "truncate"
	case constant:
		return fmt.Sprintf("constant(%g)", f.value)
	default:
		return "extrapolate"
	}
}

// Qty is a spectral quantity
type Qty struct {
	wl     []float64
	wlUnit units.Unit
	val    []float64
	unit   units.Unit
	fill   FillPolicy
	cubic  bool
	log    logging.Logger
}

// Option configures a Qty
type Option func(*Qty)

// WithFill sets the fill policy used when the quantity is resampled
func WithFill(f FillPolicy) Option {
	return func(q *Qty) { q.fill = f }
}

// WithCubic resamples with an Akima spline instead of linear interpolation
func WithCubic() Option {
	return func(q *Qty) { q.cubic = true }
}

// WithLogger sets the sink for data quality warnings
func WithLogger(l logging.Logger) Option {
	return func(q *Qty) { q.log = l }
}

// New creates a spectral quantity.  The slices are copied.
func New(wl, val []float64, wlUnit, unit units.Unit, opts ...Option) (*Qty, error) {
	if len(wl) != len(val) {
		return nil, errors.Wrapf(ErrDimensionMismatch, "%d wavelengths, %d values", len(wl), len(val))
	}
	for i := 1; i < len(wl); i++ {
		if !(wl[i] > wl[i-1]) {
			return nil, errors.Errorf("wavelengths must be strictly increasing, got %g after %g", wl[i], wl[i-1])
		}
	}
	q := &Qty{
		wl:     append([]float64(nil), wl...),
		wlUnit: wlUnit,
		val:    append([]float64(nil), val...),
		unit:   unit,
		fill:   Extrapolate,
		log:    logging.Noop(),
	}
	for _, o := range opts {
		o(q)
	}
	q.log = logging.OrNoop(q.log)
	return q, nil
}

// Const returns a quantity of value v on every wavelength of wl
func Const(wl []float64, wlUnit units.Unit, v float64, unit units.Unit, opts ...Option) (*Qty, error) {
	val := make([]float64, len(wl))
	for i := range val {
		val[i] = v
	}
	return New(wl, val, wlUnit, unit, opts...)
}

// derive returns a new quantity on the given grid sharing q's settings.  It
// takes ownership of the slices.
func (q *Qty) derive(wl, val []float64, unit units.Unit) *Qty {
	return &Qty{wl: wl, wlUnit: q.wlUnit, val: val, unit: unit, fill: q.fill, cubic: q.cubic, log: q.log}
}

// Len returns the number of samples
func (q *Qty) Len() int { return len(q.wl) }

// WL returns a copy of the wavelength grid
func (q *Qty) WL() []float64 { return append([]float64(nil), q.wl...) }

// Val returns a copy of the values
func (q *Qty) Val() []float64 { return append([]float64(nil), q.val...) }

// WLUnit returns the unit of the wavelength grid
func (q *Qty) WLUnit() units.Unit { return q.wlUnit }

// Unit returns the unit of the values
func (q *Qty) Unit() units.Unit { return q.unit }

// Fill returns the fill policy
func (q *Qty) Fill() FillPolicy { return q.fill }

// Logger returns the sink the quantity reports warnings to
func (q *Qty) Logger() logging.Logger { return q.log }

// WithOptions returns a copy of q with the options applied
func (q *Qty) WithOptions(opts ...Option) *Qty {
	c := q.derive(q.WL(), q.Val(), q.unit)
	for _, o := range opts {
		o(c)
	}
	c.log = logging.OrNoop(c.log)
	return c
}

// WLIn returns the wavelength grid expressed in u
func (q *Qty) WLIn(u units.Unit) ([]float64, error) {
	return units.Array{Values: q.wl, Unit: q.wlUnit}.To(u)
}

// InWLUnit returns q with its wavelength grid expressed in u
func (q *Qty) InWLUnit(u units.Unit) (*Qty, error) {
	wl, err := q.WLIn(u)
	if err != nil {
		return nil, err
	}
	c := q.derive(wl, q.Val(), q.unit)
	c.wlUnit = u
	return c, nil
}

// WLMeters returns the wavelength grid in meters
func (q *Qty) WLMeters() []float64 {
	s := q.wlUnit.Scale()
	out := make([]float64, len(q.wl))
	for i, w := range q.wl {
		out[i] = w * s
	}
	return out
}

// Index returns the index of the wavelength wl (in the grid's unit), or -1
func (q *Qty) Index(wl float64) int {
	for i, w := range q.wl {
		if closeTo(w, wl) {
			return i
		}
	}
	return -1
}

// At returns the value at wavelength wl (in the grid's unit), interpolating
// between samples
func (q *Qty) At(wl float64) (float64, error) {
	if i := q.Index(wl); i >= 0 {
		return q.val[i], nil
	}
	r, err := q.Rebin([]float64{wl}, q.wlUnit)
	if err != nil {
		return 0, err
	}
	if r.Len() == 0 {
		return 0, errors.Errorf("wavelength %g %s outside of the spectrum", wl, q.wlUnit)
	}
	return r.val[0], nil
}

// Convert returns q with its values expressed in u.  Besides plain unit
// conversion this handles the spectral density equivalence between per
// frequency and per wavelength quantities, F_nu = F_lambda lambda^2 / c.
func (q *Qty) Convert(u units.Unit) (*Qty, error) {
	val, err := convertDensity(q.val, q.WLMeters(), q.unit, u)
	if err != nil {
		return nil, err
	}
	return q.derive(q.WL(), val, u), nil
}

// convertDensity converts values in from to values in to, given the
// wavelengths in meters
func convertDensity(val, wlM []float64, from, to units.Unit) ([]float64, error) {
	out := make([]float64, len(val))
	if f, err := from.Factor(to); err == nil {
		for i, v := range val {
			out[i] = v * f
		}
		return out, nil
	}
	switch {
	case from.Mul(units.Hertz).Equivalent(to.Mul(units.Meter)):
		// per frequency to per wavelength
		for i, v := range val {
			out[i] = v * from.Scale() * units.C / (wlM[i] * wlM[i]) / to.Scale()
		}
	case from.Mul(units.Meter).Equivalent(to.Mul(units.Hertz)):
		// per wavelength to per frequency
		for i, v := range val {
			out[i] = v * from.Scale() * wlM[i] * wlM[i] / units.C / to.Scale()
		}
	default:
		return nil, errors.Wrapf(units.ErrIncompatibleUnits, "%s is not convertible to %s", from, to)
	}
	return out, nil
}

// Map applies f to every value and returns the result in unit u
func (q *Qty) Map(f func(float64) float64, u units.Unit) *Qty {
	val := make([]float64, len(q.val))
	for i, v := range q.val {
		val[i] = f(v)
	}
	return q.derive(q.WL(), val, u)
}

// Equal reports whether q and o have equivalent units, the same number of
// samples and agree to a relative tolerance of 1e-5 after conversion
func (q *Qty) Equal(o *Qty) bool {
	if o == nil || q.Len() != o.Len() {
		return false
	}
	wf, err := o.wlUnit.Factor(q.wlUnit)
	if err != nil {
		return false
	}
	vf, err := o.unit.Factor(q.unit)
	if err != nil {
		return false
	}
	for i := range q.wl {
		if !isClose(q.wl[i], o.wl[i]*wf) || !isClose(q.val[i], o.val[i]*vf) {
			return false
		}
	}
	return true
}

func isClose(a, b float64) bool {
	return math.Abs(a-b) <= relTol*math.Max(math.Abs(a), math.Abs(b))
}

func closeTo(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}

func sameGrid(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !closeTo(a[i], b[i]) {
			return false
		}
	}
	return true
}

func (q *Qty) String() string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "%14s %14s\n", "["+q.wlUnit.String()+"]", "["+q.unit.String()+"]")
	for i := range q.wl {
		fmt.Fprintf(b, "%14.6g %14.6g\n", q.wl[i], q.val[i])
	}
	return b.String()
}
