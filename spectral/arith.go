package spectral

import (
	"github.com/pkg/errors"

	"github.com/LukasK13/ESBO-ETC/units"
)

// Operand is anything a Qty can be combined with: Scalar, Quantity, Func or *Qty
type Operand interface {
	operand()
}

// Scalar is a dimensionless number
type Scalar float64

// Quantity is a unit-bearing number
type Quantity units.Quantity

// Func is a quantity defined as a function of wavelength.  F receives the
// wavelength in meters and returns a value in Unit.
type Func struct {
	Unit units.Unit
	F    func(wlMeters float64) float64
}

func (Scalar) operand()   {}
func (Quantity) operand() {}
func (Func) operand()     {}
func (*Qty) operand()     {}

type op int

const (
	opAdd op = iota
	opSub
	opMul
	opDiv
)

func (o op) String() string {
	return [...]string{"add", "subtract", "multiply", "divide"}[o]
}

func (o op) apply(a, b float64) float64 {
	switch o {
	case opAdd:
		return a + b
	case opSub:
		return a - b
	case opMul:
		return a * b
	default:
		return a / b
	}
}

// unit returns the unit of a op b, and the factor b has to be scaled with
// beforehand
func (o op) unit(a, b units.Unit) (units.Unit, float64, error) {
	switch o {
	case opMul:
		return a.Mul(b), 1, nil
	case opDiv:
		return a.Div(b), 1, nil
	default:
		f, err := b.Factor(a)
		if err != nil {
			return units.Unit{}, 0, errors.Wrapf(err, "can not %s", o)
		}
		return a, f, nil
	}
}

// Add returns q + o
func (q *Qty) Add(o Operand) (*Qty, error) { return q.binary(opAdd, o) }

// Sub returns q - o
func (q *Qty) Sub(o Operand) (*Qty, error) { return q.binary(opSub, o) }

// Mul returns q * o
func (q *Qty) Mul(o Operand) (*Qty, error) { return q.binary(opMul, o) }

// Div returns q / o
func (q *Qty) Div(o Operand) (*Qty, error) { return q.binary(opDiv, o) }

func (q *Qty) binary(o op, other Operand) (*Qty, error) {
	switch v := other.(type) {
	case Scalar:
		return q.withScalar(o, units.Q(float64(v), units.Dimensionless))
	case Quantity:
		return q.withScalar(o, units.Quantity(v))
	case Func:
		return q.elementwise(o, q.Eval(v))
	case *Qty:
		if v == nil {
			return nil, errors.New("nil spectral quantity operand")
		}
		a, b, err := q.align(v)
		if err != nil {
			return nil, err
		}
		return a.elementwise(o, b)
	default:
		return nil, errors.Errorf("unsupported operand %T", other)
	}
}

func (q *Qty) withScalar(o op, s units.Quantity) (*Qty, error) {
	u, f, err := o.unit(q.unit, s.Unit)
	if err != nil {
		return nil, err
	}
	val := make([]float64, len(q.val))
	for i, v := range q.val {
		val[i] = o.apply(v, s.Value*f)
	}
	return q.derive(q.WL(), val, u), nil
}

// elementwise combines two quantities on the same grid
func (q *Qty) elementwise(o op, b *Qty) (*Qty, error) {
	if b.Len() != q.Len() {
		return nil, errors.Wrapf(ErrDimensionMismatch, "%d and %d samples", q.Len(), b.Len())
	}
	u, f, err := o.unit(q.unit, b.unit)
	if err != nil {
		return nil, err
	}
	val := make([]float64, len(q.val))
	for i, v := range q.val {
		val[i] = o.apply(v, b.val[i]*f)
	}
	return q.derive(q.WL(), val, u), nil
}

// Eval evaluates a wavelength function on q's grid
func (q *Qty) Eval(fn Func) *Qty {
	wl := q.WLMeters()
	val := make([]float64, len(wl))
	for i, w := range wl {
		val[i] = fn.F(w)
	}
	return q.derive(q.WL(), val, fn.Unit)
}

// align brings q and o onto a common grid.  o is resampled onto q's grid
// first; when o's fill policy truncates that grid, q is resampled onto the
// reduced grid instead.
func (q *Qty) align(o *Qty) (*Qty, *Qty, error) {
	o, err := o.InWLUnit(q.wlUnit)
	if err != nil {
		return nil, nil, err
	}
	ob, err := o.Rebin(q.wl, q.wlUnit)
	if err != nil {
		return nil, nil, err
	}
	if sameGrid(q.wl, ob.wl) {
		return q, ob, nil
	}
	if ob.Len() == 0 {
		return nil, nil, ErrNoOverlap
	}
	qb, err := q.Rebin(ob.wl, ob.wlUnit)
	if err != nil {
		return nil, nil, err
	}
	if !sameGrid(qb.wl, ob.wl) {
		// both were truncated, settle on the overlap of the two
		ob, err = ob.Rebin(qb.wl, qb.wlUnit)
		if err != nil {
			return nil, nil, err
		}
		if ob.Len() == 0 || !sameGrid(qb.wl, ob.wl) {
			return nil, nil, ErrNoOverlap
		}
	}
	return qb, ob, nil
}
