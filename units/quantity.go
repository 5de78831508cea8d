package units

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Physical constants in SI units
const (
	// H is the Planck constant in J s
	H = 6.62607015e-34

	// C is the speed of light in m / s
	C = 299792458.

	// KB is the Boltzmann constant in J / K
	KB = 1.380649e-23
)

// Quantity is a scalar value with a unit
type Quantity struct {
	Value float64
	Unit  Unit
}

// Q is shorthand for Quantity{v, u}
func Q(v float64, u Unit) Quantity {
	return Quantity{Value: v, Unit: u}
}

// ParseQuantity parses strings like "5778 K", "6.5 um" or "0.9"
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	fields := strings.SplitN(s, " ", 2)
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Quantity{}, errors.Wrapf(err, "parsing quantity %q", s)
	}
	if len(fields) == 1 {
		return Q(v, Dimensionless), nil
	}
	u, err := Parse(fields[1])
	if err != nil {
		return Quantity{}, err
	}
	return Q(v, u), nil
}

// To returns the value of q expressed in u
func (q Quantity) To(u Unit) (float64, error) {
	f, err := q.Unit.Factor(u)
	if err != nil {
		return 0, err
	}
	return q.Value * f, nil
}

// MustTo is like To but panics on incompatible units.  It is meant for
// conversions whose units are fixed by the caller.
func (q Quantity) MustTo(u Unit) float64 {
	v, err := q.To(u)
	if err != nil {
		panic(err)
	}
	return v
}

// SI returns the value of q in SI base units
func (q Quantity) SI() float64 {
	return q.Value * q.Unit.Scale()
}

// Mul multiplies two quantities
func (q Quantity) Mul(o Quantity) Quantity {
	return Q(q.Value*o.Value, q.Unit.Mul(o.Unit))
}

// Div divides two quantities
func (q Quantity) Div(o Quantity) Quantity {
	return Q(q.Value/o.Value, q.Unit.Div(o.Unit))
}

// Add adds o to q, converting o to the unit of q
func (q Quantity) Add(o Quantity) (Quantity, error) {
	v, err := o.To(q.Unit)
	if err != nil {
		return Quantity{}, err
	}
	return Q(q.Value+v, q.Unit), nil
}

// Scale multiplies the value of q by a plain number
func (q Quantity) Scale(f float64) Quantity {
	return Q(q.Value*f, q.Unit)
}

func (q Quantity) String() string {
	u := q.Unit.String()
	if u == "" {
		return strconv.FormatFloat(q.Value, 'g', -1, 64)
	}
	return fmt.Sprintf("%g %s", q.Value, u)
}

// Array is a list of values sharing one unit, e.g. a pixel geometry [1024 1024] pix
type Array struct {
	Values []float64
	Unit   Unit
}

// To returns the values of a expressed in u
func (a Array) To(u Unit) ([]float64, error) {
	f, err := a.Unit.Factor(u)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(a.Values))
	for i, v := range a.Values {
		out[i] = v * f
	}
	return out, nil
}
