// Package units tracks physical units of spectral quantities.
//
// A Unit is a scale factor to SI together with the SI dimensions of the unit,
// both carried by a gonum unit.Unit.  Units keep a human readable list of the
// symbols they were built from, so that W / (m2 nm sr) prints the way it was
// written instead of as kg m^-1 s^-3 rad^-2.
//
// Non-SI dimensions that astronomers count separately (photons, electrons,
// pixels, magnitudes) are registered as orthogonal gonum dimensions.
package units

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/unit"
)

var (
	// ErrIncompatibleUnits is returned when two units can not be converted into each other
	ErrIncompatibleUnits = errors.New("incompatible units")

	// ErrUnknownUnit is returned by Parse for symbols not in the unit table
	ErrUnknownUnit = errors.New("unknown unit")
)

var (
	photonDim   = unit.NewDimension("ph")
	electronDim = unit.NewDimension("electron")
	pixelDim    = unit.NewDimension("pix")
	magDim      = unit.NewDimension("mag")
)

// term is one symbol of a unit's name raised to a power
type term struct {
	sym string
	pow int
}

// Unit is a physical unit.  The zero value is the dimensionless unit.
type Unit struct {
	terms []term
	si    *unit.Unit

	// affine is set for units with a zero point offset (deg_C, deg_F).
	// They can not be combined with other units, only converted by the
	// temperature package.
	affine bool
}

func newAtom(sym string, scale float64, dims unit.Dimensions) Unit {
	if dims == nil {
		dims = unit.Dimensions{}
	}
	return Unit{terms: []term{{sym, 1}}, si: unit.New(scale, dims)}
}

func (u Unit) base() *unit.Unit {
	if u.si == nil {
		return unit.New(1, unit.Dimensions{})
	}
	return u.si.Copy()
}

// Scale returns the factor that converts a value in u to SI base units
func (u Unit) Scale() float64 {
	if u.si == nil {
		return 1
	}
	return u.si.Value()
}

// Dimensions returns a copy of the dimensions of u
func (u Unit) Dimensions() unit.Dimensions {
	return u.base().Dimensions()
}

// Affine reports whether u is a temperature scale with an offset zero point
func (u Unit) Affine() bool {
	return u.affine
}

// Symbol returns the name of a single-symbol unit, or the full name otherwise
func (u Unit) Symbol() string {
	if len(u.terms) == 1 && u.terms[0].pow == 1 {
		return u.terms[0].sym
	}
	return u.String()
}

func mergeTerms(a, b []term, sign int) []term {
	out := make([]term, 0, len(a)+len(b))
	out = append(out, a...)
	for _, t := range b {
		found := false
		for i := range out {
			if out[i].sym == t.sym {
				out[i].pow += sign * t.pow
				found = true
				break
			}
		}
		if !found {
			out = append(out, term{t.sym, sign * t.pow})
		}
	}
	kept := out[:0]
	for _, t := range out {
		if t.pow != 0 {
			kept = append(kept, t)
		}
	}
	return kept
}

// Mul returns the product of two units
func (u Unit) Mul(o Unit) Unit {
	si := u.base().Mul(o.base())
	return Unit{terms: mergeTerms(u.terms, o.terms, 1), si: si}
}

// Div returns the quotient of two units
func (u Unit) Div(o Unit) Unit {
	si := u.base().Div(o.base())
	return Unit{terms: mergeTerms(u.terms, o.terms, -1), si: si}
}

// Pow raises u to an integer power
func (u Unit) Pow(n int) Unit {
	out := Dimensionless
	switch {
	case n > 0:
		for i := 0; i < n; i++ {
			out = out.Mul(u)
		}
	case n < 0:
		for i := 0; i < -n; i++ {
			out = out.Div(u)
		}
	}
	return out
}

// Equivalent reports whether u and o have the same dimensions
func (u Unit) Equivalent(o Unit) bool {
	return unit.DimensionsMatch(u.base(), o.base())
}

// IsDimensionless reports whether u carries no dimension at all
func (u Unit) IsDimensionless() bool {
	return len(u.Dimensions()) == 0
}

// Factor returns the multiplicative factor converting a value expressed in u
// into a value expressed in o
func (u Unit) Factor(o Unit) (float64, error) {
	if u.affine || o.affine {
		if u.String() == o.String() {
			return 1, nil
		}
		return 0, errors.Wrapf(ErrIncompatibleUnits, "%s is not convertible to %s without an offset", u, o)
	}
	if !u.Equivalent(o) {
		return 0, errors.Wrapf(ErrIncompatibleUnits, "%s is not convertible to %s", u, o)
	}
	return u.Scale() / o.Scale(), nil
}

// String formats the unit the way astronomers write it, e.g. W / (m2 nm sr)
func (u Unit) String() string {
	var num, den []string
	for _, t := range u.terms {
		switch {
		case t.pow == 1:
			num = append(num, t.sym)
		case t.pow > 1:
			num = append(num, t.sym+strconv.Itoa(t.pow))
		case t.pow == -1:
			den = append(den, t.sym)
		default:
			den = append(den, t.sym+strconv.Itoa(-t.pow))
		}
	}
	// a leftover pure scale (e.g. nm / m) is printed as a number
	if len(num) == 0 && len(den) == 0 {
		if s := u.Scale(); s != 1 {
			return strconv.FormatFloat(s, 'g', -1, 64)
		}
		return ""
	}
	n := strings.Join(num, " ")
	if len(den) == 0 {
		return n
	}
	if n == "" {
		n = "1"
	}
	d := strings.Join(den, " ")
	if len(den) > 1 {
		d = "(" + d + ")"
	}
	return n + " / " + d
}

// Format implements fmt.Formatter so %v and %s print the unit name
func (u Unit) Format(fs fmt.State, c rune) {
	fmt.Fprint(fs, u.String())
}
