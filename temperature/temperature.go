// Package temperature holds temperature scales and converts configured
// temperatures to Kelvin.
package temperature

import (
	"github.com/pkg/errors"

	"github.com/LukasK13/ESBO-ETC/units"
)

type (
	// Celsius is a temperature in C
	Celsius float64

	// Kelvin is a temperature in K
	Kelvin float64

	// Fahrenheit is a temperature in deg F
	Fahrenheit float64
)

// C2K converts a temp in Celsius to Kelvin
func C2K(c Celsius) Kelvin {
	return Kelvin(c + 273.15)
}

// F2C converts a temp in Fahrenheit to Celcius
func F2C(f Fahrenheit) Celsius {
	return Celsius((f - 32) * 5 / 9)
}

// F2K converts a temp in Fahrenheit to Kelvin
func F2K(f Fahrenheit) Kelvin {
	c := F2C(f)
	return C2K(c)
}

// FromQuantity converts a temperature quantity in K, deg_C or deg_F to Kelvin.
// A dimensionless quantity is taken to be in Kelvin already.
func FromQuantity(q units.Quantity) (Kelvin, error) {
	switch q.Unit.Symbol() {
	case units.Celsius.Symbol():
		return C2K(Celsius(q.Value)), nil
	case units.Fahrenheit.Symbol():
		return F2K(Fahrenheit(q.Value)), nil
	}
	if q.Unit.IsDimensionless() {
		return Kelvin(q.Value), nil
	}
	v, err := q.To(units.Kelvin)
	if err != nil {
		return 0, errors.Wrap(err, "temperature")
	}
	return Kelvin(v), nil
}

// Quantity returns k as a unit-bearing quantity
func (k Kelvin) Quantity() units.Quantity {
	return units.Q(float64(k), units.Kelvin)
}
