package config

import (
	"github.com/LukasK13/ESBO-ETC/units"
)

// Source is an option given either as a number or as the path of a file
// holding a spectrum, e.g. an emissivity or a transmittance
type Source struct {
	Value *units.Quantity
	File  string
}

// Num returns a Source holding a dimensionless number
func Num(v float64) Source {
	q := units.Q(v, units.Dimensionless)
	return Source{Value: &q}
}

// File returns a Source pointing at a file
func File(path string) Source {
	return Source{File: path}
}

// IsSet reports whether the source holds anything
func (s Source) IsSet() bool {
	return s.Value != nil || s.File != ""
}

// IsFile reports whether the source points at a file
func (s Source) IsFile() bool {
	return s.Value == nil && s.File != ""
}

func (s Source) String() string {
	switch {
	case s.Value != nil:
		return s.Value.String()
	case s.File != "":
		return s.File
	}
	return "<unset>"
}
