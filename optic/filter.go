package optic

import (
	"strings"

	"github.com/LukasK13/ESBO-ETC/config"
	"github.com/LukasK13/ESBO-ETC/radiant"
	"github.com/LukasK13/ESBO-ETC/spectral"
	"github.com/LukasK13/ESBO-ETC/units"
)

// Passband is the centre wavelength and the width of a photometric band in nm
type Passband struct {
	Center float64
	Width  float64
}

// Passbands are the filter bands, from the Handbook of Space Astronomy and
// Astrophysics
var Passbands = map[string]Passband{
	"U": {365, 68},
	"B": {440, 98},
	"V": {550, 89},
	"R": {700, 220},
	"I": {900, 240},
	"J": {1250, 300},
	"H": {1650, 400},
	"K": {2200, 600},
	"L": {3600, 1200},
	"M": {4800, 800},
	"N": {10200, 2500},
}

// PassbandNames lists the keys of Passbands from short to long wavelengths
var PassbandNames = []string{"U", "B", "V", "R", "I", "J", "H", "K", "L", "M", "N"}

// FilterParams configures a Filter.  Exactly one of Band, Transmittance and
// Start / End is used, in that order.
type FilterParams struct {
	Band          string          `mapstructure:"band"`
	Transmittance string          `mapstructure:"transmittance"`
	Start         *units.Quantity `mapstructure:"start"`
	End           *units.Quantity `mapstructure:"end"`

	// Emissivity defaults to 1
	Hot         `mapstructure:",squash"`
	Obstruction `mapstructure:",squash"`
}

// Filter is a band pass filter.  Bands and ranges are ideal, transmitting
// everything from their start to their end wavelength and nothing else.
type Filter struct {
	*Component
	transmittance spectral.Operand
}

// NewFilter creates a filter below parent
func NewFilter(parent radiant.Radiant, p FilterParams, opts ...Option) (*Filter, error) {
	l := loggerOf(opts)
	var t spectral.Operand
	switch {
	case p.Band != "":
		b, ok := Passbands[strings.ToUpper(p.Band)]
		if !ok {
			return nil, config.Errorf("band", "Band has to be one of '[%s]', got '%s'.", strings.Join(PassbandNames, ", "), p.Band)
		}
		t = TopHat((b.Center-b.Width/2)*1e-9, (b.Center+b.Width/2)*1e-9)
	case p.Transmittance != "":
		q, err := loadTransmittance(p.Transmittance, l)
		if err != nil {
			return nil, err
		}
		t = q
	case p.Start != nil && p.End != nil:
		start, err := p.Start.To(units.Meter)
		if err != nil {
			return nil, config.Errorf("start", "Expected a wavelength, got '%s'.", p.Start)
		}
		end, err := p.End.To(units.Meter)
		if err != nil {
			return nil, config.Errorf("end", "Expected a wavelength, got '%s'.", p.End)
		}
		if !(end > start) {
			return nil, config.Errorf("end", "End of the pass band has to be larger than its start.")
		}
		t = TopHat(start, end)
	default:
		return nil, config.Errorf("", "Expected one of 'band' / 'transmittance' / 'start' & 'end'.")
	}
	em, err := p.Hot.emission(nil, l)
	if err != nil {
		return nil, err
	}
	c, err := New(parent, Through(t), em, p.Obstruction, opts...)
	if err != nil {
		return nil, err
	}
	return &Filter{Component: c, transmittance: t}, nil
}

// TopHat is 1 from start to end, both in m, inclusive, and 0 elsewhere
func TopHat(start, end float64) spectral.Func {
	return spectral.Func{
		Unit: units.Dimensionless,
		F: func(wl float64) float64 {
			if wl >= start && wl <= end {
				return 1
			}
			return 0
		},
	}
}

// CheckFilter checks a Filter entry
func CheckFilter(e config.Entry) error {
	var err error
	switch {
	case e.Has("band"):
		err = e.CheckSelection("band", PassbandNames)
	case e.Has("transmittance"):
		err = e.CheckFile("transmittance")
	case e.Has("start") && e.Has("end"):
		if err = e.CheckQuantity("start", units.Meter); err == nil {
			err = e.CheckQuantity("end", units.Meter)
		}
	default:
		err = config.Errorf("", "Expected one of 'band' / 'transmittance' / 'start' & 'end'.")
	}
	if err != nil {
		return err
	}
	return checkHot(e)
}
