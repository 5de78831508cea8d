package spectral

import (
	"math"

	"github.com/LukasK13/ESBO-ETC/temperature"
	"github.com/LukasK13/ESBO-ETC/units"
)

// BlackBody returns the Planck spectral radiance of a black body at
// temperature t in W / (m2 nm sr).  A non-positive temperature radiates
// nothing.
func BlackBody(t temperature.Kelvin) Func {
	T := float64(t)
	return Func{
		Unit: units.SpectralRadiance,
		F: func(wl float64) float64 {
			if T <= 0 || wl <= 0 {
				return 0
			}
			x := units.H * units.C / (wl * units.KB * T)
			if x > 700 {
				return 0
			}
			// W / (m2 m sr) to W / (m2 nm sr)
			return 2 * units.H * units.C * units.C / math.Pow(wl, 5) / math.Expm1(x) * 1e-9
		},
	}
}

// PhotonEnergy returns h c / lambda in J / ph
func PhotonEnergy() Func {
	return Func{
		Unit: units.Joule.Div(units.Photon),
		F: func(wl float64) float64 {
			return units.H * units.C / wl
		},
	}
}
