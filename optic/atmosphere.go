package optic

import (
	"context"

	"github.com/pkg/errors"

	"github.com/LukasK13/ESBO-ETC/atran"
	"github.com/LukasK13/ESBO-ETC/config"
	"github.com/LukasK13/ESBO-ETC/radiant"
	"github.com/LukasK13/ESBO-ETC/spectral"
	"github.com/LukasK13/ESBO-ETC/temperature"
	"github.com/LukasK13/ESBO-ETC/units"
)

// AtmosphereParams configures an Atmosphere.  The transmittance is read from
// Transmittance, else from the ATRAN result file ATRAN, else computed by the
// ATRAN service for the embedded request.  The emission is a grey body of
// emissivity 1 - transmittance at Temp, else read from Emission, else zero.
type AtmosphereParams struct {
	Transmittance string `mapstructure:"transmittance"`
	ATRAN         string `mapstructure:"atran"`
	atran.Request `mapstructure:",squash"`

	Emission string             `mapstructure:"emission"`
	Temp     temperature.Kelvin `mapstructure:"temp"`
}

// DefaultAtmosphere holds the defaults of the ATRAN request
func DefaultAtmosphere() AtmosphereParams {
	return AtmosphereParams{Request: atran.DefaultRequest()}
}

// Remote reports whether the transmittance is computed by the ATRAN service
func (p AtmosphereParams) Remote() bool {
	return p.Transmittance == "" && p.ATRAN == "" && p.Altitude.Unit.Equivalent(units.Meter)
}

// Atmosphere attenuates the incoming radiation and emits
type Atmosphere struct {
	*Component
	transmittance *spectral.Qty
}

// NewAtmosphere creates an atmosphere below parent.  f is only used for
// remote transmittances and may be nil otherwise.  Missing wavelength bounds
// of a remote request are taken from the parent's signal.
func NewAtmosphere(ctx context.Context, parent radiant.Radiant, p AtmosphereParams, f atran.Fetcher, opts ...Option) (*Atmosphere, error) {
	l := loggerOf(opts)
	var (
		t   *spectral.Qty
		err error
	)
	switch {
	case p.Transmittance != "":
		t, err = loadTransmittance(p.Transmittance, l)
	case p.ATRAN != "":
		t, err = atran.ReadFile(p.ATRAN, l)
	case p.Remote():
		if f == nil {
			return nil, errors.New("no ATRAN client to compute the atmospheric transmittance")
		}
		req := p.Request
		if err := boundsFromParent(&req, parent); err != nil {
			return nil, err
		}
		t, err = f.Fetch(ctx, req)
		if t != nil {
			t = t.WithOptions(spectral.WithLogger(l))
		}
	default:
		return nil, config.Errorf("", "Expected one of 'transmittance' / 'atran' / 'altitude'.")
	}
	if err != nil {
		return nil, errors.Wrap(err, "atmospheric transmittance")
	}

	var em spectral.Operand
	switch {
	case p.Temp > 0:
		q, err := t.Eval(spectral.BlackBody(p.Temp)).Mul(complement(t))
		if err != nil {
			return nil, err
		}
		em = q
	case p.Emission != "":
		q, err := spectral.FromFile(p.Emission, units.Nanometer, units.SpectralRadiance, spectral.WithLogger(l))
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", p.Emission)
		}
		em = q
	}

	c, err := New(parent, Through(t), em, DefaultObstruction(), opts...)
	if err != nil {
		return nil, err
	}
	return &Atmosphere{Component: c, transmittance: t}, nil
}

// Transmittance returns the transmittance spectrum of the atmosphere
func (a *Atmosphere) Transmittance() *spectral.Qty { return a.transmittance }

func boundsFromParent(r *atran.Request, parent radiant.Radiant) error {
	if r.WLMin.Unit.Equivalent(units.Meter) && r.WLMax.Unit.Equivalent(units.Meter) {
		return nil
	}
	s, err := parent.Signal()
	if err != nil {
		return err
	}
	wl, err := s.Qty.WLIn(units.Micrometer)
	if err != nil || len(wl) == 0 {
		return errors.New("can not derive the ATRAN wavelength range")
	}
	if !r.WLMin.Unit.Equivalent(units.Meter) {
		r.WLMin = units.Q(wl[0], units.Micrometer)
	}
	if !r.WLMax.Unit.Equivalent(units.Meter) {
		r.WLMax = units.Q(wl[len(wl)-1], units.Micrometer)
	}
	return nil
}

// CheckAtmosphere checks an Atmosphere entry
func CheckAtmosphere(e config.Entry) error {
	var err error
	switch {
	case e.Has("transmittance"):
		err = e.CheckFile("transmittance")
	case e.Has("atran"):
		err = e.CheckFile("atran")
	default:
		err = checkRequest(e)
	}
	if err != nil {
		return err
	}
	switch {
	case e.Has("emission"):
		return e.CheckFile("emission")
	case e.Has("temp"):
		return e.CheckQuantity("temp", units.Kelvin)
	}
	return nil
}

func checkRequest(e config.Entry) error {
	if err := e.CheckQuantity("altitude", units.Meter); err != nil {
		return err
	}
	for _, q := range []struct {
		name string
		u    units.Unit
	}{
		{"wl_min", units.Micrometer},
		{"wl_max", units.Micrometer},
		{"latitude", units.Degree},
		{"water_vapor", units.Micrometer},
		{"zenith_angle", units.Degree},
	} {
		if e.Has(q.name) {
			if err := e.CheckQuantity(q.name, q.u); err != nil {
				return err
			}
		}
	}
	for _, name := range []string{"n_layers", "resolution"} {
		if e.Has(name) {
			if err := e.CheckFloat(name); err != nil {
				return err
			}
		}
	}
	return nil
}
