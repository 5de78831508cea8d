// Package optic implements the optical components of the radiative transport
// chain.
//
// Every component wraps a parent radiant.Radiant.  It transmits the parent's
// signal and background, loses the obstructed fraction of the aperture, and
// adds its own thermal emission and the emission of the obstructing structure
// to the background.
package optic

import (
	"github.com/pkg/errors"

	"github.com/LukasK13/ESBO-ETC/config"
	"github.com/LukasK13/ESBO-ETC/logging"
	"github.com/LukasK13/ESBO-ETC/radiant"
	"github.com/LukasK13/ESBO-ETC/spectral"
	"github.com/LukasK13/ESBO-ETC/temperature"
	"github.com/LukasK13/ESBO-ETC/units"
)

// Option configures a component
type Option func(*Component)

// WithLogger sets the sink for data quality warnings
func WithLogger(l logging.Logger) Option {
	return func(c *Component) { c.log = l }
}

// Obstruction describes the part of the aperture of a component which is
// blocked, e.g. by a secondary mirror and its spider
type Obstruction struct {
	// Obstruction is the blocked fraction of the aperture, in addition to
	// what upstream components block
	Obstruction float64 `mapstructure:"obstruction"`

	// ObstructorTemp is the temperature of the blocking structure.  It only
	// emits when warmer than 0 K.
	ObstructorTemp temperature.Kelvin `mapstructure:"obstructor_temp"`

	// ObstructorEmissivity is the emissivity of the blocking structure
	ObstructorEmissivity float64 `mapstructure:"obstructor_emissivity"`
}

// DefaultObstruction is an unobstructed component; an obstructor would be
// a black body
func DefaultObstruction() Obstruction {
	return Obstruction{ObstructorEmissivity: 1}
}

func (o Obstruction) validate() error {
	if o.Obstruction < 0 || o.Obstruction > 1 {
		return config.Errorf("obstruction", "Obstruction has to be within [0, 1], got %g.", o.Obstruction)
	}
	return nil
}

// Transmission turns the radiation entering a component into the radiation
// leaving it
type Transmission func(*spectral.Qty) (*spectral.Qty, error)

// Through returns a Transmission multiplying with t
func Through(t spectral.Operand) Transmission {
	return func(q *spectral.Qty) (*spectral.Qty, error) { return q.Mul(t) }
}

// Transparent passes radiation unchanged
func Transparent(q *spectral.Qty) (*spectral.Qty, error) { return q, nil }

// Component is a node of the chain between the target and the sensor.  The
// concrete components in this package embed it.
type Component struct {
	parent   radiant.Radiant
	obs      Obstruction
	transmit Transmission
	emission spectral.Operand
	log      logging.Logger
}

// New creates a component below parent.  emission is the component's own
// spectral radiance in W / (m2 nm sr); nil if it does not emit.
func New(parent radiant.Radiant, transmit Transmission, emission spectral.Operand, obs Obstruction, opts ...Option) (*Component, error) {
	if parent == nil {
		return nil, errors.New("optical component without parent")
	}
	if err := obs.validate(); err != nil {
		return nil, err
	}
	if transmit == nil {
		transmit = Transparent
	}
	c := &Component{parent: parent, obs: obs, transmit: transmit, emission: emission}
	for _, o := range opts {
		o(c)
	}
	c.log = logging.OrNoop(c.log)
	return c, nil
}

// Parent returns the node the component receives its radiation from
func (c *Component) Parent() radiant.Radiant { return c.parent }

// Obstruction returns the obstruction parameters of the component
func (c *Component) Obstruction() Obstruction { return c.obs }

// Signal transmits the parent's signal and removes the obstructed fraction
func (c *Component) Signal() (radiant.Signal, error) {
	s, err := c.parent.Signal()
	if err != nil {
		return radiant.Signal{}, err
	}
	q, err := c.transmit(s.Qty)
	if err != nil {
		return radiant.Signal{}, errors.Wrap(err, "propagating signal")
	}
	if q, err = q.Mul(spectral.Scalar(1 - c.obs.Obstruction)); err != nil {
		return radiant.Signal{}, err
	}
	s.Qty = q
	s.Obstruction += c.obs.Obstruction
	return s, nil
}

// Background transmits the parent's background, replaces the obstructed
// fraction with the emission of the obstructor and adds the component's own
// emission
func (c *Component) Background() (*spectral.Qty, error) {
	bg, err := c.parent.Background()
	if err != nil {
		return nil, err
	}
	if bg, err = c.transmit(bg); err != nil {
		return nil, errors.Wrap(err, "propagating background")
	}
	o := c.obs.Obstruction
	if bg, err = bg.Mul(spectral.Scalar(1 - o)); err != nil {
		return nil, err
	}
	if c.obs.ObstructorTemp > 0 && o > 0 {
		if bg, err = bg.Add(greyBody(c.obs.ObstructorTemp, c.obs.ObstructorEmissivity*o)); err != nil {
			return nil, errors.Wrap(err, "adding obstructor emission")
		}
	}
	if c.emission != nil {
		if bg, err = bg.Add(c.emission); err != nil {
			return nil, errors.Wrap(err, "adding thermal emission")
		}
	}
	return bg, nil
}

// greyBody is the radiance of a grey body of emissivity em
func greyBody(t temperature.Kelvin, em float64) spectral.Func {
	bb := spectral.BlackBody(t)
	return spectral.Func{
		Unit: bb.Unit,
		F:    func(wl float64) float64 { return bb.F(wl) * em },
	}
}

// Hot describes the thermal emission of a component
type Hot struct {
	// Emissivity is a number or the path of an emissivity spectrum
	Emissivity config.Source `mapstructure:"emissivity"`

	// Temp is the temperature of the component.  It only emits when warmer
	// than 0 K.
	Temp temperature.Kelvin `mapstructure:"temp"`
}

// emission returns the thermal emission described by h.  def is used when no
// emissivity is set, and may be nil for an emissivity of 1.
func (h Hot) emission(def *spectral.Qty, l logging.Logger) (spectral.Operand, error) {
	if h.Temp <= 0 {
		return nil, nil
	}
	var em *spectral.Qty
	switch {
	case h.Emissivity.Value != nil:
		v, err := h.Emissivity.Value.To(units.Dimensionless)
		if err != nil {
			return nil, config.Errorf("emissivity", "Emissivity has to be dimensionless, got '%s'.", h.Emissivity.Value)
		}
		return greyBody(h.Temp, v), nil
	case h.Emissivity.File != "":
		var err error
		em, err = spectral.FromFile(h.Emissivity.File, units.Nanometer, units.Dimensionless, spectral.WithLogger(l))
		if err != nil {
			return nil, errors.Wrap(err, "reading emissivity")
		}
	case def != nil:
		em = def
	default:
		return greyBody(h.Temp, 1), nil
	}
	q, err := em.Eval(spectral.BlackBody(h.Temp)).Mul(em)
	if err != nil {
		return nil, err
	}
	return q, nil
}

// loadTransmittance reads a dimensionless spectrum, e.g. a reflectance or a
// transmittance
func loadTransmittance(path string, l logging.Logger) (*spectral.Qty, error) {
	q, err := spectral.FromFile(path, units.Nanometer, units.Dimensionless, spectral.WithLogger(l))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return q, nil
}

// complement returns 1 - q
func complement(q *spectral.Qty) *spectral.Qty {
	return q.Map(func(v float64) float64 { return 1 - v }, units.Dimensionless)
}

// checkHot checks the emissivity and temperature options
func checkHot(e config.Entry) error {
	if e.Has("emissivity") {
		if err := e.CheckFloatOrFile("emissivity"); err != nil {
			return err
		}
	}
	if e.Has("temp") {
		if err := e.CheckQuantity("temp", units.Kelvin); err != nil {
			return err
		}
	}
	return checkObstruction(e)
}

// checkObstruction checks the obstruction options
func checkObstruction(e config.Entry) error {
	if e.Has("obstruction") {
		if err := e.CheckFloat("obstruction"); err != nil {
			return err
		}
	}
	if e.Has("obstructor_temp") {
		if err := e.CheckQuantity("obstructor_temp", units.Kelvin); err != nil {
			return err
		}
	}
	if e.Has("obstructor_emissivity") {
		if err := e.CheckFloat("obstructor_emissivity"); err != nil {
			return err
		}
	}
	return nil
}

// loggerOf returns the logger opts set, for use before the component exists
func loggerOf(opts []Option) logging.Logger {
	var c Component
	for _, o := range opts {
		o(&c)
	}
	return logging.OrNoop(c.log)
}
