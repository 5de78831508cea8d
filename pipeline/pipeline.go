// Package pipeline assembles the radiative transport chain described by a
// configuration: a target, the optical components of the astroscene, the
// common optics and the instrument in that order, and a sensor at the end.
//
// Every type name used in a configuration maps to a builder in a closed
// registry.  A builder checks its entry, decodes it into the typed parameter
// struct of the component with mapstructure and calls the constructor.
package pipeline

import (
	"context"

	"github.com/pkg/errors"

	"github.com/LukasK13/ESBO-ETC/atran"
	"github.com/LukasK13/ESBO-ETC/config"
	"github.com/LukasK13/ESBO-ETC/logging"
	"github.com/LukasK13/ESBO-ETC/radiant"
	"github.com/LukasK13/ESBO-ETC/sensor"
	"github.com/LukasK13/ESBO-ETC/target"
	"github.com/LukasK13/ESBO-ETC/units"
)

// Option configures the assembly
type Option func(*options)

type options struct {
	ctx     context.Context
	log     logging.Logger
	fetcher atran.Fetcher
	rec     sensor.Recorder
}

// WithLogger passes l to every component
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithFetcher sets the client computing remote atmospheric transmittances.
// Without one, a default atran.Client is created on first use.
func WithFetcher(f atran.Fetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// WithRecorder passes the details of every evaluated value to r
func WithRecorder(r sensor.Recorder) Option {
	return func(o *options) { o.rec = r }
}

func collectOptions(ctx context.Context, opts []Option) *options {
	o := &options{ctx: ctx}
	for _, opt := range opts {
		opt(o)
	}
	o.log = logging.OrNoop(o.log)
	if o.ctx == nil {
		o.ctx = context.Background()
	}
	return o
}

// BuildTarget creates the target described by e on the wavelength grid
// wlBins (nm)
func BuildTarget(e config.Entry, wlBins []float64, opts ...Option) (radiant.Radiant, error) {
	return buildTarget(e, wlBins, collectOptions(nil, opts))
}

func buildTarget(e config.Entry, wlBins []float64, o *options) (radiant.Radiant, error) {
	b, err := lookupTarget(e)
	if err != nil {
		return nil, config.Locate(err, "target")
	}
	if err := b.check(e); err != nil {
		return nil, config.Locate(err, "target")
	}
	t, err := b.build(e, wlBins, o)
	return t, config.Locate(err, "target")
}

// BuildOpticalChain wraps parent in the optical components of entries, the
// first entry being closest to the target.  ctx bounds remote atmosphere
// computations.
func BuildOpticalChain(ctx context.Context, entries []config.Entry, parent radiant.Radiant, opts ...Option) (radiant.Radiant, error) {
	return buildChain(entries, parent, collectOptions(ctx, opts))
}

func buildChain(entries []config.Entry, parent radiant.Radiant, o *options) (radiant.Radiant, error) {
	for _, e := range entries {
		b, err := lookupComponent(e)
		if err != nil {
			return nil, config.Locate(err, "optical_component")
		}
		if err := b.check(e); err != nil {
			return nil, config.Locate(err, "optical_component")
		}
		if parent, err = b.build(e, parent, o); err != nil {
			return nil, config.Locate(err, "optical_component")
		}
	}
	return parent, nil
}

// BuildSensor puts the sensor described by e behind parent
func BuildSensor(e config.Entry, parent radiant.Radiant, common config.Common, opts ...Option) (sensor.Sensor, error) {
	return buildSensor(e, parent, common, collectOptions(nil, opts))
}

func buildSensor(e config.Entry, parent radiant.Radiant, common config.Common, o *options) (sensor.Sensor, error) {
	b, err := lookupSensor(e)
	if err != nil {
		return nil, config.Locate(err, "sensor")
	}
	if err := b.check(e); err != nil {
		return nil, config.Locate(err, "sensor")
	}
	s, err := b.build(e, parent, common, o)
	return s, config.Locate(err, "sensor")
}

// Pipeline is an assembled chain
type Pipeline struct {
	Common config.Common
	Target radiant.Radiant
	Head   radiant.Radiant
	Sensor sensor.Sensor
}

// FromConfig checks c and assembles its chain
func FromConfig(ctx context.Context, c *config.Config, opts ...Option) (*Pipeline, error) {
	if err := Check(c); err != nil {
		return nil, err
	}
	o := collectOptions(ctx, opts)
	p := &Pipeline{Common: c.Common}
	te, _ := c.Target()
	var err error
	if p.Target, err = buildTarget(te, c.Common.WLBins(), o); err != nil {
		return nil, config.Locate(err, "astroscene")
	}
	p.Head = p.Target
	for _, s := range []struct {
		name string
		e    config.Entry
	}{
		{"astroscene", c.Astroscene},
		{"common_optics", c.CommonOptics},
		{"instrument", c.Instrument},
	} {
		if p.Head, err = buildChain(s.e.List("optical_component"), p.Head, o); err != nil {
			return nil, config.Locate(err, s.name)
		}
	}
	se, _ := c.Sensor()
	if p.Sensor, err = buildSensor(se, p.Head, c.Common, o); err != nil {
		return nil, config.Locate(err, "instrument")
	}
	return p, nil
}

// Check checks every entry of c without building anything
func Check(c *config.Config) error {
	te, err := c.Target()
	if err != nil {
		return err
	}
	b, err := lookupTarget(te)
	if err != nil {
		return config.Locate(config.Locate(err, "target"), "astroscene")
	}
	if err := b.check(te); err != nil {
		return config.Locate(config.Locate(err, "target"), "astroscene")
	}
	if c.Common.Mode() == config.ModeSensitivity && key(te.Type()) != "blackbodytarget" {
		return &config.Error{Section: "astroscene -> target", Msg: "Sensitivity calculation only possible for BlackBodyTarget."}
	}

	for _, s := range []struct {
		name string
		e    config.Entry
	}{
		{"astroscene", c.Astroscene},
		{"common_optics", c.CommonOptics},
		{"instrument", c.Instrument},
	} {
		for _, oc := range s.e.List("optical_component") {
			b, err := lookupComponent(oc)
			if err == nil {
				err = b.check(oc)
			}
			if err != nil {
				return config.Locate(config.Locate(err, "optical_component"), s.name)
			}
		}
	}

	se, err := c.Sensor()
	if err != nil {
		return err
	}
	sb, err := lookupSensor(se)
	if err == nil {
		err = sb.check(se)
	}
	return config.Locate(config.Locate(err, "sensor"), "instrument")
}

// Result holds the outcome of a run.  Depending on the mode, ExpTime and SNR
// are inputs or results; Sensitivity is only set in sensitivity mode.
type Result struct {
	Mode        config.Mode
	ExpTime     []float64 // s
	SNR         []float64
	Sensitivity []float64 // mag
}

// Run computes what the common options ask for: the sensitivity when both
// exposure times and SNRs are given, else the SNR or the exposure time
func (p *Pipeline) Run() (*Result, error) {
	r := &Result{Mode: p.Common.Mode(), ExpTime: p.Common.ExposureTime, SNR: p.Common.SNR}
	var err error
	switch r.Mode {
	case config.ModeSensitivity:
		bb, ok := p.Target.(*target.BlackBody)
		if !ok {
			return nil, errors.New("sensitivity calculation only possible for black body targets")
		}
		r.Sensitivity, err = p.Sensor.Sensitivity(r.ExpTime, r.SNR, units.Q(bb.Mag(), units.Mag))
	case config.ModeExpTime:
		r.ExpTime, err = p.Sensor.ExpTime(r.SNR)
	default:
		r.SNR, err = p.Sensor.SNR(r.ExpTime)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "computing %s", r.Mode)
	}
	return r, nil
}
