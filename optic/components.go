package optic

import (
	"github.com/pkg/errors"

	"github.com/LukasK13/ESBO-ETC/config"
	"github.com/LukasK13/ESBO-ETC/radiant"
	"github.com/LukasK13/ESBO-ETC/spectral"
	"github.com/LukasK13/ESBO-ETC/units"
)

// MirrorParams configures a Mirror
type MirrorParams struct {
	// Reflectance is the path of the reflectance spectrum
	Reflectance string `mapstructure:"reflectance"`

	// Emissivity defaults to 1 - reflectance
	Hot         `mapstructure:",squash"`
	Obstruction `mapstructure:",squash"`
}

// Mirror reflects the incoming radiation
type Mirror struct {
	*Component
	reflectance *spectral.Qty
}

// NewMirror creates a mirror below parent
func NewMirror(parent radiant.Radiant, p MirrorParams, opts ...Option) (*Mirror, error) {
	l := loggerOf(opts)
	r, err := loadTransmittance(p.Reflectance, l)
	if err != nil {
		return nil, err
	}
	em, err := p.Hot.emission(complement(r), l)
	if err != nil {
		return nil, err
	}
	c, err := New(parent, Through(r), em, p.Obstruction, opts...)
	if err != nil {
		return nil, err
	}
	return &Mirror{Component: c, reflectance: r}, nil
}

// Reflectance returns the reflectance spectrum of the mirror
func (m *Mirror) Reflectance() *spectral.Qty { return m.reflectance }

// CheckMirror checks a Mirror entry
func CheckMirror(e config.Entry) error {
	if err := e.CheckFile("reflectance"); err != nil {
		return err
	}
	return checkHot(e)
}

// LensParams configures a Lens
type LensParams struct {
	// Transmittance is a number or the path of a transmittance spectrum
	Transmittance config.Source `mapstructure:"transmittance"`

	// Emissivity defaults to 1 - transmittance
	Hot         `mapstructure:",squash"`
	Obstruction `mapstructure:",squash"`
}

// Lens transmits the incoming radiation
type Lens struct {
	*Component
	transmittance spectral.Operand
}

// NewLens creates a lens below parent
func NewLens(parent radiant.Radiant, p LensParams, opts ...Option) (*Lens, error) {
	l := loggerOf(opts)
	var (
		through spectral.Operand
		def     *spectral.Qty
		hot     = p.Hot
	)
	switch {
	case p.Transmittance.Value != nil:
		v, err := p.Transmittance.Value.To(units.Dimensionless)
		if err != nil {
			return nil, config.Errorf("transmittance", "Transmittance has to be dimensionless, got '%s'.", p.Transmittance.Value)
		}
		through = spectral.Scalar(v)
		if !hot.Emissivity.IsSet() {
			hot.Emissivity = config.Num(1 - v)
		}
	case p.Transmittance.File != "":
		t, err := loadTransmittance(p.Transmittance.File, l)
		if err != nil {
			return nil, err
		}
		through, def = t, complement(t)
	default:
		return nil, config.Errorf("transmittance", "Parameter 'transmittance' not found.")
	}
	em, err := hot.emission(def, l)
	if err != nil {
		return nil, err
	}
	c, err := New(parent, Through(through), em, p.Obstruction, opts...)
	if err != nil {
		return nil, err
	}
	return &Lens{Component: c, transmittance: through}, nil
}

// CheckLens checks a Lens entry
func CheckLens(e config.Entry) error {
	if err := e.CheckFloatOrFile("transmittance"); err != nil {
		return err
	}
	return checkHot(e)
}

// BeamSplitterParams configures a BeamSplitter
type BeamSplitterParams struct {
	// Transmittance is the path of the spectrum of the arm that is followed
	Transmittance string `mapstructure:"transmittance"`

	// Emissivity defaults to 1
	Hot         `mapstructure:",squash"`
	Obstruction `mapstructure:",squash"`
}

// BeamSplitter passes the part of the incoming radiation going into the
// modelled arm
type BeamSplitter struct {
	*Component
}

// NewBeamSplitter creates a beam splitter below parent
func NewBeamSplitter(parent radiant.Radiant, p BeamSplitterParams, opts ...Option) (*BeamSplitter, error) {
	l := loggerOf(opts)
	t, err := loadTransmittance(p.Transmittance, l)
	if err != nil {
		return nil, err
	}
	em, err := p.Hot.emission(nil, l)
	if err != nil {
		return nil, err
	}
	c, err := New(parent, Through(t), em, p.Obstruction, opts...)
	if err != nil {
		return nil, err
	}
	return &BeamSplitter{Component: c}, nil
}

// CheckBeamSplitter checks a BeamSplitter entry
func CheckBeamSplitter(e config.Entry) error {
	if err := e.CheckFile("transmittance"); err != nil {
		return err
	}
	return checkHot(e)
}

// StrayLightParams configures a StrayLight source
type StrayLightParams struct {
	// Emission is the path of the spectral radiance of the source, by default
	// in nm and W / (m2 nm sr)
	Emission string `mapstructure:"emission"`
}

// StrayLight adds a diffuse radiance to the background, e.g. zodiacal light
type StrayLight struct {
	*Component
}

// NewStrayLight creates a stray light source below parent
func NewStrayLight(parent radiant.Radiant, p StrayLightParams, opts ...Option) (*StrayLight, error) {
	em, err := spectral.FromFile(p.Emission, units.Nanometer, units.SpectralRadiance, spectral.WithLogger(loggerOf(opts)))
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", p.Emission)
	}
	c, err := New(parent, Transparent, em, DefaultObstruction(), opts...)
	if err != nil {
		return nil, err
	}
	return &StrayLight{Component: c}, nil
}

// CheckStrayLight checks a StrayLight entry
func CheckStrayLight(e config.Entry) error {
	return e.CheckFile("emission")
}

// CosmicBackgroundParams configures a CosmicBackground
type CosmicBackgroundParams struct {
	Hot `mapstructure:",squash"`
}

// CosmicMicrowaveTemp is the temperature of the cosmic microwave background
const CosmicMicrowaveTemp = 2.725

// DefaultCosmicBackground is a black body at CosmicMicrowaveTemp
func DefaultCosmicBackground() CosmicBackgroundParams {
	return CosmicBackgroundParams{Hot: Hot{Emissivity: config.Num(1), Temp: CosmicMicrowaveTemp}}
}

// CosmicBackground adds the radiance of a black body sky to the background
type CosmicBackground struct {
	*Component
}

// NewCosmicBackground creates a cosmic background below parent
func NewCosmicBackground(parent radiant.Radiant, p CosmicBackgroundParams, opts ...Option) (*CosmicBackground, error) {
	em, err := p.Hot.emission(nil, loggerOf(opts))
	if err != nil {
		return nil, err
	}
	c, err := New(parent, Transparent, em, DefaultObstruction(), opts...)
	if err != nil {
		return nil, err
	}
	return &CosmicBackground{Component: c}, nil
}

// CheckCosmicBackground checks a CosmicBackground entry
func CheckCosmicBackground(e config.Entry) error {
	if e.Has("temp") {
		if err := e.CheckQuantity("temp", units.Kelvin); err != nil {
			return err
		}
	}
	if e.Has("emissivity") {
		return e.CheckFloatOrFile("emissivity")
	}
	return nil
}
