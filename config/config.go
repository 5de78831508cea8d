// Package config loads the calculator's YAML configuration.
//
// A configuration has four sections: common (wavelength grid, aperture, PSF,
// output and the requested exposure times or SNRs), astroscene (the target
// and the optical components between target and telescope), common_optics
// and instrument (optical components and the sensor).  The common section is
// parsed into a typed Common; the other sections are kept as Entry trees and
// turned into a pipeline elsewhere.
package config

import (
	"math"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/pkg/errors"

	"github.com/LukasK13/ESBO-ETC/mathx"
	"github.com/LukasK13/ESBO-ETC/units"
)

// EnvPrefix is the prefix of environment variables overriding options.
// Nesting is expressed with a double underscore, so
// ESBOETC_COMMON__WL_MIN="400 nm" overrides common.wl_min.
const EnvPrefix = "ESBOETC_"

// Mode is the quantity a run computes
type Mode int

const (
	// ModeSNR computes the SNR for given exposure times
	ModeSNR Mode = iota
	// ModeExpTime computes the exposure time needed for given SNRs
	ModeExpTime
	// ModeSensitivity computes the limiting magnitude for given exposure times and SNRs
	ModeSensitivity
)

func (m Mode) String() string {
	return [...]string{"snr", "exposure time", "sensitivity"}[m]
}

// PSF selects the point spread function
type PSF struct {
	// Source is "airy" or the path of a FITS or Zemax file
	Source string `yaml:"val"`
	OSF    float64 `yaml:"osf"`
}

// IsAiry reports whether the analytic Airy disk is used
func (p PSF) IsAiry() bool {
	return strings.EqualFold(p.Source, "airy")
}

// Output configures the result writers
type Output struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"` // csv or fits
}

// Common holds the options shared by all components
type Common struct {
	WLMin       units.Quantity
	WLMax       units.Quantity
	WLDelta     units.Quantity
	DAperture   units.Quantity
	PSF         PSF
	JitterSigma *units.Quantity
	Output      Output

	// ExposureTime in seconds, SNR dimensionless.  Either may be empty.
	ExposureTime []float64
	SNR          []float64
}

// WLBins returns the wavelength grid in nm: wl_min to wl_max in steps of
// wl_delta, with wl_max always included
func (c Common) WLBins() []float64 {
	lo := c.WLMin.MustTo(units.Nanometer)
	hi := c.WLMax.MustTo(units.Nanometer)
	d := c.WLDelta.MustTo(units.Nanometer)
	bins := mathx.Arange(lo, hi, d)
	if n := len(bins); n > 0 && math.Abs(bins[n-1]-hi) <= 1e-9*hi {
		bins = bins[:n-1]
	}
	return append(bins, hi)
}

// CentralWL returns the centre of the wavelength range
func (c Common) CentralWL() units.Quantity {
	lo := c.WLMin.MustTo(units.Nanometer)
	hi := c.WLMax.MustTo(units.Nanometer)
	return units.Q(lo+(hi-lo)/2, units.Nanometer)
}

// Mode returns what the run computes: both exposure times and SNRs ask for
// the sensitivity, exposure times alone for the SNR, SNRs alone for the
// exposure time
func (c Common) Mode() Mode {
	switch {
	case len(c.ExposureTime) > 0 && len(c.SNR) > 0:
		return ModeSensitivity
	case len(c.SNR) > 0:
		return ModeExpTime
	default:
		return ModeSNR
	}
}

// Config is a loaded configuration
type Config struct {
	Common       Common
	Astroscene   Entry
	CommonOptics Entry
	Instrument   Entry

	k *koanf.Koanf
}

// Defaults are the options applied before any file is read
func Defaults() map[string]any {
	return map[string]any{
		"common.psf.val":       "airy",
		"common.psf.osf":       10,
		"common.output.path":   ".",
		"common.output.format": "csv",
	}
}

func newKoanf() (*koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, err
	}
	return k, nil
}

func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	if !strings.Contains(s, "__") {
		// not a configuration option, e.g. ESBOETC_LOG_LEVEL
		return ""
	}
	return strings.ToLower(strings.ReplaceAll(s, "__", "."))
}

// Load reads the configuration file at path, applies environment overrides
// and checks the common section
func Load(path string) (*Config, error) {
	k, err := newKoanf()
	if err != nil {
		return nil, err
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, errors.Wrapf(err, "loading configuration from %s", path)
	}
	return finish(k)
}

// Parse is Load on an in-memory YAML document
func Parse(doc []byte) (*Config, error) {
	k, err := newKoanf()
	if err != nil {
		return nil, err
	}
	if err := k.Load(rawbytes.Provider(doc), yaml.Parser()); err != nil {
		return nil, errors.Wrap(err, "parsing configuration")
	}
	return finish(k)
}

func finish(k *koanf.Koanf) (*Config, error) {
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.Wrap(err, "loading environment")
	}
	c := &Config{k: k}
	var err error
	if c.Astroscene, err = section(k, "astroscene", true); err != nil {
		return nil, err
	}
	if c.CommonOptics, err = section(k, "common_optics", false); err != nil {
		return nil, err
	}
	if c.Instrument, err = section(k, "instrument", true); err != nil {
		return nil, err
	}
	common, err := section(k, "common", true)
	if err != nil {
		return nil, err
	}
	if c.Common, err = ParseCommon(common); err != nil {
		return nil, err
	}
	return c, nil
}

func section(k *koanf.Koanf, name string, required bool) (Entry, error) {
	if !k.Exists(name) {
		if required {
			return nil, &Error{Msg: "Missing required container '" + name + "'."}
		}
		return Entry{}, nil
	}
	e, ok := AsEntry(k.Get(name))
	if !ok {
		return nil, &Error{Section: name, Msg: "expected a container."}
	}
	return e, nil
}

// Raw returns the merged configuration tree
func (c *Config) Raw() map[string]any {
	if c.k == nil {
		return map[string]any{}
	}
	return c.k.Raw()
}

// Target returns the target entry of the astroscene
func (c *Config) Target() (Entry, error) {
	t, ok := c.Astroscene.Sub("target")
	if !ok {
		return nil, &Error{Section: "astroscene", Msg: "Missing required container 'target'."}
	}
	return t, nil
}

// Sensor returns the sensor entry of the instrument
func (c *Config) Sensor() (Entry, error) {
	s, ok := c.Instrument.Sub("sensor")
	if !ok {
		return nil, &Error{Section: "instrument", Msg: "Missing required container 'sensor'."}
	}
	return s, nil
}

// ParseCommon checks and parses the common section
func ParseCommon(e Entry) (Common, error) {
	var (
		c   Common
		err error
	)
	loc := func(err error) error { return Locate(err, "common") }
	quantity := func(name string, u units.Unit) (units.Quantity, error) {
		if err := e.CheckQuantity(name, u); err != nil {
			return units.Quantity{}, loc(err)
		}
		q, err := e.Quantity(name)
		return q, loc(err)
	}

	if c.WLMin, err = quantity("wl_min", units.Meter); err != nil {
		return c, err
	}
	if c.WLMax, err = quantity("wl_max", units.Meter); err != nil {
		return c, err
	}
	if c.WLMax.SI() <= c.WLMin.SI() {
		return c, loc(Errorf("wl_max", "wl_max must be larger than wl_min."))
	}
	switch {
	case e.Has("wl_delta"):
		if c.WLDelta, err = quantity("wl_delta", units.Meter); err != nil {
			return c, err
		}
	case e.Has("res"):
		if c.WLDelta, err = wlDeltaFromRes(e, c.WLMin, c.WLMax); err != nil {
			return c, loc(err)
		}
	default:
		return c, loc(&Error{Msg: "Expected one of the containers 'wl_delta' or 'res' but got none."})
	}
	if c.WLDelta.SI() <= 0 {
		return c, loc(Errorf("wl_delta", "wl_delta must be positive."))
	}
	if c.DAperture, err = quantity("d_aperture", units.Meter); err != nil {
		return c, err
	}

	if c.PSF, err = parsePSF(e); err != nil {
		return c, loc(err)
	}
	if e.Has("jitter_sigma") {
		j, err := quantity("jitter_sigma", units.Arcsec)
		if err != nil {
			return c, err
		}
		c.JitterSigma = &j
	}
	if c.Output, err = parseOutput(e); err != nil {
		return c, loc(err)
	}

	if e.Has("exposure_time") {
		if c.ExposureTime, err = list(e, "exposure_time", units.Second); err != nil {
			return c, loc(err)
		}
	}
	if e.Has("snr") {
		if c.SNR, err = list(e, "snr", units.Dimensionless); err != nil {
			return c, loc(err)
		}
		if len(c.ExposureTime) > 0 && len(c.ExposureTime) != len(c.SNR) {
			return c, loc(Errorf("snr", "Length of exposure time (%d) not matching the length of the SNR (%d)",
				len(c.ExposureTime), len(c.SNR)))
		}
	}
	if len(c.ExposureTime) == 0 && len(c.SNR) == 0 {
		return c, loc(&Error{Msg: "Expected at least one of the containers 'exposure_time' or 'snr' but got none."})
	}
	return c, nil
}

// wlDeltaFromRes derives the bin width from a resolving power or a velocity
// resolution
func wlDeltaFromRes(e Entry, lo, hi units.Quantity) (units.Quantity, error) {
	res, err := e.Quantity("res")
	if err != nil {
		return units.Quantity{}, err
	}
	sum := lo.MustTo(units.Nanometer) + hi.MustTo(units.Nanometer)
	switch {
	case res.Unit.IsDimensionless():
		if res.Value <= 0 {
			return units.Quantity{}, Errorf("res", "res must be positive.")
		}
		return units.Q(sum/(2*res.Value), units.Nanometer), nil
	case res.Unit.Equivalent(units.Meter.Div(units.Second)):
		v := res.SI()
		return units.Q(sum/(2*units.C/v), units.Nanometer), nil
	}
	return units.Quantity{}, Errorf("res", "Expected parameter 'res' to be dimensionless or a velocity but got unit '%s'.", res.Unit)
}

func parsePSF(e Entry) (PSF, error) {
	p := PSF{Source: "airy", OSF: 10}
	if !e.Has("psf") {
		return p, nil
	}
	sub, ok := e.Sub("psf")
	if !ok {
		// psf: airy
		sub = Entry{"val": e["psf"]}
	}
	if s, ok := sub.String("val"); ok && s != "" {
		p.Source = s
	}
	if !p.IsAiry() {
		if err := sub.CheckFile("val"); err != nil {
			return p, Locate(err, "psf")
		}
	}
	if sub.Has("osf") {
		if err := sub.CheckFloat("osf"); err != nil {
			return p, Locate(err, "psf")
		}
		p.OSF, _ = sub.Float("osf")
		if p.OSF < 1 {
			return p, Locate(Errorf("osf", "the oversampling factor must be at least 1."), "psf")
		}
	}
	return p, nil
}

func parseOutput(e Entry) (Output, error) {
	o := Output{Path: ".", Format: "csv"}
	sub, ok := e.Sub("output")
	if !ok {
		return o, nil
	}
	if s, ok := sub.String("path"); ok && s != "" {
		o.Path = s
	}
	if sub.Has("format") {
		if err := sub.CheckSelection("format", []string{"csv", "CSV", "fits", "FITS"}); err != nil {
			return o, Locate(err, "output")
		}
		f, _ := sub.String("format")
		o.Format = strings.ToLower(f)
	}
	return o, nil
}

// list reads a batch of values given inline or as a CSV file.  Values
// without unit are taken to be in u.
func list(e Entry, name string, u units.Unit) ([]float64, error) {
	arr, err := e.Array(name)
	if err == nil {
		if arr.Unit.IsDimensionless() {
			arr.Unit = u
		}
		vals, err := arr.To(u)
		if err != nil {
			return nil, Errorf(name, "Expected parameter '%s' with unit equivalent to '%s' but got unit '%s'.", name, u, arr.Unit)
		}
		return vals, nil
	}
	if ferr := e.CheckFile(name); ferr != nil {
		return nil, ferr
	}
	path, _ := e.String(name)
	vals, err := ReadList(path, u)
	if err != nil {
		return nil, Errorf(name, "%v", err)
	}
	return vals, nil
}
