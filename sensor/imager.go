package sensor

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/LukasK13/ESBO-ETC/config"
	"github.com/LukasK13/ESBO-ETC/logging"
	"github.com/LukasK13/ESBO-ETC/pixelmask"
	"github.com/LukasK13/ESBO-ETC/psf"
	"github.com/LukasK13/ESBO-ETC/radiant"
	"github.com/LukasK13/ESBO-ETC/spectral"
	"github.com/LukasK13/ESBO-ETC/units"
)

// ElectronRate is electron / (pix s), the unit of the dark current
var ElectronRate = units.Electron.Div(units.Pixel).Div(units.Second)

// PixelParams describe a single detector pixel
type PixelParams struct {
	// QuantumEfficiency is a number in electron / ph or the path of a
	// spectral quantum efficiency
	QuantumEfficiency config.Source `mapstructure:"quantum_efficiency"`

	// PixelSize is the edge length of a square pixel
	PixelSize units.Quantity `mapstructure:"pixel_size"`

	// DarkCurrent in electron / (pix s)
	DarkCurrent units.Quantity `mapstructure:"dark_current"`

	// SigmaReadOut is the RMS read noise in electron^0.5 / pix
	SigmaReadOut float64 `mapstructure:"sigma_read_out"`

	// WellCapacity in electron.  Zero disables the check.
	WellCapacity units.Quantity `mapstructure:"well_capacity"`
}

// ApertureParams select the photometric aperture
type ApertureParams struct {
	// Shape is circle or square
	Shape string `mapstructure:"shape"`

	// ContainedEnergy is peak, fwhm, min or a percentage
	ContainedEnergy string `mapstructure:"contained_energy"`

	// ContainedPixels overrides ContainedEnergy with a square aperture of
	// this many pixels when positive
	ContainedPixels float64 `mapstructure:"contained_pixels"`
}

// ImagerParams configure an Imager
type ImagerParams struct {
	FNumber float64 `mapstructure:"f_number"`

	// PixelGeometry is the number of pixels in x and y
	PixelGeometry [2]int `mapstructure:"pixel_geometry"`

	// CenterOffset is the offset of the PSF centre from the centre of the
	// array in pixels, x and y
	CenterOffset [2]float64 `mapstructure:"center_offset"`

	Pixel    PixelParams    `mapstructure:"pixel"`
	Aperture ApertureParams `mapstructure:"photometric_aperture"`
}

// DefaultImager has a circular aperture of the PSF's FWHM
func DefaultImager() ImagerParams {
	return ImagerParams{Aperture: ApertureParams{Shape: "circle", ContainedEnergy: "FWHM"}}
}

// Imager is a pixelated detector behind a telescope, e.g. a CCD or CMOS
// sensor.  Its noise follows the CCD equation.
type Imager struct {
	parent radiant.Radiant
	p      ImagerParams
	opts   options

	qe        spectral.Operand
	psf       psf.PSF
	ce        psf.ContainedEnergy
	shape     pixelmask.Shape
	jitter    *units.Quantity
	pix       float64 // pixel size in m
	d         float64 // aperture diameter in m
	centralWL float64 // m
	dark      float64 // electron / (pix s)
	well      float64 // electron
}

// NewImager creates an imager receiving its radiation from parent.  The PSF,
// aperture diameter, jitter and central wavelength come from common.
func NewImager(parent radiant.Radiant, p ImagerParams, common config.Common, opts ...Option) (*Imager, error) {
	if parent == nil {
		return nil, errors.New("imager without parent")
	}
	im := &Imager{parent: parent, p: p, opts: collect(opts), jitter: common.JitterSigma}
	var err error
	if !(p.FNumber > 0) {
		return nil, config.Errorf("f_number", "f-number must be positive, got %g.", p.FNumber)
	}
	if p.PixelGeometry[0] < 1 || p.PixelGeometry[1] < 1 {
		return nil, config.Errorf("pixel_geometry", "pixel geometry must be positive, got %v.", p.PixelGeometry)
	}
	if im.pix, err = p.Pixel.PixelSize.To(units.Meter); err != nil || !(im.pix > 0) {
		return nil, config.Locate(config.Errorf("pixel_size", "Expected a positive length, got '%s'.", p.Pixel.PixelSize), "pixel")
	}
	if im.dark, err = orUnit(p.Pixel.DarkCurrent, ElectronRate).To(ElectronRate); err != nil {
		return nil, config.Locate(config.Errorf("dark_current", "Expected a quantity in '%s', got '%s'.", ElectronRate, p.Pixel.DarkCurrent), "pixel")
	}
	if im.well, err = orUnit(p.Pixel.WellCapacity, units.Electron).To(units.Electron); err != nil {
		return nil, config.Locate(config.Errorf("well_capacity", "Expected a quantity in electron, got '%s'.", p.Pixel.WellCapacity), "pixel")
	}
	if im.qe, err = quantumEfficiency(p.Pixel.QuantumEfficiency, im.opts.log); err != nil {
		return nil, config.Locate(err, "pixel")
	}
	if im.d, err = common.DAperture.To(units.Meter); err != nil || !(im.d > 0) {
		return nil, errors.Errorf("aperture diameter must be a positive length, got %s", common.DAperture)
	}
	im.centralWL = common.CentralWL().MustTo(units.Meter)

	shape := p.Aperture.Shape
	if shape == "" {
		shape = "circle"
	}
	if im.shape, err = pixelmask.ParseShape(shape); err != nil {
		return nil, config.Locate(config.Errorf("shape", "%v", err), "photometric_aperture")
	}
	ce := p.Aperture.ContainedEnergy
	if ce == "" {
		ce = "FWHM"
	}
	if im.ce, err = psf.ParseContainedEnergy(ce); err != nil {
		return nil, config.Locate(config.Errorf("contained_energy", "%v", err), "photometric_aperture")
	}

	im.psf = im.opts.psf
	if im.psf == nil {
		im.psf, err = psf.Open(common.PSF.Source, psf.Params{
			FNumber:   p.FNumber,
			WL:        units.Q(im.centralWL, units.Meter),
			DAperture: common.DAperture,
			OSF:       common.PSF.OSF,
			PixelSize: p.Pixel.PixelSize,
		}, psf.WithLogger(im.opts.log))
		if err != nil {
			return nil, errors.Wrap(err, "loading PSF")
		}
	}
	return im, nil
}

// orUnit gives a plain number the unit u
func orUnit(q units.Quantity, u units.Unit) units.Quantity {
	if q.Unit.IsDimensionless() {
		return units.Q(q.Value, u)
	}
	return q
}

func quantumEfficiency(s config.Source, l logging.Logger) (spectral.Operand, error) {
	switch {
	case s.Value != nil:
		v, err := orUnit(*s.Value, units.QuantumEfficiency).To(units.QuantumEfficiency)
		if err != nil {
			return nil, config.Errorf("quantum_efficiency", "Expected a quantity in electron / ph, got '%s'.", s.Value)
		}
		return spectral.Quantity(units.Q(v, units.QuantumEfficiency)), nil
	case s.File != "":
		q, err := spectral.FromFile(s.File, units.Nanometer, units.QuantumEfficiency, spectral.WithLogger(l))
		if err != nil {
			return nil, errors.Wrap(err, "reading quantum efficiency")
		}
		return q, nil
	}
	return nil, config.Errorf("quantum_efficiency", "Missing container 'quantum_efficiency'.")
}

// Pixels holds the charge collected by every pixel of the array in one
// exposure, in electrons.  ReadNoise is the RMS read noise of the exposed
// pixels.
type Pixels struct {
	ExpTime    float64
	Signal     *mat.Dense
	Background *mat.Dense
	ReadNoise  *mat.Dense
	Dark       *mat.Dense
}

// exposure holds the per pixel currents of the photometric aperture in
// electron / s and their sums
type exposure struct {
	signal, background, dark, readNoise *pixelmask.Mask

	s, b, d float64
	r2      float64 // sum of the squared read noise
}

// pixels returns the charges collected in t with the signal scaled by k
func (e *exposure) pixels(t, k float64) *Pixels {
	charge := func(m *pixelmask.Mask, f float64) *mat.Dense {
		out := m.Dense()
		out.Scale(f, out)
		return out
	}
	return &Pixels{
		ExpTime:    t,
		Signal:     charge(e.signal, k*t),
		Background: charge(e.background, t),
		ReadNoise:  charge(e.readNoise, 1),
		Dark:       charge(e.dark, t),
	}
}

// currents returns the electron currents of the background per pixel and of
// the signal in total.  Extended signals are given per pixel as well.
func (im *Imager) currents(ev *evaluation) (signal, background float64, err error) {
	if err := ev.incoming(); err != nil {
		return 0, 0, err
	}
	// light gathered by a pixel from a unit solid angle, m2 sr
	pixelEtendue := spectral.Quantity(units.Q(math.Pi*im.pix*im.pix/(4*im.p.FNumber*im.p.FNumber+1),
		units.Meter.Pow(2).Mul(units.Steradian)))
	aperture := spectral.Quantity(units.Q(math.Pi*im.d*im.d/4, units.Meter.Pow(2)))

	if background, err = im.electrons(ev.background, pixelEtendue); err != nil {
		return 0, 0, errors.Wrap(err, "background")
	}
	geom := aperture
	if ev.signal.Size == radiant.Extended {
		geom = pixelEtendue
	}
	if signal, err = im.electrons(ev.signal.Qty, geom); err != nil {
		return 0, 0, errors.Wrap(err, "signal")
	}
	return signal, background, nil
}

// electrons converts a spectral power density times geom into an electron
// current
func (im *Imager) electrons(q *spectral.Qty, geom spectral.Operand) (float64, error) {
	p, err := q.Mul(geom)
	if err != nil {
		return 0, err
	}
	if p, err = p.Div(spectral.PhotonEnergy()); err != nil {
		return 0, err
	}
	if p, err = p.Mul(im.qe); err != nil {
		return 0, err
	}
	v, err := p.Integrate().To(units.Electron.Div(units.Second))
	if err != nil {
		return 0, errors.Wrapf(err, "converting %s to electron / s", p.Unit())
	}
	return v, nil
}

// aperture returns the photometric aperture and its diameter in pixels
func (im *Imager) aperture(size radiant.Size, obstruction float64) (*pixelmask.Mask, float64, error) {
	m, err := pixelmask.New(im.p.PixelGeometry[0], im.p.PixelGeometry[1], im.p.Pixel.PixelSize,
		im.p.CenterOffset, pixelmask.WithLogger(im.opts.log))
	if err != nil {
		return nil, 0, err
	}
	centre := &[2]float64{}
	switch {
	case size == radiant.Extended:
		m, err = m.Aperture(pixelmask.Circle, 0, centre)
		return m, 0, err
	case im.p.Aperture.ContainedPixels > 0:
		d := math.Sqrt(im.p.Aperture.ContainedPixels)
		m, err = m.Aperture(pixelmask.Square, d/2, centre)
		return m, d, err
	}
	ra, err := im.psf.ReducedObservationAngle(im.ce, im.jitter, obstruction)
	if err != nil {
		return nil, 0, err
	}
	// observation angle over the field of view of a pixel
	d := ra * im.centralWL / im.d / (im.pix / (im.p.FNumber * im.d))
	m, err = m.Aperture(im.shape, d/2, nil)
	return m, d, err
}

// expose distributes the currents over the pixels of the photometric
// aperture
func (im *Imager) expose() (*exposure, error) {
	ev := newEvaluation(im.parent)
	signal, background, err := im.currents(ev)
	if err != nil {
		return nil, err
	}
	size, obstruction := ev.signal.Size, ev.signal.Obstruction
	mask, d, err := im.aperture(size, obstruction)
	if err != nil {
		return nil, errors.Wrap(err, "photometric aperture")
	}
	im.opts.log.Info(fmt.Sprintf("The radius of the photometric aperture is %.2f pixels.", d/2))
	im.opts.log.Info(fmt.Sprintf("The photometric aperture contains %d pixels.", mask.Count()))

	e := &exposure{
		background: mask.Scale(background),
		dark:       mask.Scale(im.dark),
		readNoise:  mask.Scale(im.p.Pixel.SigmaReadOut),
	}
	if size == radiant.Extended {
		e.signal = mask.Scale(signal)
	} else {
		w, err := im.psf.MapToPixelMask(mask, im.jitter, obstruction)
		if err != nil {
			return nil, errors.Wrap(err, "mapping PSF")
		}
		e.signal = w.Scale(signal)
	}
	e.s, e.b, e.d = e.signal.Sum(), e.background.Sum(), e.dark.Sum()
	e.r2 = float64(mask.Count()) * im.p.Pixel.SigmaReadOut * im.p.Pixel.SigmaReadOut
	ev.done()
	return e, nil
}

// peak returns the largest charge collected by a pixel in t with the signal
// scaled by k
func (e *exposure) peak(t, k float64) float64 {
	peak := 0.
	for r := 0; r < e.signal.Rows(); r++ {
		for c := 0; c < e.signal.Cols(); c++ {
			q := k*t*e.signal.At(r, c) + t*(e.background.At(r, c)+e.dark.At(r, c))
			peak = math.Max(peak, q)
		}
	}
	return peak
}

// checkWell warns when a pixel collects more charge than it can hold
func (im *Imager) checkWell(e *exposure, t, k float64) {
	if im.well <= 0 {
		return
	}
	if peak := e.peak(t, k); peak > im.well {
		im.opts.log.Warn("The full well capacity of the detector is exceeded.",
			logging.Float("charge", peak), logging.Float("well_capacity", im.well),
			logging.Float("exp_time", t))
	}
}

func (im *Imager) finish(name string, e *exposure, t, k float64) error {
	im.checkWell(e, t, k)
	im.opts.log.Info("Exposure details",
		logging.String("name", name),
		logging.Float("signal", e.s*k*t),
		logging.Float("background", e.b*t),
		logging.Float("dark", e.d*t),
		logging.Float("read_noise", math.Sqrt(e.r2)))
	if im.opts.rec == nil {
		return nil
	}
	return im.opts.record(Detail{Name: name, Pixels: e.pixels(t, k)})
}

// SNR implements Sensor with the CCD equation
// SNR = S t / sqrt(t (S + B + D) + n R^2)
func (im *Imager) SNR(expTimes []float64) ([]float64, error) {
	e, err := im.expose()
	if err != nil {
		return nil, err
	}
	return batch(len(expTimes), func(i int) (float64, error) {
		t := expTimes[i]
		if err := checkExpTime(t); err != nil {
			return 0, err
		}
		snr := e.s * t / math.Sqrt(t*(e.s+e.b+e.d)+e.r2)
		return snr, im.finish(expTimeName(t), e, t, 1)
	})
}

// ExpTime implements Sensor by solving the CCD equation for t
func (im *Imager) ExpTime(snrs []float64) ([]float64, error) {
	e, err := im.expose()
	if err != nil {
		return nil, err
	}
	if !(e.s > 0) {
		return nil, errors.New("no signal reaches the detector")
	}
	return batch(len(snrs), func(i int) (float64, error) {
		snr := snrs[i]
		if err := checkSNR(snr); err != nil {
			return 0, err
		}
		s2, x := snr*snr, e.s+e.b+e.d
		t := (s2*x + math.Sqrt(s2*s2*x*x+4*e.s*e.s*s2*e.r2)) / (2 * e.s * e.s)
		return t, im.finish(snrName(snr), e, t, 1)
	})
}

// Sensitivity implements Sensor.  The CCD equation is solved for the
// limiting signal, which is compared to the signal of the configured target.
func (im *Imager) Sensitivity(expTimes, snrs []float64, ref units.Quantity) ([]float64, error) {
	if err := checkPairs(expTimes, snrs); err != nil {
		return nil, err
	}
	mag, err := refMag(ref)
	if err != nil {
		return nil, err
	}
	e, err := im.expose()
	if err != nil {
		return nil, err
	}
	if !(e.s > 0) {
		return nil, errors.New("no signal reaches the detector")
	}
	return batch(len(snrs), func(i int) (float64, error) {
		t, snr := expTimes[i], snrs[i]
		if err := checkExpTime(t); err != nil {
			return 0, err
		}
		if err := checkSNR(snr); err != nil {
			return 0, err
		}
		s2 := snr * snr
		lim := (s2*t + math.Sqrt(s2*s2*t*t+4*t*t*s2*(t*(e.b+e.d)+e.r2))) / (2 * t * t)
		return mag - 2.5*math.Log10(lim/e.s), im.finish(sensitivityName(t, snr), e, t, lim/e.s)
	})
}

// CheckImager checks an Imager entry
func CheckImager(e config.Entry) error {
	if err := e.CheckFloat("f_number"); err != nil {
		return err
	}
	if err := e.CheckQuantity("pixel_geometry", units.Pixel); err != nil {
		return err
	}
	if e.Has("center_offset") {
		if err := e.CheckQuantity("center_offset", units.Pixel); err != nil {
			return err
		}
	}

	pixel, ok := e.Sub("pixel")
	if !ok {
		return &config.Error{Msg: "Missing container 'pixel'."}
	}
	loc := func(err error) error { return config.Locate(err, "pixel") }
	if err := pixel.CheckQuantityOrFile("quantum_efficiency", units.QuantumEfficiency); err != nil {
		if err := pixel.CheckFloat("quantum_efficiency"); err != nil {
			return loc(err)
		}
	}
	if err := pixel.CheckQuantity("pixel_size", units.Meter); err != nil {
		return loc(err)
	}
	if err := pixel.CheckQuantity("dark_current", ElectronRate); err != nil {
		return loc(err)
	}
	if err := pixel.CheckFloat("sigma_read_out"); err != nil {
		return loc(err)
	}
	if pixel.Has("well_capacity") {
		if err := pixel.CheckQuantity("well_capacity", units.Electron); err != nil {
			return loc(err)
		}
	}

	ap, ok := e.Sub("photometric_aperture")
	if !ok {
		return &config.Error{Msg: "Missing container 'photometric_aperture'."}
	}
	loc = func(err error) error { return config.Locate(err, "photometric_aperture") }
	if ap.Has("shape") {
		if err := ap.CheckSelection("shape", pixelmask.ShapeNames); err != nil {
			return loc(err)
		}
	}
	if ap.Has("contained_energy") {
		if err := ap.CheckFloat("contained_energy"); err != nil {
			if err := ap.CheckSelection("contained_energy", []string{"peak", "FWHM", "fwhm", "min"}); err != nil {
				return loc(err)
			}
		}
	}
	if ap.Has("contained_pixels") {
		if err := ap.CheckQuantity("contained_pixels", units.Pixel); err != nil {
			return loc(err)
		}
	}
	return nil
}
