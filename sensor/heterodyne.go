package sensor

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/LukasK13/ESBO-ETC/config"
	"github.com/LukasK13/ESBO-ETC/logging"
	"github.com/LukasK13/ESBO-ETC/radiant"
	"github.com/LukasK13/ESBO-ETC/spectral"
	"github.com/LukasK13/ESBO-ETC/temperature"
	"github.com/LukasK13/ESBO-ETC/units"
)

// HeterodyneParams configure a Heterodyne receiver
type HeterodyneParams struct {
	ApertureEfficiency float64            `mapstructure:"aperture_efficiency"`
	MainBeamEfficiency float64            `mapstructure:"main_beam_efficiency"`
	ReceiverTemp       temperature.Kelvin `mapstructure:"receiver_temp"`
	// EtaFSS is the forward scattering efficiency of the antenna
	EtaFSS float64 `mapstructure:"eta_fss"`
	// LambdaLine is the wavelength the results are reported for
	LambdaLine units.Quantity `mapstructure:"lambda_line"`
	// Kappa is the backend degradation factor
	Kappa float64 `mapstructure:"kappa"`
	// NOn is the number of on source observations, 0 for none
	NOn float64 `mapstructure:"n_on"`
}

// Heterodyne is a superheterodyne spectrometer.  Its noise follows the
// radiometer equation, T_rms = kappa T_sys / sqrt(t dnu).
type Heterodyne struct {
	parent radiant.Radiant
	p      HeterodyneParams
	opts   options

	wlBins []float64 // nm, including the line
	line   int       // index of the line in wlBins
	delta  float64   // bin width in nm
	d      float64   // aperture diameter in m
}

// NewHeterodyne creates a heterodyne receiver behind parent.  The spectral
// grid is the common wavelength grid with the line wavelength added.
func NewHeterodyne(parent radiant.Radiant, p HeterodyneParams, common config.Common, opts ...Option) (*Heterodyne, error) {
	if parent == nil {
		return nil, errors.New("heterodyne receiver without parent")
	}
	h := &Heterodyne{parent: parent, p: p, opts: collect(opts)}
	line, err := p.LambdaLine.To(units.Nanometer)
	if err != nil || !(line > 0) {
		return nil, config.Errorf("lambda_line", "Expected a positive wavelength, got '%s'.", p.LambdaLine)
	}
	if p.Kappa <= 0 {
		return nil, config.Errorf("kappa", "kappa must be positive, got %g.", p.Kappa)
	}
	if p.NOn < 0 {
		return nil, config.Errorf("n_on", "n_on must not be negative, got %g.", p.NOn)
	}
	if h.d, err = common.DAperture.To(units.Meter); err != nil || !(h.d > 0) {
		return nil, errors.Errorf("aperture diameter must be a positive length, got %s", common.DAperture)
	}
	if h.delta, err = common.WLDelta.To(units.Nanometer); err != nil || !(h.delta > 0) {
		return nil, errors.Errorf("wl_delta must be a positive length, got %s", common.WLDelta)
	}
	h.wlBins, h.line = insertLine(common.WLBins(), line)
	return h, nil
}

// insertLine adds line to the sorted grid unless it is already on it
func insertLine(bins []float64, line float64) ([]float64, int) {
	for i, w := range bins {
		if math.Abs(w-line) <= 1e-9*line {
			return append([]float64(nil), bins...), i
		}
	}
	i := sort.SearchFloat64s(bins, line)
	out := make([]float64, 0, len(bins)+1)
	out = append(out, bins[:i]...)
	out = append(out, line)
	out = append(out, bins[i:]...)
	return out, i
}

// Table holds the spectrally resolved results of the heterodyne receiver
type Table struct {
	WL             []float64 // nm
	SignalTemp     []float64 // K
	BackgroundTemp []float64 // K
	RMSTemp        []float64 // K

	// ResultName labels Result, e.g. "SNR [-]", "Exposure Time [s]" or
	// "Sensitivity [mag]"
	ResultName string
	Result     []float64
}

// temperatures are the antenna temperatures on the spectral grid
type temperatures struct {
	signal, background []float64 // K
	dnu                []float64 // noise bandwidth in Hz
}

// temperatures converts the radiation into antenna temperatures
func (h *Heterodyne) temperatures() (*temperatures, error) {
	ev := newEvaluation(h.parent)
	if err := ev.incoming(); err != nil {
		return nil, err
	}
	h.opts.log.Info("Calculating the system temperature.")
	bg, err := h.onGrid(ev.background, units.FrequencyRadiance)
	if err != nil {
		return nil, errors.Wrap(err, "background")
	}
	unit := units.FrequencyFluxDensity
	if ev.signal.Size == radiant.Extended {
		unit = units.FrequencyRadiance
	}
	h.opts.log.Info("Calculating the signal temperature.")
	sig, err := h.onGrid(ev.signal.Qty, unit)
	if err != nil {
		return nil, errors.Wrap(err, "signal")
	}

	out := &temperatures{
		signal:     make([]float64, len(h.wlBins)),
		background: make([]float64, len(h.wlBins)),
		dnu:        make([]float64, len(h.wlBins)),
	}
	for i, wl := range h.wlBins {
		l := wl * 1e-9
		// main beam: W / (m2 Hz sr) * m2 sr / (J / K)
		beam := h.p.MainBeamEfficiency * l * l / (2 * units.KB) * h.p.EtaFSS
		out.background[i] = bg[i] * beam
		if ev.signal.Size == radiant.Extended {
			out.signal[i] = sig[i] * beam
		} else {
			out.signal[i] = sig[i] * h.p.ApertureEfficiency * math.Pi * h.d * h.d / 4 / (2 * units.KB) * h.p.EtaFSS
		}
		out.dnu[i] = units.C / l / (wl/h.delta + 1)
	}
	h.opts.log.Debug("Antenna temperatures",
		logging.String("size", ev.signal.Size.String()),
		logging.Float("obstruction", ev.signal.Obstruction),
		logging.Any("signal", out.signal),
		logging.Any("background", out.background))
	ev.done()
	return out, nil
}

// onGrid rebins q onto the grid and converts it to u
func (h *Heterodyne) onGrid(q *spectral.Qty, u units.Unit) ([]float64, error) {
	r, err := q.Rebin(h.wlBins, units.Nanometer)
	if err != nil {
		return nil, err
	}
	if r.Len() != len(h.wlBins) {
		return nil, errors.Errorf("the spectrum does not cover %g to %g nm", h.wlBins[0], h.wlBins[len(h.wlBins)-1])
	}
	if r, err = r.Convert(u); err != nil {
		return nil, err
	}
	return r.Val(), nil
}

// factor is the noise of the backend per system temperature
func (h *Heterodyne) factor() float64 {
	if h.p.NOn > 0 {
		return h.p.Kappa * math.Sqrt(1+1/math.Sqrt(h.p.NOn))
	}
	return 2 * h.p.Kappa
}

// system returns the system temperature for a signal temperature
func (h *Heterodyne) system(background, signal float64) float64 {
	return 2 * (background + float64(h.p.ReceiverTemp) + signal)
}

func (h *Heterodyne) table(ts *temperatures, name string) *Table {
	return &Table{
		WL:             append([]float64(nil), h.wlBins...),
		SignalTemp:     ts.signal,
		BackgroundTemp: ts.background,
		RMSTemp:        make([]float64, len(h.wlBins)),
		ResultName:     name,
		Result:         make([]float64, len(h.wlBins)),
	}
}

func (h *Heterodyne) details(name string, tab *Table, tsys, dnu, signal float64) error {
	i := h.line
	h.opts.log.Info("Receiver details",
		logging.String("name", name),
		logging.Float("system_temperature", tsys),
		logging.Float("noise_bandwidth", dnu),
		logging.Float("rms_antenna_temperature", tab.RMSTemp[i]),
		logging.Float("antenna_temperature", signal))
	return h.opts.record(Detail{Name: name, Table: tab})
}

// SNR implements Sensor.  The SNR is reported at the line wavelength.
func (h *Heterodyne) SNR(expTimes []float64) ([]float64, error) {
	ts, err := h.temperatures()
	if err != nil {
		return nil, err
	}
	f := h.factor()
	return batch(len(expTimes), func(k int) (float64, error) {
		t := expTimes[k]
		if err := checkExpTime(t); err != nil {
			return 0, err
		}
		tab := h.table(ts, "SNR [-]")
		for i := range tab.WL {
			tab.RMSTemp[i] = f * h.system(ts.background[i], ts.signal[i]) / math.Sqrt(t*ts.dnu[i])
			tab.Result[i] = ts.signal[i] / tab.RMSTemp[i]
		}
		i := h.line
		return tab.Result[i], h.details(expTimeName(t), tab, h.system(ts.background[i], ts.signal[i]), ts.dnu[i], ts.signal[i])
	})
}

// ExpTime implements Sensor
func (h *Heterodyne) ExpTime(snrs []float64) ([]float64, error) {
	ts, err := h.temperatures()
	if err != nil {
		return nil, err
	}
	if !(ts.signal[h.line] > 0) {
		return nil, errors.New("no signal at the line wavelength")
	}
	f := h.factor()
	return batch(len(snrs), func(k int) (float64, error) {
		snr := snrs[k]
		if err := checkSNR(snr); err != nil {
			return 0, err
		}
		tab := h.table(ts, "Exposure Time [s]")
		for i := range tab.WL {
			tab.RMSTemp[i] = ts.signal[i] / snr
			x := f * h.system(ts.background[i], ts.signal[i]) / tab.RMSTemp[i]
			tab.Result[i] = x * x / ts.dnu[i]
		}
		i := h.line
		return tab.Result[i], h.details(snrName(snr), tab, h.system(ts.background[i], ts.signal[i]), ts.dnu[i], ts.signal[i])
	})
}

// Sensitivity implements Sensor.  The limiting signal temperature enters the
// system temperature as well, so the radiometer equation is solved for it
// in closed form.
func (h *Heterodyne) Sensitivity(expTimes, snrs []float64, ref units.Quantity) ([]float64, error) {
	if err := checkPairs(expTimes, snrs); err != nil {
		return nil, err
	}
	mag, err := refMag(ref)
	if err != nil {
		return nil, err
	}
	ts, err := h.temperatures()
	if err != nil {
		return nil, err
	}
	if !(ts.signal[h.line] > 0) {
		return nil, errors.New("no signal at the line wavelength")
	}
	f := h.factor()
	return batch(len(snrs), func(k int) (float64, error) {
		t, snr := expTimes[k], snrs[k]
		if err := checkExpTime(t); err != nil {
			return 0, err
		}
		if err := checkSNR(snr); err != nil {
			return 0, err
		}
		tab := h.table(ts, "Sensitivity [mag]")
		lim := make([]float64, len(tab.WL))
		for i := range tab.WL {
			a := snr * f * 2 / math.Sqrt(t*ts.dnu[i])
			lim[i] = math.NaN()
			tab.Result[i] = math.NaN()
			if a < 1 {
				lim[i] = a * (ts.background[i] + float64(h.p.ReceiverTemp)) / (1 - a)
				tab.Result[i] = mag - 2.5*math.Log10(lim[i]/ts.signal[i])
			}
			tab.RMSTemp[i] = lim[i] / snr
		}
		i := h.line
		if math.IsNaN(lim[i]) {
			return 0, errors.Errorf("an SNR of %g can not be reached in %g s", snr, t)
		}
		return tab.Result[i], h.details(sensitivityName(t, snr), tab, h.system(ts.background[i], lim[i]), ts.dnu[i], lim[i])
	})
}

// CheckHeterodyne checks a Heterodyne entry
func CheckHeterodyne(e config.Entry) error {
	for _, name := range []string{"aperture_efficiency", "main_beam_efficiency"} {
		if err := e.CheckFloat(name); err != nil {
			return err
		}
	}
	if err := e.CheckQuantity("receiver_temp", units.Kelvin); err != nil {
		return err
	}
	if err := e.CheckFloat("eta_fss"); err != nil {
		return err
	}
	if err := e.CheckQuantity("lambda_line", units.Meter); err != nil {
		return err
	}
	if err := e.CheckFloat("kappa"); err != nil {
		return err
	}
	if e.Has("n_on") {
		if err := e.CheckFloat("n_on"); err != nil {
			return err
		}
	}
	return nil
}
