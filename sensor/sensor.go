// Package sensor implements the detectors at the end of the radiative
// transport chain.
//
// A sensor pulls the signal and the background from the head of the chain,
// converts them into its native unit (electron rates for the Imager, antenna
// temperatures for the Heterodyne receiver) and solves its noise equation for
// the requested unknown.  Every method takes a batch of inputs; the values of
// a batch are solved concurrently since they share nothing but the
// radiation, which is computed once per call.
package sensor

import (
	"runtime"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/LukasK13/ESBO-ETC/logging"
	"github.com/LukasK13/ESBO-ETC/psf"
	"github.com/LukasK13/ESBO-ETC/radiant"
	"github.com/LukasK13/ESBO-ETC/spectral"
	"github.com/LukasK13/ESBO-ETC/units"
)

// Sensor solves the noise equation of a detector
type Sensor interface {
	// SNR returns the signal to noise ratio reached in each exposure time (s)
	SNR(expTimes []float64) ([]float64, error)

	// ExpTime returns the exposure time (s) needed to reach each SNR
	ExpTime(snrs []float64) ([]float64, error)

	// Sensitivity returns the limiting magnitude reached with each pair of
	// exposure time and SNR.  ref is the magnitude of the configured target.
	Sensitivity(expTimes, snrs []float64, ref units.Quantity) ([]float64, error)
}

// State is the progress of a single call to a Sensor
type State int

const (
	// Idle is the state before the chain is evaluated
	Idle State = iota
	// IncomingRadiationComputed is reached once the signal and the
	// background have been pulled from the chain
	IncomingRadiationComputed
	// ResultComputed is reached once the noise equation has been solved
	ResultComputed
)

func (s State) String() string {
	return [...]string{"idle", "incoming radiation computed", "result computed"}[s]
}

// Detail holds the intermediate results of one evaluated value
type Detail struct {
	// Name identifies the value, e.g. "texp_0.1", "snr_5" or
	// "snr_5_texp_0.1"
	Name string

	// Pixels is set by the Imager
	Pixels *Pixels

	// Table is set by the Heterodyne sensor
	Table *Table
}

// Recorder receives a Detail for every evaluated value.  Record is called
// concurrently for the values of a batch.
type Recorder interface {
	Record(Detail) error
}

// Option configures a sensor
type Option func(*options)

type options struct {
	log logging.Logger
	rec Recorder
	psf psf.PSF
}

// WithLogger sets the sink for progress messages and data quality warnings
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRecorder passes the details of every evaluated value to r
func WithRecorder(r Recorder) Option {
	return func(o *options) { o.rec = r }
}

// WithPSF makes the Imager use p instead of the PSF named in the common
// options
func WithPSF(p psf.PSF) Option {
	return func(o *options) { o.psf = p }
}

func collect(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.log = logging.OrNoop(o.log)
	return o
}

func (o options) record(d Detail) error {
	if o.rec == nil {
		return nil
	}
	return errors.Wrapf(o.rec.Record(d), "recording %s", d.Name)
}

// evaluation tracks a single call.  The chain is evaluated at most once.
type evaluation struct {
	parent     radiant.Radiant
	state      State
	signal     radiant.Signal
	background *spectral.Qty
}

func newEvaluation(parent radiant.Radiant) *evaluation {
	return &evaluation{parent: parent}
}

// incoming pulls the background and the signal from the chain
func (e *evaluation) incoming() error {
	if e.state != Idle {
		return nil
	}
	bg, err := e.parent.Background()
	if err != nil {
		return errors.Wrap(err, "computing background")
	}
	s, err := e.parent.Signal()
	if err != nil {
		return errors.Wrap(err, "computing signal")
	}
	e.background, e.signal = bg, s
	e.state = IncomingRadiationComputed
	return nil
}

func (e *evaluation) done() { e.state = ResultComputed }

// batch solves n values on at most GOMAXPROCS goroutines.  The first error
// in index order is returned.
func batch(n int, f func(i int) (float64, error)) ([]float64, error) {
	out := make([]float64, n)
	errs := make([]error, n)
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	next := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range next {
				out[i], errs[i] = f(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		next <- i
	}
	close(next)
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// number formats v for a detail name.  Distinct values give distinct names.
func number(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func expTimeName(t float64) string { return "texp_" + number(t) }

func snrName(snr float64) string { return "snr_" + number(snr) }

func sensitivityName(t, snr float64) string { return "snr_" + number(snr) + "_texp_" + number(t) }

func checkExpTime(t float64) error {
	if !(t > 0) {
		return errors.Errorf("exposure time must be positive, got %g s", t)
	}
	return nil
}

func checkSNR(snr float64) error {
	if !(snr > 0) {
		return errors.Errorf("SNR must be positive, got %g", snr)
	}
	return nil
}

// refMag returns the reference magnitude.  Plain numbers are magnitudes.
func refMag(ref units.Quantity) (float64, error) {
	if ref.Unit.IsDimensionless() {
		return ref.Value, nil
	}
	if v, err := ref.To(units.Mag); err == nil {
		return v, nil
	}
	if v, err := ref.To(units.Mag.Div(units.Steradian)); err == nil {
		return v, nil
	}
	return 0, errors.Errorf("reference brightness must be given in mag or mag / sr, got %s", ref)
}

func checkPairs(expTimes, snrs []float64) error {
	if len(expTimes) != len(snrs) {
		return errors.Errorf("length of exposure time (%d) not matching the length of the SNR (%d)", len(expTimes), len(snrs))
	}
	return nil
}
