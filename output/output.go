// Package output writes the results of a calculation to disk and to the
// terminal.
//
// Every run gets its own folder below the configured output path, named after
// the time the run started.  The details of each evaluated value (per pixel
// charges of an Imager, antenna temperatures of a Heterodyne receiver) are
// written to a subfolder named after the value, e.g. "texp_10".
package output

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/LukasK13/ESBO-ETC/logging"
	"github.com/LukasK13/ESBO-ETC/sensor"
)

// Formats lists the file formats a Recorder can write
var Formats = []string{"csv", "fits"}

// RunFolderLayout is the time layout of the run folder names
const RunFolderLayout = "2006-01-02_15-04-05"

// Recorder writes the details of evaluated values below Root.  It implements
// sensor.Recorder and is safe for concurrent use; details sharing a name are
// written one after the other.
type Recorder struct {
	// Root is the run folder
	Root string

	// Format is csv or fits
	Format string

	log logging.Logger

	mu    sync.Mutex
	names map[string]*sync.Mutex
}

// NewRun creates a run folder for a run started at now below path and
// returns a Recorder writing into it
func NewRun(path, format string, now time.Time, l logging.Logger) (*Recorder, error) {
	format = strings.ToLower(format)
	if format != "csv" && format != "fits" {
		return nil, errors.Errorf("unknown output format '%s'", format)
	}
	root := filepath.Join(path, now.Format(RunFolderLayout))
	if err := os.MkdirAll(root, 0777); err != nil {
		return nil, err
	}
	return &Recorder{Root: root, Format: format, log: logging.OrNoop(l)}, nil
}

// ext is the file extension of the format
func (r *Recorder) ext() string {
	return "." + r.Format
}

// lock serializes the writes to the folder of name
func (r *Recorder) lock(name string) func() {
	r.mu.Lock()
	if r.names == nil {
		r.names = make(map[string]*sync.Mutex)
	}
	l, ok := r.names[name]
	if !ok {
		l = &sync.Mutex{}
		r.names[name] = l
	}
	r.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// mkDir makes the folder of a value and returns it
func (r *Recorder) mkDir(name string) (string, error) {
	fldr := filepath.Join(r.Root, name)
	if _, err := os.Stat(fldr); err == nil {
		r.log.Warn(fmt.Sprintf("Output directory '%s' already exists.", fldr))
	}
	return fldr, os.MkdirAll(fldr, 0777)
}

// Record implements sensor.Recorder
func (r *Recorder) Record(d sensor.Detail) error {
	if d.Pixels == nil && d.Table == nil {
		return nil
	}
	defer r.lock(d.Name)()
	fldr, err := r.mkDir(d.Name)
	if err != nil {
		return err
	}
	if d.Pixels != nil {
		if err := r.writePixels(fldr, d.Pixels); err != nil {
			return errors.Wrapf(err, "writing details of %s", d.Name)
		}
	}
	if d.Table != nil {
		if err := r.writeTable(filepath.Join(fldr, "result"+r.ext()), TableColumns(d.Table)); err != nil {
			return errors.Wrapf(err, "writing details of %s", d.Name)
		}
	}
	return nil
}

// WriteResult writes the result table of a run to the run folder
func (r *Recorder) WriteResult(cols []Column) error {
	return r.writeTable(filepath.Join(r.Root, "result"+r.ext()), cols)
}

func (r *Recorder) writePixels(fldr string, p *sensor.Pixels) error {
	for _, a := range []struct {
		name string
		m    *mat.Dense
	}{
		{"signal", p.Signal},
		{"background", p.Background},
		{"read_noise", p.ReadNoise},
		{"dark", p.Dark},
	} {
		if a.m == nil {
			continue
		}
		fn := filepath.Join(fldr, a.name+r.ext())
		var err error
		if r.Format == "fits" {
			err = writeMatrixFITS(fn, a.m, p.ExpTime)
		} else {
			err = writeMatrixCSV(fn, a.m)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Recorder) writeTable(fn string, cols []Column) error {
	if r.Format == "fits" {
		return writeTableFITS(fn, cols)
	}
	return writeTableCSV(fn, cols)
}
