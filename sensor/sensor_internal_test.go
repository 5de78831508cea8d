package sensor

import (
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/LukasK13/ESBO-ETC/radiant"
	"github.com/LukasK13/ESBO-ETC/spectral"
	"github.com/LukasK13/ESBO-ETC/units"
)

func TestBatchKeepsOrder(t *testing.T) {
	out, err := batch(5, func(i int) (float64, error) { return float64(i * i), nil })
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{0, 1, 4, 9, 16}, out); diff != "" {
		t.Error(diff)
	}
}

func TestBatchBoundsGoroutines(t *testing.T) {
	var running, peak int32
	n := 20 * runtime.GOMAXPROCS(0)
	out, err := batch(n, func(i int) (float64, error) {
		cur := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&running, -1)
		return float64(i), nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != n || out[n-1] != float64(n-1) {
		t.Errorf("unexpected results %v", out)
	}
	if int(peak) > runtime.GOMAXPROCS(0) {
		t.Errorf("expected at most %d concurrent values, got %d", runtime.GOMAXPROCS(0), peak)
	}

	if out, err := batch(0, nil); err != nil || len(out) != 0 {
		t.Errorf("an empty batch should be empty, got %v %v", out, err)
	}
}

func TestBatchFirstError(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	_, err := batch(4, func(i int) (float64, error) {
		switch i {
		case 1:
			return 0, errA
		case 3:
			return 0, errB
		}
		return 1, nil
	})
	if err != errA {
		t.Errorf("expected the error of the lowest index, got %v", err)
	}
}

// counting counts the evaluations of the chain
type counting struct {
	signals, backgrounds int
}

func (c *counting) Signal() (radiant.Signal, error) {
	c.signals++
	q, err := spectral.Const([]float64{400, 500}, units.Nanometer, 1, units.SpectralFluxDensity)
	return radiant.Signal{Qty: q}, err
}

func (c *counting) Background() (*spectral.Qty, error) {
	c.backgrounds++
	return spectral.Const([]float64{400, 500}, units.Nanometer, 0, units.SpectralRadiance)
}

func TestEvaluationStates(t *testing.T) {
	c := &counting{}
	ev := newEvaluation(c)
	if ev.state != Idle {
		t.Fatalf("expected idle, got %s", ev.state)
	}
	for i := 0; i < 3; i++ {
		if err := ev.incoming(); err != nil {
			t.Fatal(err)
		}
	}
	if ev.state != IncomingRadiationComputed {
		t.Errorf("expected %s, got %s", IncomingRadiationComputed, ev.state)
	}
	if c.signals != 1 || c.backgrounds != 1 {
		t.Errorf("the chain must be evaluated once, got %d signals and %d backgrounds", c.signals, c.backgrounds)
	}
	ev.done()
	if ev.state.String() != "result computed" {
		t.Errorf("unexpected state %s", ev.state)
	}
}

func TestInsertLine(t *testing.T) {
	bins := []float64{100, 200, 300}
	got, i := insertLine(bins, 250)
	if diff := cmp.Diff([]float64{100, 200, 250, 300}, got); diff != "" || i != 2 {
		t.Errorf("index %d, %s", i, diff)
	}
	got, i = insertLine(bins, 200)
	if diff := cmp.Diff(bins, got); diff != "" || i != 1 {
		t.Errorf("a line on the grid must not be duplicated: index %d, %s", i, diff)
	}
	got, i = insertLine(bins, 50)
	if got[0] != 50 || i != 0 {
		t.Errorf("expected the line in front, got %v at %d", got, i)
	}
}

func TestRefMag(t *testing.T) {
	for _, q := range []units.Quantity{
		units.Q(12, units.Dimensionless),
		units.Q(12, units.Mag),
		units.Q(12, units.Mag.Div(units.Steradian)),
	} {
		if v, err := refMag(q); err != nil || v != 12 {
			t.Errorf("%s: got %g, %v", q, v, err)
		}
	}
	if _, err := refMag(units.Q(12, units.Kelvin)); err == nil {
		t.Error("expected an error for a temperature")
	}
}
