package spectral_test

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"

	"github.com/LukasK13/ESBO-ETC/logging"
	"github.com/LukasK13/ESBO-ETC/spectral"
	"github.com/LukasK13/ESBO-ETC/units"
)

var approx = cmpopts.EquateApprox(1e-9, 1e-300)

func mustNew(t *testing.T, wl, val []float64, wlUnit, unit units.Unit, opts ...spectral.Option) *spectral.Qty {
	t.Helper()
	q, err := spectral.New(wl, val, wlUnit, unit, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return q
}

func ExampleQty_Rebin() {
	q, _ := spectral.New([]float64{400, 500, 600}, []float64{1, 2, 3}, units.Nanometer, units.Dimensionless)
	r, _ := q.Rebin([]float64{450, 550, 650}, units.Nanometer)
	fmt.Println(r.Val())
	// Output: [1.5 2.5 3.5]
}

func TestNewDimensionMismatch(t *testing.T) {
	_, err := spectral.New([]float64{1, 2}, []float64{1}, units.Nanometer, units.Watt)
	if errors.Cause(err) != spectral.ErrDimensionMismatch {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestNewRejectsUnsortedGrid(t *testing.T) {
	if _, err := spectral.New([]float64{2, 1}, []float64{1, 1}, units.Nanometer, units.Watt); err == nil {
		t.Error("expected an error for a decreasing grid")
	}
}

func TestRebinRoundTrip(t *testing.T) {
	wl := []float64{200, 201, 202, 203, 204, 205, 206, 207, 208, 209, 210}
	val := make([]float64, len(wl))
	for i, w := range wl {
		val[i] = 3*w - 100
	}
	q := mustNew(t, wl, val, units.Nanometer, units.Watt)
	fine, err := q.Rebin([]float64{200, 200.5, 201, 203.25, 210}, units.Nanometer)
	if err != nil {
		t.Fatal(err)
	}
	back, err := fine.Rebin([]float64{200, 201, 210}, units.Nanometer)
	if err != nil {
		t.Fatal(err)
	}
	exp := []float64{500, 503, 530}
	if diff := cmp.Diff(exp, back.Val(), approx); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRebinOtherUnit(t *testing.T) {
	q := mustNew(t, []float64{0.4, 0.5, 0.6}, []float64{1, 2, 3}, units.Micrometer, units.Watt)
	r, err := q.Rebin([]float64{450, 550}, units.Nanometer)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{0.45, 0.55}, r.WL(), approx); diff != "" {
		t.Errorf("grid should stay in um (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{1.5, 2.5}, r.Val(), approx); diff != "" {
		t.Errorf("values mismatch (-want +got):\n%s", diff)
	}
}

func TestRebinFillPolicies(t *testing.T) {
	wl := []float64{400, 500, 600}
	val := []float64{1, 2, 3}
	grid := []float64{300, 450, 700}

	t.Run("extrapolate", func(t *testing.T) {
		q := mustNew(t, wl, val, units.Nanometer, units.Watt)
		r, err := q.Rebin(grid, units.Nanometer)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]float64{0, 1.5, 4}, r.Val(), approx); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})
	t.Run("constant", func(t *testing.T) {
		q := mustNew(t, wl, val, units.Nanometer, units.Watt, spectral.WithFill(spectral.ConstantFill(0)))
		r, err := q.Rebin(grid, units.Nanometer)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]float64{0, 1.5, 0}, r.Val(), approx); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
	})
	t.Run("truncate", func(t *testing.T) {
		rec := logging.NewRecorder()
		q := mustNew(t, wl, val, units.Nanometer, units.Watt,
			spectral.WithFill(spectral.Truncate), spectral.WithLogger(rec))
		r, err := q.Rebin(grid, units.Nanometer)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]float64{450}, r.WL(), approx); diff != "" {
			t.Errorf("(-want +got):\n%s", diff)
		}
		w := rec.Warnings()
		if len(w) != 1 || !strings.Contains(w[0], "bandwidth will be reduced") {
			t.Errorf("expected a single truncation warning, got %v", w)
		}
	})
}

func TestRebinSinglePoint(t *testing.T) {
	q := mustNew(t, []float64{500}, []float64{7}, units.Nanometer, units.Watt)
	r, err := q.Rebin([]float64{400, 500, 600}, units.Nanometer)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{7, 7, 7}, r.Val()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestArithmeticIdentities(t *testing.T) {
	q := mustNew(t, []float64{400, 500, 600}, []float64{1, 2, 4}, units.Nanometer, units.SpectralFluxDensity)

	one, err := q.Mul(spectral.Scalar(1))
	if err != nil {
		t.Fatal(err)
	}
	if !one.Equal(q) {
		t.Errorf("q * 1 != q:\n%s", one)
	}

	zero, err := q.Add(spectral.Quantity(units.Q(0, units.SpectralFluxDensity)))
	if err != nil {
		t.Fatal(err)
	}
	if !zero.Equal(q) {
		t.Errorf("q + 0 != q:\n%s", zero)
	}

	a := spectral.Quantity(units.Q(3.5, units.Second))
	scaled, err := q.Mul(a)
	if err != nil {
		t.Fatal(err)
	}
	if !scaled.Unit().Equivalent(units.SpectralFluxDensity.Mul(units.Second)) {
		t.Errorf("unexpected unit %s", scaled.Unit())
	}
	back, err := scaled.Div(a)
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equal(q) {
		t.Errorf("(q * a) / a != q:\n%s", back)
	}
}

func TestAddIncompatibleUnits(t *testing.T) {
	q := mustNew(t, []float64{400, 500}, []float64{1, 2}, units.Nanometer, units.Watt)
	_, err := q.Add(spectral.Quantity(units.Q(1, units.Second)))
	if errors.Cause(err) != units.ErrIncompatibleUnits {
		t.Errorf("expected ErrIncompatibleUnits, got %v", err)
	}
}

func TestAddConvertsUnits(t *testing.T) {
	q := mustNew(t, []float64{400, 500}, []float64{1, 2}, units.Nanometer, units.Watt)
	r, err := q.Add(spectral.Quantity(units.Q(500, units.MustParse("mW"))))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{1.5, 2.5}, r.Val(), approx); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestBinaryDifferentGrids(t *testing.T) {
	a := mustNew(t, []float64{400, 500, 600, 700}, []float64{1, 1, 1, 1}, units.Nanometer, units.Dimensionless)
	b := mustNew(t, []float64{0.45, 0.65}, []float64{2, 4}, units.Micrometer, units.Dimensionless)

	r, err := a.Mul(b)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a.WL(), r.WL(), approx); diff != "" {
		t.Errorf("result should live on the left grid (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{1.5, 2.5, 3.5, 4.5}, r.Val(), approx); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	bt := b.WithOptions(spectral.WithFill(spectral.Truncate))
	r, err = a.Mul(bt)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{500, 600}, r.WL(), approx); diff != "" {
		t.Errorf("truncated operand should reduce the grid (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{2.5, 3.5}, r.Val(), approx); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestNoOverlap(t *testing.T) {
	a := mustNew(t, []float64{400, 500}, []float64{1, 1}, units.Nanometer, units.Dimensionless)
	b := mustNew(t, []float64{800, 900}, []float64{1, 1}, units.Nanometer, units.Dimensionless,
		spectral.WithFill(spectral.Truncate))
	if _, err := a.Add(b); errors.Cause(err) != spectral.ErrNoOverlap {
		t.Errorf("expected ErrNoOverlap, got %v", err)
	}
}

func TestIntegrate(t *testing.T) {
	q := mustNew(t, []float64{0, 1, 2, 3}, []float64{0, 2, 4, 6}, units.Nanometer, units.Watt.Div(units.Nanometer))
	got := q.Integrate()
	v, err := got.To(units.Watt)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(v-9) > 1e-12 {
		t.Errorf("expected 9 W, got %v", got)
	}
}

func TestConvertDensityRoundTrip(t *testing.T) {
	q := mustNew(t, []float64{400, 500, 600}, []float64{1e-12, 2e-12, 3e-12}, units.Nanometer, units.SpectralFluxDensity)
	nu, err := q.Convert(units.FrequencyFluxDensity)
	if err != nil {
		t.Fatal(err)
	}
	// F_nu = F_lambda lambda^2 / c, F_lambda in W / (m2 m)
	exp := 1e-12 * 1e9 * 400e-9 * 400e-9 / units.C
	if math.Abs(nu.Val()[0]-exp) > 1e-9*exp {
		t.Errorf("expected %g, got %g", exp, nu.Val()[0])
	}
	back, err := nu.Convert(units.SpectralFluxDensity)
	if err != nil {
		t.Fatal(err)
	}
	if !back.Equal(q) {
		t.Errorf("round trip failed:\n%s", back)
	}
}

func TestEqual(t *testing.T) {
	a := mustNew(t, []float64{400, 500}, []float64{1, 2}, units.Nanometer, units.Watt)
	b := mustNew(t, []float64{0.4, 0.5}, []float64{1000, 2000.001}, units.Micrometer, units.MustParse("mW"))
	if !a.Equal(b) {
		t.Error("expected equal quantities")
	}
	c := mustNew(t, []float64{400, 500}, []float64{1, 2.1}, units.Nanometer, units.Watt)
	if a.Equal(c) {
		t.Error("expected different quantities")
	}
	d := mustNew(t, []float64{400, 500}, []float64{1, 2}, units.Nanometer, units.Second)
	if a.Equal(d) {
		t.Error("quantities with incompatible units are not equal")
	}
}

func TestAt(t *testing.T) {
	q := mustNew(t, []float64{400, 500}, []float64{1, 2}, units.Nanometer, units.Watt)
	v, err := q.At(450)
	if err != nil {
		t.Fatal(err)
	}
	if v != 1.5 {
		t.Errorf("expected 1.5, got %v", v)
	}
	if q.Index(500) != 1 || q.Index(501) != -1 {
		t.Error("Index returned the wrong position")
	}
}

func TestFromFileHeaderUnits(t *testing.T) {
	q, err := spectral.FromFile("testdata/flux_um.csv", units.Nanometer, units.SpectralFluxDensity)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{200, 300, 400}, q.WL(), approx); diff != "" {
		t.Errorf("grid (-want +got):\n%s", diff)
	}
	// per um to per nm
	if diff := cmp.Diff([]float64{1e-3, 2e-3, 4e-3}, q.Val(), approx); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
}

func TestFromFilePlain(t *testing.T) {
	q, err := spectral.FromFile("testdata/plain.csv", units.Nanometer, units.Dimensionless)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{200, 201, 202}, q.WL()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestFromFileFrequency(t *testing.T) {
	q, err := spectral.FromFile("testdata/freq.csv", units.Nanometer, units.SpectralFluxDensity)
	if err != nil {
		t.Fatal(err)
	}
	l0 := units.C / 1500e12
	l1 := units.C / 1000e12
	if diff := cmp.Diff([]float64{l0 * 1e9, l1 * 1e9}, q.WL(), approx); diff != "" {
		t.Errorf("grid should be sorted ascending in nm (-want +got):\n%s", diff)
	}
	exp := []float64{2e-20 * units.C / (l0 * l0) * 1e-9, 1e-20 * units.C / (l1 * l1) * 1e-9}
	if diff := cmp.Diff(exp, q.Val(), approx); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}
}

func TestFromFileECSV(t *testing.T) {
	q, err := spectral.FromFile("testdata/ecsv.csv", units.Nanometer, units.SpectralFluxDensity)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{200, 201}, q.WL(), approx); diff != "" {
		t.Errorf("grid (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{1e-15, 2e-15}, q.Val(), approx); diff != "" {
		t.Errorf("values (-want +got):\n%s", diff)
	}

	doc := "# - {name: wavelength, unit: nm}\n# - {name: flux, unit: W / (m2 nm)}\nwavelength flux\n200 1\nfoo bar\n"
	_, err = spectral.Read(strings.NewReader(doc), units.Nanometer, units.SpectralFluxDensity)
	if errors.Cause(err) != spectral.ErrMalformedFile {
		t.Errorf("a second text row should be malformed, got %v", err)
	}
}

func TestFromFileMalformed(t *testing.T) {
	_, err := spectral.FromFile("testdata/three_cols.csv", units.Nanometer, units.Dimensionless)
	if errors.Cause(err) != spectral.ErrMalformedFile {
		t.Errorf("expected ErrMalformedFile, got %v", err)
	}
	if _, err := spectral.FromFile("testdata/missing.csv", units.Nanometer, units.Dimensionless); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestBlackBody(t *testing.T) {
	q, err := spectral.Const([]float64{500}, units.Nanometer, 0, units.Dimensionless)
	if err != nil {
		t.Fatal(err)
	}
	bb := q.Eval(spectral.BlackBody(5778))
	// Planck at 500 nm and 5778 K: 2.6e13 W / (m2 m sr)
	got := bb.Val()[0]
	if got < 2.6e4 || got > 2.7e4 {
		t.Errorf("unexpected radiance %g W / (m2 nm sr)", got)
	}
	cold := q.Eval(spectral.BlackBody(0))
	if cold.Val()[0] != 0 {
		t.Error("a body at 0 K must not radiate")
	}
}
