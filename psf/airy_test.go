package psf_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/LukasK13/ESBO-ETC/pixelmask"
	"github.com/LukasK13/ESBO-ETC/psf"
	"github.com/LukasK13/ESBO-ETC/units"
)

func ExampleEncircledEnergy() {
	// first dark ring of the Airy disk
	fmt.Printf("%.4f\n", psf.EncircledEnergy(math.Pi*1.22, 0))
	// Output: 0.8378
}

func TestAiryPattern(t *testing.T) {
	if psf.AiryPattern(0, 0) != 1 || psf.AiryPattern(0, 0.2) != 1 {
		t.Error("the Airy disk must be normalised to 1 in the centre")
	}
	if v := psf.AiryPattern(3.8317059702075125, 0); v > 1e-20 {
		t.Errorf("expected a zero at the first root of J1, got %g", v)
	}
	if v := psf.AiryPattern(math.Pi*0.514, 0); math.Abs(v-0.5) > 1e-3 {
		t.Errorf("expected half of the maximum at 0.514 lambda / D, got %g", v)
	}
}

func TestEncircledEnergyObstructed(t *testing.T) {
	// an annular aperture still holds all of its energy
	for _, eps := range []float64{0, 0.2, 0.5} {
		if v := psf.EncircledEnergy(200, eps); math.Abs(v-1) > 1e-2 {
			t.Errorf("eps %g: expected all energy within a large radius, got %g", eps, v)
		}
	}
	if psf.EncircledEnergy(math.Pi, 0.2) >= psf.EncircledEnergy(math.Pi, 0) {
		t.Error("an obstruction moves energy out of the central disk")
	}
}

func TestAiryReducedObservationAngle(t *testing.T) {
	a, err := psf.NewAiry(params())
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name        string
		ce          psf.ContainedEnergy
		jitter      *units.Quantity
		obstruction float64
		want, tol   float64
	}{
		{"peak", psf.Peak, nil, 0, 0, 0},
		{"fwhm", psf.FWHM, nil, 0, 1.028, 1e-12},
		{"min", psf.Min, nil, 0, 2.44, 1e-12},
		{"80%", psf.Percent(80), nil, 0, 1.7938842051009245, 1e-9},
		{"fwhm obstructed", psf.FWHM, nil, 0.04, 1.0067520806038892, 1e-8},
		{"min obstructed", psf.Min, nil, 0.04, 2.33301, 1e-3},
		{"80% obstructed", psf.Percent(80), nil, 0.04, 3.1045076425, 1e-8},
		{"fwhm jitter", psf.FWHM, arcsec(1), 0, 1.75, 1e-9},
		{"min jitter", psf.Min, arcsec(1), 0, 3.375, 1e-9},
		{"80% jitter", psf.Percent(80), arcsec(1), 0, 3.1, 1e-9},
		{"fwhm jitter obstructed", psf.FWHM, arcsec(1), 0.04, 1.725, 1e-9},
		{"min jitter obstructed", psf.Min, arcsec(1), 0.04, 3.075, 1e-9},
		{"80% jitter obstructed", psf.Percent(80), arcsec(1), 0.04, 3.35, 1e-9},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := a.ReducedObservationAngle(c.ce, c.jitter, c.obstruction)
			if err != nil {
				t.Fatal(err)
			}
			if math.Abs(got-c.want) > c.tol {
				t.Errorf("expected %.10g, got %.10g", c.want, got)
			}
		})
	}
}

func TestAiryMapToPixelMask(t *testing.T) {
	a, err := psf.NewAiry(params())
	if err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name        string
		ra          float64
		jitter      *units.Quantity
		obstruction float64
		want, tol   float64
	}{
		{"sharp", 1.7938842051009245, nil, 0, 0.7967652172584465, 1e-4},
		{"obstructed", 3.1045076425, nil, 0.04, 0.8016890563706771, 1e-4},
		{"jitter", 3.1, arcsec(1), 0, 0.811875658798832, 2e-3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := apertureFor(t, c.ra)
			out, err := a.MapToPixelMask(m, c.jitter, c.obstruction)
			if err != nil {
				t.Fatal(err)
			}
			if got := out.Sum(); math.Abs(got-c.want) > c.tol {
				t.Errorf("expected %.6f of the energy in the aperture, got %.6f", c.want, got)
			}
			if out.At(32, 32) != out.Max() {
				t.Error("the brightest pixel must hold the PSF centre")
			}
			if out.At(0, 0) != 0 {
				t.Error("pixels outside of the aperture must stay dark")
			}
		})
	}
}

func TestAiryOversamplingIsRounded(t *testing.T) {
	p := params()
	p.OSF = 9.6
	a, err := psf.NewAiry(p)
	if err != nil {
		t.Fatal(err)
	}
	b, err := psf.NewAiry(params())
	if err != nil {
		t.Fatal(err)
	}
	got, err := a.MapToPixelMask(apertureFor(t, 1.8), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	want, err := b.MapToPixelMask(apertureFor(t, 1.8), nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Sum() != want.Sum() {
		t.Errorf("an oversampling of 9.6 should act as 10, got %g and %g", got.Sum(), want.Sum())
	}
}

func TestAiryMapEmptyMask(t *testing.T) {
	a, err := psf.NewAiry(params())
	if err != nil {
		t.Fatal(err)
	}
	m, err := pixelmask.New(16, 16, units.Q(6.5, units.Micrometer), [2]float64{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.MapToPixelMask(m, nil, 0); err == nil {
		t.Error("expected an error for a mask without an aperture")
	}
}
