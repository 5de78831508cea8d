package sensor_test

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/LukasK13/ESBO-ETC/config"
	"github.com/LukasK13/ESBO-ETC/optic"
	"github.com/LukasK13/ESBO-ETC/radiant"
	"github.com/LukasK13/ESBO-ETC/sensor"
	"github.com/LukasK13/ESBO-ETC/target"
	"github.com/LukasK13/ESBO-ETC/units"
)

// far infrared: 150 to 160 um in 1 um bins behind a 2.5 m telescope
func farIR() config.Common {
	return config.Common{
		WLMin:     units.Q(150, units.Micrometer),
		WLMax:     units.Q(160, units.Micrometer),
		WLDelta:   units.Q(1, units.Micrometer),
		DAperture: units.Q(2.5, units.Meter),
		PSF:       config.PSF{Source: "airy", OSF: 10},
	}
}

func heterodyneParams() sensor.HeterodyneParams {
	return sensor.HeterodyneParams{
		ApertureEfficiency: 0.5,
		MainBeamEfficiency: 0.7,
		ReceiverTemp:       800,
		EtaFSS:             0.97,
		LambdaLine:         units.Q(157, units.Micrometer),
		Kappa:              1.2,
	}
}

// a -10 mag star in N seen through a 250 K sky
func farIRScene(t *testing.T) radiant.Radiant {
	t.Helper()
	p := target.DefaultBlackBody()
	p.Mag, p.Band = -10, "N"
	tgt, err := target.NewBlackBody(farIR().WLBins(), p)
	if err != nil {
		t.Fatal(err)
	}
	sky := optic.DefaultCosmicBackground()
	sky.Temp = 250
	bg, err := optic.NewCosmicBackground(tgt, sky)
	if err != nil {
		t.Fatal(err)
	}
	return bg
}

func TestHeterodyneSNR(t *testing.T) {
	rec := &collector{}
	h, err := sensor.NewHeterodyne(farIRScene(t), heterodyneParams(), farIR(), sensor.WithRecorder(rec))
	if err != nil {
		t.Fatal(err)
	}
	got, err := h.SNR([]float64{60})
	if err != nil {
		t.Fatal(err)
	}
	// T_sig = 1.953 K, T_bg = 140.5 K, dnu = 12.09 GHz
	if math.Abs(got[0]-367.6182737728436) > 1e-3 {
		t.Errorf("expected an SNR of 367.618, got %.6f", got[0])
	}

	tab := rec.details["texp_60"].Table
	if tab == nil {
		t.Fatal("expected a result table")
	}
	if len(tab.WL) != 11 || tab.ResultName != "SNR [-]" {
		t.Errorf("unexpected table %d %s", len(tab.WL), tab.ResultName)
	}
	if v := tab.SignalTemp[7]; math.Abs(v-1.9530176494313498) > 1e-6 {
		t.Errorf("expected a signal temperature of 1.953 K at the line, got %g", v)
	}
	if v := tab.BackgroundTemp[7]; math.Abs(v-140.53415087715203) > 1e-4 {
		t.Errorf("expected a background temperature of 140.5 K at the line, got %g", v)
	}

	p := heterodyneParams()
	p.NOn = 4
	h, err = sensor.NewHeterodyne(farIRScene(t), p, farIR())
	if err != nil {
		t.Fatal(err)
	}
	if got, err = h.SNR([]float64{60}); err != nil {
		t.Fatal(err)
	}
	if math.Abs(got[0]-600.3181272441591) > 1e-3 {
		t.Errorf("expected an SNR of 600.318 with 4 on source observations, got %.6f", got[0])
	}
}

func TestHeterodyneRoundTrip(t *testing.T) {
	for _, non := range []float64{0, 9} {
		p := heterodyneParams()
		p.NOn = non
		// the line falls between two bins
		p.LambdaLine = units.Q(157.74, units.Micrometer)
		h, err := sensor.NewHeterodyne(farIRScene(t), p, farIR())
		if err != nil {
			t.Fatal(err)
		}
		times := []float64{1, 30, 600}
		snrs, err := h.SNR(times)
		if err != nil {
			t.Fatal(err)
		}
		back, err := h.ExpTime(snrs)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(times, back, cmpopts.EquateApprox(1e-6, 0)); diff != "" {
			t.Errorf("n_on %g: exposure time round trip (-want +got):\n%s", non, diff)
		}

		mags, err := h.Sensitivity(times, snrs, units.Q(-10, units.Mag))
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]float64{-10, -10, -10}, mags, cmpopts.EquateApprox(0, 0.01)); diff != "" {
			t.Errorf("n_on %g: sensitivity (-want +got):\n%s", non, diff)
		}
	}
}

func TestHeterodyneUnreachable(t *testing.T) {
	h, err := sensor.NewHeterodyne(farIRScene(t), heterodyneParams(), farIR())
	if err != nil {
		t.Fatal(err)
	}
	// the noise of the receiver alone exceeds the signal
	if _, err := h.Sensitivity([]float64{1e-12}, []float64{10}, units.Q(0, units.Mag)); err == nil {
		t.Error("expected an error for an SNR out of reach")
	}
}

func TestCheckHeterodyne(t *testing.T) {
	e := config.Entry{
		"type":                 "Heterodyne",
		"aperture_efficiency":  0.55,
		"main_beam_efficiency": 0.67,
		"receiver_temp":        "1050 K",
		"eta_fss":              0.97,
		"lambda_line":          "157.774 um",
		"kappa":                1.0,
	}
	if err := sensor.CheckHeterodyne(e); err != nil {
		t.Fatal(err)
	}
	e["n_on"] = "many"
	if err := sensor.CheckHeterodyne(e); err == nil {
		t.Error("expected an error for a non numeric n_on")
	}
	delete(e, "n_on")
	e["lambda_line"] = "157 K"
	if err := sensor.CheckHeterodyne(e); err == nil {
		t.Error("expected an error for a line given as temperature")
	}
}
