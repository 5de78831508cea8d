package optic_test

import (
	"context"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/LukasK13/ESBO-ETC/atran"
	"github.com/LukasK13/ESBO-ETC/config"
	"github.com/LukasK13/ESBO-ETC/optic"
	"github.com/LukasK13/ESBO-ETC/radiant"
	"github.com/LukasK13/ESBO-ETC/spectral"
	"github.com/LukasK13/ESBO-ETC/target"
	"github.com/LukasK13/ESBO-ETC/units"
)

func rel(r float64) cmp.Option { return cmpopts.EquateApprox(r, 0) }

func fileTarget(t *testing.T, wl []float64) radiant.Radiant {
	t.Helper()
	ft, err := target.NewFile(wl, target.FileParams{File: "testdata/target.csv"})
	if err != nil {
		t.Fatal(err)
	}
	return ft
}

func signal(t *testing.T, r radiant.Radiant) radiant.Signal {
	t.Helper()
	s, err := r.Signal()
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func background(t *testing.T, r radiant.Radiant) []float64 {
	t.Helper()
	bg, err := r.Background()
	if err != nil {
		t.Fatal(err)
	}
	if !bg.Unit().Equivalent(units.SpectralRadiance) {
		t.Fatalf("background in %s", bg.Unit())
	}
	return bg.Val()
}

func TestObstructionAccumulates(t *testing.T) {
	wl := []float64{4000, 5000, 6000, 7000}
	tgt, err := target.NewBlackBody(wl, target.BlackBodyParams{Temp: 5778, Mag: 10, Band: "U"})
	if err != nil {
		t.Fatal(err)
	}
	noise, _ := spectral.Const(wl, units.Nanometer, 1e-5, units.SpectralRadiance)
	obs := optic.Obstruction{Obstruction: 0.1, ObstructorTemp: 300, ObstructorEmissivity: 1}
	first, err := optic.New(tgt, optic.Through(spectral.Scalar(0.5)), noise, obs)
	if err != nil {
		t.Fatal(err)
	}
	second, err := optic.New(first, optic.Through(spectral.Scalar(0.5)), nil, obs)
	if err != nil {
		t.Fatal(err)
	}

	s0, s1, s2 := signal(t, tgt), signal(t, first), signal(t, second)
	if math.Abs(s1.Obstruction-0.1) > 1e-12 || math.Abs(s2.Obstruction-0.2) > 1e-12 {
		t.Errorf("obstruction should add up, got %g and %g", s1.Obstruction, s2.Obstruction)
	}
	for i := range wl {
		want := s0.Qty.Val()[i] * 0.45 * 0.45
		if got := s2.Qty.Val()[i]; math.Abs(got-want) > 1e-9*want {
			t.Errorf("signal at %g nm: expected %g, got %g", wl[i], want, got)
		}
	}
	exp1 := []float64{1.25575776e-17, 5.50570557e-18, 2.77637739e-18, 1.54664415e-18}
	if diff := cmp.Diff(exp1, s1.Qty.Val(), rel(1e-3)); diff != "" {
		t.Errorf("signal (-want +got):\n%s", diff)
	}

	bg1 := []float64{8.21976423e-05, 2.70268340e-04, 5.27503292e-04, 7.60597616e-04}
	if diff := cmp.Diff(bg1, background(t, first), rel(1e-4)); diff != "" {
		t.Errorf("background (-want +got):\n%s", diff)
	}
	bg2 := []float64{1.09186581e-04, 3.81889092e-04, 7.54879773e-04, 1.092866544e-03}
	if diff := cmp.Diff(bg2, background(t, second), rel(1e-4)); diff != "" {
		t.Errorf("background (-want +got):\n%s", diff)
	}
}

func TestObstructionOutOfRange(t *testing.T) {
	tgt := fileTarget(t, []float64{201, 202})
	if _, err := optic.New(tgt, nil, nil, optic.Obstruction{Obstruction: 1.5}); err == nil {
		t.Error("expected an error for an obstruction above 1")
	}
	if _, err := optic.New(nil, nil, nil, optic.DefaultObstruction()); err == nil {
		t.Error("expected an error for a missing parent")
	}
}

var hotRadiance = []float64{4.31413931e-96, 1.37122214e-95, 4.30844544e-95, 1.33846280e-94}

func TestMirror(t *testing.T) {
	wl := []float64{201, 202, 203, 204}
	tgt := fileTarget(t, wl)
	for _, em := range []config.Source{config.Num(0.5), config.File("testdata/emissivity.csv")} {
		m, err := optic.NewMirror(tgt, optic.MirrorParams{
			Reflectance: "testdata/reflectance.csv",
			Hot:         optic.Hot{Emissivity: em, Temp: 300},
			Obstruction: optic.DefaultObstruction(),
		})
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(hotRadiance, background(t, m), rel(1e-3)); diff != "" {
			t.Errorf("emissivity %s (-want +got):\n%s", em, diff)
		}
		want := []float64{0.99e-15, 1.08e-15, 1.17e-15, 1.26e-15}
		if diff := cmp.Diff(want, signal(t, m).Qty.Val(), rel(1e-9)); diff != "" {
			t.Errorf("signal (-want +got):\n%s", diff)
		}
	}

	// without an emissivity, a mirror emits as much as it does not reflect
	m, err := optic.NewMirror(tgt, optic.MirrorParams{Reflectance: "testdata/reflectance.csv", Hot: optic.Hot{Temp: 300}})
	if err != nil {
		t.Fatal(err)
	}
	got := background(t, m)
	for i := range wl {
		want := hotRadiance[i] / 0.5 * 0.1
		if math.Abs(got[i]-want) > 1e-3*want {
			t.Errorf("at %g nm: expected %g, got %g", wl[i], want, got[i])
		}
	}
}

func TestColdComponentDoesNotEmit(t *testing.T) {
	tgt := fileTarget(t, []float64{201, 202, 203, 204})
	m, err := optic.NewMirror(tgt, optic.MirrorParams{Reflectance: "testdata/reflectance.csv", Hot: optic.Hot{Emissivity: config.Num(1)}})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{0, 0, 0, 0}, background(t, m)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestLens(t *testing.T) {
	wl := []float64{5000, 6000}
	tgt := fileTarget(t, []float64{201, 202})
	l, err := optic.NewLens(tgt, optic.LensParams{Transmittance: config.Num(0.8)})
	if err != nil {
		t.Fatal(err)
	}
	if got := signal(t, l).Qty.Val()[0]; math.Abs(got-0.88e-15) > 1e-27 {
		t.Errorf("expected 0.88e-15, got %g", got)
	}

	bb, _ := target.NewBlackBody(wl, target.DefaultBlackBody())
	hot, err := optic.NewLens(bb, optic.LensParams{Transmittance: config.Num(0.8), Hot: optic.Hot{Temp: 300}})
	if err != nil {
		t.Fatal(err)
	}
	got := background(t, hot)
	for i, w := range wl {
		want := spectral.BlackBody(300).F(w*1e-9) * 0.2
		if math.Abs(got[i]-want) > 1e-9*want {
			t.Errorf("at %g nm: expected %g, got %g", w, want, got[i])
		}
	}

	// a transmittance file covering part of the grid truncates it
	rec, err := optic.NewLens(fileTarget(t, []float64{200, 201, 202, 203, 204, 205}), optic.LensParams{
		Transmittance: config.File("testdata/short_transmittance.csv"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]float64{201, 202, 203, 204}, signal(t, rec).Qty.WL(), rel(1e-12)); diff != "" {
		t.Errorf("grid (-want +got):\n%s", diff)
	}

	if _, err := optic.NewLens(tgt, optic.LensParams{}); err == nil {
		t.Error("expected an error for a lens without transmittance")
	}
}

func TestBeamSplitter(t *testing.T) {
	wl := []float64{200, 201, 202, 203, 204, 205, 206, 207, 208, 209}
	bs, err := optic.NewBeamSplitter(fileTarget(t, wl), optic.BeamSplitterParams{Transmittance: "testdata/transmittance.csv"})
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0.5e-15, 0.66e-15, 0.84e-15, 1.04e-15, 1.26e-15, 1.5e-15, 1.44e-15, 1.36e-15, 1.26e-15, 1.14e-15}
	if diff := cmp.Diff(want, signal(t, bs).Qty.Val(), rel(1e-9)); diff != "" {
		t.Errorf("signal (-want +got):\n%s", diff)
	}
}

func TestFilter(t *testing.T) {
	wl := []float64{400, 505, 506, 550, 594, 595, 600}
	tgt, _ := target.NewBlackBody(wl, target.BlackBodyParams{Temp: 5778, Mag: 10, Band: "U"})
	in := signal(t, tgt).Qty.Val()

	f, err := optic.NewFilter(tgt, optic.FilterParams{Band: "V"})
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 0, in[2], in[3], in[4], 0, 0}
	if diff := cmp.Diff(want, signal(t, f).Qty.Val()); diff != "" {
		t.Errorf("band V (-want +got):\n%s", diff)
	}

	start, end := units.Q(500, units.Nanometer), units.Q(0.56, units.Micrometer)
	f, err = optic.NewFilter(tgt, optic.FilterParams{Start: &start, End: &end})
	if err != nil {
		t.Fatal(err)
	}
	want = []float64{0, in[1], in[2], in[3], 0, 0, 0}
	if diff := cmp.Diff(want, signal(t, f).Qty.Val()); diff != "" {
		t.Errorf("range (-want +got):\n%s", diff)
	}

	if _, err := optic.NewFilter(tgt, optic.FilterParams{Band: "Q"}); err == nil {
		t.Error("expected an error for an unknown band")
	}
	_, err = optic.NewFilter(tgt, optic.FilterParams{})
	if err == nil || err.Error() != "Expected one of 'band' / 'transmittance' / 'start' & 'end'." {
		t.Errorf("unexpected error %v", err)
	}
}

func TestAtmosphereFromFiles(t *testing.T) {
	wl := []float64{200, 201, 202, 203, 204, 205, 206, 207, 208, 209}
	a, err := optic.NewAtmosphere(context.Background(), fileTarget(t, wl), optic.AtmosphereParams{
		Transmittance: "testdata/transmittance.csv",
		Emission:      "testdata/emission.csv",
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0.5e-15, 0.66e-15, 0.84e-15, 1.04e-15, 1.26e-15, 1.5e-15, 1.44e-15, 1.36e-15, 1.26e-15, 1.14e-15}
	if diff := cmp.Diff(want, signal(t, a).Qty.Val(), rel(1e-9)); diff != "" {
		t.Errorf("signal (-want +got):\n%s", diff)
	}
	bg := []float64{1e-16, 1.1e-16, 1.2e-16, 1.3e-16, 1.4e-16, 1.5e-16, 1.6e-16, 1.7e-16, 1.8e-16, 1.9e-16}
	if diff := cmp.Diff(bg, background(t, a), rel(1e-9)); diff != "" {
		t.Errorf("background (-want +got):\n%s", diff)
	}
}

func atranGrid() []float64 {
	wl := make([]float64, 11)
	for i := range wl {
		wl[i] = 16000 + 10*float64(i)
	}
	return wl
}

func TestAtmosphereFromATRANFile(t *testing.T) {
	wl := atranGrid()
	tgt, _ := target.NewBlackBody(wl, target.DefaultBlackBody())
	a, err := optic.NewAtmosphere(context.Background(), tgt, optic.AtmosphereParams{ATRAN: "testdata/atran.dat", Temp: 240}, nil)
	if err != nil {
		t.Fatal(err)
	}
	trans := a.Transmittance().Val()
	in := signal(t, tgt).Qty.Val()
	out := signal(t, a).Qty.Val()
	bg := background(t, a)
	for i, w := range wl {
		if math.Abs(out[i]-in[i]*trans[i]) > 1e-9*in[i] {
			t.Errorf("signal at %g nm: expected %g, got %g", w, in[i]*trans[i], out[i])
		}
		want := spectral.BlackBody(240).F(w*1e-9) * (1 - trans[i])
		if math.Abs(bg[i]-want) > 1e-6*want {
			t.Errorf("background at %g nm: expected %g, got %g", w, want, bg[i])
		}
	}
}

type fakeATRAN struct {
	got atran.Request
}

func (f *fakeATRAN) Fetch(ctx context.Context, r atran.Request) (*spectral.Qty, error) {
	f.got = r
	return atran.ReadFile("testdata/atran.dat", nil)
}

func TestAtmosphereRemote(t *testing.T) {
	tgt, _ := target.NewBlackBody(atranGrid(), target.DefaultBlackBody())
	p := optic.DefaultAtmosphere()
	p.Altitude = units.Q(41000, units.Foot)
	if !p.Remote() {
		t.Fatal("expected a remote atmosphere")
	}
	f := &fakeATRAN{}
	a, err := optic.NewAtmosphere(context.Background(), tgt, p, f)
	if err != nil {
		t.Fatal(err)
	}
	if got := f.got.WLMin.MustTo(units.Micrometer); math.Abs(got-16) > 1e-9 {
		t.Errorf("expected the request to start at 16 um, got %g", got)
	}
	if got := f.got.WLMax.MustTo(units.Micrometer); math.Abs(got-16.1) > 1e-9 {
		t.Errorf("expected the request to end at 16.1 um, got %g", got)
	}
	if a.Transmittance().Len() != 11 {
		t.Errorf("expected 11 samples, got %d", a.Transmittance().Len())
	}
	if _, err := optic.NewAtmosphere(context.Background(), tgt, p, nil); err == nil {
		t.Error("expected an error without an ATRAN client")
	}
}

func TestStrayLight(t *testing.T) {
	wl := []float64{200, 201, 202, 203, 204, 205, 206, 207, 208, 209}
	tgt := fileTarget(t, wl)
	s, err := optic.NewStrayLight(tgt, optic.StrayLightParams{Emission: "testdata/emission.csv"})
	if err != nil {
		t.Fatal(err)
	}
	if !signal(t, s).Qty.Equal(signal(t, tgt).Qty) {
		t.Error("stray light must not change the signal")
	}
	bg := []float64{1e-16, 1.1e-16, 1.2e-16, 1.3e-16, 1.4e-16, 1.5e-16, 1.6e-16, 1.7e-16, 1.8e-16, 1.9e-16}
	if diff := cmp.Diff(bg, background(t, s), rel(1e-9)); diff != "" {
		t.Errorf("background (-want +got):\n%s", diff)
	}
}

func TestCosmicBackground(t *testing.T) {
	wl := []float64{100000, 101000, 102000, 103000, 104000}
	tgt, _ := target.NewBlackBody(wl, target.DefaultBlackBody())
	c, err := optic.NewCosmicBackground(tgt, optic.DefaultCosmicBackground())
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1.398e-28, 2.244e-28, 3.566e-28, 5.614e-28, 8.756e-28}
	if diff := cmp.Diff(want, background(t, c), rel(2e-3)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestCheckConfig(t *testing.T) {
	cases := []struct {
		name  string
		check func(config.Entry) error
		entry config.Entry
		ok    bool
	}{
		{"mirror", optic.CheckMirror, config.Entry{"reflectance": "testdata/reflectance.csv", "emissivity": 0.1, "temp": "70 K"}, true},
		{"mirror emissivity file", optic.CheckMirror, config.Entry{"reflectance": "testdata/reflectance.csv", "emissivity": "testdata/emissivity.csv"}, true},
		{"mirror missing file", optic.CheckMirror, config.Entry{"reflectance": "testdata/none.csv"}, false},
		{"mirror bad temp", optic.CheckMirror, config.Entry{"reflectance": "testdata/reflectance.csv", "temp": "70 m"}, false},
		{"mirror bad obstructor", optic.CheckMirror, config.Entry{"reflectance": "testdata/reflectance.csv", "obstructor_temp": "1 s"}, false},
		{"lens scalar", optic.CheckLens, config.Entry{"transmittance": 0.9}, true},
		{"lens missing", optic.CheckLens, config.Entry{}, false},
		{"splitter", optic.CheckBeamSplitter, config.Entry{"transmittance": "testdata/transmittance.csv"}, true},
		{"filter band", optic.CheckFilter, config.Entry{"band": "K"}, true},
		{"filter bad band", optic.CheckFilter, config.Entry{"band": "Z"}, false},
		{"filter range", optic.CheckFilter, config.Entry{"start": "400 nm", "end": "0.5 um"}, true},
		{"filter half range", optic.CheckFilter, config.Entry{"start": "400 nm"}, false},
		{"atmosphere file", optic.CheckAtmosphere, config.Entry{"transmittance": "testdata/transmittance.csv", "temp": "240 K"}, true},
		{"atmosphere atran", optic.CheckAtmosphere, config.Entry{"atran": "testdata/atran.dat"}, true},
		{"atmosphere remote", optic.CheckAtmosphere, config.Entry{"altitude": "41000 ft", "latitude": "40 deg", "n_layers": 3}, true},
		{"atmosphere bad altitude", optic.CheckAtmosphere, config.Entry{"altitude": "4 s"}, false},
		{"atmosphere bad emission", optic.CheckAtmosphere, config.Entry{"atran": "testdata/atran.dat", "emission": "testdata/none.csv"}, false},
		{"straylight", optic.CheckStrayLight, config.Entry{"emission": "testdata/emission.csv"}, true},
		{"cosmic", optic.CheckCosmicBackground, config.Entry{"temp": "3 K"}, true},
		{"cosmic empty", optic.CheckCosmicBackground, config.Entry{}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.check(tc.entry)
			if tc.ok && err != nil {
				t.Errorf("unexpected error %v", err)
			}
			if !tc.ok && err == nil {
				t.Error("expected an error")
			}
		})
	}
}
