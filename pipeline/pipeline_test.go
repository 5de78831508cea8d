package pipeline_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LukasK13/ESBO-ETC/config"
	"github.com/LukasK13/ESBO-ETC/pipeline"
	"github.com/LukasK13/ESBO-ETC/target"
)

const imagerDoc = `
common:
  wl_min: 200 nm
  wl_max: 209 nm
  wl_delta: 1 nm
  d_aperture: 0.5 m
  psf: {val: airy, osf: 10}
  exposure_time: {val: [1, 10], val_unit: s}
astroscene:
  target:
    type: FileTarget
    file: testdata/target.csv
instrument:
  optical_component:
    type: StrayLight
    emission: testdata/emission.csv
  sensor:
    type: Imager
    f_number: 13
    pixel_geometry: {val: [1024, 1024], val_unit: pix}
    pixel:
      quantum_efficiency: 0.9
      pixel_size: 6.5 um
      dark_current: 0.6 electron / (pix s)
      sigma_read_out: 1.4
      well_capacity: 30000 electron
    photometric_aperture:
      shape: circle
      contained_energy: FWHM
`

const heterodyneDoc = `
common:
  wl_min: 150 um
  wl_max: 160 um
  wl_delta: 1 um
  d_aperture: 2.5 m
  exposure_time: 60 s
astroscene:
  target: {type: BlackBodyTarget, temp: 5778 K, mag: -10 mag, band: N}
common_optics:
  optical_component:
    - {type: CosmicBackground, temp: 250 K}
instrument:
  sensor:
    type: Heterodyne
    aperture_efficiency: 0.5
    main_beam_efficiency: 0.7
    receiver_temp: 800 K
    eta_fss: 0.97
    lambda_line: 157 um
    kappa: 1.2
`

func TestFromConfigImager(t *testing.T) {
	c, err := config.Parse([]byte(imagerDoc))
	require.NoError(t, err)
	p, err := pipeline.FromConfig(context.Background(), c)
	require.NoError(t, err)

	res, err := p.Run()
	require.NoError(t, err)
	assert.Equal(t, config.ModeSNR, res.Mode)
	require.Len(t, res.SNR, 2)
	assert.InDelta(t, 23.380614466154142, res.SNR[0], 1e-3)
	assert.InDelta(t, 74.05446693136354, res.SNR[1], 1e-3)
}

func TestImagerScenario(t *testing.T) {
	doc := strings.Replace(imagerDoc, "exposure_time: {val: [1, 10], val_unit: s}", "exposure_time: 0.1 s", 1)
	c, err := config.Parse([]byte(doc))
	require.NoError(t, err)
	p, err := pipeline.FromConfig(context.Background(), c)
	require.NoError(t, err)

	res, err := p.Run()
	require.NoError(t, err)
	require.Len(t, res.SNR, 1)
	assert.InDelta(t, 7.2781719381580166, res.SNR[0], 1e-4)

	c.Common.ExposureTime = nil
	c.Common.SNR = res.SNR
	p, err = pipeline.FromConfig(context.Background(), c)
	require.NoError(t, err)
	res, err = p.Run()
	require.NoError(t, err)
	assert.Equal(t, config.ModeExpTime, res.Mode)
	require.Len(t, res.ExpTime, 1)
	assert.InDelta(t, 0.1, res.ExpTime[0], 1e-9)
}

func TestFromConfigHeterodyne(t *testing.T) {
	c, err := config.Parse([]byte(heterodyneDoc))
	require.NoError(t, err)
	p, err := pipeline.FromConfig(context.Background(), c)
	require.NoError(t, err)

	bb, ok := p.Target.(*target.BlackBody)
	require.True(t, ok)
	assert.Equal(t, -10., bb.Mag())

	res, err := p.Run()
	require.NoError(t, err)
	require.Len(t, res.SNR, 1)
	assert.InDelta(t, 367.6182737728436, res.SNR[0], 1e-3)
}

func TestSensitivityMode(t *testing.T) {
	c, err := config.Parse([]byte(heterodyneDoc))
	require.NoError(t, err)
	c.Common.SNR = []float64{367.6182737728436}
	p, err := pipeline.FromConfig(context.Background(), c)
	require.NoError(t, err)

	res, err := p.Run()
	require.NoError(t, err)
	assert.Equal(t, config.ModeSensitivity, res.Mode)
	require.Len(t, res.Sensitivity, 1)
	assert.InDelta(t, -10, res.Sensitivity[0], 0.01)
}

func TestSensitivityNeedsBlackBody(t *testing.T) {
	c, err := config.Parse([]byte(imagerDoc))
	require.NoError(t, err)
	c.Common.SNR = []float64{5, 10}
	err = pipeline.Check(c)
	require.Error(t, err)
	assert.Equal(t, "astroscene -> target: Sensitivity calculation only possible for BlackBodyTarget.", err.Error())
}

func TestUnknownTypes(t *testing.T) {
	c, err := config.Parse([]byte(imagerDoc))
	require.NoError(t, err)

	c.Astroscene["target"] = map[string]any{"type": "BlackBodyTarge"}
	err = pipeline.Check(c)
	require.Error(t, err)
	assert.Equal(t, "astroscene -> target -> type: Unknown target type 'BlackBodyTarge'. Did you mean 'BlackBodyTarget'?", err.Error())
	assert.ErrorIs(t, err, config.ErrConfig)

	c, err = config.Parse([]byte(imagerDoc))
	require.NoError(t, err)
	c.Instrument["optical_component"] = []any{map[string]any{"type": "Stray_Light"}}
	err = pipeline.Check(c)
	require.Error(t, err)
	assert.Equal(t, "instrument -> optical_component -> type: Unknown component type 'Stray_Light'. Did you mean 'StrayLight'?", err.Error())

	c, err = config.Parse([]byte(imagerDoc))
	require.NoError(t, err)
	c.Instrument["sensor"] = map[string]any{"type": "imagr"}
	err = pipeline.Check(c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Did you mean 'Imager'?")
}

func TestCheckLocatesErrors(t *testing.T) {
	c, err := config.Parse([]byte(imagerDoc))
	require.NoError(t, err)
	s, err := c.Sensor()
	require.NoError(t, err)
	delete(s, "f_number")
	err = pipeline.Check(c)
	require.Error(t, err)
	assert.Equal(t, "instrument -> sensor -> f_number: Parameter 'f_number' not found.", err.Error())
}

func TestBuildOpticalChainObstruction(t *testing.T) {
	wl := []float64{200, 201, 202, 203, 204, 205, 206, 207, 208, 209}
	tgt, err := pipeline.BuildTarget(config.Entry{"type": "FileTarget", "file": "testdata/target.csv"}, wl)
	require.NoError(t, err)

	mirror := config.Entry{"type": "Mirror", "reflectance": "testdata/reflectance.csv", "obstruction": 0.1}
	head, err := pipeline.BuildOpticalChain(context.Background(), []config.Entry{mirror, mirror}, tgt)
	require.NoError(t, err)

	s, err := head.Signal()
	require.NoError(t, err)
	assert.InDelta(t, 0.2, s.Obstruction, 1e-12)
	// two reflections at 0.9, each losing a tenth to the obstruction
	assert.InDelta(t, 1e-15*0.81*0.81, s.Qty.Val()[0], 1e-27)
}

func TestTypeNames(t *testing.T) {
	assert.Equal(t, []string{"Heterodyne", "Imager"}, pipeline.TypeNames("sensor"))
	assert.Contains(t, pipeline.TypeNames("component"), "Atmosphere")
}
