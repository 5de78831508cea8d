package pipeline

import (
	"github.com/LukasK13/ESBO-ETC/atran"
	"github.com/LukasK13/ESBO-ETC/config"
	"github.com/LukasK13/ESBO-ETC/optic"
	"github.com/LukasK13/ESBO-ETC/radiant"
	"github.com/LukasK13/ESBO-ETC/sensor"
	"github.com/LukasK13/ESBO-ETC/target"
)

func buildBlackBody(e config.Entry, wlBins []float64, o *options) (radiant.Radiant, error) {
	p := target.DefaultBlackBody()
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	return target.NewBlackBody(wlBins, p, target.WithLogger(o.log))
}

func buildFileTarget(e config.Entry, wlBins []float64, o *options) (radiant.Radiant, error) {
	var p target.FileParams
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	return target.NewFile(wlBins, p, target.WithLogger(o.log))
}

func buildAtmosphere(e config.Entry, parent radiant.Radiant, o *options) (radiant.Radiant, error) {
	p := optic.DefaultAtmosphere()
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	if p.Remote() && o.fetcher == nil {
		o.fetcher = atran.NewClient(atran.WithLogger(o.log))
	}
	return optic.NewAtmosphere(o.ctx, parent, p, o.fetcher, optic.WithLogger(o.log))
}

func buildStrayLight(e config.Entry, parent radiant.Radiant, o *options) (radiant.Radiant, error) {
	var p optic.StrayLightParams
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	return optic.NewStrayLight(parent, p, optic.WithLogger(o.log))
}

func buildCosmicBackground(e config.Entry, parent radiant.Radiant, o *options) (radiant.Radiant, error) {
	p := optic.DefaultCosmicBackground()
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	return optic.NewCosmicBackground(parent, p, optic.WithLogger(o.log))
}

func buildMirror(e config.Entry, parent radiant.Radiant, o *options) (radiant.Radiant, error) {
	p := optic.MirrorParams{Obstruction: optic.DefaultObstruction()}
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	return optic.NewMirror(parent, p, optic.WithLogger(o.log))
}

func buildLens(e config.Entry, parent radiant.Radiant, o *options) (radiant.Radiant, error) {
	p := optic.LensParams{Obstruction: optic.DefaultObstruction()}
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	return optic.NewLens(parent, p, optic.WithLogger(o.log))
}

func buildBeamSplitter(e config.Entry, parent radiant.Radiant, o *options) (radiant.Radiant, error) {
	p := optic.BeamSplitterParams{Obstruction: optic.DefaultObstruction()}
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	return optic.NewBeamSplitter(parent, p, optic.WithLogger(o.log))
}

func buildFilter(e config.Entry, parent radiant.Radiant, o *options) (radiant.Radiant, error) {
	p := optic.FilterParams{Obstruction: optic.DefaultObstruction()}
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	return optic.NewFilter(parent, p, optic.WithLogger(o.log))
}

func sensorOptions(o *options) []sensor.Option {
	opts := []sensor.Option{sensor.WithLogger(o.log)}
	if o.rec != nil {
		opts = append(opts, sensor.WithRecorder(o.rec))
	}
	return opts
}

func buildImager(e config.Entry, parent radiant.Radiant, common config.Common, o *options) (sensor.Sensor, error) {
	p := sensor.DefaultImager()
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	return sensor.NewImager(parent, p, common, sensorOptions(o)...)
}

func buildHeterodyne(e config.Entry, parent radiant.Radiant, common config.Common, o *options) (sensor.Sensor, error) {
	var p sensor.HeterodyneParams
	if err := decode(e, &p); err != nil {
		return nil, err
	}
	return sensor.NewHeterodyne(parent, p, common, sensorOptions(o)...)
}
