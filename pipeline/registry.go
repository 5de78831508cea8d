package pipeline

import (
	"sort"
	"strings"

	"github.com/LukasK13/ESBO-ETC/config"
	"github.com/LukasK13/ESBO-ETC/optic"
	"github.com/LukasK13/ESBO-ETC/radiant"
	"github.com/LukasK13/ESBO-ETC/sensor"
	"github.com/LukasK13/ESBO-ETC/target"
)

// targetBuilder creates the root of a chain on the wavelength grid
type targetBuilder struct {
	check func(config.Entry) error
	build func(e config.Entry, wlBins []float64, o *options) (radiant.Radiant, error)
}

// componentBuilder wraps parent in an optical component
type componentBuilder struct {
	check func(config.Entry) error
	build func(e config.Entry, parent radiant.Radiant, o *options) (radiant.Radiant, error)
}

// sensorBuilder puts a sensor at the end of the chain
type sensorBuilder struct {
	check func(config.Entry) error
	build func(e config.Entry, parent radiant.Radiant, common config.Common, o *options) (sensor.Sensor, error)
}

// the registries are keyed by the lowercased type name
var (
	targets = map[string]targetBuilder{
		"blackbodytarget": {target.CheckBlackBody, buildBlackBody},
		"filetarget":      {target.CheckFile, buildFileTarget},
	}

	components = map[string]componentBuilder{
		"atmosphere":       {optic.CheckAtmosphere, buildAtmosphere},
		"straylight":       {optic.CheckStrayLight, buildStrayLight},
		"cosmicbackground": {optic.CheckCosmicBackground, buildCosmicBackground},
		"mirror":           {optic.CheckMirror, buildMirror},
		"lens":             {optic.CheckLens, buildLens},
		"beamsplitter":     {optic.CheckBeamSplitter, buildBeamSplitter},
		"filter":           {optic.CheckFilter, buildFilter},
	}

	sensors = map[string]sensorBuilder{
		"imager":     {sensor.CheckImager, buildImager},
		"heterodyne": {sensor.CheckHeterodyne, buildHeterodyne},
	}

	// typeNames holds the spelling of the type names used in configuration
	// files, for suggestions
	typeNames = map[string][]string{
		"target":    {"BlackBodyTarget", "FileTarget"},
		"component": {"Atmosphere", "StrayLight", "CosmicBackground", "Mirror", "Lens", "BeamSplitter", "Filter"},
		"sensor":    {"Imager", "Heterodyne"},
	}
)

// TypeNames returns the type names known for kind, which is one of "target",
// "component" and "sensor"
func TypeNames(kind string) []string {
	out := append([]string(nil), typeNames[kind]...)
	sort.Strings(out)
	return out
}

// unknownType is the error for a type missing from the registry of kind
func unknownType(kind, typ string) error {
	if typ == "" {
		return &config.Error{Msg: "Missing parameter 'type'."}
	}
	if m := config.Closest(typ, typeNames[kind]); m != "" {
		return config.Errorf("type", "Unknown %s type '%s'. Did you mean '%s'?", kind, typ, m)
	}
	return config.Errorf("type", "Unknown %s type '%s'.", kind, typ)
}

func key(typ string) string { return strings.ToLower(strings.TrimSpace(typ)) }

func lookupTarget(e config.Entry) (targetBuilder, error) {
	b, ok := targets[key(e.Type())]
	if !ok {
		return b, unknownType("target", e.Type())
	}
	return b, nil
}

func lookupComponent(e config.Entry) (componentBuilder, error) {
	b, ok := components[key(e.Type())]
	if !ok {
		return b, unknownType("component", e.Type())
	}
	return b, nil
}

func lookupSensor(e config.Entry) (sensorBuilder, error) {
	b, ok := sensors[key(e.Type())]
	if !ok {
		return b, unknownType("sensor", e.Type())
	}
	return b, nil
}
