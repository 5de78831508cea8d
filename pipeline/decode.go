package pipeline

import (
	"reflect"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/LukasK13/ESBO-ETC/config"
	"github.com/LukasK13/ESBO-ETC/temperature"
	"github.com/LukasK13/ESBO-ETC/units"
)

var (
	quantityType = reflect.TypeOf(units.Quantity{})
	kelvinType   = reflect.TypeOf(temperature.Kelvin(0))
	sourceType   = reflect.TypeOf(config.Source{})
)

// collect flattens e and every entry nested in it
func collect(e config.Entry) map[string]any {
	out := e.Collect()
	for k, v := range out {
		if sub, ok := v.(config.Entry); ok {
			out[k] = collect(sub)
		}
	}
	return out
}

// decode overlays the options of e onto params, a pointer to a parameter
// struct holding the defaults
func decode(e config.Entry, params any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(unitHook),
		WeaklyTypedInput: true,
		Result:           params,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(collect(e)); err != nil {
		return &config.Error{Msg: err.Error()}
	}
	return nil
}

// unitHook converts collected option values into the unit-aware types of
// the parameter structs
func unitHook(from, to reflect.Type, data any) (any, error) {
	switch to {
	case quantityType:
		return toQuantity(data)
	case kelvinType:
		q, err := toQuantity(data)
		if err != nil {
			return nil, err
		}
		return temperature.FromQuantity(q)
	case sourceType:
		return toSource(data)
	}

	switch to.Kind() {
	case reflect.Float64:
		// the numeric value of a quantity, e.g. "20 mag" or "9 pix"
		if q, ok := data.(units.Quantity); ok {
			return q.Value, nil
		}
	case reflect.Array:
		if a, ok := data.(units.Array); ok {
			return a.Values, nil
		}
		if q, ok := data.(units.Quantity); ok {
			return []float64{q.Value, q.Value}, nil
		}
	case reflect.String:
		if q, ok := data.(units.Quantity); ok {
			return q.String(), nil
		}
	}
	return data, nil
}

func toQuantity(data any) (units.Quantity, error) {
	switch v := data.(type) {
	case units.Quantity:
		return v, nil
	case *units.Quantity:
		return *v, nil
	case float64:
		return units.Q(v, units.Dimensionless), nil
	case int:
		return units.Q(float64(v), units.Dimensionless), nil
	case string:
		q, err := units.ParseQuantity(v)
		if err != nil {
			return units.Quantity{}, errors.Errorf("cannot convert '%s' to a quantity", v)
		}
		return q, nil
	case units.Array:
		if len(v.Values) == 1 {
			return units.Q(v.Values[0], v.Unit), nil
		}
	}
	return units.Quantity{}, errors.Errorf("expected a quantity, got '%v'", data)
}

// toSource turns a number or a quantity into a value and anything else into
// a path
func toSource(data any) (config.Source, error) {
	switch v := data.(type) {
	case config.Source:
		return v, nil
	case string:
		return config.File(v), nil
	}
	q, err := toQuantity(data)
	if err != nil {
		return config.Source{}, err
	}
	return config.Source{Value: &q}, nil
}
