package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/LukasK13/ESBO-ETC/units"
)

// Entry is a node of the configuration tree, e.g. a target, an optical
// component, a sensor or the common options.
//
// An option is either a plain scalar (0.9, "airy"), a string with a unit
// ("5778 K"), a list, or a map holding the value under "val" and its unit
// under "val_unit".  A unit for a plain option "x" may also be given as a
// sibling "x_unit".
type Entry map[string]any

// bookkeeping keys are never passed to constructors
var bookkeeping = map[string]bool{"type": true, "comment": true}

// AsEntry converts a decoded YAML map to an Entry
func AsEntry(v any) (Entry, bool) {
	switch m := v.(type) {
	case Entry:
		return m, true
	case map[string]any:
		return Entry(m), true
	case map[any]any:
		out := make(Entry, len(m))
		for k, vv := range m {
			out[fmt.Sprint(k)] = vv
		}
		return out, true
	}
	return nil, false
}

// Has reports whether the option is present
func (e Entry) Has(name string) bool {
	_, ok := e[name]
	return ok
}

// Type returns the type of the entry
func (e Entry) Type() string {
	s, _ := e.String("type")
	return s
}

// Sub returns a nested entry
func (e Entry) Sub(name string) (Entry, bool) {
	return AsEntry(e[name])
}

// List returns the entries stored under name, which may be a single map or a
// list of maps
func (e Entry) List(name string) []Entry {
	v, ok := e[name]
	if !ok {
		return nil
	}
	if sub, ok := AsEntry(v); ok {
		return []Entry{sub}
	}
	var out []Entry
	if l, ok := v.([]any); ok {
		for _, item := range l {
			if sub, ok := AsEntry(item); ok {
				out = append(out, sub)
			}
		}
	}
	return out
}

// raw returns the value of the option and the unit string attached to it
func (e Entry) raw(name string) (any, string, bool) {
	v, ok := e[name]
	if !ok {
		return nil, "", false
	}
	unit, _ := e[name+"_unit"].(string)
	if sub, ok := AsEntry(v); ok {
		val, ok := sub["val"]
		if !ok {
			return sub, "", true
		}
		u, _ := sub["val_unit"].(string)
		return val, u, true
	}
	return v, unit, true
}

// String returns a string option
func (e Entry) String(name string) (string, bool) {
	v, _, ok := e.raw(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return strings.TrimSpace(s), ok
}

// Bool returns a boolean option
func (e Entry) Bool(name string) (bool, bool) {
	v, _, ok := e.raw(name)
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		out, err := strconv.ParseBool(strings.TrimSpace(b))
		return out, err == nil
	}
	return false, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// Quantity returns a unit-bearing scalar option.  Options without unit are
// dimensionless.
func (e Entry) Quantity(name string) (units.Quantity, error) {
	v, u, ok := e.raw(name)
	if !ok {
		return units.Quantity{}, Errorf(name, "Parameter '%s' not found.", name)
	}
	return toQuantity(name, v, u)
}

func toQuantity(name string, v any, unitStr string) (units.Quantity, error) {
	unit := units.Dimensionless
	if unitStr != "" {
		var err error
		if unit, err = units.Parse(unitStr); err != nil {
			return units.Quantity{}, Errorf(name, "unable to parse unit '%s'.", unitStr)
		}
	}
	if f, ok := toFloat(v); ok {
		return units.Q(f, unit), nil
	}
	if s, ok := v.(string); ok && unitStr == "" {
		q, err := units.ParseQuantity(s)
		if err != nil {
			return units.Quantity{}, Errorf(name, "cannot convert '%s' to a quantity.", s)
		}
		return q, nil
	}
	return units.Quantity{}, Errorf(name, "expected parameter '%s' to be numeric but got '%v'.", name, v)
}

// Array returns a list option, e.g. a pixel geometry.  A scalar is returned
// as an array of one element.
func (e Entry) Array(name string) (units.Array, error) {
	v, u, ok := e.raw(name)
	if !ok {
		return units.Array{}, Errorf(name, "Parameter '%s' not found.", name)
	}
	if s, isStr := v.(string); isStr && strings.Contains(s, ",") {
		var l []any
		for _, f := range strings.Split(s, ",") {
			l = append(l, f)
		}
		v = l
	}
	l, isList := v.([]any)
	if !isList {
		q, err := toQuantity(name, v, u)
		if err != nil {
			return units.Array{}, err
		}
		return units.Array{Values: []float64{q.Value}, Unit: q.Unit}, nil
	}
	unit := units.Dimensionless
	if u != "" {
		var err error
		if unit, err = units.Parse(u); err != nil {
			return units.Array{}, Errorf(name, "unable to parse unit '%s'.", u)
		}
	}
	out := units.Array{Values: make([]float64, len(l)), Unit: unit}
	for i, item := range l {
		f, ok := toFloat(item)
		if !ok {
			return units.Array{}, Errorf(name, "cannot convert '%v' to a numeric value.", item)
		}
		out.Values[i] = f
	}
	return out, nil
}

// Float returns a dimensionless numeric option
func (e Entry) Float(name string) (float64, error) {
	q, err := e.Quantity(name)
	if err != nil {
		return 0, err
	}
	return q.To(units.Dimensionless)
}

// CheckQuantity checks that the option is a quantity convertible to u
func (e Entry) CheckQuantity(name string, u units.Unit) error {
	if !e.Has(name) {
		return Errorf(name, "Parameter '%s' not found.", name)
	}
	arr, err := e.Array(name)
	if err != nil {
		return err
	}
	if !arr.Unit.Equivalent(u) {
		if arr.Unit.IsDimensionless() {
			return Errorf(name, "Expected parameter '%s' with unit '%s' but got no unit.", name, u)
		}
		return Errorf(name, "Expected parameter '%s' with unit equivalent to '%s' but got unit '%s'.", name, u, arr.Unit)
	}
	return nil
}

// CheckFloat checks that the option is a plain number
func (e Entry) CheckFloat(name string) error {
	if !e.Has(name) {
		return Errorf(name, "Parameter '%s' not found.", name)
	}
	v, _, _ := e.raw(name)
	if _, ok := toFloat(v); !ok {
		return Errorf(name, "Cannot convert parameter '%s' with value '%v' to a numeric value.", name, v)
	}
	return nil
}

// CheckSelection checks the option against a list of choices, suggesting the
// closest one on a mismatch
func (e Entry) CheckSelection(name string, choices []string) error {
	if !e.Has(name) {
		return Errorf(name, "Parameter '%s' not found.", name)
	}
	s, ok := e.String(name)
	if !ok {
		return Errorf(name, "Expected parameter '%s' to be of type string.", name)
	}
	for _, c := range choices {
		if s == c {
			return nil
		}
	}
	if m := Closest(s, choices); m != "" {
		return Errorf(name, "Value '%s' not allowed for parameter '%s'. Did you mean '%s'?", s, name, m)
	}
	return Errorf(name, "Value '%s' not allowed for parameter '%s'.", s, name)
}

// CheckFile checks that the option names an existing file
func (e Entry) CheckFile(name string) error {
	s, ok := e.String(name)
	if !ok {
		if !e.Has(name) {
			return Errorf(name, "Parameter '%s' not found.", name)
		}
		return Errorf(name, "Expected parameter '%s' to be a path.", name)
	}
	if fi, err := os.Stat(s); err != nil || fi.IsDir() {
		return Errorf(name, "File '%s' does not exist.", s)
	}
	return nil
}

// CheckPath checks that the option names an existing directory
func (e Entry) CheckPath(name string) error {
	s, ok := e.String(name)
	if !ok {
		return Errorf(name, "Parameter '%s' not found.", name)
	}
	if fi, err := os.Stat(s); err != nil || !fi.IsDir() {
		return Errorf(name, "Path '%s' does not exist.", s)
	}
	return nil
}

// CheckFloatOrFile accepts a number or the path of an existing file
func (e Entry) CheckFloatOrFile(name string) error {
	if err := e.CheckFloat(name); err == nil {
		return nil
	}
	return e.CheckFile(name)
}

// CheckQuantityOrFile accepts a quantity convertible to u or the path of an
// existing file
func (e Entry) CheckQuantityOrFile(name string, u units.Unit) error {
	if err := e.CheckQuantity(name, u); err == nil {
		return nil
	}
	return e.CheckFile(name)
}

// Collect flattens the entry into the options passed to a constructor.
// Bookkeeping keys and unit keys are dropped, values with units become
// units.Quantity or units.Array, strings like "5778 K" become quantities.
func (e Entry) Collect() map[string]any {
	out := make(map[string]any, len(e))
	for k := range e {
		if bookkeeping[k] || strings.HasSuffix(k, "_unit") {
			continue
		}
		v, u, _ := e.raw(k)
		out[k] = collectValue(k, v, u)
	}
	return out
}

func collectValue(name string, v any, u string) any {
	switch x := v.(type) {
	case Entry:
		return x
	case []any:
		if arr, err := (Entry{name: x, name + "_unit": u}).Array(name); err == nil {
			if u == "" {
				return arr.Values
			}
			return arr
		}
		return x
	case bool:
		return x
	case string:
		if u != "" {
			if q, err := toQuantity(name, x, u); err == nil {
				return q
			}
			return x
		}
		if q, err := units.ParseQuantity(x); err == nil {
			if q.Unit.IsDimensionless() {
				return q.Value
			}
			return q
		}
		return x
	}
	if f, ok := toFloat(v); ok {
		if u == "" {
			return f
		}
		if q, err := toQuantity(name, f, u); err == nil {
			return q
		}
	}
	return v
}

// Closest returns the choice with the smallest edit distance to s, or "" if
// there are no choices
func Closest(s string, choices []string) string {
	best, dist := "", -1
	ls := strings.ToLower(s)
	for _, c := range choices {
		d := levenshtein.ComputeDistance(ls, strings.ToLower(c))
		if dist < 0 || d < dist {
			best, dist = c, d
		}
	}
	return best
}
