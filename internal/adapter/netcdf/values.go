package netcdf

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

// flatten converts a numeric value or an arbitrarily nested slice of numbers,
// as returned by VarGetter.Values, into a flat row-major []float64.
func flatten(v any) ([]float64, error) {
	switch s := v.(type) {
	case []float64:
		return append([]float64(nil), s...), nil
	case []float32:
		out := make([]float64, len(s))
		for i, f := range s {
			out[i] = float64(f)
		}
		return out, nil
	}
	var out []float64
	if err := appendValues(&out, reflect.ValueOf(v)); err != nil {
		return nil, err
	}
	return out, nil
}

// shapeOf returns the lengths of each nesting level of a nested slice, taken
// from the first element at every level.
func shapeOf(v any) []int {
	var shape []int
	rv := reflect.ValueOf(v)
	for rv.IsValid() && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) {
		shape = append(shape, rv.Len())
		if rv.Len() == 0 {
			break
		}
		rv = rv.Index(0)
		if rv.Kind() == reflect.Interface {
			rv = rv.Elem()
		}
	}
	return shape
}

func appendValues(out *[]float64, v reflect.Value) error {
	if !v.IsValid() {
		return errors.New("missing value")
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			if err := appendValues(out, v.Index(i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Float32, reflect.Float64:
		*out = append(*out, v.Float())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		*out = append(*out, float64(v.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		*out = append(*out, float64(v.Uint()))
	case reflect.Interface:
		return appendValues(out, v.Elem())
	default:
		return fmt.Errorf("unsupported value type %s", v.Type())
	}
	return nil
}

func numberAttr(attrs api.AttributeMap, key string) (float64, bool) {
	if attrs == nil {
		return 0, false
	}
	raw, ok := attrs.Get(key)
	if !ok {
		return 0, false
	}
	values, err := flatten(raw)
	if err != nil || len(values) == 0 {
		return 0, false
	}
	return values[0], true
}

func stringAttr(attrs api.AttributeMap, key string) (string, bool) {
	if attrs == nil {
		return "", false
	}
	raw, ok := attrs.Get(key)
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}

var timeUnits = map[string]time.Duration{
	"days":    24 * time.Hour,
	"day":     24 * time.Hour,
	"d":       24 * time.Hour,
	"hours":   time.Hour,
	"hour":    time.Hour,
	"h":       time.Hour,
	"minutes": time.Minute,
	"minute":  time.Minute,
	"min":     time.Minute,
	"seconds": time.Second,
	"second":  time.Second,
	"s":       time.Second,
}

var epochLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-1-2 15:04:05",
	"2006-1-2",
}

// parseTimeUnits parses a CF time units string such as
// "days since 1970-01-01 00:00:00". A trailing " UTC" is accepted.
func parseTimeUnits(units string) (time.Duration, time.Time, error) {
	name, ref, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("time units %q: want \"<unit> since <timestamp>\"", units)
	}
	unit, ok := timeUnits[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("time units %q: unknown unit %q", units, name)
	}
	ref = strings.TrimSuffix(strings.TrimSpace(ref), " UTC")
	for _, layout := range epochLayouts {
		if t, err := time.Parse(layout, ref); err == nil {
			return unit, t.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("time units %q: cannot parse reference time %q", units, ref)
}
