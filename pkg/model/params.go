package model

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Params holds one grid point of hyperparameters. Values come from YAML or
// code and may be ints, floats, strings or bools.
type Params map[string]any

// Canonical renders the params as "k=v;k=v" with sorted keys.
func (p Params) Canonical() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + formatValue(p[k])
	}
	return strings.Join(parts, ";")
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "None"
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	default:
		return fmt.Sprint(t)
	}
}

// Float returns the named value as float64, or def when absent.
func (p Params) Float(name string, def float64) (float64, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err == nil {
			return f, nil
		}
	}
	return 0, fmt.Errorf("model: param %s: %v (%T) is not a number", name, v, v)
}

// Int returns the named value as int, or def when absent. Floats must be
// integral.
func (p Params) Int(name string, def int) (int, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t == math.Trunc(t) {
			return int(t), nil
		}
	case string:
		n, err := strconv.Atoi(t)
		if err == nil {
			return n, nil
		}
	}
	return 0, fmt.Errorf("model: param %s: %v (%T) is not an integer", name, v, v)
}

// String returns the named value as a string, or def when absent.
func (p Params) String(name, def string) (string, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("model: param %s: %v (%T) is not a string", name, v, v)
	}
	return s, nil
}

// Bool returns the named value as a bool, or def when absent.
func (p Params) Bool(name string, def bool) (bool, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(t)
		if err == nil {
			return b, nil
		}
	}
	return false, fmt.Errorf("model: param %s: %v (%T) is not a bool", name, v, v)
}

// Only rejects parameter names outside known. kind prefixes the error.
func (p Params) Only(kind string, known ...string) error {
	set := make(map[string]struct{}, len(known))
	for _, k := range known {
		set[k] = struct{}{}
	}
	for k := range p {
		if _, ok := set[k]; !ok {
			return fmt.Errorf("%s: unknown parameter %q", kind, k)
		}
	}
	return nil
}
