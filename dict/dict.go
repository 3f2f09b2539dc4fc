// Package dict provides typed access to the loosely-typed configuration maps
// produced by decoding TOML (or JSON) into map[string]interface{}, the same
// role the teacher's dict.Dicter plays for provider configuration.
package dict

import "fmt"

// Dict wraps a generic configuration map and offers typed, validated
// accessors. A nil default pointer marks the key as required.
type Dict map[string]interface{}

// Dicter is implemented by Dict; it exists so engine/store code can accept
// either a live Dict or a test double.
type Dicter interface {
	String(key string, def *string) (string, error)
	Int(key string, def *int) (int, error)
	Bool(key string, def *bool) (bool, error)
	StringSlice(key string) ([]string, error)
	MapSlice(key string) ([]Dict, error)
}

func (d Dict) String(key string, def *string) (string, error) {
	v, ok := d[key]
	if !ok {
		if def == nil {
			return "", fmt.Errorf("dict: missing required string key %q", key)
		}
		return *def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("dict: value for key %q is not a string (%T)", key, v)
	}
	return s, nil
}

func (d Dict) Int(key string, def *int) (int, error) {
	v, ok := d[key]
	if !ok {
		if def == nil {
			return 0, fmt.Errorf("dict: missing required int key %q", key)
		}
		return *def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("dict: value for key %q is not a number (%T)", key, v)
	}
}

func (d Dict) Bool(key string, def *bool) (bool, error) {
	v, ok := d[key]
	if !ok {
		if def == nil {
			return false, fmt.Errorf("dict: missing required bool key %q", key)
		}
		return *def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("dict: value for key %q is not a bool (%T)", key, v)
	}
	return b, nil
}

func (d Dict) StringSlice(key string) ([]string, error) {
	v, ok := d[key]
	if !ok {
		return nil, nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss, nil
		}
		return nil, fmt.Errorf("dict: value for key %q is not a slice (%T)", key, v)
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		s, ok := r.(string)
		if !ok {
			return nil, fmt.Errorf("dict: element of %q is not a string (%T)", key, r)
		}
		out = append(out, s)
	}
	return out, nil
}

func (d Dict) MapSlice(key string) ([]Dict, error) {
	v, ok := d[key]
	if !ok {
		return nil, nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		if ds, ok := v.([]Dict); ok {
			return ds, nil
		}
		return nil, fmt.Errorf("dict: value for key %q is not a slice (%T)", key, v)
	}
	out := make([]Dict, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("dict: element of %q is not a map (%T)", key, r)
		}
		out = append(out, Dict(m))
	}
	return out, nil
}
