// File: lixenwraith/iniconf/type.go
package iniconf

import (
	"fmt"
	"reflect"
	"strconv"
)

// String retrieves the resolved value of id as a string.
// Attempts conversion from common types if the value isn't already a string.
func (m *Manager) String(t *Table, id ID) (string, error) {
	val, err := m.lookup(t, id)
	if err != nil {
		return "", err
	}
	if val == nil {
		return "", nil // Treat nil as empty string for convenience
	}

	if strVal, ok := val.(string); ok {
		return strVal, nil
	}

	switch v := val.(type) {
	case fmt.Stringer:
		return v.String(), nil
	case []string, map[string]string, map[string]bool:
		return Encode(v, m.entries[id].opt.Type)
	case int, int8, int16, int32, int64:
		return strconv.FormatInt(reflect.ValueOf(val).Int(), 10), nil
	case float32, float64:
		return strconv.FormatFloat(reflect.ValueOf(val).Float(), 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("cannot convert type %T to string for option %d", val, id)
	}
}

// Int64 retrieves the resolved value of id as an int64.
// Attempts conversion from numeric types, parsable strings and booleans.
func (m *Manager) Int64(t *Table, id ID) (int64, error) {
	val, err := m.lookup(t, id)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return 0, fmt.Errorf("value of option %d is nil, cannot convert to int64", id)
	}

	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Float32, reflect.Float64:
		// Truncate float to int
		return int64(v.Float()), nil
	case reflect.String:
		s := v.String()
		i, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string %q to int64 for option %d: %w", s, id, err)
		}
		return i, nil
	case reflect.Bool:
		if v.Bool() {
			return 1, nil
		}
		return 0, nil
	}

	return 0, fmt.Errorf("cannot convert type %T to int64 for option %d", val, id)
}

// Bool retrieves the resolved value of id as a boolean.
// Numbers convert as 0=false, non-zero=true; strings use the codec's boolean forms.
func (m *Manager) Bool(t *Table, id ID) (bool, error) {
	val, err := m.lookup(t, id)
	if err != nil {
		return false, err
	}
	if val == nil {
		return false, fmt.Errorf("value of option %d is nil, cannot convert to bool", id)
	}

	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.String:
		b, err := Decode(v.String(), TypeBool, nil, false)
		if err != nil {
			return false, fmt.Errorf("cannot convert string %q to bool for option %d: %w", v.String(), id, err)
		}
		return b.(bool), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() != 0, nil
	case reflect.Float32, reflect.Float64:
		return v.Float() != 0, nil
	}

	return false, fmt.Errorf("cannot convert type %T to bool for option %d", val, id)
}

// Float64 retrieves the resolved value of id as a float64.
func (m *Manager) Float64(t *Table, id ID) (float64, error) {
	val, err := m.lookup(t, id)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return 0, fmt.Errorf("value of option %d is nil, cannot convert to float64", id)
	}

	v := reflect.ValueOf(val)
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(v.Int()), nil
	case reflect.String:
		s := v.String()
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert string %q to float64 for option %d: %w", s, id, err)
		}
		return f, nil
	case reflect.Bool:
		if v.Bool() {
			return 1, nil
		}
		return 0, nil
	}

	return 0, fmt.Errorf("cannot convert type %T to float64 for option %d", val, id)
}

// Strings retrieves a list value. Sets are returned as their sorted members.
func (m *Manager) Strings(t *Table, id ID) ([]string, error) {
	val, err := m.lookup(t, id)
	if err != nil {
		return nil, err
	}
	switch v := val.(type) {
	case nil:
		return nil, nil
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out, nil
	case map[string]bool:
		return sortedKeys(v), nil
	case string:
		return splitList(v), nil
	}
	return nil, fmt.Errorf("cannot convert type %T to []string for option %d", val, id)
}

// Map retrieves a k:v map value.
func (m *Manager) Map(t *Table, id ID) (map[string]string, error) {
	val, err := m.lookup(t, id)
	if err != nil {
		return nil, err
	}
	switch v := val.(type) {
	case nil:
		return nil, nil
	case map[string]string:
		out := make(map[string]string, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot convert type %T to map[string]string for option %d", val, id)
}

// lookup is Get with an error for unknown ids.
func (m *Manager) lookup(t *Table, id ID) (any, error) {
	if m.entry(id) == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOption, id)
	}
	return m.Get(t, id), nil
}
