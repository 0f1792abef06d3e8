// FILE: lixenwraith/iniconf/codec.go
package iniconf

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Type is the declared type of an option value.
type Type int

const (
	TypeString Type = iota
	TypeBool
	TypeInt
	TypeDouble
	TypeArray
	TypeMap
	TypeSet
	TypeSetLowercase
	TypeJSON
	TypeCustom
)

func (t Type) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeDouble:
		return "double"
	case TypeArray:
		return "array"
	case TypeMap:
		return "map"
	case TypeSet:
		return "set"
	case TypeSetLowercase:
		return "set_lowercase"
	case TypeJSON:
		return "json"
	case TypeCustom:
		return "custom"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// ParseType maps a type name as written in declaration files to a Type.
func ParseType(name string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "string":
		return TypeString, nil
	case "bool", "boolean":
		return TypeBool, nil
	case "int", "integer":
		return TypeInt, nil
	case "double", "float":
		return TypeDouble, nil
	case "array", "list":
		return TypeArray, nil
	case "map":
		return TypeMap, nil
	case "set":
		return TypeSet, nil
	case "set_lowercase":
		return TypeSetLowercase, nil
	case "json":
		return TypeJSON, nil
	case "custom":
		return TypeCustom, nil
	}
	return 0, fmt.Errorf("unknown option type %q", name)
}

// Parser decodes a custom-typed raw value. persistent values must not
// reference raw after return.
type Parser func(raw string, persistent bool) (any, error)

// Decode converts raw text into a value of the given type. A nil error means
// the returned value is valid; on failure the caller's destination must be
// left untouched. persistent detaches every string in the result from raw.
func Decode(raw string, typ Type, parser Parser, persistent bool) (any, error) {
	if persistent {
		raw = strings.Clone(raw)
	}

	switch typ {
	case TypeString:
		return raw, nil

	case TypeBool:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "1", "true", "yes", "on":
			return true, nil
		case "", "0", "false", "no", "off":
			return false, nil
		}
		return nil, fmt.Errorf("%w: %q is not a boolean", ErrDecode, raw)

	case TypeInt:
		i, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return i, nil

	case TypeDouble:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: %q is not a finite number", ErrDecode, raw)
		}
		return f, nil

	case TypeArray:
		return splitList(raw), nil

	case TypeMap:
		m := make(map[string]string)
		for _, item := range splitList(raw) {
			key, value, _ := strings.Cut(item, ":")
			key = strings.TrimSpace(key)
			if key == "" {
				return nil, fmt.Errorf("%w: map entry %q has no key", ErrDecode, item)
			}
			m[key] = strings.TrimSpace(value)
		}
		return m, nil

	case TypeSet, TypeSetLowercase:
		set := make(map[string]bool)
		for _, item := range splitList(raw) {
			if typ == TypeSetLowercase {
				item = strings.ToLower(item)
			}
			set[item] = true
		}
		return set, nil

	case TypeJSON:
		if strings.TrimSpace(raw) == "" {
			return nil, nil
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return v, nil

	case TypeCustom:
		if parser == nil {
			return nil, fmt.Errorf("%w: custom type without parser", ErrDecode)
		}
		v, err := parser(raw, persistent)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		return v, nil
	}

	return nil, fmt.Errorf("%w: unsupported type %s", ErrDecode, typ)
}

// Encode renders a typed value as directive text.
func Encode(v any, typ Type) (string, error) {
	switch typ {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case TypeBool:
		if b, ok := v.(bool); ok {
			return strconv.FormatBool(b), nil
		}
	case TypeInt:
		switch i := v.(type) {
		case int64:
			return strconv.FormatInt(i, 10), nil
		case int:
			return strconv.Itoa(i), nil
		}
	case TypeDouble:
		if f, ok := v.(float64); ok {
			return strconv.FormatFloat(f, 'g', -1, 64), nil
		}
	case TypeArray:
		if list, ok := v.([]string); ok {
			return strings.Join(list, ","), nil
		}
	case TypeMap:
		if m, ok := v.(map[string]string); ok {
			keys := sortedKeys(m)
			parts := make([]string, 0, len(keys))
			for _, k := range keys {
				parts = append(parts, k+":"+m[k])
			}
			return strings.Join(parts, ","), nil
		}
	case TypeSet, TypeSetLowercase:
		if set, ok := v.(map[string]bool); ok {
			keys := sortedKeys(set)
			return strings.Join(keys, ","), nil
		}
	case TypeJSON:
		if v == nil {
			return "", nil
		}
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("cannot encode json value: %w", err)
		}
		return string(b), nil
	case TypeCustom:
		if s, ok := v.(fmt.Stringer); ok {
			return s.String(), nil
		}
	}
	return "", fmt.Errorf("cannot encode %T as %s", v, typ)
}

// splitList splits comma separated text, trimming items and dropping empty ones.
func splitList(raw string) []string {
	list := make([]string, 0)
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// boolDisplay renders boolean directive text the way hosts print On/Off flags.
func boolDisplay(value string) string {
	if b, err := Decode(value, TypeBool, nil, false); err == nil && b.(bool) {
		return "On"
	}
	return "Off"
}
