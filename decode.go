// FILE: lixenwraith/iniconf/decode.go
package iniconf

import (
	"fmt"
	"net"
	"net/url"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Scan decodes the resolved values seen by the worker owning t into target,
// a pointer to a struct whose fields carry `env:"ALIAS,..."` tags. The first
// alias of each option is the key. Nested struct fields are scanned from the
// same flat namespace, mirroring RegisterStruct.
func (m *Manager) Scan(t *Table, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("scan target must be non-nil pointer, got %T", target)
	}
	if rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("scan target must point to a struct, got %T", target)
	}

	values := make(map[string]any, len(m.entries))
	for _, e := range m.entries {
		values[e.opt.Names[0]] = m.Get(t, e.opt.ID)
	}
	return scanStruct(rv, values)
}

func scanStruct(ptr reflect.Value, values map[string]any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           ptr.Interface(),
		TagName:          "env",
		WeaklyTypedInput: true,
		DecodeHook:       scanDecodeHook(),
		Metadata:         nil,
	})
	if err != nil {
		return fmt.Errorf("decoder creation failed: %w", err)
	}
	if err := decoder.Decode(values); err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}

	v := ptr.Elem()
	for i := 0; i < v.NumField(); i++ {
		field := v.Type().Field(i)
		if !field.IsExported() || field.Tag.Get("env") != "" {
			continue
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Struct && fv.CanAddr() && !isLeafStruct(fv.Type()) {
			if err := scanStruct(fv.Addr(), values); err != nil {
				return fmt.Errorf("field %s: %w", field.Name, err)
			}
		}
	}
	return nil
}

// isLeafStruct reports struct types decoded as a single value.
func isLeafStruct(t reflect.Type) bool {
	return t == reflect.TypeOf(time.Time{}) || t == reflect.TypeOf(url.URL{}) || t == reflect.TypeOf(net.IPNet{})
}

// scanDecodeHook returns the composite decode hook for all type conversions
func scanDecodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		// Sets decode to their sorted members
		setToSliceHookFunc(),

		// Network types
		stringToNetIPHookFunc(),
		stringToURLHookFunc(),

		// Standard hooks
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToTimeHookFunc(time.RFC3339),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// setToSliceHookFunc converts a decoded set into a sorted slice.
func setToSliceHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		set, ok := data.(map[string]bool)
		if !ok || t.Kind() != reflect.Slice {
			return data, nil
		}
		return sortedKeys(set), nil
	}
}

// stringToNetIPHookFunc handles net.IP conversion
func stringToNetIPHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String || t != reflect.TypeOf(net.IP{}) {
			return data, nil
		}

		str := data.(string)
		if len(str) > 45 { // Max IPv6 length
			return nil, fmt.Errorf("invalid IP length: %d", len(str))
		}
		ip := net.ParseIP(str)
		if ip == nil {
			return nil, fmt.Errorf("invalid IP address: %s", str)
		}
		return ip, nil
	}
}

// stringToURLHookFunc handles url.URL conversion
func stringToURLHookFunc() mapstructure.DecodeHookFunc {
	return func(f reflect.Type, t reflect.Type, data any) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		isPtr := t.Kind() == reflect.Ptr
		targetType := t
		if isPtr {
			targetType = t.Elem()
		}
		if targetType != reflect.TypeOf(url.URL{}) {
			return data, nil
		}

		str := data.(string)
		if len(str) > 2048 {
			return nil, fmt.Errorf("URL too long: %d bytes", len(str))
		}
		u, err := url.Parse(str)
		if err != nil {
			return nil, fmt.Errorf("invalid URL: %w", err)
		}
		if isPtr {
			return u, nil
		}
		return *u, nil
	}
}
