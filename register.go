// FILE: lixenwraith/iniconf/register.go
package iniconf

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// ID identifies an option. IDs are dense and start at zero.
type ID int

// Option declares a logical configuration setting.
type Option struct {
	ID ID
	// Names are the aliases of the option, highest precedence first. Each is
	// read as an environment variable and mapped to a directive name.
	Names   []string
	Type    Type
	Default string
	Parser  Parser
	// Validate runs on every decoded value; false rejects the value.
	Validate func(v any) bool
	// IniChange is consulted before a runtime change is published.
	IniChange func(old, new any) bool
	// System options are fixed before the first request and never change after.
	System bool
}

// Registry is the static table of option declarations.
type Registry struct {
	mu      sync.RWMutex
	options []Option
	byAlias map[string]ID
	frozen  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byAlias: make(map[string]ID),
	}
}

// Register adds an option. IDs must be assigned in sequence. Aliases already
// owned by an earlier option are dropped; an option left with no alias is
// rejected with ErrDuplicateOption.
func (r *Registry) Register(opt Option) error {
	if len(opt.Names) == 0 {
		return fmt.Errorf("option %d has no names", opt.ID)
	}
	if opt.Type == TypeCustom && opt.Parser == nil {
		return fmt.Errorf("option %d (%s) is custom-typed but has no parser", opt.ID, opt.Names[0])
	}
	for _, name := range opt.Names {
		if !isValidEnvName(name) {
			return fmt.Errorf("invalid option name %q", name)
		}
	}
	if _, err := decodeOption(opt, opt.Default, true); err != nil {
		return fmt.Errorf("default of option %s: %w", opt.Names[0], err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("cannot register %s: registry frozen by module init", opt.Names[0])
	}
	if int(opt.ID) != len(r.options) {
		return fmt.Errorf("option id %d out of sequence, expected %d", opt.ID, len(r.options))
	}

	names := make([]string, 0, len(opt.Names))
	for _, name := range opt.Names {
		if _, taken := r.byAlias[name]; taken {
			continue
		}
		r.byAlias[name] = opt.ID
		names = append(names, name)
	}
	if len(names) == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateOption, strings.Join(opt.Names, ", "))
	}

	opt.Names = names
	r.options = append(r.options, opt)
	return nil
}

// Len returns the number of registered options.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.options)
}

// Option returns the declaration for id.
func (r *Registry) Option(id ID) (Option, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id < 0 || int(id) >= len(r.options) {
		return Option{}, false
	}
	return r.options[id], true
}

// Lookup returns the option owning alias.
func (r *Registry) Lookup(alias string) (ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byAlias[alias]
	return id, ok
}

// freeze returns the declarations and blocks further registration.
func (r *Registry) freeze() []Option {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
	out := make([]Option, len(r.options))
	copy(out, r.options)
	return out
}

// RegisterStruct registers one option per exported field of a struct holding
// defaults. The `env` tag lists the aliases ("A,B"); untagged fields and "-"
// are skipped. A `system:"true"` tag marks a system-only option. Field kinds
// map to types: bool, ints, floats, string, []string and map[string]string.
func (r *Registry) RegisterStruct(structWithDefaults any) error {
	v := reflect.ValueOf(structWithDefaults)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return fmt.Errorf("RegisterStruct requires a non-nil struct pointer or value")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("RegisterStruct requires a struct or struct pointer, got %T", structWithDefaults)
	}

	var errs []string
	r.registerFields(v, "", &errs)
	if len(errs) > 0 {
		return fmt.Errorf("failed to register %d field(s): %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

func (r *Registry) registerFields(v reflect.Value, fieldPath string, errs *[]string) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		fieldValue := v.Field(i)
		if !field.IsExported() {
			continue
		}

		if fieldValue.Kind() == reflect.Struct {
			r.registerFields(fieldValue, fieldPath+field.Name+".", errs)
			continue
		}

		tag := field.Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}

		typ, ok := typeOfKind(fieldValue)
		if !ok {
			*errs = append(*errs, fmt.Sprintf("field %s%s: unsupported kind %s", fieldPath, field.Name, fieldValue.Kind()))
			continue
		}
		def, err := Encode(normalizeField(fieldValue), typ)
		if err != nil {
			*errs = append(*errs, fmt.Sprintf("field %s%s: %v", fieldPath, field.Name, err))
			continue
		}

		opt := Option{
			ID:      ID(r.Len()),
			Names:   strings.Split(tag, ","),
			Type:    typ,
			Default: def,
			System:  field.Tag.Get("system") == "true",
		}
		if err := r.Register(opt); err != nil {
			*errs = append(*errs, fmt.Sprintf("field %s%s: %v", fieldPath, field.Name, err))
		}
	}
}

func typeOfKind(v reflect.Value) (Type, bool) {
	switch v.Kind() {
	case reflect.Bool:
		return TypeBool, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return TypeInt, true
	case reflect.Float32, reflect.Float64:
		return TypeDouble, true
	case reflect.String:
		return TypeString, true
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.String {
			return TypeArray, true
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			return TypeMap, true
		}
	}
	return 0, false
}

// normalizeField converts a field value to the representation Encode expects.
func normalizeField(v reflect.Value) any {
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool()
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Float32, reflect.Float64:
		return v.Float()
	case reflect.Slice:
		out := make([]string, v.Len())
		for i := range out {
			out[i] = v.Index(i).String()
		}
		return out
	case reflect.Map:
		out := make(map[string]string, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().String()
		}
		return out
	}
	return v.Interface()
}

// decodeOption decodes raw for opt and applies its validator.
func decodeOption(opt Option, raw string, persistent bool) (any, error) {
	v, err := Decode(raw, opt.Type, opt.Parser, persistent)
	if err != nil {
		return nil, err
	}
	if opt.Validate != nil && !opt.Validate(v) {
		return nil, fmt.Errorf("%w: %q rejected by validator", ErrDecode, raw)
	}
	return v, nil
}
