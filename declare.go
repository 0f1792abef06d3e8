// FILE: lixenwraith/iniconf/declare.go
package iniconf

import (
	"errors"
	"fmt"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
	"github.com/mitchellh/mapstructure"
)

// declaration is one option as written in a declaration file.
type declaration struct {
	Names    []string `mapstructure:"names"`
	Type     string   `mapstructure:"type"`
	Default  any      `mapstructure:"default"`
	System   bool     `mapstructure:"system"`
	Validate string   `mapstructure:"validate"`
}

// ReadDeclarations loads option declarations from a TOML, JSON or YAML file
// holding an `option` list. IDs follow file order starting at zero.
//
//	[[option]]
//	names = ["APP_WORKERS", "WORKERS"]
//	type = "int"
//	default = 4
//	validate = "value > 0"
func ReadDeclarations(path string) ([]Option, error) {
	data, err := readConfigFile(path, "")
	if err != nil {
		if errors.Is(err, ErrStaticNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDeclarationsNotFound, path)
		}
		return nil, err
	}

	var file struct {
		Options []declaration `mapstructure:"option"`
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &file,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
	})
	if err != nil {
		return nil, fmt.Errorf("decoder creation failed: %w", err)
	}
	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("invalid declarations in '%s': %w", path, err)
	}

	var errs []error
	options := make([]Option, 0, len(file.Options))
	for i, d := range file.Options {
		opt, err := d.option(ID(i))
		if err != nil {
			errs = append(errs, fmt.Errorf("option %d: %w", i, err))
			continue
		}
		options = append(options, opt)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return options, nil
}

func (d declaration) option(id ID) (Option, error) {
	if len(d.Names) == 0 {
		return Option{}, fmt.Errorf("no names")
	}
	typ, err := ParseType(d.Type)
	if err != nil {
		return Option{}, err
	}
	if typ == TypeCustom {
		return Option{}, fmt.Errorf("custom types need a parser and cannot be declared in a file")
	}

	opt := Option{
		ID:      id,
		Names:   d.Names,
		Type:    typ,
		Default: formatScalar(d.Default),
		System:  d.System,
	}
	if d.Validate != "" {
		validate, err := CompileValidator(d.Validate)
		if err != nil {
			return Option{}, err
		}
		opt.Validate = validate
	}
	return opt, nil
}

// RegisterAll registers options in order, renumbering them densely after
// any rejected option, and collects every failure.
func (r *Registry) RegisterAll(options []Option) error {
	var errs []error
	for _, opt := range options {
		opt.ID = ID(r.Len())
		if err := r.Register(opt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CompileValidator compiles a boolean expression over the decoded value,
// bound to the variable `value`, into an Option.Validate function.
// Evaluation errors reject the value.
func CompileValidator(expression string) (func(v any) bool, error) {
	if expression == "" {
		return nil, fmt.Errorf("validator expression must not be empty")
	}
	program, err := exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid validator %q: %w", expression, err)
	}
	return func(v any) bool {
		return runValidator(program, v)
	}, nil
}

func runValidator(program *exprvm.Program, v any) bool {
	out, err := exprlang.Run(program, map[string]any{"value": v})
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}
