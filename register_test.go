// FILE: lixenwraith/iniconf/register_test.go
package iniconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegister(t *testing.T) {
	t.Run("Sequential IDs", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Option{ID: 0, Names: []string{"APP_A"}, Default: "a"}))
		require.NoError(t, r.Register(Option{ID: 1, Names: []string{"APP_B"}, Type: TypeInt, Default: "1"}))
		assert.Equal(t, 2, r.Len())

		err := r.Register(Option{ID: 5, Names: []string{"APP_C"}})
		assert.Error(t, err, "out of sequence id")

		id, ok := r.Lookup("APP_B")
		require.True(t, ok)
		assert.Equal(t, ID(1), id)

		opt, ok := r.Option(1)
		require.True(t, ok)
		assert.Equal(t, TypeInt, opt.Type)
		_, ok = r.Option(7)
		assert.False(t, ok)
	})

	t.Run("Duplicate Alias Dropped", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Option{ID: 0, Names: []string{"APP_SERVICE"}}))
		require.NoError(t, r.Register(Option{ID: 1, Names: []string{"APP_SERVICE", "APP_SERVICE_NAME"}}))

		opt, _ := r.Option(1)
		assert.Equal(t, []string{"APP_SERVICE_NAME"}, opt.Names)
		id, _ := r.Lookup("APP_SERVICE")
		assert.Equal(t, ID(0), id, "first registration keeps the alias")
	})

	t.Run("All Aliases Duplicate", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Option{ID: 0, Names: []string{"APP_X", "APP_Y"}}))

		err := r.Register(Option{ID: 1, Names: []string{"APP_Y", "APP_X"}})
		assert.ErrorIs(t, err, ErrDuplicateOption)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("Invalid Declarations", func(t *testing.T) {
		r := NewRegistry()
		assert.Error(t, r.Register(Option{ID: 0}), "no names")
		assert.Error(t, r.Register(Option{ID: 0, Names: []string{"1BAD"}}), "env name")
		assert.Error(t, r.Register(Option{ID: 0, Names: []string{"APP_C"}, Type: TypeCustom}), "no parser")
		assert.ErrorIs(t, r.Register(Option{ID: 0, Names: []string{"APP_N"}, Type: TypeInt, Default: "x"}), ErrDecode)
		assert.Equal(t, 0, r.Len())
	})

	t.Run("Frozen", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register(Option{ID: 0, Names: []string{"APP_A"}}))
		r.freeze()
		assert.Error(t, r.Register(Option{ID: 1, Names: []string{"APP_B"}}))
	})
}

func TestRegisterStruct(t *testing.T) {
	type Limits struct {
		MaxConns int64 `env:"APP_MAX_CONNS"`
	}
	type Options struct {
		Enabled  bool              `env:"APP_TRACE_ENABLED,APP_TRACE"`
		Service  string            `env:"APP_SERVICE"`
		Rate     float64           `env:"APP_SAMPLE_RATE"`
		Tags     []string          `env:"APP_TAGS"`
		Headers  map[string]string `env:"APP_HEADERS"`
		Workers  int               `env:"APP_WORKERS" system:"true"`
		Limits   Limits
		Ignored  string `env:"-"`
		Untagged string
		internal string
	}

	r := NewRegistry()
	err := r.RegisterStruct(&Options{
		Enabled: true,
		Service: "web",
		Rate:    0.5,
		Tags:    []string{"a", "b"},
		Headers: map[string]string{"x": "1"},
		Workers: 4,
		Limits:  Limits{MaxConns: 100},
	})
	require.NoError(t, err)
	require.Equal(t, 7, r.Len())

	want := []struct {
		names []string
		typ   Type
		def   string
	}{
		{[]string{"APP_TRACE_ENABLED", "APP_TRACE"}, TypeBool, "true"},
		{[]string{"APP_SERVICE"}, TypeString, "web"},
		{[]string{"APP_SAMPLE_RATE"}, TypeDouble, "0.5"},
		{[]string{"APP_TAGS"}, TypeArray, "a,b"},
		{[]string{"APP_HEADERS"}, TypeMap, "x:1"},
		{[]string{"APP_WORKERS"}, TypeInt, "4"},
		{[]string{"APP_MAX_CONNS"}, TypeInt, "100"},
	}
	for i, w := range want {
		opt, ok := r.Option(ID(i))
		require.True(t, ok)
		assert.Equal(t, w.names, opt.Names)
		assert.Equal(t, w.typ, opt.Type, w.names[0])
		assert.Equal(t, w.def, opt.Default, w.names[0])
	}
	workers, _ := r.Option(5)
	assert.True(t, workers.System)

	t.Run("Unsupported Kind", func(t *testing.T) {
		type Bad struct {
			Ch chan int `env:"APP_CH"`
		}
		assert.Error(t, NewRegistry().RegisterStruct(Bad{}))
	})

	t.Run("Not A Struct", func(t *testing.T) {
		assert.Error(t, NewRegistry().RegisterStruct(42))
		var nilPtr *Options
		assert.Error(t, NewRegistry().RegisterStruct(nilPtr))
	})
}
