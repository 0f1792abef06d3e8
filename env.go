// FILE: lixenwraith/iniconf/env.go
package iniconf

import (
	"os"
)

// DefaultEnvMaxBufSize bounds the length of an environment value.
const DefaultEnvMaxBufSize = 4096

// EnvResult is the outcome of reading an environment variable.
type EnvResult int

const (
	EnvSuccess EnvResult = iota
	EnvNotSet
	EnvBufferTooSmall
	EnvBufferTooBig
	EnvInvalidName
)

func (r EnvResult) String() string {
	switch r {
	case EnvSuccess:
		return "success"
	case EnvNotSet:
		return "not set"
	case EnvBufferTooSmall:
		return "buffer too small"
	case EnvBufferTooBig:
		return "buffer too big"
	case EnvInvalidName:
		return "invalid name"
	}
	return "unknown"
}

// EnvBuffer is bounded scratch space holding one staged environment value.
type EnvBuffer struct {
	buf []byte
	n   int
}

// NewEnvBuffer allocates a scratch buffer of the given capacity.
func NewEnvBuffer(size int) *EnvBuffer {
	return &EnvBuffer{buf: make([]byte, size)}
}

// String copies the staged value out of the buffer.
func (b *EnvBuffer) String() string {
	return string(b.buf[:b.n])
}

// Len is the length of the staged value.
func (b *EnvBuffer) Len() int { return b.n }

// Reset clears the staged value.
func (b *EnvBuffer) Reset() { b.n = 0 }

// EnvReader reads environment variables, preferring values served by the host.
type EnvReader struct {
	host    func(name string) (string, bool)
	lookup  func(name string) (string, bool)
	maxSize int
}

// NewEnvReader creates a reader; host may be nil.
func NewEnvReader(host func(string) (string, bool), maxSize int) *EnvReader {
	if maxSize <= 0 {
		maxSize = DefaultEnvMaxBufSize
	}
	return &EnvReader{
		host:    host,
		lookup:  os.LookupEnv,
		maxSize: maxSize,
	}
}

// NewBuffer allocates a scratch buffer sized for this reader.
func (r *EnvReader) NewBuffer() *EnvBuffer {
	return NewEnvBuffer(r.maxSize)
}

// Read stages the value of name into buf. Absence is reported, not an error.
func (r *EnvReader) Read(name string, buf *EnvBuffer) EnvResult {
	buf.Reset()
	if name == "" {
		return EnvInvalidName
	}
	if len(buf.buf) > r.maxSize {
		return EnvBufferTooBig
	}

	value, ok := "", false
	if r.host != nil {
		value, ok = r.host(name)
	}
	if !ok {
		value, ok = r.lookup(name)
	}
	if !ok {
		return EnvNotSet
	}
	if len(value) > len(buf.buf) {
		return EnvBufferTooSmall
	}
	buf.n = copy(buf.buf, value)
	return EnvSuccess
}
