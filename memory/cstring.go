package memory

import (
	"bytes"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/errors"
)

// MaxCString bounds the length of strings read from foreign memory.
const MaxCString = 1 << 24

const scanChunk = 256

// ReadCString reads a NUL-terminated string starting at ptr.
func ReadCString(mem soruntime.Memory, ptr uint32) (string, error) {
	if ptr == 0 {
		return "", errors.New(errors.PhaseRuntime, errors.KindInvalidInput).
			Detail("null string pointer").Build()
	}
	var out []byte
	pos := ptr
	for len(out) < MaxCString {
		chunk, err := mem.Read(pos, scanChunk)
		if err != nil {
			// the chunk may run past the end of a mapping; fall back to bytes
			b, berr := mem.ReadU8(pos)
			if berr != nil {
				return "", berr
			}
			if b == 0 {
				return string(out), nil
			}
			out = append(out, b)
			pos++
			continue
		}
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			return string(append(out, chunk[:i]...)), nil
		}
		out = append(out, chunk...)
		pos += scanChunk
	}
	return "", errors.New(errors.PhaseRuntime, errors.KindInvalidData).
		Address(ptr).Detail("unterminated string").Build()
}

// ReadOptionalCString is ReadCString that maps a null pointer to "".
func ReadOptionalCString(mem soruntime.Memory, ptr uint32) (string, error) {
	if ptr == 0 {
		return "", nil
	}
	return ReadCString(mem, ptr)
}

// WriteCString writes s followed by a NUL byte.
func WriteCString(mem soruntime.Memory, ptr uint32, s string) error {
	buf := make([]byte, len(s)+1)
	copy(buf, s)
	return mem.Write(ptr, buf)
}

// AllocCString copies s into a fresh allocation and returns its address.
func AllocCString(space soruntime.Space, s string) (uint32, error) {
	ptr, err := space.Alloc(uint32(len(s)+1), 1)
	if err != nil {
		return 0, err
	}
	if err := WriteCString(space, ptr, s); err != nil {
		space.Free(ptr, uint32(len(s)+1), 1)
		return 0, err
	}
	return ptr, nil
}

// ReadBytes returns a copy of n bytes at ptr.
func ReadBytes(mem soruntime.Memory, ptr, n uint32) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	data, err := mem.Read(ptr, n)
	if err != nil {
		return nil, err
	}
	return bytes.Clone(data), nil
}

// Fill sets n bytes at ptr to b.
func Fill(mem soruntime.Memory, ptr uint32, b byte, n uint32) error {
	if n == 0 {
		return nil
	}
	return mem.Write(ptr, bytes.Repeat([]byte{b}, int(n)))
}
