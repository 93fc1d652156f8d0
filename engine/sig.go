package engine

import (
	"fmt"
	"strings"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/so-runtime/engine/internal/wasmbin"
)

// sigType maps a signature string, result letter first, to a wasm type.
func sigType(sig string) (wasmbin.FuncType, error) {
	var t wasmbin.FuncType
	if sig == "" {
		return t, fmt.Errorf("empty signature")
	}
	for i, c := range sig {
		var vt api.ValueType
		switch c {
		case 'v':
			if i != 0 {
				return t, fmt.Errorf("signature %q: void parameter", sig)
			}
			continue
		case 'i':
			vt = api.ValueTypeI32
		case 'j':
			vt = api.ValueTypeI64
		case 'f':
			vt = api.ValueTypeF32
		case 'd':
			vt = api.ValueTypeF64
		default:
			return t, fmt.Errorf("signature %q: unknown type %q", sig, c)
		}
		if i == 0 {
			t.Results = []api.ValueType{vt}
		} else {
			t.Params = append(t.Params, vt)
		}
	}
	return t, nil
}

// sigOf is the inverse of sigType. Multi-value results are not supported by
// the host call convention and yield "".
func sigOf(params, results []api.ValueType) string {
	if len(results) > 1 {
		return ""
	}
	var b strings.Builder
	if len(results) == 0 {
		b.WriteByte('v')
	} else {
		b.WriteByte(letter(results[0]))
	}
	for _, p := range params {
		b.WriteByte(letter(p))
	}
	return b.String()
}

func letter(t api.ValueType) byte {
	switch t {
	case api.ValueTypeI64:
		return 'j'
	case api.ValueTypeF32:
		return 'f'
	case api.ValueTypeF64:
		return 'd'
	default:
		return 'i'
	}
}
