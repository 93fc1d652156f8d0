package jni

import "github.com/tetratelabs/wazero/api"

// ReturnKind is the result type of a typed call or field read.
type ReturnKind uint8

const (
	ReturnVoid ReturnKind = iota
	ReturnObject
	ReturnBoolean
	ReturnInt
	ReturnLong
	ReturnFloat
)

type callKey struct {
	method MethodID
	static bool
	ret    ReturnKind
}

type fieldKey struct {
	field  FieldID
	static bool
	ret    ReturnKind
}

// Responses are raw result bits: pointers and ints as uint32, floats as
// their IEEE bits. Zero is the default of every return kind.
type response func() uint64

type dispatchTable struct {
	calls  map[callKey]response
	fields map[fieldKey]response
}

func newDispatchTable(d DeviceInfo, strings map[FieldID]uint32) *dispatchTable {
	t := &dispatchTable{
		calls: map[callKey]response{
			{MethodGetScreenHeightPixel, true, ReturnInt}: func() uint64 {
				return uint64(d.ScreenHeight)
			},
			{MethodGetScreenHeightInch, true, ReturnFloat}: func() uint64 {
				return api.EncodeF32(d.HeightInches())
			},
		},
		fields: map[fieldKey]response{
			{FieldXDPI, false, ReturnFloat}: func() uint64 { return api.EncodeF32(d.DPI) },
			{FieldYDPI, false, ReturnFloat}: func() uint64 { return api.EncodeF32(d.DPI) },
		},
	}
	for id, addr := range strings {
		t.fields[fieldKey{id, true, ReturnObject}] = func() uint64 { return uint64(addr) }
	}
	return t
}

func (t *dispatchTable) call(method MethodID, static bool, ret ReturnKind) uint64 {
	if r, ok := t.calls[callKey{method, static, ret}]; ok {
		return r()
	}
	return 0
}

func (t *dispatchTable) field(field FieldID, static bool, ret ReturnKind) uint64 {
	if r, ok := t.fields[fieldKey{field, static, ret}]; ok {
		return r()
	}
	return 0
}
