package wasmbin

// Opcodes used by synthetic function bodies.
const (
	OpUnreachable  byte = 0x00
	OpCall         byte = 0x10
	OpCallIndirect byte = 0x11
	OpDrop         byte = 0x1a
	OpLocalGet     byte = 0x20
	OpGlobalGet    byte = 0x23
	OpGlobalSet    byte = 0x24
	OpI32Load      byte = 0x28
	OpI32Store     byte = 0x36
	OpI32Const     byte = 0x41
	OpI32Add       byte = 0x6a
)

// LocalGet pushes local i.
func LocalGet(i uint32) []byte {
	return append([]byte{OpLocalGet}, EncodeULEB128(i)...)
}

// GlobalGet pushes global i.
func GlobalGet(i uint32) []byte {
	return append([]byte{OpGlobalGet}, EncodeULEB128(i)...)
}

// GlobalSet pops into global i.
func GlobalSet(i uint32) []byte {
	return append([]byte{OpGlobalSet}, EncodeULEB128(i)...)
}

// I32Const pushes v.
func I32Const(v int32) []byte {
	return append([]byte{OpI32Const}, EncodeSLEB128(v)...)
}

// Call calls function idx.
func Call(idx uint32) []byte {
	return append([]byte{OpCall}, EncodeULEB128(idx)...)
}

// CallIndirect calls through table 0 with the given type index.
func CallIndirect(typeIdx uint32) []byte {
	out := append([]byte{OpCallIndirect}, EncodeULEB128(typeIdx)...)
	return append(out, 0x00)
}

// I32Load loads a word at the address on the stack plus offset.
func I32Load(offset uint32) []byte {
	out := []byte{OpI32Load, 0x02}
	return append(out, EncodeULEB128(offset)...)
}

// I32Store stores a word at the address on the stack plus offset.
func I32Store(offset uint32) []byte {
	out := []byte{OpI32Store, 0x02}
	return append(out, EncodeULEB128(offset)...)
}

// Concat joins instruction sequences.
func Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
