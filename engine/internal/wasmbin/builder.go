package wasmbin

import (
	"slices"

	"github.com/tetratelabs/wazero/api"
)

// FuncType is a function signature.
type FuncType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

func (t FuncType) equal(o FuncType) bool {
	return slices.Equal(t.Params, o.Params) && slices.Equal(t.Results, o.Results)
}

func (t FuncType) encode() []byte {
	out := []byte{0x60}
	out = append(out, EncodeULEB128(uint32(len(t.Params)))...)
	for _, p := range t.Params {
		out = append(out, ValTypeToWasm(p))
	}
	out = append(out, EncodeULEB128(uint32(len(t.Results)))...)
	for _, r := range t.Results {
		out = append(out, ValTypeToWasm(r))
	}
	return out
}

type export struct {
	name  string
	kind  byte
	index uint32
}

type localFunc struct {
	typ    uint32
	locals []api.ValueType
	body   []byte
}

type elemSegment struct {
	offset uint32
	funcs  []uint32
}

type dataSegment struct {
	offset uint32
	data   []byte
}

// Builder assembles small modules. Imports of a kind must be added before
// definitions of the same kind so that index spaces stay stable.
type Builder struct {
	types    []FuncType
	imports  []byte
	nImports int
	funcs    []localFunc
	tables   []byte
	memories []byte
	globals  []byte
	exports  []export
	elems    []elemSegment
	data     []dataSegment
	customs  []Section

	nFuncImports   uint32
	nGlobalImports uint32
	nGlobals       uint32
	nTables        uint32
	nMemories      uint32
	tableDefs      int
	memoryDefs     int
}

// NewBuilder creates an empty module builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Type returns the index of t, adding it when new.
func (b *Builder) Type(t FuncType) uint32 {
	for i, have := range b.types {
		if have.equal(t) {
			return uint32(i)
		}
	}
	b.types = append(b.types, t)
	return uint32(len(b.types) - 1)
}

func (b *Builder) addImport(module, name string, kind byte, desc []byte) {
	b.imports = appendName(b.imports, module)
	b.imports = appendName(b.imports, name)
	b.imports = append(b.imports, kind)
	b.imports = append(b.imports, desc...)
	b.nImports++
}

// ImportFunc imports a function and returns its index.
func (b *Builder) ImportFunc(module, name string, t FuncType) uint32 {
	b.addImport(module, name, KindFunc, EncodeULEB128(b.Type(t)))
	b.nFuncImports++
	return b.nFuncImports - 1
}

// ImportTable imports a funcref table with at least min entries.
func (b *Builder) ImportTable(module, name string, min uint32) {
	desc := append([]byte{funcRef, 0x00}, EncodeULEB128(min)...)
	b.addImport(module, name, KindTable, desc)
	b.nTables++
}

// ImportMemory imports a memory of at least min pages.
func (b *Builder) ImportMemory(module, name string, min uint32) {
	b.addImport(module, name, KindMemory, append([]byte{0x00}, EncodeULEB128(min)...))
	b.nMemories++
}

// ImportGlobal imports a global and returns its index.
func (b *Builder) ImportGlobal(module, name string, t api.ValueType, mutable bool) uint32 {
	b.addImport(module, name, KindGlobal, []byte{ValTypeToWasm(t), mutByte(mutable)})
	b.nGlobalImports++
	return b.nGlobalImports - 1
}

// Func defines a function. The body excludes local declarations and the
// final end opcode.
func (b *Builder) Func(t FuncType, locals []api.ValueType, body []byte) uint32 {
	b.funcs = append(b.funcs, localFunc{typ: b.Type(t), locals: locals, body: body})
	return b.nFuncImports + uint32(len(b.funcs)-1)
}

// Table defines a funcref table with fixed size.
func (b *Builder) Table(size uint32) uint32 {
	b.tables = append(b.tables, funcRef, 0x01)
	b.tables = append(b.tables, EncodeULEB128(size)...)
	b.tables = append(b.tables, EncodeULEB128(size)...)
	b.nTables++
	b.tableDefs++
	return b.nTables - 1
}

// Memory defines a memory with min pages and, when max is nonzero, a maximum.
func (b *Builder) Memory(min, max uint32) uint32 {
	if max == 0 {
		b.memories = append(b.memories, 0x00)
		b.memories = append(b.memories, EncodeULEB128(min)...)
	} else {
		b.memories = append(b.memories, 0x01)
		b.memories = append(b.memories, EncodeULEB128(min)...)
		b.memories = append(b.memories, EncodeULEB128(max)...)
	}
	b.nMemories++
	b.memoryDefs++
	return b.nMemories - 1
}

// Global defines an integer global initialized to init.
func (b *Builder) Global(t api.ValueType, mutable bool, init int64) uint32 {
	b.globals = append(b.globals, ValTypeToWasm(t), mutByte(mutable))
	switch t {
	case api.ValueTypeI64:
		b.globals = append(b.globals, 0x42)
		b.globals = append(b.globals, EncodeSLEB128(init)...)
	case api.ValueTypeF32:
		b.globals = append(b.globals, 0x43, 0, 0, 0, 0)
	case api.ValueTypeF64:
		b.globals = append(b.globals, 0x44, 0, 0, 0, 0, 0, 0, 0, 0)
	default:
		b.globals = append(b.globals, 0x41)
		b.globals = append(b.globals, EncodeSLEB128(int32(init))...)
	}
	b.globals = append(b.globals, 0x0b)
	b.nGlobals++
	return b.nGlobalImports + b.nGlobals - 1
}

// Export exports the item of kind at index under name.
func (b *Builder) Export(name string, kind byte, index uint32) {
	b.exports = append(b.exports, export{name: name, kind: kind, index: index})
}

// Elem places funcs into table 0 starting at offset.
func (b *Builder) Elem(offset uint32, funcs ...uint32) {
	b.elems = append(b.elems, elemSegment{offset: offset, funcs: funcs})
}

// Data places bytes into memory 0 at offset.
func (b *Builder) Data(offset uint32, data []byte) {
	b.data = append(b.data, dataSegment{offset: offset, data: data})
}

// Custom appends a custom section.
func (b *Builder) Custom(s Section) {
	b.customs = append(b.customs, s)
}

// Bytes returns the encoded module.
func (b *Builder) Bytes() []byte {
	var sections []Section
	sections = append(sections, b.customs...)
	add := func(id byte, n int, body []byte) {
		if n > 0 {
			sections = append(sections, Section{ID: id, Data: appendVec(nil, n, body)})
		}
	}

	var types []byte
	for _, t := range b.types {
		types = append(types, t.encode()...)
	}
	add(SectionType, len(b.types), types)
	add(SectionImport, b.nImports, b.imports)

	var funcs []byte
	for _, f := range b.funcs {
		funcs = append(funcs, EncodeULEB128(f.typ)...)
	}
	add(SectionFunction, len(b.funcs), funcs)
	add(SectionTable, b.tableDefs, b.tables)
	add(SectionMemory, b.memoryDefs, b.memories)
	add(SectionGlobal, int(b.nGlobals), b.globals)

	var exports []byte
	for _, e := range b.exports {
		exports = appendName(exports, e.name)
		exports = append(exports, e.kind)
		exports = append(exports, EncodeULEB128(e.index)...)
	}
	add(SectionExport, len(b.exports), exports)

	var elems []byte
	for _, e := range b.elems {
		elems = append(elems, 0x00)
		elems = append(elems, I32Const(int32(e.offset))...)
		elems = append(elems, 0x0b)
		elems = append(elems, EncodeULEB128(uint32(len(e.funcs)))...)
		for _, f := range e.funcs {
			elems = append(elems, EncodeULEB128(f)...)
		}
	}
	add(SectionElement, len(b.elems), elems)

	var code []byte
	for _, f := range b.funcs {
		body := encodeLocals(f.locals)
		body = append(body, f.body...)
		body = append(body, 0x0b)
		code = appendVec(code, len(body), body)
	}
	add(SectionCode, len(b.funcs), code)

	var data []byte
	for _, d := range b.data {
		data = append(data, 0x00)
		data = append(data, I32Const(int32(d.offset))...)
		data = append(data, 0x0b)
		data = appendVec(data, len(d.data), d.data)
	}
	add(SectionData, len(b.data), data)

	return Assemble(sections)
}

func encodeLocals(locals []api.ValueType) []byte {
	if len(locals) == 0 {
		return []byte{0x00}
	}
	out := EncodeULEB128(uint32(len(locals)))
	for _, l := range locals {
		out = append(out, 0x01, ValTypeToWasm(l))
	}
	return out
}

func mutByte(mutable bool) byte {
	if mutable {
		return 0x01
	}
	return 0x00
}
