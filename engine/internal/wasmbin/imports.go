package wasmbin

import (
	"github.com/tetratelabs/wazero/api"
)

// Import is one entry of the import section.
type Import struct {
	Module string
	Name   string
	// Type is the type index for functions.
	Type uint32
	// Min and Max are the limits of tables and memories.
	Min, Max uint32
	HasMax   bool
	// Global describes global imports.
	Global  api.ValueType
	Mutable bool
	Kind    byte
}

// ParseImports returns the import section entries in order.
func ParseImports(wasm []byte) ([]Import, error) {
	sections, err := Sections(wasm)
	if err != nil {
		return nil, err
	}
	for _, s := range sections {
		if s.ID == SectionImport {
			imports, _, err := readImports(s.Data)
			return imports, err
		}
	}
	return nil, nil
}

// readImports decodes an import section and also returns the byte extent of
// each entry's module name so callers can rewrite it.
func readImports(section []byte) ([]Import, [][2]int, error) {
	r := &reader{data: section}
	count := r.u32()
	var out []Import
	var spans [][2]int
	for i := uint32(0); i < count && r.err == nil; i++ {
		start := r.pos
		imp := Import{Module: r.name()}
		spans = append(spans, [2]int{start, r.pos})
		imp.Name = r.name()
		imp.Kind = r.byte()
		switch imp.Kind {
		case KindFunc:
			imp.Type = r.u32()
		case KindTable:
			r.byte() // element type
			flag, lo, hi := r.limits()
			imp.Min, imp.Max, imp.HasMax = lo, hi, flag&0x01 != 0
		case KindMemory:
			flag, lo, hi := r.limits()
			imp.Min, imp.Max, imp.HasMax = lo, hi, flag&0x01 != 0
		case KindGlobal:
			imp.Global = ParseValType(r.byte())
			imp.Mutable = r.byte() == 0x01
		}
		out = append(out, imp)
	}
	return out, spans, r.err
}

// RenameImportModules rewrites the module name of every import through
// rename. The original bytes are returned when nothing changes.
func RenameImportModules(wasm []byte, rename func(module string) string) ([]byte, error) {
	sections, err := Sections(wasm)
	if err != nil {
		return nil, err
	}
	changed := false
	for i, s := range sections {
		if s.ID != SectionImport {
			continue
		}
		imports, spans, err := readImports(s.Data)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, len(s.Data)+16*len(imports))
		prev := 0
		for j, imp := range imports {
			to := rename(imp.Module)
			if to == imp.Module {
				continue
			}
			changed = true
			out = append(out, s.Data[prev:spans[j][0]]...)
			out = appendName(out, to)
			prev = spans[j][1]
		}
		out = append(out, s.Data[prev:]...)
		sections[i].Data = out
	}
	if !changed {
		return wasm, nil
	}
	return Assemble(sections), nil
}
