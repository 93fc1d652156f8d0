package wasmbin

import "fmt"

// Dynamic-linking subsection types.
const (
	dylinkMemInfo    = 1
	dylinkNeeded     = 2
	dylinkExportInfo = 3
	dylinkImportInfo = 4
)

// Dylink is the dynamic-linking metadata of a side module. Alignments are
// powers of two.
type Dylink struct {
	Needed      []string
	MemorySize  uint32
	MemoryAlign uint32
	TableSize   uint32
	TableAlign  uint32
}

// ParseDylink reads the "dylink.0" custom section, or the older "dylink"
// layout. It returns nil when the module carries neither.
func ParseDylink(wasm []byte) (*Dylink, error) {
	sections, err := Sections(wasm)
	if err != nil {
		return nil, err
	}
	for _, s := range sections {
		name, payload := s.CustomName()
		switch name {
		case "dylink.0":
			return parseDylink0(payload)
		case "dylink":
			return parseDylinkLegacy(payload)
		}
	}
	return nil, nil
}

func parseDylink0(payload []byte) (*Dylink, error) {
	d := &Dylink{}
	r := &reader{data: payload}
	for !r.done() {
		typ := r.byte()
		sub := &reader{data: r.bytes(r.u32())}
		switch typ {
		case dylinkMemInfo:
			d.MemorySize = sub.u32()
			d.MemoryAlign = sub.u32()
			d.TableSize = sub.u32()
			d.TableAlign = sub.u32()
		case dylinkNeeded:
			n := sub.u32()
			for i := uint32(0); i < n && sub.err == nil; i++ {
				d.Needed = append(d.Needed, sub.name())
			}
		case dylinkExportInfo, dylinkImportInfo:
			// symbol flags are not needed for binding
		}
		if sub.err != nil {
			return nil, fmt.Errorf("dylink.0 subsection %d: %w", typ, sub.err)
		}
	}
	if r.err != nil {
		return nil, fmt.Errorf("dylink.0: %w", r.err)
	}
	return d, nil
}

func parseDylinkLegacy(payload []byte) (*Dylink, error) {
	r := &reader{data: payload}
	d := &Dylink{
		MemorySize:  r.u32(),
		MemoryAlign: r.u32(),
		TableSize:   r.u32(),
		TableAlign:  r.u32(),
	}
	n := r.u32()
	for i := uint32(0); i < n && r.err == nil; i++ {
		d.Needed = append(d.Needed, r.name())
	}
	if r.err != nil {
		return nil, fmt.Errorf("dylink: %w", r.err)
	}
	return d, nil
}

// DylinkSection encodes d as a "dylink.0" custom section.
func DylinkSection(d Dylink) Section {
	var mem []byte
	mem = append(mem, EncodeULEB128(d.MemorySize)...)
	mem = append(mem, EncodeULEB128(d.MemoryAlign)...)
	mem = append(mem, EncodeULEB128(d.TableSize)...)
	mem = append(mem, EncodeULEB128(d.TableAlign)...)

	payload := appendName(nil, "dylink.0")
	payload = append(payload, dylinkMemInfo)
	payload = appendVec(payload, len(mem), mem)
	if len(d.Needed) > 0 {
		var needed []byte
		for _, n := range d.Needed {
			needed = appendName(needed, n)
		}
		needed = append(EncodeULEB128(uint32(len(d.Needed))), needed...)
		payload = append(payload, dylinkNeeded)
		payload = appendVec(payload, len(needed), needed)
	}
	return Section{ID: SectionCustom, Data: payload}
}
