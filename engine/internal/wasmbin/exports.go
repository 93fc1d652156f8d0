package wasmbin

// Export is one entry of the export section.
type Export struct {
	Name  string
	Index uint32
	Kind  byte
}

// ParseExports returns the export section entries in order.
func ParseExports(wasm []byte) ([]Export, error) {
	sections, err := Sections(wasm)
	if err != nil {
		return nil, err
	}
	for _, s := range sections {
		if s.ID != SectionExport {
			continue
		}
		r := &reader{data: s.Data}
		n := r.u32()
		out := make([]Export, 0, n)
		for i := uint32(0); i < n && r.err == nil; i++ {
			e := Export{Name: r.name()}
			e.Kind = r.byte()
			e.Index = r.u32()
			out = append(out, e)
		}
		return out, r.err
	}
	return nil, nil
}
