package wasmbin

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated reports input that ends in the middle of a construct.
	ErrTruncated = errors.New("wasmbin: truncated input")
	// ErrNotWasm reports input without the wasm magic and version.
	ErrNotWasm = errors.New("wasmbin: not a wasm binary")
)

var header = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

// reader walks a byte slice, remembering the first error.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) done() bool {
	return r.err != nil || r.pos >= len(r.data)
}

func (r *reader) byte() byte {
	if r.err != nil {
		return 0
	}
	if r.pos >= len(r.data) {
		r.fail(ErrTruncated)
		return 0
	}
	b := r.data[r.pos]
	r.pos++
	return b
}

func (r *reader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	v, n := DecodeULEB128(r.data[r.pos:])
	if n == 0 {
		r.fail(ErrTruncated)
		return 0
	}
	r.pos += n
	return v
}

func (r *reader) bytes(n uint32) []byte {
	if r.err != nil {
		return nil
	}
	if uint64(r.pos)+uint64(n) > uint64(len(r.data)) {
		r.fail(ErrTruncated)
		return nil
	}
	b := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b
}

func (r *reader) name() string {
	return string(r.bytes(r.u32()))
}

// limits reads a limits pair and returns the flag byte with it.
func (r *reader) limits() (flag byte, lo, hi uint32) {
	flag = r.byte()
	lo = r.u32()
	if flag&0x01 != 0 {
		hi = r.u32()
	}
	return flag, lo, hi
}

// skipConstExpr advances past an init expression up to and including end.
func (r *reader) skipConstExpr() (op byte, imm int64) {
	op = r.byte()
	switch op {
	case 0x41, 0x42:
		imm = r.sleb()
	case 0x23:
		imm = int64(r.u32())
	case 0x43:
		r.bytes(4)
	case 0x44:
		r.bytes(8)
	}
	for !r.done() {
		if r.byte() == 0x0b {
			return op, imm
		}
	}
	r.fail(ErrTruncated)
	return op, imm
}

func (r *reader) sleb() int64 {
	var result int64
	var shift uint
	for {
		b := r.byte()
		if r.err != nil {
			return 0
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result
		}
		if shift >= 64 {
			r.fail(fmt.Errorf("wasmbin: sleb128 overflow at %d", r.pos))
			return 0
		}
	}
}

// Section is one top-level section of a module.
type Section struct {
	Data []byte
	ID   byte
}

// Sections splits a module into its sections.
func Sections(wasm []byte) ([]Section, error) {
	if len(wasm) < len(header) || string(wasm[:len(header)]) != string(header) {
		return nil, ErrNotWasm
	}
	r := &reader{data: wasm, pos: len(header)}
	var out []Section
	for !r.done() {
		id := r.byte()
		data := r.bytes(r.u32())
		if r.err != nil {
			break
		}
		out = append(out, Section{ID: id, Data: data})
	}
	return out, r.err
}

// Assemble concatenates sections into a module.
func Assemble(sections []Section) []byte {
	out := append([]byte(nil), header...)
	for _, s := range sections {
		out = append(out, s.ID)
		out = appendVec(out, len(s.Data), s.Data)
	}
	return out
}

// CustomName returns the name of a custom section and its payload.
func (s Section) CustomName() (string, []byte) {
	if s.ID != SectionCustom {
		return "", nil
	}
	r := &reader{data: s.Data}
	name := r.name()
	if r.err != nil {
		return "", nil
	}
	return name, s.Data[r.pos:]
}
