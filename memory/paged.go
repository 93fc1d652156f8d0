package memory

import (
	"sort"
	"sync"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/errors"
)

const (
	// PageSize is the granularity of backing storage.
	PageSize  = 1 << 16
	pageShift = 16

	minAlign = 8
)

// Config describes the layout of a Paged space.
type Config struct {
	// HeapBase and HeapLimit bound the allocator window [HeapBase, HeapLimit).
	HeapBase  uint32
	HeapLimit uint32
}

// DefaultConfig leaves the low 256 MiB and everything from 0x80000000 up for
// image mappings and host windows.
func DefaultConfig() Config {
	return Config{
		HeapBase:  0x10000000,
		HeapLimit: 0x80000000,
	}
}

type window struct {
	base uint32
	end  uint64 // exclusive
}

// Paged implements soruntime.Space over sparse host memory.
// It is safe for concurrent use.
type Paged struct {
	pages   map[uint32][]byte
	windows []window
	heap    *Arena
	cfg     Config
	mu      sync.RWMutex
}

var _ soruntime.Space = (*Paged)(nil)
var _ soruntime.MemorySizer = (*Paged)(nil)

// NewPaged creates a space whose heap window is already mapped.
func NewPaged(cfg Config) *Paged {
	if cfg.HeapBase == 0 {
		// address 0 must never be handed out
		cfg.HeapBase = minAlign
	}
	p := &Paged{
		pages: make(map[uint32][]byte),
		heap:  NewArena(cfg.HeapBase, cfg.HeapLimit),
		cfg:   cfg,
	}
	if cfg.HeapLimit > cfg.HeapBase {
		p.windows = append(p.windows, window{base: cfg.HeapBase, end: uint64(cfg.HeapLimit)})
	}
	return p
}

// Map makes [base, base+size) addressable. Overlapping an existing window is
// allowed; the regions simply merge for bounds checks.
func (p *Paged) Map(base, size uint32) error {
	if size == 0 {
		return errors.New(errors.PhaseLoad, errors.KindInvalidInput).
			Address(base).Detail("zero-sized mapping").Build()
	}
	end := uint64(base) + uint64(size)
	if end > 1<<32 {
		return errors.OutOfBounds(errors.PhaseLoad, base, size)
	}
	p.mu.Lock()
	p.windows = append(p.windows, window{base: base, end: end})
	sort.Slice(p.windows, func(i, j int) bool { return p.windows[i].base < p.windows[j].base })
	p.mu.Unlock()
	return nil
}

// Size reports the number of addressable bytes.
func (p *Paged) Size() uint32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var total uint64
	for _, w := range p.windows {
		total += w.end - uint64(w.base)
	}
	if total > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(total)
}

// mapped reports whether [offset, offset+length) is covered by windows.
// Caller holds p.mu.
func (p *Paged) mapped(offset, length uint32) bool {
	pos := uint64(offset)
	end := pos + uint64(length)
	if length == 0 {
		end = pos + 1
	}
	for _, w := range p.windows {
		if uint64(w.base) > pos {
			return false
		}
		if w.end > pos {
			pos = w.end
		}
		if pos >= end {
			return true
		}
	}
	return false
}

func (p *Paged) page(idx uint32, create bool) []byte {
	pg := p.pages[idx]
	if pg == nil && create {
		pg = make([]byte, PageSize)
		p.pages[idx] = pg
	}
	return pg
}

// copyOut reads into dst. Caller holds p.mu.
func (p *Paged) copyOut(offset uint32, dst []byte) {
	pos := offset
	for n := 0; n < len(dst); {
		pg := p.page(pos>>pageShift, false)
		in := pos & (PageSize - 1)
		chunk := min(PageSize-int(in), len(dst)-n)
		if pg == nil {
			clear(dst[n : n+chunk])
		} else {
			copy(dst[n:n+chunk], pg[in:])
		}
		n += chunk
		pos += uint32(chunk)
	}
}

// copyIn writes src. Caller holds p.mu for writing.
func (p *Paged) copyIn(offset uint32, src []byte) {
	pos := offset
	for n := 0; n < len(src); {
		pg := p.page(pos>>pageShift, true)
		in := pos & (PageSize - 1)
		chunk := copy(pg[in:], src[n:])
		n += chunk
		pos += uint32(chunk)
	}
}

func (p *Paged) Read(offset uint32, length uint32) ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.mapped(offset, length) {
		return nil, errors.OutOfBounds(errors.PhaseRuntime, offset, length)
	}
	buf := make([]byte, length)
	p.copyOut(offset, buf)
	return buf, nil
}

func (p *Paged) Write(offset uint32, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.mapped(offset, uint32(len(data))) {
		return errors.OutOfBounds(errors.PhaseRuntime, offset, uint32(len(data)))
	}
	p.copyIn(offset, data)
	return nil
}

func (p *Paged) readN(offset uint32, n int) (uint64, error) {
	var buf [8]byte
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.mapped(offset, uint32(n)) {
		return 0, errors.OutOfBounds(errors.PhaseRuntime, offset, uint32(n))
	}
	p.copyOut(offset, buf[:n])
	var v uint64
	for i := n - 1; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v, nil
}

func (p *Paged) writeN(offset uint32, n int, v uint64) error {
	var buf [8]byte
	for i := 0; i < n; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	return p.Write(offset, buf[:n])
}

func (p *Paged) ReadU8(offset uint32) (uint8, error) {
	v, err := p.readN(offset, 1)
	return uint8(v), err
}

func (p *Paged) ReadU16(offset uint32) (uint16, error) {
	v, err := p.readN(offset, 2)
	return uint16(v), err
}

func (p *Paged) ReadU32(offset uint32) (uint32, error) {
	v, err := p.readN(offset, 4)
	return uint32(v), err
}

func (p *Paged) ReadU64(offset uint32) (uint64, error) {
	return p.readN(offset, 8)
}

func (p *Paged) WriteU8(offset uint32, value uint8) error {
	return p.writeN(offset, 1, uint64(value))
}

func (p *Paged) WriteU16(offset uint32, value uint16) error {
	return p.writeN(offset, 2, uint64(value))
}

func (p *Paged) WriteU32(offset uint32, value uint32) error {
	return p.writeN(offset, 4, uint64(value))
}

func (p *Paged) WriteU64(offset uint32, value uint64) error {
	return p.writeN(offset, 8, value)
}

// CompareAndSwapU32 atomically replaces the word at offset with new if it
// currently holds old.
func (p *Paged) CompareAndSwapU32(offset, old, new uint32) (bool, error) {
	var buf [4]byte
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.mapped(offset, 4) {
		return false, errors.OutOfBounds(errors.PhaseRuntime, offset, 4)
	}
	p.copyOut(offset, buf[:])
	cur := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	if cur != old {
		return false, nil
	}
	buf = [4]byte{byte(new), byte(new >> 8), byte(new >> 16), byte(new >> 24)}
	p.copyIn(offset, buf[:])
	return true, nil
}

// Alloc returns a block of at least size bytes from the heap window using
// first fit. Memory is not cleared.
func (p *Paged) Alloc(size, align uint32) (uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.heap.Alloc(size, align)
}

// Free releases a block returned by Alloc. The size argument is ignored in
// favour of the recorded block size; unknown pointers are ignored.
func (p *Paged) Free(ptr, _, _ uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.heap.Free(ptr)
}

// BlockSize returns the recorded size of a live allocation.
func (p *Paged) BlockSize(ptr uint32) (uint32, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.heap.BlockSize(ptr)
}

// Live reports the number of live allocations.
func (p *Paged) Live() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.heap.Live()
}
