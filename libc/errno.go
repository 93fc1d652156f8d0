package libc

import (
	"context"
	"sync"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/errors"
	"github.com/wippyai/so-runtime/hostcall"
)

var (
	errOverflow     = errors.New(errors.PhaseShim, errors.KindInvalidInput).Detail("allocation size overflows").Build()
	errUnknownBlock = errors.New(errors.PhaseShim, errors.KindInvalidInput).Detail("pointer was not allocated by malloc").Build()
)

// Errno holds one errno cell per foreign thread.
// It is safe for concurrent use.
type Errno struct {
	cells map[uint32]uint32
	mu    sync.Mutex
}

// NewErrno creates an empty errno store.
func NewErrno() *Errno {
	return &Errno{cells: make(map[uint32]uint32)}
}

// Cell returns the address of the calling thread's errno, allocating it on
// first use.
func (e *Errno) Cell(ctx context.Context, mem soruntime.Space) (uint32, error) {
	tid := hostcall.ThreadID(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.cells[tid]; ok {
		return p, nil
	}
	p, err := mem.Alloc(4, 4)
	if err != nil {
		return 0, err
	}
	if err := mem.WriteU32(p, 0); err != nil {
		return 0, err
	}
	e.cells[tid] = p
	return p, nil
}

// SetErrno stores v in the calling thread's errno.
func (e *Errno) SetErrno(ctx context.Context, mem soruntime.Space, v int32) {
	if p, err := e.Cell(ctx, mem); err == nil {
		_ = mem.WriteU32(p, uint32(v))
	}
}

// Get returns the calling thread's errno.
func (e *Errno) Get(ctx context.Context, mem soruntime.Space) int32 {
	p, err := e.Cell(ctx, mem)
	if err != nil {
		return 0
	}
	v, _ := mem.ReadU32(p)
	return int32(v)
}
