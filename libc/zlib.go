package libc

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	stderrors "errors"
	"io"
	"sync"

	"go.uber.org/zap"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/symtab"
)

// zlib return codes.
const (
	ZOK          int32 = 0
	ZStreamEnd   int32 = 1
	ZStreamError int32 = -2
	ZDataError   int32 = -3
	ZBufError    int32 = -5
)

// zlib flush modes.
const (
	ZNoFlush      = 0
	ZPartialFlush = 1
	ZSyncFlush    = 2
	ZFullFlush    = 3
	ZFinish       = 4
)

// z_stream field offsets on a 32-bit target.
const (
	zNextIn   = 0
	zAvailIn  = 4
	zTotalIn  = 8
	zNextOut  = 12
	zAvailOut = 16
	zTotalOut = 20
	zMsg      = 24
	zState    = 28

	// ZStreamSize is sizeof(z_stream).
	ZStreamSize = 56
)

var errInflateClosed = stderrors.New("inflate stream closed")

// codec turns one call's input into at most room bytes of output.
type codec interface {
	step(in []byte, flush int32, room uint32) ([]byte, int32)
	close()
}

// wrapping selects the container from a windowBits argument.
type wrapping int

const (
	wrapZlib wrapping = iota
	wrapRaw
	wrapGzip
)

func wrappingOf(windowBits int32) wrapping {
	switch {
	case windowBits < 0:
		return wrapRaw
	case windowBits > 15 && windowBits < 32:
		return wrapGzip
	}
	return wrapZlib
}

// inflater runs a pull decoder on its own goroutine. The decoder parks on
// hungry whenever it has consumed all input given so far.
type inflater struct {
	input  chan []byte
	hungry chan struct{}
	output chan []byte
	done   chan error
	quit   chan struct{}
	wrap   wrapping

	waiting  bool
	queued   []byte
	pending  []byte
	finished bool
	err      error
}

type feeder struct {
	f   *inflater
	buf []byte
}

func (r *feeder) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		select {
		case r.f.hungry <- struct{}{}:
		case <-r.f.quit:
			return 0, errInflateClosed
		}
		select {
		case r.buf = <-r.f.input:
		case <-r.f.quit:
			return 0, errInflateClosed
		}
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func newInflater(w wrapping) *inflater {
	f := &inflater{
		input:  make(chan []byte),
		hungry: make(chan struct{}),
		output: make(chan []byte),
		done:   make(chan error),
		quit:   make(chan struct{}),
		wrap:   w,
	}
	go f.run(w)
	return f
}

func (f *inflater) run(w wrapping) {
	src := &feeder{f: f}
	var r io.Reader
	var err error
	switch w {
	case wrapRaw:
		r = flate.NewReader(src)
	case wrapGzip:
		r, err = gzip.NewReader(src)
	default:
		r, err = zlib.NewReader(src)
	}
	if err == nil {
		buf := make([]byte, 32<<10)
		for err == nil {
			var n int
			n, err = r.Read(buf)
			if n > 0 {
				select {
				case f.output <- append([]byte(nil), buf[:n]...):
				case <-f.quit:
					return
				}
			}
		}
	}
	select {
	case f.done <- err:
	case <-f.quit:
	}
}

func (f *inflater) step(in []byte, _ int32, room uint32) ([]byte, int32) {
	f.queued = append(f.queued, in...)
	var out []byte
	for {
		if len(f.pending) > 0 {
			k := min(room-uint32(len(out)), uint32(len(f.pending)))
			out = append(out, f.pending[:k]...)
			f.pending = f.pending[k:]
			if len(f.pending) > 0 {
				return out, progress(in, out)
			}
		}
		if f.finished {
			if f.err == io.EOF {
				return out, ZStreamEnd
			}
			return out, ZDataError
		}
		if uint32(len(out)) == room {
			return out, progress(in, out)
		}
		if f.waiting {
			if len(f.queued) == 0 {
				return out, progress(in, out)
			}
			f.input <- f.queued
			f.queued, f.waiting = nil, false
		}
		select {
		case <-f.hungry:
			f.waiting = true
		case f.pending = <-f.output:
		case f.err = <-f.done:
			f.finished = true
		}
	}
}

func (f *inflater) close() {
	close(f.quit)
}

// flushWriter is the writer side of the flate, zlib and gzip packages.
type flushWriter interface {
	io.WriteCloser
	Flush() error
}

type deflater struct {
	w      flushWriter
	out    bytes.Buffer
	closed bool

	level, windowBits int32
}

func newDeflater(level, windowBits int32) (*deflater, error) {
	d := &deflater{level: level, windowBits: windowBits}
	var err error
	switch wrappingOf(windowBits) {
	case wrapRaw:
		d.w, err = flate.NewWriter(&d.out, int(level))
	case wrapGzip:
		d.w, err = gzip.NewWriterLevel(&d.out, int(level))
	default:
		d.w, err = zlib.NewWriterLevel(&d.out, int(level))
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (d *deflater) step(in []byte, flush int32, room uint32) ([]byte, int32) {
	if !d.closed {
		if len(in) > 0 {
			if _, err := d.w.Write(in); err != nil {
				return nil, ZStreamError
			}
		}
		var err error
		switch flush {
		case ZFinish:
			err = d.w.Close()
			d.closed = true
		case ZPartialFlush, ZSyncFlush, ZFullFlush:
			err = d.w.Flush()
		}
		if err != nil {
			return nil, ZStreamError
		}
	}
	out := append([]byte(nil), d.out.Next(int(room))...)
	if d.closed && d.out.Len() == 0 {
		return out, ZStreamEnd
	}
	if flush == ZFinish {
		return out, ZOK
	}
	return out, progress(in, out)
}

func (d *deflater) close() {}

func progress(in, out []byte) int32 {
	if len(in) == 0 && len(out) == 0 {
		return ZBufError
	}
	return ZOK
}

// zstreams maps z_stream addresses to their codecs.
type zstreams struct {
	mu sync.Mutex
	m  map[uint32]codec
}

func (z *zstreams) set(mem soruntime.Space, strm uint32, c codec) int32 {
	if strm == 0 {
		return ZStreamError
	}
	z.mu.Lock()
	if z.m == nil {
		z.m = make(map[uint32]codec)
	}
	if old, ok := z.m[strm]; ok {
		old.close()
	}
	z.m[strm] = c
	z.mu.Unlock()
	for _, off := range []uint32{zTotalIn, zTotalOut, zMsg} {
		must("zlib", mem.WriteU32(strm+off, 0))
	}
	must("zlib", mem.WriteU32(strm+zState, strm))
	return ZOK
}

func (z *zstreams) get(strm uint32) (codec, bool) {
	z.mu.Lock()
	defer z.mu.Unlock()
	c, ok := z.m[strm]
	return c, ok
}

func (z *zstreams) end(mem soruntime.Space, strm uint32) int32 {
	z.mu.Lock()
	c, ok := z.m[strm]
	delete(z.m, strm)
	z.mu.Unlock()
	if !ok {
		return ZStreamError
	}
	c.close()
	must("zlib", mem.WriteU32(strm+zState, 0))
	return ZOK
}

// zrun moves the stream's pending input through its codec and advances the
// z_stream counters and pointers.
func (l *Libc) zrun(name string, mem soruntime.Space, strm uint32, flush int32) int32 {
	c, ok := l.zlib.get(strm)
	if !ok {
		return ZStreamError
	}
	field := func(off uint32) uint32 {
		v, err := mem.ReadU32(strm + off)
		must(name, err)
		return v
	}
	nextIn, availIn, nextOut, availOut := field(zNextIn), field(zAvailIn), field(zNextOut), field(zAvailOut)
	in := read(name, mem, nextIn, availIn)
	out, rc := c.step(in, flush, availOut)
	write(name, mem, nextOut, out)

	n, k := uint32(len(in)), uint32(len(out))
	must(name, mem.WriteU32(strm+zNextIn, nextIn+n))
	must(name, mem.WriteU32(strm+zAvailIn, availIn-n))
	must(name, mem.WriteU32(strm+zTotalIn, field(zTotalIn)+n))
	must(name, mem.WriteU32(strm+zNextOut, nextOut+k))
	must(name, mem.WriteU32(strm+zAvailOut, availOut-k))
	must(name, mem.WriteU32(strm+zTotalOut, field(zTotalOut)+k))
	if rc == ZDataError {
		must(name, mem.WriteU32(strm+zMsg, l.static(mem, "zlib:data", "invalid compressed data")))
		Logger().Debug("inflate failed", zap.String("symbol", name), zap.Uint32("stream", strm))
	}
	return rc
}

func (l *Libc) registerZlib(b *symtab.Builder) {
	b.Func("inflateInit_", "iiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, l.zlib.set(mem, arg(st, 0), newInflater(wrapZlib)))
	})
	b.Func("inflateInit2_", "iiiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, l.zlib.set(mem, arg(st, 0), newInflater(wrappingOf(argI(st, 1)))))
	})
	b.Func("inflate", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, l.zrun("inflate", mem, arg(st, 0), argI(st, 1)))
	})
	b.Func("inflateEnd", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, l.zlib.end(mem, arg(st, 0)))
	})
	b.Func("inflateReset", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		strm := arg(st, 0)
		old, ok := l.zlib.get(strm)
		f, isInflate := old.(*inflater)
		if !ok || !isInflate {
			ret(st, ZStreamError)
			return
		}
		ret(st, l.zlib.set(mem, strm, newInflater(f.wrap)))
	})

	deflateInit := func(name string, mem soruntime.Space, strm uint32, level, windowBits int32) int32 {
		d, err := newDeflater(level, windowBits)
		if err != nil {
			Logger().Debug("deflate init rejected", zap.String("symbol", name), zap.Error(err))
			return ZStreamError
		}
		return l.zlib.set(mem, strm, d)
	}
	b.Func("deflateInit_", "iiiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, deflateInit("deflateInit_", mem, arg(st, 0), argI(st, 1), 15))
	})
	b.Func("deflateInit2_", "iiiiiiiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, deflateInit("deflateInit2_", mem, arg(st, 0), argI(st, 1), argI(st, 3)))
	})
	b.Func("deflate", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, l.zrun("deflate", mem, arg(st, 0), argI(st, 1)))
	})
	b.Func("deflateEnd", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, l.zlib.end(mem, arg(st, 0)))
	})
	b.Func("deflateReset", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		strm := arg(st, 0)
		old, ok := l.zlib.get(strm)
		d, isDeflate := old.(*deflater)
		if !ok || !isDeflate {
			ret(st, ZStreamError)
			return
		}
		ret(st, deflateInit("deflateReset", mem, strm, d.level, d.windowBits))
	})

	// gzip files are not supported; gzopen fails.
	b.Func("gzopen", "iii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		retU(st, 0)
	})
}
