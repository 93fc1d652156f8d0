package libc

import (
	"context"
	"fmt"
	"hash/crc32"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/hostcall"
	"github.com/wippyai/so-runtime/memory"
	"github.com/wippyai/so-runtime/symtab"
)

// ExitError unwinds the calling foreign thread when the module calls exit.
type ExitError struct {
	Code int32
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Bionic sysconf names.
const (
	scClkTck          = 6
	scPageSize        = 39
	scPageSizeAlt     = 40
	scNProcessorsConf = 96
	scNProcessorsOnln = 97
)

// rand48 is the 48-bit linear congruential generator behind lrand48,
// drand48 and rand.
type rand48 struct {
	mu sync.Mutex
	x  uint64
}

const (
	rand48A    = 0x5DEECE66D
	rand48C    = 0xB
	rand48Mask = 1<<48 - 1
)

func (r *rand48) seed(s uint32) {
	r.mu.Lock()
	r.x = uint64(s)<<16 | 0x330E
	r.mu.Unlock()
}

func (r *rand48) next() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.x = (rand48A*r.x + rand48C) & rand48Mask
	return r.x
}

// Lrand48 returns the next non-negative 31-bit value.
func (l *Libc) Lrand48() int32 {
	return int32(l.rand.next() >> 17)
}

// Getenv reads the emulated environment.
func (l *Libc) Getenv(name string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.env[name]
	return v, ok
}

// writeTm fills the 44-byte struct tm at p.
func writeTm(mem soruntime.Memory, p uint32, t time.Time) error {
	_, offset := t.Zone()
	fields := []int32{
		int32(t.Second()), int32(t.Minute()), int32(t.Hour()),
		int32(t.Day()), int32(t.Month()) - 1, int32(t.Year() - 1900),
		int32(t.Weekday()), int32(t.YearDay() - 1), 0, int32(offset),
	}
	for i, v := range fields {
		if err := mem.WriteU32(p+uint32(4*i), uint32(v)); err != nil {
			return err
		}
	}
	return mem.WriteU32(p+40, 0)
}

func readTm(mem soruntime.Memory, p uint32) (time.Time, error) {
	var f [6]int32
	for i := range f {
		v, err := mem.ReadU32(p + uint32(4*i))
		if err != nil {
			return time.Time{}, err
		}
		f[i] = int32(v)
	}
	return time.Date(int(f[5])+1900, time.Month(f[4]+1), int(f[3]), int(f[2]), int(f[1]), int(f[0]), 0, time.UTC), nil
}

// Strftime renders the conversions strftime supports: %Y %y %m %d %e %H %M
// %S %j %a %A %b %B %p %F %T %%. Others are copied through.
func Strftime(layout string, t time.Time) string {
	var out strings.Builder
	for i := 0; i < len(layout); i++ {
		if layout[i] != '%' || i+1 == len(layout) {
			out.WriteByte(layout[i])
			continue
		}
		i++
		switch layout[i] {
		case 'Y':
			fmt.Fprintf(&out, "%d", t.Year())
		case 'y':
			fmt.Fprintf(&out, "%02d", t.Year()%100)
		case 'm':
			fmt.Fprintf(&out, "%02d", int(t.Month()))
		case 'd':
			fmt.Fprintf(&out, "%02d", t.Day())
		case 'e':
			fmt.Fprintf(&out, "%2d", t.Day())
		case 'H':
			fmt.Fprintf(&out, "%02d", t.Hour())
		case 'M':
			fmt.Fprintf(&out, "%02d", t.Minute())
		case 'S':
			fmt.Fprintf(&out, "%02d", t.Second())
		case 'j':
			fmt.Fprintf(&out, "%03d", t.YearDay())
		case 'a':
			out.WriteString(t.Format("Mon"))
		case 'A':
			out.WriteString(t.Format("Monday"))
		case 'b', 'h':
			out.WriteString(t.Format("Jan"))
		case 'B':
			out.WriteString(t.Format("January"))
		case 'p':
			out.WriteString(t.Format("PM"))
		case 'F':
			out.WriteString(t.Format("2006-01-02"))
		case 'T':
			out.WriteString(t.Format("15:04:05"))
		case '%':
			out.WriteByte('%')
		default:
			out.WriteByte('%')
			out.WriteByte(layout[i])
		}
	}
	return out.String()
}

func (l *Libc) compare(ctx context.Context, mem soruntime.Space, cmp, a, b uint32) int32 {
	stack := []uint64{uint64(a), uint64(b)}
	must("qsort", l.reg.Call(ctx, mem, cmp, "iii", stack))
	return int32(uint32(stack[0]))
}

// Qsort sorts n elements of size bytes at base with the foreign comparator
// cmp. Elements stay in place while comparing and are written back once.
func (l *Libc) Qsort(ctx context.Context, mem soruntime.Space, base, n, size, cmp uint32) error {
	if n < 2 || size == 0 {
		return nil
	}
	data, err := mem.Read(base, n*size)
	if err != nil {
		return err
	}
	data = append([]byte(nil), data...)
	perm := make([]uint32, n)
	for i := range perm {
		perm[i] = uint32(i)
	}
	sort.SliceStable(perm, func(i, j int) bool {
		return l.compare(ctx, mem, cmp, base+perm[i]*size, base+perm[j]*size) < 0
	})
	out := make([]byte, 0, len(data))
	for _, idx := range perm {
		out = append(out, data[idx*size:(idx+1)*size]...)
	}
	return mem.Write(base, out)
}

func (l *Libc) registerProcess(b *symtab.Builder) {
	b.Func("abort", "v", func(_ context.Context, _ soruntime.Space, _ []uint64) {
		abort("abort", "module called abort")
	})
	exit := func(_ context.Context, _ soruntime.Space, st []uint64) {
		hostcall.Raise(&ExitError{Code: argI(st, 0)})
	}
	b.Func("exit", "vi", exit)
	b.Func("_exit", "vi", exit)
	b.Func("getpid", "i", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, l.opts.Pid)
	})

	b.Func("getenv", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		name := cstr("getenv", mem, arg(st, 0))
		v, ok := l.Getenv(name)
		if !ok {
			retU(st, 0)
			return
		}
		retU(st, l.static(mem, "env:"+name+"="+v, v))
	})
	b.Func("setenv", "iiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		name := cstr("setenv", mem, arg(st, 0))
		if name == "" || strings.ContainsRune(name, '=') {
			l.setErrno(ctx, mem, soruntime.EINVAL)
			ret(st, -1)
			return
		}
		value := cstr("setenv", mem, arg(st, 1))
		l.mu.Lock()
		if _, exists := l.env[name]; !exists || arg(st, 2) != 0 {
			l.env[name] = value
		}
		l.mu.Unlock()
		ret(st, 0)
	})
	b.Func("unsetenv", "ii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		name := cstr("unsetenv", mem, arg(st, 0))
		l.mu.Lock()
		delete(l.env, name)
		l.mu.Unlock()
		ret(st, 0)
	})
	b.Func("sysconf", "ii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		switch argI(st, 0) {
		case scPageSize, scPageSizeAlt:
			ret(st, 4096)
		case scNProcessorsConf, scNProcessorsOnln:
			ret(st, int32(runtime.NumCPU()))
		case scClkTck:
			ret(st, 100)
		default:
			l.setErrno(ctx, mem, soruntime.EINVAL)
			ret(st, -1)
		}
	})

	b.Func("lrand48", "i", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, l.Lrand48())
	})
	b.Func("drand48", "d", func(_ context.Context, _ soruntime.Space, st []uint64) {
		retF64(st, float64(l.rand.next())/float64(uint64(1)<<48))
	})
	b.Func("srand48", "vi", func(_ context.Context, _ soruntime.Space, st []uint64) {
		l.rand.seed(arg(st, 0))
	})
	b.Alias("rand", "lrand48")
	b.Alias("random", "lrand48")
	b.Alias("srand", "srand48")
	b.Alias("srandom", "srand48")

	b.Func("qsort", "viiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		must("qsort", l.Qsort(ctx, mem, arg(st, 0), arg(st, 1), arg(st, 2), arg(st, 3)))
	})
	b.Func("bsearch", "iiiiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		key, base, n, size, cmp := arg(st, 0), arg(st, 1), arg(st, 2), arg(st, 3), arg(st, 4)
		lo, hi := uint32(0), n
		for lo < hi {
			mid := lo + (hi-lo)/2
			elem := base + mid*size
			switch c := l.compare(ctx, mem, cmp, key, elem); {
			case c == 0:
				retU(st, elem)
				return
			case c < 0:
				hi = mid
			default:
				lo = mid + 1
			}
		}
		retU(st, 0)
	})

	b.Func("setlocale", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		retU(st, l.static(mem, "locale", "C"))
	})
	b.Func("gmtime_r", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		t, err := mem.ReadU32(arg(st, 0))
		must("gmtime_r", err)
		must("gmtime_r", writeTm(mem, arg(st, 1), time.Unix(int64(int32(t)), 0).UTC()))
		retU(st, arg(st, 1))
	})
	b.Func("localtime_r", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		t, err := mem.ReadU32(arg(st, 0))
		must("localtime_r", err)
		must("localtime_r", writeTm(mem, arg(st, 1), time.Unix(int64(int32(t)), 0).Local()))
		retU(st, arg(st, 1))
	})
	b.Func("strftime", "iiiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		t, err := readTm(mem, arg(st, 3))
		must("strftime", err)
		s := Strftime(cstr("strftime", mem, arg(st, 2)), t)
		if uint32(len(s)) >= arg(st, 1) {
			retU(st, 0)
			return
		}
		must("strftime", memory.WriteCString(mem, arg(st, 0), s))
		retU(st, uint32(len(s)))
	})

	b.Func("crc32", "iiii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		if arg(st, 1) == 0 {
			retU(st, 0)
			return
		}
		retU(st, crc32.Update(arg(st, 0), crc32.IEEETable, read("crc32", mem, arg(st, 1), arg(st, 2))))
	})
	Logger().Debug("process routines registered", zap.Int32("pid", l.opts.Pid))
}
