package libc

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/hostcall"
	"github.com/wippyai/so-runtime/memory"
	"github.com/wippyai/so-runtime/symtab"
)

// StackGuard is the value of __stack_chk_guard.
const StackGuard uint32 = 0x42424242

// Files writes to foreign FILE streams. The vfs package implements it.
type Files interface {
	Fputs(ctx context.Context, mem soruntime.Space, s string, file uint32) int32
}

// Options configures a Libc.
type Options struct {
	// Stdout receives printf, puts and putchar output.
	Stdout io.Writer
	// Files receives fprintf and vfprintf output. When nil those write to Stdout.
	Files Files
	// Env seeds getenv.
	Env map[string]string
	// Pid is returned by getpid.
	Pid int32
	// Errno is the errno store, shared with other shims that set errno.
	// New allocates one when nil.
	Errno *Errno
}

// DefaultOptions returns the options used by New when none are given.
func DefaultOptions() Options {
	return Options{Stdout: os.Stdout, Pid: 1000}
}

// WithStdout sets the standard output writer.
func (o Options) WithStdout(w io.Writer) Options {
	o.Stdout = w
	return o
}

// WithFiles sets the FILE stream writer.
func (o Options) WithFiles(f Files) Options {
	o.Files = f
	return o
}

// WithErrno sets the errno store.
func (o Options) WithErrno(e *Errno) Options {
	o.Errno = e
	return o
}

// WithEnv sets the initial environment.
func (o Options) WithEnv(env map[string]string) Options {
	o.Env = env
	return o
}

// Libc holds the state behind the C library surface: the heap, errno cells,
// environment, exit handlers and cached strings handed to foreign code.
// It is safe for concurrent use.
type Libc struct {
	reg     *hostcall.Registry
	heap    *Heap
	errno   *Errno
	opts    Options
	env     map[string]string
	statics map[string]uint32
	atexit  []exitHandler
	guards  sync.Map // guard address -> chan struct{}
	zlib    zstreams
	rand    rand48
	outMu   sync.Mutex
	mu      sync.Mutex
}

// New creates a C library whose callbacks into foreign code go through reg.
func New(reg *hostcall.Registry, opts ...Options) *Libc {
	o := DefaultOptions()
	if len(opts) > 0 {
		o = opts[0]
		if o.Stdout == nil {
			o.Stdout = os.Stdout
		}
	}
	env := make(map[string]string, len(o.Env))
	for k, v := range o.Env {
		env[k] = v
	}
	errno := o.Errno
	if errno == nil {
		errno = NewErrno()
	}
	l := &Libc{
		reg:     reg,
		heap:    NewHeap(),
		errno:   errno,
		opts:    o,
		env:     env,
		statics: make(map[string]uint32),
	}
	l.rand.seed(0)
	return l
}

// Heap returns the malloc heap.
func (l *Libc) Heap() *Heap {
	return l.heap
}

// Errno returns the per-thread errno store. It satisfies vfs.ErrnoSink.
func (l *Libc) Errno() *Errno {
	return l.errno
}

// static returns a stable foreign copy of s, allocating it once per key.
func (l *Libc) static(mem soruntime.Space, key, s string) uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.statics[key]; ok {
		return p
	}
	p, err := memory.AllocCString(mem, s)
	if err != nil {
		fault(key, err)
	}
	l.statics[key] = p
	return p
}

var errorStrings = map[int32]string{
	0:                   "Success",
	soruntime.EPERM:     "Operation not permitted",
	soruntime.ENOENT:    "No such file or directory",
	soruntime.ESRCH:     "No such process",
	soruntime.EINTR:     "Interrupted system call",
	soruntime.EIO:       "I/O error",
	soruntime.EBADF:     "Bad file descriptor",
	soruntime.EAGAIN:    "Try again",
	soruntime.ENOMEM:    "Out of memory",
	soruntime.EACCES:    "Permission denied",
	soruntime.EFAULT:    "Bad address",
	soruntime.EBUSY:     "Device or resource busy",
	soruntime.EEXIST:    "File exists",
	soruntime.ENOTDIR:   "Not a directory",
	soruntime.EISDIR:    "Is a directory",
	soruntime.EINVAL:    "Invalid argument",
	soruntime.EMFILE:    "Too many open files",
	soruntime.ENOSPC:    "No space left on device",
	soruntime.ERANGE:    "Math result not representable",
	soruntime.EDEADLK:   "Resource deadlock would occur",
	soruntime.ENOSYS:    "Function not implemented",
	soruntime.EILSEQ:    "Illegal byte sequence",
	soruntime.ETIMEDOUT: "Connection timed out",
}

// StrError returns the message strerror reports for errno.
func StrError(errno int32) string {
	if s, ok := errorStrings[errno]; ok {
		return s
	}
	return fmt.Sprintf("Unknown error %d", errno)
}

func (l *Libc) strerror(mem soruntime.Space, errno int32) uint32 {
	return l.static(mem, fmt.Sprintf("strerror:%d", errno), StrError(errno))
}

func (l *Libc) setErrno(ctx context.Context, mem soruntime.Space, v int32) {
	l.errno.SetErrno(ctx, mem, v)
}

func (l *Libc) stdout(s string) int32 {
	l.outMu.Lock()
	defer l.outMu.Unlock()
	n, err := io.WriteString(l.opts.Stdout, s)
	if err != nil {
		Logger().Debug("stdout write failed", zap.Error(err))
		return -1
	}
	return int32(n)
}

// Register adds the C library to b. Data symbols are allocated in space.
func (l *Libc) Register(b *symtab.Builder, space soruntime.Space) error {
	guard, err := space.Alloc(4, 4)
	if err != nil {
		return err
	}
	if err := space.WriteU32(guard, StackGuard); err != nil {
		return err
	}
	b.Data("__stack_chk_guard", guard)

	if err := l.registerCtype(b, space); err != nil {
		return err
	}
	l.registerAlloc(b)
	l.registerMemory(b)
	l.registerStrings(b)
	l.registerWide(b)
	l.registerNumbers(b)
	l.registerMath(b)
	l.registerStdio(b)
	l.registerAndroid(b)
	l.registerProcess(b)
	l.registerCXXABI(b)
	l.registerZlib(b)
	l.registerMisc(b)

	b.Func("__errno", "i", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		p, err := l.errno.Cell(ctx, mem)
		must("__errno", err)
		retU(st, p)
	})
	Logger().Debug("libc registered")
	return nil
}
