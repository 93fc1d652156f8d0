package vfs

import (
	"context"
	"io"
	"os"
	"sync"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/memory"
	"github.com/wippyai/so-runtime/resource"
)

// Standard descriptors.
const (
	Stdin  = 0
	Stdout = 1
	Stderr = 2
)

// Config describes the virtual filesystem.
type Config struct {
	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer
	Volumes  Volumes
	Root     string
	Marker   string
	Archives []string
}

// Options configures an FS.
type Options struct {
	Errno ErrnoSink
}

// DefaultOptions discards errno values.
func DefaultOptions() Options {
	return Options{Errno: discardErrno{}}
}

// WithErrno returns options reporting errno values to sink.
func (o Options) WithErrno(sink ErrnoSink) Options {
	o.Errno = sink
	return o
}

// FS implements the file-level libc surface over the host filesystem.
// It is safe for concurrent use.
type FS struct {
	virt    *Virtualizer
	vols    Volumes
	errno   ErrnoSink
	objects *resource.Table
	streams *resource.Typed[*stream]
	fds     *resource.Typed[*descriptor]
	files   map[uint32]resource.Handle
	maps    map[uint32]uint32
	stdio   [3]*stream
	sF      uint32
	mu      sync.Mutex
}

// New creates an FS for cfg.
func New(cfg Config, opts ...Options) *FS {
	o := DefaultOptions()
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Errno == nil {
		o.Errno = discardErrno{}
	}
	objects := resource.NewTable(Stderr)
	objects.Subscribe(resource.ObserverFunc(func(e resource.Event) {
		Logger().Debug("file object", zap.Stringer("event", e.Type),
			zap.Stringer("kind", e.Kind), zap.Uint32("handle", uint32(e.Handle)))
	}))
	fs := &FS{
		virt:    NewVirtualizer(cfg.Root, cfg.Marker, cfg.Archives...),
		vols:    cfg.Volumes,
		errno:   o.Errno,
		objects: objects,
		streams: resource.NewTyped[*stream](objects, resource.KindFile),
		fds:     resource.NewTyped[*descriptor](objects, resource.KindDescriptor),
		files:   make(map[uint32]resource.Handle),
		maps:    make(map[uint32]uint32),
	}
	fs.stdio[Stdin] = &stream{name: "stdin", r: cfg.Stdin}
	fs.stdio[Stdout] = &stream{name: "stdout", w: cfg.Stdout}
	fs.stdio[Stderr] = &stream{name: "stderr", w: cfg.Stderr}
	return fs
}

// Virtualizer returns the path virtualizer.
func (fs *FS) Virtualizer() *Virtualizer {
	return fs.virt
}

// Objects returns the table holding open streams and descriptors.
func (fs *FS) Objects() *resource.Table {
	return fs.objects
}

// Close closes every open stream and descriptor.
func (fs *FS) Close() error {
	return fs.objects.Close()
}

// hostPath virtualizes p and maps it onto the host.
func (fs *FS) hostPath(p string) (string, error) {
	return fs.vols.HostPath(fs.virt.Resolve(p))
}

func (fs *FS) fail(ctx context.Context, mem soruntime.Space, errno int32) {
	fs.errno.SetErrno(ctx, mem, errno)
}

// Install allocates the standard FILE objects and returns the address of
// the three-element array.
func (fs *FS) Install(space soruntime.Space) (uint32, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.sF != 0 {
		return fs.sF, nil
	}
	base, err := space.Alloc(3*FileSize, 8)
	if err != nil {
		return 0, err
	}
	if err := memory.Fill(space, base, 0, 3*FileSize); err != nil {
		return 0, err
	}
	for i, s := range fs.stdio {
		fs.files[base+uint32(i)*FileSize] = fs.streams.Insert(s)
	}
	fs.sF = base
	return base, nil
}

func (fs *FS) newFile(mem soruntime.Space, s *stream) (uint32, error) {
	ptr, err := mem.Alloc(FileSize, 8)
	if err != nil {
		return 0, err
	}
	if err := memory.Fill(mem, ptr, 0, FileSize); err != nil {
		mem.Free(ptr, FileSize, 8)
		return 0, err
	}
	h := fs.streams.Insert(s)
	fs.mu.Lock()
	fs.files[ptr] = h
	fs.mu.Unlock()
	return ptr, nil
}

func (fs *FS) stream(file uint32) (*stream, bool) {
	fs.mu.Lock()
	h, ok := fs.files[file]
	fs.mu.Unlock()
	if !ok {
		return nil, false
	}
	return fs.streams.Get(h)
}

func (fs *FS) isStd(file uint32) bool {
	return fs.sF != 0 && file >= fs.sF && file < fs.sF+3*FileSize
}

// Fopen opens a stream. An empty path opens the next archive.
func (fs *FS) Fopen(ctx context.Context, mem soruntime.Space, name, mode string) uint32 {
	Logger().Debug("fopen", zap.String("path", name), zap.String("mode", mode))
	vpath, ok := fs.virt.ResolveOpen(name)
	if !ok {
		fs.fail(ctx, mem, soruntime.ENOENT)
		return 0
	}
	flags, errno := parseMode(mode)
	if errno != 0 {
		fs.fail(ctx, mem, errno)
		return 0
	}
	host, err := fs.vols.HostPath(vpath)
	if err != nil {
		fs.fail(ctx, mem, errnoOf(err))
		return 0
	}
	f, err := os.OpenFile(host, flags, 0o666)
	if err != nil {
		Logger().Debug("fopen failed", zap.String("path", vpath), zap.Error(err))
		fs.fail(ctx, mem, errnoOf(err))
		return 0
	}
	ptr, err := fs.newFile(mem, fileStream(vpath, f))
	if err != nil {
		f.Close()
		fs.fail(ctx, mem, soruntime.ENOMEM)
		return 0
	}
	return ptr
}

// Fdopen wraps an open descriptor in a stream that takes ownership of it.
func (fs *FS) Fdopen(ctx context.Context, mem soruntime.Space, fd int32, mode string) uint32 {
	if _, errno := parseMode(mode); errno != 0 {
		fs.fail(ctx, mem, errno)
		return 0
	}
	if fd >= Stdin && fd <= Stderr {
		fs.mu.Lock()
		sF := fs.sF
		fs.mu.Unlock()
		if sF == 0 {
			fs.fail(ctx, mem, soruntime.EBADF)
			return 0
		}
		return sF + uint32(fd)*FileSize
	}
	d, ok := fs.fds.Get(resource.Handle(fd))
	if !ok {
		fs.fail(ctx, mem, soruntime.EBADF)
		return 0
	}
	d.owned = false
	fs.fds.Remove(resource.Handle(fd))
	ptr, err := fs.newFile(mem, fileStream(d.f.Name(), d.f))
	if err != nil {
		d.f.Close()
		fs.fail(ctx, mem, soruntime.ENOMEM)
		return 0
	}
	return ptr
}

// Fclose closes a stream and frees its FILE block.
func (fs *FS) Fclose(ctx context.Context, mem soruntime.Space, file uint32) int32 {
	fs.mu.Lock()
	h, ok := fs.files[file]
	std := fs.isStd(file)
	if ok && !std {
		delete(fs.files, file)
	}
	fs.mu.Unlock()
	if !ok {
		fs.fail(ctx, mem, soruntime.EBADF)
		return EOF
	}
	if std {
		return 0
	}
	if s, ok := fs.streams.Remove(h); ok && s.fd != 0 {
		fs.fds.Remove(s.fd)
	}
	mem.Free(file, FileSize, 8)
	return 0
}

// ioChunk bounds the host buffer fread and fwrite copy through.
const ioChunk = 64 << 10

// itemBytes returns size*n, or false when it does not fit the address space.
func itemBytes(size, n uint32) (uint32, bool) {
	total := uint64(size) * uint64(n)
	if total > uint64(^uint32(0)) {
		return 0, false
	}
	return uint32(total), true
}

// Fread reads up to n items of size bytes into buf.
func (fs *FS) Fread(ctx context.Context, mem soruntime.Space, buf, size, n, file uint32) uint32 {
	s, ok := fs.stream(file)
	if !ok {
		fs.fail(ctx, mem, soruntime.EBADF)
		return 0
	}
	total, ok := itemBytes(size, n)
	if !ok {
		fs.fail(ctx, mem, soruntime.EINVAL)
		return 0
	}
	if total == 0 {
		return 0
	}
	chunk := make([]byte, min(total, ioChunk))
	var got uint32
	s.mu.Lock()
	defer s.mu.Unlock()
	for got < total {
		want := min(total-got, uint32(len(chunk)))
		k, err := s.read(chunk[:want])
		if k > 0 {
			if werr := mem.Write(buf+got, chunk[:k]); werr != nil {
				fs.fail(ctx, mem, soruntime.EFAULT)
				return got / size
			}
			got += uint32(k)
		}
		if err != nil {
			fs.fail(ctx, mem, errnoOf(err))
			break
		}
		if uint32(k) < want {
			break
		}
	}
	return got / size
}

// Fwrite writes n items of size bytes from buf.
func (fs *FS) Fwrite(ctx context.Context, mem soruntime.Space, buf, size, n, file uint32) uint32 {
	s, ok := fs.stream(file)
	if !ok {
		fs.fail(ctx, mem, soruntime.EBADF)
		return 0
	}
	total, ok := itemBytes(size, n)
	if !ok {
		fs.fail(ctx, mem, soruntime.EINVAL)
		return 0
	}
	if total == 0 {
		return 0
	}
	var wrote uint32
	s.mu.Lock()
	defer s.mu.Unlock()
	for wrote < total {
		p, err := mem.Read(buf+wrote, min(total-wrote, ioChunk))
		if err != nil {
			fs.fail(ctx, mem, soruntime.EFAULT)
			break
		}
		k, err := s.write(p)
		wrote += uint32(k)
		if err != nil {
			fs.fail(ctx, mem, errnoOf(err))
			break
		}
		if k < len(p) {
			break
		}
	}
	return wrote / size
}

// Fseek repositions a stream.
func (fs *FS) Fseek(ctx context.Context, mem soruntime.Space, file uint32, offset int64, whence int32) int32 {
	s, ok := fs.stream(file)
	if !ok {
		fs.fail(ctx, mem, soruntime.EBADF)
		return -1
	}
	if whence < io.SeekStart || whence > io.SeekEnd {
		fs.fail(ctx, mem, soruntime.EINVAL)
		return -1
	}
	s.mu.Lock()
	_, err := s.seek(offset, int(whence))
	s.mu.Unlock()
	if err != nil {
		fs.fail(ctx, mem, errnoOf(err))
		return -1
	}
	return 0
}

// Ftell reports the stream position.
func (fs *FS) Ftell(ctx context.Context, mem soruntime.Space, file uint32) int64 {
	s, ok := fs.stream(file)
	if !ok {
		fs.fail(ctx, mem, soruntime.EBADF)
		return -1
	}
	s.mu.Lock()
	pos, err := s.tell()
	s.mu.Unlock()
	if err != nil {
		fs.fail(ctx, mem, soruntime.EINVAL)
		return -1
	}
	return pos
}

// Fflush flushes one stream, or every standard stream when file is 0.
func (fs *FS) Fflush(ctx context.Context, mem soruntime.Space, file uint32) int32 {
	if file == 0 {
		for _, s := range fs.stdio {
			_ = s.flush()
		}
		return 0
	}
	s, ok := fs.stream(file)
	if !ok {
		fs.fail(ctx, mem, soruntime.EBADF)
		return EOF
	}
	if err := s.flush(); err != nil {
		fs.fail(ctx, mem, soruntime.EIO)
		return EOF
	}
	return 0
}

// Fgets reads a line of at most n-1 bytes into buf.
func (fs *FS) Fgets(ctx context.Context, mem soruntime.Space, buf uint32, n int32, file uint32) uint32 {
	s, ok := fs.stream(file)
	if !ok {
		fs.fail(ctx, mem, soruntime.EBADF)
		return 0
	}
	if n <= 0 {
		return 0
	}
	line := make([]byte, 0, 64)
	s.mu.Lock()
	for int32(len(line)) < n-1 {
		b, ok := s.readByte()
		if !ok {
			break
		}
		line = append(line, b)
		if b == '\n' {
			break
		}
	}
	s.mu.Unlock()
	if len(line) == 0 && n > 1 {
		return 0
	}
	if err := mem.Write(buf, append(line, 0)); err != nil {
		fs.fail(ctx, mem, soruntime.EFAULT)
		return 0
	}
	return buf
}

// Fputs writes s without its terminator.
func (fs *FS) Fputs(ctx context.Context, mem soruntime.Space, str string, file uint32) int32 {
	s, ok := fs.stream(file)
	if !ok {
		fs.fail(ctx, mem, soruntime.EBADF)
		return EOF
	}
	s.mu.Lock()
	_, err := s.write([]byte(str))
	s.mu.Unlock()
	if err != nil {
		fs.fail(ctx, mem, errnoOf(err))
		return EOF
	}
	return 1
}

// Fputc writes one byte.
func (fs *FS) Fputc(ctx context.Context, mem soruntime.Space, c int32, file uint32) int32 {
	s, ok := fs.stream(file)
	if !ok {
		fs.fail(ctx, mem, soruntime.EBADF)
		return EOF
	}
	s.mu.Lock()
	_, err := s.write([]byte{byte(c)})
	s.mu.Unlock()
	if err != nil {
		fs.fail(ctx, mem, errnoOf(err))
		return EOF
	}
	return c & 0xFF
}

// Getc reads one byte.
func (fs *FS) Getc(ctx context.Context, mem soruntime.Space, file uint32) int32 {
	s, ok := fs.stream(file)
	if !ok {
		fs.fail(ctx, mem, soruntime.EBADF)
		return EOF
	}
	s.mu.Lock()
	b, ok := s.readByte()
	s.mu.Unlock()
	if !ok {
		return EOF
	}
	return int32(b)
}

// Ungetc pushes c back onto the stream.
func (fs *FS) Ungetc(ctx context.Context, mem soruntime.Space, c int32, file uint32) int32 {
	if c == EOF {
		return EOF
	}
	s, ok := fs.stream(file)
	if !ok {
		fs.fail(ctx, mem, soruntime.EBADF)
		return EOF
	}
	s.mu.Lock()
	s.unget = append([]byte{byte(c)}, s.unget...)
	s.eof = false
	s.mu.Unlock()
	return c & 0xFF
}

// Getwc reads one UTF-8 encoded character, returning EOF (WEOF) at the end
// of the stream or on an invalid sequence.
func (fs *FS) Getwc(ctx context.Context, mem soruntime.Space, file uint32) int32 {
	s, ok := fs.stream(file)
	if !ok {
		fs.fail(ctx, mem, soruntime.EBADF)
		return EOF
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var seq []byte
	for !utf8.FullRune(seq) {
		b, ok := s.readByte()
		if !ok {
			if len(seq) > 0 {
				fs.fail(ctx, mem, soruntime.EILSEQ)
			}
			return EOF
		}
		seq = append(seq, b)
	}
	r, size := utf8.DecodeRune(seq)
	if r == utf8.RuneError && size <= 1 {
		fs.fail(ctx, mem, soruntime.EILSEQ)
		return EOF
	}
	return int32(r)
}

// Putwc writes wc UTF-8 encoded.
func (fs *FS) Putwc(ctx context.Context, mem soruntime.Space, wc uint32, file uint32) int32 {
	if !utf8.ValidRune(rune(wc)) || wc > unicode.MaxRune {
		fs.fail(ctx, mem, soruntime.EILSEQ)
		return EOF
	}
	if fs.Fputs(ctx, mem, string(rune(wc)), file) == EOF {
		return EOF
	}
	return int32(wc)
}

// Ungetwc pushes the encoding of wc back onto the stream.
func (fs *FS) Ungetwc(ctx context.Context, mem soruntime.Space, wc uint32, file uint32) int32 {
	if int32(wc) == EOF || wc > unicode.MaxRune || !utf8.ValidRune(rune(wc)) {
		return EOF
	}
	s, ok := fs.stream(file)
	if !ok {
		fs.fail(ctx, mem, soruntime.EBADF)
		return EOF
	}
	s.mu.Lock()
	s.unget = append(utf8.AppendRune(nil, rune(wc)), s.unget...)
	s.eof = false
	s.mu.Unlock()
	return int32(wc)
}

// Feof reports the end-of-file indicator.
func (fs *FS) Feof(file uint32) int32 {
	s, ok := fs.stream(file)
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return boolInt(s.eof)
}

// Ferror reports the error indicator.
func (fs *FS) Ferror(file uint32) int32 {
	s, ok := fs.stream(file)
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return boolInt(s.err)
}

// Clearerr resets both indicators.
func (fs *FS) Clearerr(file uint32) {
	if s, ok := fs.stream(file); ok {
		s.mu.Lock()
		s.eof, s.err = false, false
		s.mu.Unlock()
	}
}

// Fileno returns a descriptor aliasing the stream's host file.
func (fs *FS) Fileno(ctx context.Context, mem soruntime.Space, file uint32) int32 {
	fs.mu.Lock()
	std := fs.isStd(file)
	sF := fs.sF
	fs.mu.Unlock()
	if std {
		return int32((file - sF) / FileSize)
	}
	s, ok := fs.stream(file)
	if !ok || s.f == nil {
		fs.fail(ctx, mem, soruntime.EBADF)
		return -1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd == 0 {
		s.fd = fs.fds.Insert(&descriptor{f: s.f})
	}
	return int32(s.fd)
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
