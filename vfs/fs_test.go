package vfs

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/hostcall"
	"github.com/wippyai/so-runtime/memory"
	"github.com/wippyai/so-runtime/symtab"
)

type fsFixture struct {
	fs     *FS
	space  *memory.Paged
	host   string
	stdout *bytes.Buffer
	errno  int32
}

func newFS(t *testing.T) *fsFixture {
	t.Helper()
	host := t.TempDir()
	data := filepath.Join(host, "data", "game")
	if err := os.MkdirAll(data, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, body := range map[string]string{
		"main.obb":  "MAIN",
		"patch.obb": "PATCH",
		"hello.txt": "hello\nworld\n",
	} {
		if err := os.WriteFile(filepath.Join(data, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	f := &fsFixture{
		space:  memory.NewPaged(memory.DefaultConfig()),
		host:   host,
		stdout: &bytes.Buffer{},
	}
	f.fs = New(Config{
		Root:     "ux0:data/game",
		Marker:   "ux0:",
		Archives: []string{"main.obb", "patch.obb"},
		Volumes:  Volumes{"ux0:": host},
		Stdout:   f.stdout,
		Stderr:   f.stdout,
		Stdin:    strings.NewReader("in"),
	}, DefaultOptions().WithErrno(ErrnoFunc(func(_ context.Context, _ soruntime.Space, e int32) {
		f.errno = e
	})))
	if _, err := f.fs.Install(f.space); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.fs.Close() })
	return f
}

func (f *fsFixture) buf(t *testing.T, n uint32) uint32 {
	t.Helper()
	p, err := f.space.Alloc(n, 8)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func (f *fsFixture) readAll(t *testing.T, file uint32) string {
	t.Helper()
	ctx := context.Background()
	buf := f.buf(t, 64)
	n := f.fs.Fread(ctx, f.space, buf, 1, 64, file)
	b, _ := f.space.Read(buf, n)
	return string(b)
}

func TestFS_FopenRelativeAndArchives(t *testing.T) {
	f := newFS(t)
	ctx := context.Background()

	file := f.fs.Fopen(ctx, f.space, "hello.txt", "rb")
	if file == 0 {
		t.Fatalf("fopen failed, errno %d", f.errno)
	}
	if got := f.readAll(t, file); got != "hello\nworld\n" {
		t.Fatalf("read %q", got)
	}
	if f.fs.Feof(file) != 1 {
		t.Fatal("eof not set")
	}
	if rc := f.fs.Fclose(ctx, f.space, file); rc != 0 {
		t.Fatalf("fclose = %d", rc)
	}

	for _, want := range []string{"MAIN", "PATCH"} {
		file := f.fs.Fopen(ctx, f.space, "", "rb")
		if file == 0 {
			t.Fatalf("anonymous open failed, errno %d", f.errno)
		}
		if got := f.readAll(t, file); got != want {
			t.Fatalf("archive = %q, want %q", got, want)
		}
		f.fs.Fclose(ctx, f.space, file)
	}
	if file := f.fs.Fopen(ctx, f.space, "", "rb"); file != 0 {
		t.Fatal("third anonymous open succeeded")
	}

	if file := f.fs.Fopen(ctx, f.space, "missing", "r"); file != 0 || f.errno != soruntime.ENOENT {
		t.Fatalf("missing file: file=%#x errno=%d", file, f.errno)
	}
	if file := f.fs.Fopen(ctx, f.space, "hello.txt", "q"); file != 0 || f.errno != soruntime.EINVAL {
		t.Fatalf("bad mode: file=%#x errno=%d", file, f.errno)
	}
}

func TestFS_WriteSeekTell(t *testing.T) {
	f := newFS(t)
	ctx := context.Background()

	file := f.fs.Fopen(ctx, f.space, "out.bin", "w+")
	if file == 0 {
		t.Fatalf("fopen failed, errno %d", f.errno)
	}
	data, _ := memory.AllocCString(f.space, "abcdef")
	if n := f.fs.Fwrite(ctx, f.space, data, 2, 3, file); n != 3 {
		t.Fatalf("fwrite = %d", n)
	}
	if pos := f.fs.Ftell(ctx, f.space, file); pos != 6 {
		t.Fatalf("ftell = %d", pos)
	}
	if rc := f.fs.Fseek(ctx, f.space, file, 2, 0); rc != 0 {
		t.Fatalf("fseek = %d", rc)
	}
	if c := f.fs.Getc(ctx, f.space, file); c != 'c' {
		t.Fatalf("getc = %q", c)
	}
	f.fs.Ungetc(ctx, f.space, 'Z', file)
	if pos := f.fs.Ftell(ctx, f.space, file); pos != 2 {
		t.Fatalf("ftell after ungetc = %d", pos)
	}
	if c := f.fs.Getc(ctx, f.space, file); c != 'Z' {
		t.Fatalf("getc after ungetc = %q", c)
	}
	f.fs.Fclose(ctx, f.space, file)

	got, err := os.ReadFile(filepath.Join(f.host, "data", "game", "out.bin"))
	if err != nil || string(got) != "abcdef" {
		t.Fatalf("host file = %q, %v", got, err)
	}
}

func TestFS_ItemCountOverflow(t *testing.T) {
	f := newFS(t)
	ctx := context.Background()

	file := f.fs.Fopen(ctx, f.space, "out.bin", "w+")
	if file == 0 {
		t.Fatalf("fopen failed, errno %d", f.errno)
	}
	data, _ := memory.AllocCString(f.space, "abcdef")
	// 0x10000 * 0x10001 wraps to 0x10000 in 32 bits
	if n := f.fs.Fwrite(ctx, f.space, data, 0x10000, 0x10001, file); n != 0 || f.errno != soruntime.EINVAL {
		t.Fatalf("fwrite = %d errno %d", n, f.errno)
	}
	f.errno = 0
	if n := f.fs.Fread(ctx, f.space, data, 0x10000, 0x10001, file); n != 0 || f.errno != soruntime.EINVAL {
		t.Fatalf("fread = %d errno %d", n, f.errno)
	}
	if pos := f.fs.Ftell(ctx, f.space, file); pos != 0 {
		t.Fatalf("ftell = %d", pos)
	}
}

func TestFS_ChunkedReadWrite(t *testing.T) {
	f := newFS(t)
	ctx := context.Background()

	const size = 3*ioChunk + 123
	want := make([]byte, size)
	for i := range want {
		want[i] = byte(i * 7)
	}
	src := f.buf(t, size)
	if err := f.space.Write(src, want); err != nil {
		t.Fatal(err)
	}
	file := f.fs.Fopen(ctx, f.space, "big.bin", "w+")
	if file == 0 {
		t.Fatalf("fopen failed, errno %d", f.errno)
	}
	if n := f.fs.Fwrite(ctx, f.space, src, 1, size, file); n != size {
		t.Fatalf("fwrite = %d", n)
	}
	f.fs.Fseek(ctx, f.space, file, 0, 0)

	dst := f.buf(t, size+16)
	// ask for more whole items than the file holds
	if n := f.fs.Fread(ctx, f.space, dst, 16, size/16+1, file); n != size/16 {
		t.Fatalf("fread = %d, want %d", n, size/16)
	}
	if f.fs.Feof(file) == 0 {
		t.Fatal("eof not set after short read")
	}
	got, _ := f.space.Read(dst, size)
	if !bytes.Equal(got, want) {
		t.Fatal("read back differs from written data")
	}
	f.fs.Fclose(ctx, f.space, file)
}

func TestFS_Fgets(t *testing.T) {
	f := newFS(t)
	ctx := context.Background()
	file := f.fs.Fopen(ctx, f.space, "ux0:data/game/hello.txt", "r")
	buf := f.buf(t, 32)

	for _, want := range []string{"hello\n", "world\n"} {
		if p := f.fs.Fgets(ctx, f.space, buf, 32, file); p != buf {
			t.Fatalf("fgets = %#x", p)
		}
		if got, _ := memory.ReadCString(f.space, buf); got != want {
			t.Fatalf("line = %q, want %q", got, want)
		}
	}
	if p := f.fs.Fgets(ctx, f.space, buf, 32, file); p != 0 {
		t.Fatal("fgets at eof returned data")
	}

	f.fs.Fseek(ctx, f.space, file, 0, 0)
	f.fs.Fgets(ctx, f.space, buf, 4, file)
	if got, _ := memory.ReadCString(f.space, buf); got != "hel" {
		t.Fatalf("short fgets = %q", got)
	}
}

func TestFS_WideStream(t *testing.T) {
	f := newFS(t)
	ctx := context.Background()
	file := f.fs.Fopen(ctx, f.space, "wide.txt", "w+")
	if file == 0 {
		t.Fatalf("fopen failed, errno %d", f.errno)
	}
	for _, wc := range []uint32{'a', 0xE9, 0x20AC} {
		if rc := f.fs.Putwc(ctx, f.space, wc, file); rc != int32(wc) {
			t.Fatalf("putwc(%#x) = %d", wc, rc)
		}
	}
	if rc := f.fs.Putwc(ctx, f.space, 0xD800, file); rc != EOF || f.errno != soruntime.EILSEQ {
		t.Fatalf("putwc surrogate = %d errno %d", rc, f.errno)
	}
	if pos := f.fs.Ftell(ctx, f.space, file); pos != 6 {
		t.Fatalf("ftell = %d, want 6 bytes", pos)
	}

	f.fs.Fseek(ctx, f.space, file, 0, 0)
	for _, want := range []int32{'a', 0xE9, 0x20AC, EOF} {
		if got := f.fs.Getwc(ctx, f.space, file); got != want {
			t.Fatalf("getwc = %#x, want %#x", got, want)
		}
	}
	if rc := f.fs.Ungetwc(ctx, f.space, 0xE9, file); rc != 0xE9 {
		t.Fatalf("ungetwc = %d", rc)
	}
	if f.fs.Feof(file) != 0 {
		t.Fatal("ungetwc left eof set")
	}
	if got := f.fs.Getwc(ctx, f.space, file); got != 0xE9 {
		t.Fatalf("getwc after ungetwc = %#x", got)
	}

	// a lone continuation byte
	f.fs.Fseek(ctx, f.space, file, 0, 0)
	f.fs.Fputs(ctx, f.space, "\x80", file)
	f.fs.Fseek(ctx, f.space, file, 0, 0)
	f.errno = 0
	if got := f.fs.Getwc(ctx, f.space, file); got != EOF || f.errno != soruntime.EILSEQ {
		t.Fatalf("getwc invalid = %#x errno %d", got, f.errno)
	}
	f.fs.Fclose(ctx, f.space, file)
}

func TestFS_StatLayout(t *testing.T) {
	f := newFS(t)
	ctx := context.Background()
	buf := f.buf(t, StatSize)

	if rc := f.fs.Stat(ctx, f.space, "hello.txt", buf); rc != 0 {
		t.Fatalf("stat = %d errno %d", rc, f.errno)
	}
	size, _ := f.space.ReadU64(buf + 0x30)
	if size != 12 {
		t.Fatalf("size at 0x30 = %d", size)
	}
	mode, _ := f.space.ReadU32(buf + 0x10)
	if mode&0o170000 != modeReg {
		t.Fatalf("mode = %o", mode)
	}

	if rc := f.fs.Stat(ctx, f.space, "nope", buf); rc != -1 || f.errno != soruntime.ENOENT {
		t.Fatalf("missing stat rc=%d errno=%d", rc, f.errno)
	}

	fd := f.fs.Open(ctx, f.space, "main.obb", 0, 0)
	if fd < 3 {
		t.Fatalf("open = %d", fd)
	}
	if rc := f.fs.Fstat(ctx, f.space, fd, buf); rc != 0 {
		t.Fatalf("fstat = %d", rc)
	}
	if size, _ := f.space.ReadU64(buf + 0x30); size != 4 {
		t.Fatalf("fstat size = %d", size)
	}
	if rc := f.fs.CloseFD(ctx, f.space, fd); rc != 0 {
		t.Fatalf("close = %d", rc)
	}
	if rc := f.fs.CloseFD(ctx, f.space, fd); rc != -1 || f.errno != soruntime.EBADF {
		t.Fatalf("double close rc=%d errno=%d", rc, f.errno)
	}
}

func TestFS_Descriptors(t *testing.T) {
	f := newFS(t)
	ctx := context.Background()

	fd := f.fs.Open(ctx, f.space, "fd.txt", oWronly|oCreat|oTrunc, 0o644)
	if fd < 0 {
		t.Fatalf("open errno %d", f.errno)
	}
	msg, _ := memory.AllocCString(f.space, "12345")
	if n := f.fs.Write(ctx, f.space, fd, msg, 5); n != 5 {
		t.Fatalf("write = %d", n)
	}
	if pos := f.fs.Lseek(ctx, f.space, fd, 0, 1); pos != 5 {
		t.Fatalf("lseek = %d", pos)
	}
	f.fs.CloseFD(ctx, f.space, fd)

	fd = f.fs.Open(ctx, f.space, "fd.txt", 0, 0)
	buf := f.buf(t, 8)
	if n := f.fs.Read(ctx, f.space, fd, buf, 8); n != 5 {
		t.Fatalf("read = %d", n)
	}
	if n := f.fs.Read(ctx, f.space, fd, buf, 8); n != 0 {
		t.Fatalf("read at eof = %d", n)
	}

	file := f.fs.Fdopen(ctx, f.space, fd, "r")
	if file == 0 {
		t.Fatal("fdopen failed")
	}
	f.fs.Fseek(ctx, f.space, file, 1, 0)
	if got := f.readAll(t, file); got != "2345" {
		t.Fatalf("fdopen read %q", got)
	}
	if rc := f.fs.CloseFD(ctx, f.space, fd); rc != -1 {
		t.Fatal("descriptor still open after fdopen")
	}
	f.fs.Fclose(ctx, f.space, file)
}

func TestFS_StdStreams(t *testing.T) {
	f := newFS(t)
	ctx := context.Background()
	stdout := f.fs.sF + FileSize

	if rc := f.fs.Fputs(ctx, f.space, "to stdout ", stdout); rc < 0 {
		t.Fatalf("fputs = %d", rc)
	}
	f.fs.Fputc(ctx, f.space, '!', stdout)
	msg, _ := memory.AllocCString(f.space, " and fd")
	f.fs.Write(ctx, f.space, Stdout, msg, 7)
	if got := f.stdout.String(); got != "to stdout ! and fd" {
		t.Fatalf("stdout = %q", got)
	}
	if fd := f.fs.Fileno(ctx, f.space, stdout); fd != Stdout {
		t.Fatalf("fileno(stdout) = %d", fd)
	}
	if rc := f.fs.Fclose(ctx, f.space, stdout); rc != 0 {
		t.Fatalf("fclose(stdout) = %d", rc)
	}
	if rc := f.fs.Fputs(ctx, f.space, "x", stdout); rc < 0 {
		t.Fatal("stdout unusable after fclose")
	}

	if c := f.fs.Getc(ctx, f.space, f.fs.sF); c != 'i' {
		t.Fatalf("getc(stdin) = %q", c)
	}
}

func TestFS_PathOps(t *testing.T) {
	f := newFS(t)
	ctx := context.Background()

	if rc := f.fs.Access(ctx, f.space, "hello.txt", 0); rc != 0 {
		t.Fatalf("access existing = %d", rc)
	}
	if rc := f.fs.Access(ctx, f.space, "nope", 0); rc != -1 || f.errno != soruntime.ENOENT {
		t.Fatalf("access missing rc=%d errno=%d", rc, f.errno)
	}
	if rc := f.fs.Mkdir(ctx, f.space, "saves", 0o755); rc != 0 {
		t.Fatalf("mkdir = %d errno %d", rc, f.errno)
	}
	if info, err := os.Stat(filepath.Join(f.host, "data", "game", "saves")); err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}
	if rc := f.fs.Mkdir(ctx, f.space, "saves", 0o755); rc != -1 || f.errno != soruntime.EEXIST {
		t.Fatalf("mkdir twice rc=%d errno=%d", rc, f.errno)
	}

	buf := f.buf(t, 64)
	if p := f.fs.Getcwd(ctx, f.space, buf, 64); p != buf {
		t.Fatal("getcwd failed")
	}
	if got, _ := memory.ReadCString(f.space, buf); got != "ux0:data/game" {
		t.Fatalf("getcwd = %q", got)
	}
	if p := f.fs.Getcwd(ctx, f.space, buf, 4); p != 0 || f.errno != soruntime.ERANGE {
		t.Fatalf("small getcwd p=%#x errno=%d", p, f.errno)
	}
	if n := f.fs.Readlink(f.space, "/proc/self/exe", buf, 64); n != int32(len("ux0:data/game")) {
		t.Fatalf("readlink = %d", n)
	}
}

func TestFS_Mmap(t *testing.T) {
	f := newFS(t)
	ctx := context.Background()

	fd := f.fs.Open(ctx, f.space, "hello.txt", 0, 0)
	p := f.fs.Mmap(ctx, f.space, 8192, 0x02, fd, 6)
	if p == MapFailed {
		t.Fatalf("mmap failed errno %d", f.errno)
	}
	got, _ := f.space.Read(p, 6)
	if string(got) != "world\n" {
		t.Fatalf("mapped = %q", got)
	}
	tail, _ := f.space.ReadU32(p + 100)
	if tail != 0 {
		t.Fatalf("mapping tail not zeroed: %#x", tail)
	}
	if rc := f.fs.Munmap(f.space, p); rc != 0 {
		t.Fatalf("munmap = %d", rc)
	}
	if _, ok := f.space.BlockSize(p); ok {
		t.Fatal("mapping not freed")
	}

	anon := f.fs.Mmap(ctx, f.space, 4096, mapAnonymous|0x02, -1, 0)
	if anon == MapFailed || anon%mapAlign != 0 {
		t.Fatalf("anonymous mapping = %#x", anon)
	}
	if f.fs.Mmap(ctx, f.space, 0, mapAnonymous, -1, 0) != MapFailed {
		t.Fatal("zero-length mapping succeeded")
	}
}

func TestFS_Register(t *testing.T) {
	f := newFS(t)
	reg := hostcall.NewRegistry()
	b := symtab.NewBuilder(reg)
	if err := f.fs.Register(b, f.space); err != nil {
		t.Fatal(err)
	}
	table := b.Build()

	sF, ok := table.Lookup("__sF")
	if !ok || sF.Addr != f.fs.sF || sF.Kind != symtab.KindData {
		t.Fatalf("__sF = %+v", sF)
	}

	call := func(name, sig string, args ...uint32) uint32 {
		stack := make([]uint64, len(args)+1)
		for i, a := range args {
			stack[i] = uint64(a)
		}
		if err := reg.Call(context.Background(), f.space, table.Resolve(name), sig, stack); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		return uint32(stack[0])
	}

	name, _ := memory.AllocCString(f.space, "created.txt")
	va := f.buf(t, 4)
	_ = f.space.WriteU32(va, 0o600)
	fd := int32(call("open", "iiii", name, oRdwr|oCreat, va))
	if fd < 3 {
		t.Fatalf("open via table = %d", fd)
	}
	info, err := os.Stat(filepath.Join(f.host, "data", "game", "created.txt"))
	if err != nil || info.Mode().Perm()&0o600 != 0o600 {
		t.Fatalf("created file: %v %v", info, err)
	}

	stat := f.buf(t, StatSize)
	if rc := int32(call("fstat", "iii", uint32(fd), stat)); rc != 0 {
		t.Fatalf("fstat via table = %d", rc)
	}
	if rc := int32(call("close", "ii", uint32(fd))); rc != 0 {
		t.Fatalf("close via table = %d", rc)
	}

	mode, _ := memory.AllocCString(f.space, "r")
	empty, _ := memory.AllocCString(f.space, "")
	if file := call("fopen", "iii", empty, mode); file == 0 {
		t.Fatal("anonymous fopen via table failed")
	}
}
