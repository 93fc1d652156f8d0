package vfs

import (
	"context"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/cfmt"
	"github.com/wippyai/so-runtime/memory"
	"github.com/wippyai/so-runtime/symtab"
)

func ret(stack []uint64, v int32) {
	stack[0] = uint64(uint32(v))
}

func arg(stack []uint64, i int) uint32 {
	return uint32(stack[i])
}

// Register installs the standard streams in space and adds the file, path
// and mapping functions to b.
func (fs *FS) Register(b *symtab.Builder, space soruntime.Space) error {
	sF, err := fs.Install(space)
	if err != nil {
		return err
	}
	b.Data("__sF", sF)

	// path takes a C string argument; a bad pointer fails the call with EFAULT.
	path := func(ctx context.Context, mem soruntime.Space, ptr uint32) (string, bool) {
		s, err := memory.ReadCString(mem, ptr)
		if err != nil {
			fs.fail(ctx, mem, soruntime.EFAULT)
			return "", false
		}
		return s, true
	}

	b.Func("fopen", "iii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		name, ok := path(ctx, mem, arg(st, 0))
		mode, ok2 := path(ctx, mem, arg(st, 1))
		if !ok || !ok2 {
			ret(st, 0)
			return
		}
		st[0] = uint64(fs.Fopen(ctx, mem, name, mode))
	})
	b.Func("fdopen", "iii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		mode, ok := path(ctx, mem, arg(st, 1))
		if !ok {
			ret(st, 0)
			return
		}
		st[0] = uint64(fs.Fdopen(ctx, mem, int32(arg(st, 0)), mode))
	})
	b.Func("fclose", "ii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, fs.Fclose(ctx, mem, arg(st, 0)))
	})
	b.Func("fread", "iiiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		st[0] = uint64(fs.Fread(ctx, mem, arg(st, 0), arg(st, 1), arg(st, 2), arg(st, 3)))
	})
	b.Func("fwrite", "iiiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		st[0] = uint64(fs.Fwrite(ctx, mem, arg(st, 0), arg(st, 1), arg(st, 2), arg(st, 3)))
	})
	b.Func("fseek", "iiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, fs.Fseek(ctx, mem, arg(st, 0), int64(int32(arg(st, 1))), int32(arg(st, 2))))
	})
	tell := func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, int32(fs.Ftell(ctx, mem, arg(st, 0))))
	}
	b.Func("ftell", "ii", tell)
	b.Func("ftello", "ii", tell)
	b.Func("fflush", "ii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, fs.Fflush(ctx, mem, arg(st, 0)))
	})
	b.Func("fgets", "iiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		st[0] = uint64(fs.Fgets(ctx, mem, arg(st, 0), int32(arg(st, 1)), arg(st, 2)))
	})
	b.Func("fputs", "iii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		s, ok := path(ctx, mem, arg(st, 0))
		if !ok {
			ret(st, EOF)
			return
		}
		ret(st, fs.Fputs(ctx, mem, s, arg(st, 1)))
	})
	putc := func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, fs.Fputc(ctx, mem, int32(arg(st, 0)), arg(st, 1)))
	}
	b.Func("fputc", "iii", putc)
	b.Func("putc", "iii", putc)
	getc := func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, fs.Getc(ctx, mem, arg(st, 0)))
	}
	b.Func("getc", "ii", getc)
	b.Func("fgetc", "ii", getc)
	b.Func("ungetc", "iii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, fs.Ungetc(ctx, mem, int32(arg(st, 0)), arg(st, 1)))
	})
	b.Func("getwc", "ii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, fs.Getwc(ctx, mem, arg(st, 0)))
	})
	b.Func("putwc", "iii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, fs.Putwc(ctx, mem, arg(st, 0), arg(st, 1)))
	})
	b.Func("ungetwc", "iii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, fs.Ungetwc(ctx, mem, arg(st, 0), arg(st, 1)))
	})
	b.Func("feof", "ii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, fs.Feof(arg(st, 0)))
	})
	b.Func("ferror", "ii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, fs.Ferror(arg(st, 0)))
	})
	b.Func("clearerr", "vi", func(_ context.Context, _ soruntime.Space, st []uint64) {
		fs.Clearerr(arg(st, 0))
	})
	b.Func("fileno", "ii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, fs.Fileno(ctx, mem, arg(st, 0)))
	})
	b.Func("setvbuf", "iiiii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, 0)
	})

	b.Variadic("open", "iiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		name, ok := path(ctx, mem, arg(st, 0))
		if !ok {
			ret(st, -1)
			return
		}
		flags := arg(st, 1)
		var mode uint32
		if flags&oCreat != 0 && arg(st, 2) != 0 {
			m, err := cfmt.NewVaList(mem, arg(st, 2)).Int32()
			if err != nil {
				fs.fail(ctx, mem, soruntime.EFAULT)
				ret(st, -1)
				return
			}
			mode = uint32(m)
		}
		ret(st, fs.Open(ctx, mem, name, flags, mode))
	})
	b.Func("close", "ii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, fs.CloseFD(ctx, mem, int32(arg(st, 0))))
	})
	b.Func("read", "iiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, fs.Read(ctx, mem, int32(arg(st, 0)), arg(st, 1), arg(st, 2)))
	})
	b.Func("write", "iiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, fs.Write(ctx, mem, int32(arg(st, 0)), arg(st, 1), arg(st, 2)))
	})
	b.Func("lseek", "iiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, int32(fs.Lseek(ctx, mem, int32(arg(st, 0)), int64(int32(arg(st, 1))), int32(arg(st, 2)))))
	})
	b.Func("lseek64", "jiji", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		st[0] = uint64(fs.Lseek(ctx, mem, int32(arg(st, 0)), int64(st[1]), int32(arg(st, 2))))
	})

	b.Func("stat", "iii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		name, ok := path(ctx, mem, arg(st, 0))
		if !ok {
			ret(st, -1)
			return
		}
		ret(st, fs.Stat(ctx, mem, name, arg(st, 1)))
	})
	b.Func("fstat", "iii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		ret(st, fs.Fstat(ctx, mem, int32(arg(st, 0)), arg(st, 1)))
	})
	b.Func("access", "iii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		name, ok := path(ctx, mem, arg(st, 0))
		if !ok {
			ret(st, -1)
			return
		}
		ret(st, fs.Access(ctx, mem, name, arg(st, 1)))
	})
	b.Func("mkdir", "iii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		name, ok := path(ctx, mem, arg(st, 0))
		if !ok {
			ret(st, -1)
			return
		}
		ret(st, fs.Mkdir(ctx, mem, name, arg(st, 1)))
	})
	b.Func("readlink", "iiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		name, ok := path(ctx, mem, arg(st, 0))
		if !ok {
			ret(st, -1)
			return
		}
		ret(st, fs.Readlink(mem, name, arg(st, 1), arg(st, 2)))
	})
	b.Func("getcwd", "iii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		st[0] = uint64(fs.Getcwd(ctx, mem, arg(st, 0), arg(st, 1)))
	})
	b.Func("chdir", "ii", func(_ context.Context, _ soruntime.Space, st []uint64) {
		ret(st, 0)
	})

	b.Func("mmap", "iiiiiii", func(ctx context.Context, mem soruntime.Space, st []uint64) {
		st[0] = uint64(fs.Mmap(ctx, mem, arg(st, 1), arg(st, 3), int32(arg(st, 4)), int64(int32(arg(st, 5)))))
	})
	b.Func("munmap", "iii", func(_ context.Context, mem soruntime.Space, st []uint64) {
		ret(st, fs.Munmap(mem, arg(st, 0)))
	})
	return nil
}
