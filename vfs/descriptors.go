package vfs

import (
	"context"
	"io"
	"os"

	"go.uber.org/zap"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/memory"
	"github.com/wippyai/so-runtime/resource"
)

// mmap constants.
const (
	MapFailed    uint32 = 0xFFFFFFFF
	mapAnonymous        = 0x20
	mapAlign            = 4096
)

// Open opens path with foreign open(2) flags and returns a descriptor.
func (fs *FS) Open(ctx context.Context, mem soruntime.Space, name string, flags, mode uint32) int32 {
	host, err := fs.hostPath(name)
	if err != nil {
		fs.fail(ctx, mem, errnoOf(err))
		return -1
	}
	f, err := os.OpenFile(host, hostFlags(flags), os.FileMode(mode&0o777))
	if err != nil {
		fs.fail(ctx, mem, errnoOf(err))
		return -1
	}
	fd := fs.fds.Insert(&descriptor{f: f, owned: true})
	if fd == 0 {
		f.Close()
		fs.fail(ctx, mem, soruntime.EMFILE)
		return -1
	}
	return int32(fd)
}

// CloseFD closes a descriptor. Standard descriptors are never closed.
func (fs *FS) CloseFD(ctx context.Context, mem soruntime.Space, fd int32) int32 {
	if fd >= Stdin && fd <= Stderr {
		return 0
	}
	if _, ok := fs.fds.Remove(resource.Handle(fd)); !ok {
		fs.fail(ctx, mem, soruntime.EBADF)
		return -1
	}
	return 0
}

func (fs *FS) descriptor(fd int32) (*descriptor, bool) {
	if fd <= Stderr {
		return nil, false
	}
	return fs.fds.Get(resource.Handle(fd))
}

// Read reads up to n bytes from fd into buf.
func (fs *FS) Read(ctx context.Context, mem soruntime.Space, fd int32, buf, n uint32) int32 {
	var r io.Reader
	switch {
	case fd == Stdin:
		r = fs.stdio[Stdin].r
	default:
		d, ok := fs.descriptor(fd)
		if !ok {
			fs.fail(ctx, mem, soruntime.EBADF)
			return -1
		}
		r = d.f
	}
	if r == nil {
		return 0
	}
	p := make([]byte, n)
	got, err := r.Read(p)
	if err != nil && err != io.EOF {
		fs.fail(ctx, mem, errnoOf(err))
		return -1
	}
	if err := mem.Write(buf, p[:got]); err != nil {
		fs.fail(ctx, mem, soruntime.EFAULT)
		return -1
	}
	return int32(got)
}

// Write writes n bytes from buf to fd.
func (fs *FS) Write(ctx context.Context, mem soruntime.Space, fd int32, buf, n uint32) int32 {
	var w io.Writer
	switch {
	case fd == Stdout || fd == Stderr:
		w = fs.stdio[fd].w
	default:
		d, ok := fs.descriptor(fd)
		if !ok {
			fs.fail(ctx, mem, soruntime.EBADF)
			return -1
		}
		w = d.f
	}
	p, err := mem.Read(buf, n)
	if err != nil {
		fs.fail(ctx, mem, soruntime.EFAULT)
		return -1
	}
	if w == nil {
		return int32(n)
	}
	wrote, err := w.Write(p)
	if err != nil {
		fs.fail(ctx, mem, errnoOf(err))
		return -1
	}
	return int32(wrote)
}

// Lseek repositions a descriptor.
func (fs *FS) Lseek(ctx context.Context, mem soruntime.Space, fd int32, offset int64, whence int32) int64 {
	d, ok := fs.descriptor(fd)
	if !ok {
		fs.fail(ctx, mem, soruntime.EBADF)
		return -1
	}
	if whence < io.SeekStart || whence > io.SeekEnd {
		fs.fail(ctx, mem, soruntime.EINVAL)
		return -1
	}
	pos, err := d.f.Seek(offset, int(whence))
	if err != nil {
		fs.fail(ctx, mem, errnoOf(err))
		return -1
	}
	return pos
}

// Stat writes the foreign struct stat of path to buf.
func (fs *FS) Stat(ctx context.Context, mem soruntime.Space, name string, buf uint32) int32 {
	host, err := fs.hostPath(name)
	if err == nil {
		var info os.FileInfo
		if info, err = os.Stat(host); err == nil {
			err = writeStat(mem, buf, statFromInfo(info))
		}
	}
	if err != nil {
		fs.fail(ctx, mem, errnoOf(err))
		return -1
	}
	return 0
}

// Fstat writes the foreign struct stat of fd to buf.
func (fs *FS) Fstat(ctx context.Context, mem soruntime.Space, fd int32, buf uint32) int32 {
	var st Stat
	if fd >= Stdin && fd <= Stderr {
		st = Stat{Mode: modeChr | 0o620}
	} else {
		d, ok := fs.descriptor(fd)
		if !ok {
			fs.fail(ctx, mem, soruntime.EBADF)
			return -1
		}
		info, err := d.f.Stat()
		if err != nil {
			fs.fail(ctx, mem, errnoOf(err))
			return -1
		}
		st = statFromInfo(info)
	}
	if err := writeStat(mem, buf, st); err != nil {
		fs.fail(ctx, mem, soruntime.EFAULT)
		return -1
	}
	return 0
}

// Access reports whether path exists. The mode bits are not checked.
func (fs *FS) Access(ctx context.Context, mem soruntime.Space, name string, _ uint32) int32 {
	Logger().Debug("access", zap.String("path", name))
	host, err := fs.hostPath(name)
	if err == nil {
		_, err = os.Stat(host)
	}
	if err != nil {
		fs.fail(ctx, mem, errnoOf(err))
		return -1
	}
	return 0
}

// Mkdir creates a directory.
func (fs *FS) Mkdir(ctx context.Context, mem soruntime.Space, name string, mode uint32) int32 {
	Logger().Debug("mkdir", zap.String("path", name))
	host, err := fs.hostPath(name)
	if err == nil {
		err = os.Mkdir(host, os.FileMode(mode&0o777))
	}
	if err != nil {
		fs.fail(ctx, mem, errnoOf(err))
		return -1
	}
	return 0
}

// Readlink reports the data root for every link, truncated to size bytes.
func (fs *FS) Readlink(mem soruntime.Space, name string, buf, size uint32) int32 {
	Logger().Debug("readlink", zap.String("path", name))
	root := []byte(fs.virt.Root())
	if uint32(len(root)) > size {
		root = root[:size]
	}
	if err := mem.Write(buf, root); err != nil {
		return -1
	}
	if uint32(len(root)) < size {
		if err := mem.WriteU8(buf+uint32(len(root)), 0); err != nil {
			return -1
		}
	}
	return int32(len(root))
}

// Getcwd writes the data root to buf. A null buf allocates one.
func (fs *FS) Getcwd(ctx context.Context, mem soruntime.Space, buf, size uint32) uint32 {
	root := fs.virt.Root()
	if buf == 0 {
		p, err := memory.AllocCString(mem, root)
		if err != nil {
			fs.fail(ctx, mem, soruntime.ENOMEM)
			return 0
		}
		return p
	}
	if uint32(len(root))+1 > size {
		fs.fail(ctx, mem, soruntime.ERANGE)
		return 0
	}
	if err := memory.WriteCString(mem, buf, root); err != nil {
		fs.fail(ctx, mem, soruntime.EFAULT)
		return 0
	}
	return buf
}

// Mmap backs a mapping with heap memory, filled from fd for file mappings.
func (fs *FS) Mmap(ctx context.Context, mem soruntime.Space, length, flags uint32, fd int32, offset int64) uint32 {
	if length == 0 {
		fs.fail(ctx, mem, soruntime.EINVAL)
		return MapFailed
	}
	ptr, err := mem.Alloc(length, mapAlign)
	if err != nil {
		fs.fail(ctx, mem, soruntime.ENOMEM)
		return MapFailed
	}
	if err := memory.Fill(mem, ptr, 0, length); err != nil {
		mem.Free(ptr, length, mapAlign)
		fs.fail(ctx, mem, soruntime.ENOMEM)
		return MapFailed
	}
	if flags&mapAnonymous == 0 && fd > Stderr {
		if d, ok := fs.descriptor(fd); ok {
			p := make([]byte, length)
			n, err := d.f.ReadAt(p, offset)
			if err != nil && err != io.EOF {
				mem.Free(ptr, length, mapAlign)
				fs.fail(ctx, mem, errnoOf(err))
				return MapFailed
			}
			if err := mem.Write(ptr, p[:n]); err != nil {
				mem.Free(ptr, length, mapAlign)
				fs.fail(ctx, mem, soruntime.EFAULT)
				return MapFailed
			}
		}
	}
	fs.mu.Lock()
	fs.maps[ptr] = length
	fs.mu.Unlock()
	return ptr
}

// Munmap frees a mapping created by Mmap. Unknown addresses are ignored.
func (fs *FS) Munmap(mem soruntime.Space, addr uint32) int32 {
	fs.mu.Lock()
	length, ok := fs.maps[addr]
	delete(fs.maps, addr)
	fs.mu.Unlock()
	if ok {
		mem.Free(addr, length, mapAlign)
	}
	return 0
}
