package vfs

import (
	"io"
	"os"
	"sync"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/resource"
)

// FileSize is the size of the FILE block allocated per stream.
const FileSize uint32 = 0x54

// EOF is the value of the foreign EOF macro.
const EOF int32 = -1

// stream backs one FILE*.
type stream struct {
	r     io.Reader
	w     io.Writer
	f     *os.File
	name  string
	unget []byte
	fd    resource.Handle
	mu    sync.Mutex
	eof   bool
	err   bool
}

func fileStream(name string, f *os.File) *stream {
	return &stream{name: name, f: f, r: f, w: f}
}

// Drop closes the host file.
func (s *stream) Drop() {
	if s.f != nil {
		s.f.Close()
	}
}

func (s *stream) read(p []byte) (int, error) {
	if s.r == nil {
		s.err = true
		return 0, os.ErrInvalid
	}
	n := copy(p, s.unget)
	s.unget = s.unget[n:]
	for n < len(p) {
		m, err := s.r.Read(p[n:])
		n += m
		if err == io.EOF {
			s.eof = true
			return n, nil
		}
		if err != nil {
			s.err = true
			return n, err
		}
		if m == 0 {
			break
		}
	}
	return n, nil
}

func (s *stream) readByte() (byte, bool) {
	var b [1]byte
	n, _ := s.read(b[:])
	return b[0], n == 1
}

func (s *stream) write(p []byte) (int, error) {
	if s.w == nil {
		s.err = true
		return 0, os.ErrInvalid
	}
	n, err := s.w.Write(p)
	if err != nil {
		s.err = true
	}
	return n, err
}

func (s *stream) seek(offset int64, whence int) (int64, error) {
	if s.f == nil {
		return 0, os.ErrInvalid
	}
	if whence == io.SeekCurrent {
		offset -= int64(len(s.unget))
	}
	pos, err := s.f.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	s.unget = nil
	s.eof = false
	return pos, nil
}

func (s *stream) tell() (int64, error) {
	if s.f == nil {
		return 0, os.ErrInvalid
	}
	pos, err := s.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	return pos - int64(len(s.unget)), nil
}

func (s *stream) flush() error {
	if f, ok := s.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// descriptor backs one file descriptor.
type descriptor struct {
	f     *os.File
	owned bool
}

// Drop closes the host file when the descriptor owns it.
func (d *descriptor) Drop() {
	if d.owned {
		d.f.Close()
	}
}

// Foreign open(2) flags.
const (
	oAccMode = 0o3
	oWronly  = 0o1
	oRdwr    = 0o2
	oCreat   = 0o100
	oExcl    = 0o200
	oTrunc   = 0o1000
	oAppend  = 0o2000
)

func hostFlags(flags uint32) int {
	var f int
	switch flags & oAccMode {
	case oWronly:
		f = os.O_WRONLY
	case oRdwr:
		f = os.O_RDWR
	default:
		f = os.O_RDONLY
	}
	if flags&oCreat != 0 {
		f |= os.O_CREATE
	}
	if flags&oExcl != 0 {
		f |= os.O_EXCL
	}
	if flags&oTrunc != 0 {
		f |= os.O_TRUNC
	}
	if flags&oAppend != 0 {
		f |= os.O_APPEND
	}
	return f
}

// parseMode converts an fopen mode string to host open flags.
func parseMode(mode string) (int, int32) {
	if mode == "" {
		return 0, soruntime.EINVAL
	}
	plus := false
	excl := false
	for _, c := range mode[1:] {
		switch c {
		case '+':
			plus = true
		case 'x':
			excl = true
		}
	}
	var f int
	switch mode[0] {
	case 'r':
		f = os.O_RDONLY
		if plus {
			f = os.O_RDWR
		}
	case 'w':
		f = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
		if plus {
			f = os.O_RDWR | os.O_CREATE | os.O_TRUNC
		}
	case 'a':
		f = os.O_WRONLY | os.O_CREATE | os.O_APPEND
		if plus {
			f = os.O_RDWR | os.O_CREATE | os.O_APPEND
		}
	default:
		return 0, soruntime.EINVAL
	}
	if excl {
		f |= os.O_EXCL
	}
	return f, 0
}
