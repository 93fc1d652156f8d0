package vfs

import (
	"context"
	stderrors "errors"
	"os"
	"syscall"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/errors"
)

// ErrnoSink receives the errno of a failed call on the calling thread.
type ErrnoSink interface {
	SetErrno(ctx context.Context, mem soruntime.Space, errno int32)
}

// ErrnoFunc adapts a function to ErrnoSink.
type ErrnoFunc func(ctx context.Context, mem soruntime.Space, errno int32)

func (f ErrnoFunc) SetErrno(ctx context.Context, mem soruntime.Space, errno int32) {
	f(ctx, mem, errno)
}

type discardErrno struct{}

func (discardErrno) SetErrno(context.Context, soruntime.Space, int32) {}

// errnoOf maps a host error to a foreign errno.
func errnoOf(err error) int32 {
	if err == nil {
		return 0
	}
	var e *errors.Error
	if stderrors.As(err, &e) {
		switch e.Kind {
		case errors.KindNotFound:
			return soruntime.ENOENT
		case errors.KindOutOfBounds:
			return soruntime.EFAULT
		case errors.KindInvalidInput:
			return soruntime.EINVAL
		case errors.KindAllocation:
			return soruntime.ENOMEM
		}
	}
	if os.IsNotExist(err) {
		return soruntime.ENOENT
	}
	if os.IsPermission(err) {
		return soruntime.EACCES
	}
	if os.IsExist(err) {
		return soruntime.EEXIST
	}
	var errno syscall.Errno
	if stderrors.As(err, &errno) {
		return mapErrno(errno)
	}
	return soruntime.EIO
}

func mapErrno(errno syscall.Errno) int32 {
	switch errno {
	case syscall.EACCES:
		return soruntime.EACCES
	case syscall.EPERM:
		return soruntime.EPERM
	case syscall.ENOENT:
		return soruntime.ENOENT
	case syscall.EEXIST:
		return soruntime.EEXIST
	case syscall.ENOTDIR:
		return soruntime.ENOTDIR
	case syscall.EISDIR:
		return soruntime.EISDIR
	case syscall.ENOSPC:
		return soruntime.ENOSPC
	case syscall.EBADF:
		return soruntime.EBADF
	case syscall.EMFILE:
		return soruntime.EMFILE
	case syscall.EBUSY:
		return soruntime.EBUSY
	case syscall.EINVAL:
		return soruntime.EINVAL
	default:
		return soruntime.EIO
	}
}
