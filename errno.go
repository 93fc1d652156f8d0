package soruntime

// Errno values of the foreign libc (Bionic, arm).
const (
	EPERM     = 1
	ENOENT    = 2
	ESRCH     = 3
	EINTR     = 4
	EIO       = 5
	EBADF     = 9
	EAGAIN    = 11
	ENOMEM    = 12
	EACCES    = 13
	EFAULT    = 14
	EBUSY     = 16
	EEXIST    = 17
	ENOTDIR   = 20
	EISDIR    = 21
	EINVAL    = 22
	EMFILE    = 24
	ENOSPC    = 28
	ERANGE    = 34
	EDEADLK   = 35
	ENOSYS    = 38
	EILSEQ    = 84
	ETIMEDOUT = 110
)
