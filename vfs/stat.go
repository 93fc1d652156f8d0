package vfs

import (
	"encoding/binary"
	"io/fs"
	"time"

	soruntime "github.com/wippyai/so-runtime"
)

// Foreign struct stat (Bionic, arm).
const (
	StatSize = 0x68

	statDev      = 0x00
	statShortIno = 0x0C
	statMode     = 0x10
	statNlink    = 0x14
	statUID      = 0x18
	statGID      = 0x1C
	statRdev     = 0x20
	statFileSize = 0x30
	statBlksize  = 0x38
	statBlocks   = 0x40
	statAtime    = 0x48
	statMtime    = 0x50
	statCtime    = 0x58
	statIno      = 0x60
)

const (
	modeDir  = 0o040000
	modeReg  = 0o100000
	modeLink = 0o120000
	modeChr  = 0o020000
	modeFifo = 0o010000
	modeSock = 0o140000

	blockSize = 4096
)

// Stat is the host information copied into a foreign struct stat.
type Stat struct {
	Mode  uint32
	Size  int64
	Mtime time.Time
	Ino   uint64
}

func statFromInfo(info fs.FileInfo) Stat {
	return Stat{
		Mode:  foreignMode(info.Mode()),
		Size:  info.Size(),
		Mtime: info.ModTime(),
	}
}

func foreignMode(m fs.FileMode) uint32 {
	mode := uint32(m.Perm())
	switch {
	case m.IsDir():
		mode |= modeDir
	case m&fs.ModeSymlink != 0:
		mode |= modeLink
	case m&fs.ModeCharDevice != 0:
		mode |= modeChr
	case m&fs.ModeNamedPipe != 0:
		mode |= modeFifo
	case m&fs.ModeSocket != 0:
		mode |= modeSock
	default:
		mode |= modeReg
	}
	return mode
}

// Encode renders s in the foreign layout.
func (s Stat) Encode() []byte {
	b := make([]byte, StatSize)
	le := binary.LittleEndian
	le.PutUint32(b[statShortIno:], uint32(s.Ino))
	le.PutUint32(b[statMode:], s.Mode)
	le.PutUint32(b[statNlink:], 1)
	le.PutUint64(b[statFileSize:], uint64(s.Size))
	le.PutUint32(b[statBlksize:], blockSize)
	le.PutUint64(b[statBlocks:], uint64((s.Size+511)/512))
	sec := uint32(s.Mtime.Unix())
	nsec := uint32(s.Mtime.Nanosecond())
	for _, off := range []int{statAtime, statMtime, statCtime} {
		le.PutUint32(b[off:], sec)
		le.PutUint32(b[off+4:], nsec)
	}
	le.PutUint64(b[statIno:], s.Ino)
	return b
}

// writeStat copies s into the foreign buffer at ptr.
func writeStat(mem soruntime.Memory, ptr uint32, s Stat) error {
	return mem.Write(ptr, s.Encode())
}
