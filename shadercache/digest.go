package shadercache

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
)

// Digest is the SHA-1 of a shader source.
type Digest [sha1.Size]byte

// Sum digests src.
func Sum(src []byte) Digest {
	return Digest(sha1.Sum(src))
}

// String renders the digest as five %08x words read little-endian.
func (d Digest) String() string {
	le := binary.LittleEndian
	return fmt.Sprintf("%08x%08x%08x%08x%08x",
		le.Uint32(d[0:]), le.Uint32(d[4:]), le.Uint32(d[8:]), le.Uint32(d[12:]), le.Uint32(d[16:]))
}
