package vfs

import (
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// Virtualizer maps foreign paths onto the data root.
// It is safe for concurrent use.
type Virtualizer struct {
	root     string
	marker   string
	archives []string
	cursor   atomic.Uint32
}

// NewVirtualizer creates a virtualizer for root. Paths starting with marker
// are passed through. archives are resolved against root in order.
func NewVirtualizer(root, marker string, archives ...string) *Virtualizer {
	v := &Virtualizer{root: strings.TrimSuffix(root, "/"), marker: marker}
	for _, a := range archives {
		v.archives = append(v.archives, v.Resolve(a))
	}
	return v
}

// Root returns the data root.
func (v *Virtualizer) Root() string {
	return v.root
}

// Marker returns the volume marker that identifies host-rooted paths.
func (v *Virtualizer) Marker() string {
	return v.marker
}

// Archives returns the resolved archive list.
func (v *Virtualizer) Archives() []string {
	return append([]string(nil), v.archives...)
}

// Resolve virtualizes p. A path carrying the marker is returned unchanged.
func (v *Virtualizer) Resolve(p string) string {
	if strings.HasPrefix(p, v.marker) {
		return p
	}
	return v.root + "/" + p
}

// NextArchive advances the archive cursor. The Nth call returns the Nth
// archive. Calls past the end of the list return false.
func (v *Virtualizer) NextArchive() (string, bool) {
	n := v.cursor.Add(1)
	if int(n) > len(v.archives) {
		Logger().Error("anonymous open past the archive list",
			zap.Uint32("open", n), zap.Int("archives", len(v.archives)))
		return "", false
	}
	return v.archives[n-1], true
}

// ResolveOpen virtualizes the path of an fopen request, mapping the empty
// path to the next archive.
func (v *Virtualizer) ResolveOpen(p string) (string, bool) {
	if p == "" {
		return v.NextArchive()
	}
	return v.Resolve(p), true
}
