package vfs

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/wippyai/so-runtime/errors"
)

// Volumes maps volume markers such as "ux0:" to host directories.
type Volumes map[string]string

// HostPath converts a virtual path to a host path. The path is cleaned
// relative to the volume so it cannot escape the volume directory.
func (vs Volumes) HostPath(p string) (string, error) {
	marker, dir := vs.match(p)
	if marker == "" {
		return "", errors.New(errors.PhaseShim, errors.KindNotFound).
			Path(p).Detail("no volume for path").Build()
	}
	rest := path.Clean("/" + strings.TrimPrefix(p, marker))
	return filepath.Join(dir, filepath.FromSlash(rest)), nil
}

// match returns the longest marker prefixing p.
func (vs Volumes) match(p string) (string, string) {
	var marker, dir string
	for m, d := range vs {
		if strings.HasPrefix(p, m) && len(m) > len(marker) {
			marker, dir = m, d
		}
	}
	return marker, dir
}
