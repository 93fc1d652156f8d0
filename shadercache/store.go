package shadercache

import (
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/wippyai/so-runtime/errors"
)

const (
	binaryDir = "gxp"
	sourceDir = "glsl"
	binaryExt = ".gxp"
	sourceExt = ".glsl"

	// DefaultCacheEntries bounds the in-memory binary cache.
	DefaultCacheEntries = 256
)

// Store is a content-addressed shader store rooted at a host directory.
// Binary reads go through an LRU cache. It is safe for concurrent use.
type Store struct {
	cache *lru.Cache[Digest, []byte]
	root  string
}

// NewStore opens a store at root keeping up to entries binaries in memory.
func NewStore(root string, entries int) (*Store, error) {
	if entries <= 0 {
		entries = DefaultCacheEntries
	}
	cache, err := lru.New[Digest, []byte](entries)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidInput, err, "create binary cache")
	}
	return &Store{cache: cache, root: root}, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// BinaryPath is the file holding the precompiled binary of d.
func (s *Store) BinaryPath(d Digest) string {
	return filepath.Join(s.root, binaryDir, d.String()+binaryExt)
}

// SourcePath is the file holding the captured source of d.
func (s *Store) SourcePath(d Digest) string {
	return filepath.Join(s.root, sourceDir, d.String()+sourceExt)
}

// Binary returns the precompiled binary for d. A missing binary is not an
// error.
func (s *Store) Binary(d Digest) ([]byte, bool, error) {
	if b, ok := s.cache.Get(d); ok {
		return b, true, nil
	}
	b, err := os.ReadFile(s.BinaryPath(d))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.New(errors.PhaseCache, errors.KindIO).
			Path(s.BinaryPath(d)).Cause(err).Build()
	}
	s.cache.Add(d, b)
	return b, true, nil
}

// PutBinary stores a precompiled binary for d.
func (s *Store) PutBinary(d Digest, b []byte) error {
	if err := s.write(s.BinaryPath(d), b); err != nil {
		return err
	}
	s.cache.Add(d, b)
	return nil
}

// SaveSource captures src under d.
func (s *Store) SaveSource(d Digest, src []byte) error {
	return s.write(s.SourcePath(d), src)
}

// Source returns a captured source.
func (s *Store) Source(d Digest) ([]byte, bool, error) {
	b, err := os.ReadFile(s.SourcePath(d))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.New(errors.PhaseCache, errors.KindIO).
			Path(s.SourcePath(d)).Cause(err).Build()
	}
	return b, true, nil
}

// Captured lists the digests of captured sources.
func (s *Store) Captured() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, sourceDir))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCache, errors.KindIO, err, "list captured sources")
	}
	var out []string
	for _, e := range entries {
		if name := e.Name(); filepath.Ext(name) == sourceExt {
			out = append(out, name[:len(name)-len(sourceExt)])
		}
	}
	return out, nil
}

func (s *Store) write(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.New(errors.PhaseCache, errors.KindIO).Path(path).Cause(err).Build()
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return errors.New(errors.PhaseCache, errors.KindIO).Path(path).Cause(err).Build()
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errors.New(errors.PhaseCache, errors.KindIO).Path(path).Cause(err).Build()
	}
	Logger().Debug("shader cache write", zap.String("path", path), zap.Int("bytes", len(b)))
	return nil
}
