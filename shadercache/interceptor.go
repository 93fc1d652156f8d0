package shadercache

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Outcome reports how a submission was served.
type Outcome uint8

const (
	// Miss: the source was captured and passed to the driver.
	Miss Outcome = iota
	// Hit: a cached binary was submitted.
	Hit
)

func (o Outcome) String() string {
	if o == Hit {
		return "hit"
	}
	return "miss"
}

// Stats counts submissions.
type Stats struct {
	Hits     uint64
	Misses   uint64
	Captured uint64
	Failures uint64
}

// Interceptor redirects shader submission through a Store.
// It is safe for concurrent use.
type Interceptor struct {
	store  *Store
	driver Driver
	pre    Precompiler
	binary map[uint32]bool
	stats  struct{ hits, misses, captured, failures atomic.Uint64 }
	mu     sync.Mutex
}

// NewInterceptor creates an interceptor. pre may be nil.
func NewInterceptor(store *Store, driver Driver, pre Precompiler) *Interceptor {
	if driver == nil {
		driver = NopDriver{}
	}
	return &Interceptor{
		store:  store,
		driver: driver,
		pre:    pre,
		binary: make(map[uint32]bool),
	}
}

// Store returns the backing store.
func (i *Interceptor) Store() *Store {
	return i.store
}

// Stats returns submission counters.
func (i *Interceptor) Stats() Stats {
	return Stats{
		Hits:     i.stats.hits.Load(),
		Misses:   i.stats.misses.Load(),
		Captured: i.stats.captured.Load(),
		Failures: i.stats.failures.Load(),
	}
}

// Submit handles a shader source submission for shader.
func (i *Interceptor) Submit(ctx context.Context, shader uint32, src []byte) (Outcome, Digest, error) {
	d := Sum(src)
	log := Logger().With(zap.Uint32("shader", shader), zap.Stringer("digest", d))

	bin, ok, err := i.store.Binary(d)
	if err != nil {
		log.Warn("shader binary unreadable", zap.Error(err))
	}
	if ok {
		if err := i.driver.ShaderBinary(ctx, shader, bin); err != nil {
			i.stats.failures.Add(1)
			return Hit, d, err
		}
		i.setBinary(shader, true)
		i.stats.hits.Add(1)
		log.Debug("shader served from cache", zap.Int("bytes", len(bin)))
		return Hit, d, nil
	}

	i.stats.misses.Add(1)
	if err := i.store.SaveSource(d, src); err != nil {
		log.Warn("shader source not captured", zap.Error(err))
	} else {
		i.stats.captured.Add(1)
	}
	if i.pre != nil {
		if bin, err := i.pre.Compile(ctx, src); err != nil {
			log.Warn("precompile failed", zap.Error(err))
		} else if err := i.store.PutBinary(d, bin); err != nil {
			log.Warn("precompiled binary not stored", zap.Error(err))
		}
	}
	i.setBinary(shader, false)
	log.Debug("shader cache miss", zap.Int("bytes", len(src)))
	if err := i.driver.ShaderSource(ctx, shader, src); err != nil {
		i.stats.failures.Add(1)
		return Miss, d, err
	}
	return Miss, d, nil
}

// Compile handles glCompileShader. Shaders served from a binary need no
// compilation.
func (i *Interceptor) Compile(ctx context.Context, shader uint32) error {
	i.mu.Lock()
	bin := i.binary[shader]
	i.mu.Unlock()
	if bin {
		return nil
	}
	if err := i.driver.CompileShader(ctx, shader); err != nil {
		i.stats.failures.Add(1)
		Logger().Warn("shader compile failed", zap.Uint32("shader", shader), zap.Error(err))
		return err
	}
	return nil
}

func (i *Interceptor) setBinary(shader uint32, v bool) {
	i.mu.Lock()
	i.binary[shader] = v
	i.mu.Unlock()
}
