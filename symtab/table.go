package symtab

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"go.uber.org/zap"

	"github.com/wippyai/so-runtime/hostcall"
)

// Kind distinguishes function from data symbols.
type Kind uint8

const (
	KindFunc Kind = iota
	KindData
)

func (k Kind) String() string {
	if k == KindData {
		return "data"
	}
	return "func"
}

// Entry is one name to address binding.
type Entry struct {
	Name string
	// Sig is the host function signature; empty for data.
	Sig      string
	Addr     uint32
	Kind     Kind
	Variadic bool
}

// Table is the immutable symbol resolution table.
type Table struct {
	index   map[string]int
	missed  map[string]int
	used    *roaring.Bitmap
	entries []Entry
	dups    []string
	mu      sync.Mutex
}

// Lookup returns the first entry registered under name.
func (t *Table) Lookup(name string) (Entry, bool) {
	idx, ok := t.index[name]

	t.mu.Lock()
	if ok {
		t.used.Add(uint32(idx))
	} else {
		t.missed[name]++
	}
	t.mu.Unlock()

	if !ok {
		return Entry{}, false
	}
	return t.entries[idx], true
}

// Resolve returns the address bound to name, or 0.
func (t *Table) Resolve(name string) uint32 {
	e, ok := t.Lookup(name)
	if !ok {
		return 0
	}
	return e.Addr
}

// Entries returns the entries in registration order, duplicates included.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// Duplicates returns names registered more than once.
func (t *Table) Duplicates() []string {
	return append([]string(nil), t.dups...)
}

// Report summarizes which entries were resolved and which names were missed.
type Report struct {
	Unused []string
	Missed []string
	Total  int
	Used   int
}

// Report returns the usage summary collected since Build.
func (t *Table) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	r := Report{
		Total: len(t.index),
		Used:  int(t.used.GetCardinality()),
	}
	for name, idx := range t.index {
		if !t.used.Contains(uint32(idx)) {
			r.Unused = append(r.Unused, name)
		}
	}
	for name := range t.missed {
		r.Missed = append(r.Missed, name)
	}
	sort.Strings(r.Unused)
	sort.Strings(r.Missed)
	return r
}

// Builder collects entries before Build.
type Builder struct {
	reg     *hostcall.Registry
	table   *Table
	entries []Entry
	built   bool
}

// NewBuilder creates a builder whose functions are registered in reg. The
// dynamic lookup functions are registered first.
func NewBuilder(reg *hostcall.Registry) *Builder {
	b := &Builder{
		reg:   reg,
		table: &Table{},
	}
	registerDynamic(b, b.table)
	return b
}

// Registry returns the host function registry backing the builder.
func (b *Builder) Registry() *hostcall.Registry {
	return b.reg
}

// Func registers a host function under name and returns its address.
func (b *Builder) Func(name, sig string, fn hostcall.Func) uint32 {
	addr := b.reg.Register(name, sig, fn)
	b.add(Entry{Name: name, Sig: sig, Addr: addr, Kind: KindFunc})
	return addr
}

// Variadic registers a host function whose last parameter is a pointer to
// the caller's packed variadic arguments.
func (b *Builder) Variadic(name, sig string, fn hostcall.Func) uint32 {
	addr := b.reg.Register(name, sig, fn)
	b.add(Entry{Name: name, Sig: sig, Addr: addr, Kind: KindFunc, Variadic: true})
	return addr
}

// Data registers a data symbol at addr.
func (b *Builder) Data(name string, addr uint32) {
	b.add(Entry{Name: name, Addr: addr, Kind: KindData})
}

// Alias registers name with the binding of an already registered target.
// It reports false if target is unknown.
func (b *Builder) Alias(name, target string) bool {
	for _, e := range b.entries {
		if e.Name == target {
			e.Name = name
			b.add(e)
			return true
		}
	}
	Logger().Warn("alias target not registered", zap.String("alias", name), zap.String("target", target))
	return false
}

func (b *Builder) add(e Entry) {
	if b.built {
		panic("symtab: registration after Build")
	}
	b.entries = append(b.entries, e)
}

// Build freezes the collected entries into the table.
func (b *Builder) Build() *Table {
	t := b.table
	t.entries = b.entries
	t.index = make(map[string]int, len(b.entries))
	t.missed = make(map[string]int)
	t.used = roaring.New()
	for i, e := range b.entries {
		if _, exists := t.index[e.Name]; exists {
			t.dups = append(t.dups, e.Name)
			Logger().Debug("duplicate symbol shadowed", zap.String("name", e.Name))
			continue
		}
		t.index[e.Name] = i
	}
	b.built = true
	Logger().Debug("symbol table built",
		zap.Int("entries", len(t.entries)),
		zap.Int("duplicates", len(t.dups)))
	return t
}
