package loader

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// State tracks how far a module has progressed through loading.
type State uint8

const (
	StateNew State = iota
	StateLoaded
	StateRelocated
	StateResolved
	StateInitialized
)

var stateNames = [...]string{"new", "loaded", "relocated", "resolved", "initialized"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", s)
}

// Module is one foreign module image placed at Base.
type Module struct {
	// Image holds backend-private state for the loaded image.
	Image any

	exports map[string]uint32

	Name string
	Path string
	Base uint32
	// Size is the extent reserved at Base, when the backend knows it.
	Size  uint32
	State State

	mu sync.Mutex
}

// NewModule creates a record for the image at path placed at base.
func NewModule(name, path string, base uint32) *Module {
	return &Module{
		Name:    name,
		Path:    path,
		Base:    base,
		exports: make(map[string]uint32),
	}
}

// Advance moves the module to s and logs the transition.
func (m *Module) Advance(s State) {
	m.mu.Lock()
	m.State = s
	m.mu.Unlock()
	Logger().Debug("module state",
		zap.String("module", m.Name),
		zap.String("state", s.String()),
		zap.String("base", fmt.Sprintf("0x%08x", m.Base)))
}

// Export returns a previously resolved exported symbol address.
func (m *Module) Export(name string) (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr, ok := m.exports[name]
	return addr, ok
}

// SetExport remembers the address resolved for an exported symbol.
func (m *Module) SetExport(name string, addr uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.exports == nil {
		m.exports = make(map[string]uint32)
	}
	m.exports[name] = addr
}

// Contains reports whether addr lies in the module's reserved extent.
func (m *Module) Contains(addr uint32) bool {
	return m.Size != 0 && addr >= m.Base && uint64(addr) < uint64(m.Base)+uint64(m.Size)
}

func (m *Module) String() string {
	return fmt.Sprintf("%s@0x%08x", m.Name, m.Base)
}
