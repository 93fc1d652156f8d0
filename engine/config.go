package engine

const (
	// DefaultLoadAddress is the first module base that fits the engine's
	// layout.
	DefaultLoadAddress uint32 = 0x00400000
	// DefaultModuleStride separates consecutive module bases.
	DefaultModuleStride uint32 = 0x00800000

	pageSize = 1 << 16
)

// Config describes the core module's layout.
type Config struct {
	// MemoryLimitPages caps linear memory. The whole capacity is reserved up
	// front so that growth never moves memory under a running thread.
	MemoryLimitPages uint32
	// InitialPages is the memory size at creation.
	InitialPages uint32

	// StackBase and StackSize place the main thread's stack.
	StackBase uint32
	StackSize uint32
	// ThreadStackSize is allocated from the heap for every other thread.
	ThreadStackSize uint32

	// ModuleFloor and HeapBase bound the region module images may occupy.
	ModuleFloor uint32
	HeapBase    uint32

	// TableSize is the fixed size of the function table; slots from
	// HostTableBase up belong to host functions.
	TableSize     uint32
	HostTableBase uint32
}

// DefaultConfig returns a layout with 512 MiB of addressable memory.
func DefaultConfig() Config {
	return Config{
		MemoryLimitPages: 8192,
		InitialPages:     32,
		StackBase:        0x00010000,
		StackSize:        1 << 20,
		ThreadStackSize:  256 << 10,
		ModuleFloor:      DefaultLoadAddress,
		HeapBase:         0x08000000,
		TableSize:        1 << 16,
		HostTableBase:    1 << 15,
	}
}

// WithMemoryLimit returns cfg with the memory cap set to pages.
func (c Config) WithMemoryLimit(pages uint32) Config {
	c.MemoryLimitPages = pages
	return c
}

// WithThreadStackSize returns cfg with a different per-thread stack size.
func (c Config) WithThreadStackSize(size uint32) Config {
	c.ThreadStackSize = size
	return c
}

// WithTable returns cfg with a different table split.
func (c Config) WithTable(size, hostBase uint32) Config {
	c.TableSize = size
	c.HostTableBase = hostBase
	return c
}

func (c Config) memoryLimit() uint64 {
	return uint64(c.MemoryLimitPages) * pageSize
}

func (c Config) stackTop() uint32 {
	return c.StackBase + c.StackSize
}
