// Package memory provides a host-side 32-bit address space for foreign modules.
//
// Paged is a sparse set of 64 KiB pages. Only regions declared through Map
// (plus the heap window) are addressable; any access outside them fails with
// an out-of-bounds error. Pages are allocated on first write and read back as
// zeros until then.
//
//	space := memory.NewPaged(memory.Config{
//		HeapBase:  0x10000000,
//		HeapLimit: 0x80000000,
//	})
//	ptr, err := space.Alloc(64, 8)
//
// The helpers in this package (ReadCString, WriteCString, AllocCString,
// ReadBytes) work with any soruntime.Memory.
package memory
