// Package resource manages host-side objects referenced by foreign code.
//
// Foreign code only ever sees 32-bit values. When the host materializes a
// mutex, a condition variable, an open file or a thread on its behalf, the
// object lives in a handle table and the foreign module holds the handle.
//
// # Handle Table
//
// The Table maps handles to Go values. Each table owns a window of handle
// values starting after its base, so handles of different tables never
// collide and a stray integer is unlikely to be mistaken for a handle:
//
//	table := resource.NewTable(0xE0000000)
//
//	// Insert a value, get a handle
//	handle := table.Insert(resource.KindMutex, m)
//
//	// Type-checked retrieval
//	value, ok := table.GetTyped(handle, resource.KindMutex) // ok
//	value, ok := table.GetTyped(handle, resource.KindFile)  // !ok
//
//	// Remove and get value
//	value, ok := table.Remove(handle)
//
// Handle 0 is never issued. Freed handles are reused.
//
// # Typed Access
//
// Typed wraps a table for a single kind:
//
//	files := resource.NewTyped[*os.File](table, resource.KindFile)
//	h := files.Insert(f)
//	f, ok := files.Get(h)
//
// # Observers
//
// Register observers to track object lifecycle events:
//
//	table.Subscribe(resource.ObserverFunc(func(e resource.Event) {
//	    log.Printf("%s %d %v", e.Kind, e.Handle, e.Type)
//	}))
//
// # Memory Management
//
// Objects are not garbage collected. The shim that created an object calls
// Remove when the foreign module destroys it. Values implementing Dropper are
// notified on Remove and on Close.
package resource
