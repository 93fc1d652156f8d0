// Package engine loads foreign modules compiled to wasm32 side modules and
// runs them on wazero.
//
// # Layout
//
// A single core module owns the shared state every foreign module links
// against:
//
//	memory                      linear memory, the foreign address space
//	__indirect_function_table   funcref table, the function pointer space
//	__stack_pointer             shadow stack pointer of the running thread
//
// The table is split in two. Slots below Config.HostTableBase hold guest
// functions, each module receiving a contiguous range at its __table_base.
// Slots from HostTableBase up hold host functions: the engine's registry
// uses a stride of one, so a host function's address is its table slot and
// a function pointer handed to guest code can be called with call_indirect.
//
// # Linking
//
// Relocate renames the env, GOT.mem and GOT.func import modules of each
// image to per-module namespaces. ResolveImports then instantiates:
//
//	env:<module>$host   host functions bound to symbol table addresses
//	env:<module>        re-exports plus memory, table and base globals
//	GOT.mem:<module>    data symbol addresses
//	GOT.func:<module>   function pointer slots
//
// Symbols missing from the symbol table are looked up in the exports of
// modules loaded earlier.
//
// # Threads
//
// wazero executes one guest call stack per goroutine, and every guest
// thread shares the core's __stack_pointer. The engine therefore runs guest
// code under a global lock and swaps the stack pointer when a different
// thread takes it. Host functions run with the lock released, so a guest
// thread blocked in a mutex or condition variable shim lets the others run.
package engine
