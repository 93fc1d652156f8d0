// Package symtab builds the symbol resolution table consulted when binding a
// foreign module's imports and when the module looks symbols up at runtime.
//
// A Builder collects entries in registration order. Shim packages register
// host functions through it; each function gets an address from the shared
// hostcall.Registry.
//
//	b := symtab.NewBuilder(registry)
//	b.Func("strlen", "ii", strlen)
//	b.Variadic("printf", "iii", printf)
//	b.Data("__stack_chk_guard", guardAddr)
//	b.Alias("__aeabi_memcpy", "memcpy")
//	table := b.Build()
//
// The first registration of a name wins; later ones are recorded and reported
// by Duplicates. The table is immutable after Build.
//
// Build also backs the dynamic lookup functions (dlopen, dlsym, dlclose,
// dlerror) registered by NewBuilder, so a name resolves to the same address
// whether it is bound at load time or looked up by the module itself.
package symtab
