// Package wasmbin reads and writes the parts of the WebAssembly binary format
// the engine needs: section walking, import renaming, dynamic-linking
// metadata and small synthetic modules.
package wasmbin
