package loader

import (
	"context"

	soruntime "github.com/wippyai/so-runtime"
	"github.com/wippyai/so-runtime/hostcall"
	"github.com/wippyai/so-runtime/symtab"
)

// Loader maps, links and initializes foreign modules. Every method except
// LookupExportedSymbol reports failure as an error the orchestrator treats
// as fatal.
type Loader interface {
	// Load reads and validates the image at m.Path for placement at m.Base.
	Load(ctx context.Context, m *Module) error
	// Relocate applies the image's relocation records for m.Base.
	Relocate(ctx context.Context, m *Module) error
	// ResolveImports binds every unresolved reference against table.
	ResolveImports(ctx context.Context, m *Module, table *symtab.Table) error
	// FlushInstructionCache makes freshly written code visible for execution.
	FlushInstructionCache(ctx context.Context, m *Module) error
	// RunInitializers runs the module's static constructors.
	RunInitializers(ctx context.Context, m *Module) error
	// LookupExportedSymbol returns the address of an exported symbol, or 0.
	LookupExportedSymbol(ctx context.Context, m *Module, name string) uint32
	// PatchAddress makes every call to addr land on replacement.
	PatchAddress(ctx context.Context, addr, replacement uint32) error
	// Close releases everything the loader holds.
	Close(ctx context.Context) error
}

// SpaceProvider is implemented by loaders that own the foreign address space.
type SpaceProvider interface {
	Space() soruntime.Space
}

// RegistryProvider is implemented by loaders that decide where host
// functions live in the foreign address space.
type RegistryProvider interface {
	Registry() *hostcall.Registry
}

// SignatureProvider is implemented by loaders that know the type of an
// exported function, in the host call signature notation.
type SignatureProvider interface {
	ExportSignature(m *Module, name string) (string, bool)
}
