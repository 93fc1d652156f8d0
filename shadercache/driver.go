package shadercache

import "context"

// Driver is the host graphics driver shaders are handed to.
type Driver interface {
	ShaderSource(ctx context.Context, shader uint32, src []byte) error
	ShaderBinary(ctx context.Context, shader uint32, binary []byte) error
	CompileShader(ctx context.Context, shader uint32) error
	// GetProcAddress resolves a driver entry point, 0 if unknown.
	GetProcAddress(name string) uint32
}

// Precompiler compiles shader source into a driver binary offline.
type Precompiler interface {
	Compile(ctx context.Context, src []byte) ([]byte, error)
}

// PrecompilerFunc adapts a function to Precompiler.
type PrecompilerFunc func(ctx context.Context, src []byte) ([]byte, error)

func (f PrecompilerFunc) Compile(ctx context.Context, src []byte) ([]byte, error) {
	return f(ctx, src)
}

// NopDriver accepts every call and resolves nothing.
type NopDriver struct{}

func (NopDriver) ShaderSource(context.Context, uint32, []byte) error { return nil }
func (NopDriver) ShaderBinary(context.Context, uint32, []byte) error { return nil }
func (NopDriver) CompileShader(context.Context, uint32) error        { return nil }
func (NopDriver) GetProcAddress(string) uint32                       { return 0 }
