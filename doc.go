// Package soruntime runs a foreign shared-library game module on a host it was
// never built for, by standing up the environment the module expects.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	soruntime/           Root package with core Memory, Allocator and Space interfaces
//	├── runtime/         Module load orchestration, configuration, watchdog
//	├── loader/          Loader contract and loaded-module records
//	├── engine/          wazero-backed loader for wasm-compiled foreign modules
//	├── memory/          Paged 32-bit address space and C string helpers
//	├── hostcall/        Host function registry addressed by foreign pointers
//	├── symtab/          Symbol resolution table and dynamic lookup shims
//	├── threading/       Threading shim over foreign synchronization words
//	├── jni/             Callback-interface emulator (fake VM and environment)
//	├── vfs/             Path virtualizer and file shims
//	├── shadercache/     Shader interception and binary cache
//	├── libc/            C library shims (memory, strings, stdio, math, logging)
//	├── cfmt/            C printf-family formatting
//	├── resource/        Handle table for host-side objects
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
//	eng, err := engine.New(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	cfg := runtime.DefaultConfig().
//		WithRoot("/srv/vita").
//		WithLayout(engine.DefaultLoadAddress, engine.DefaultModuleStride)
//	rt, err := runtime.New(cfg, eng)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//	if err := rt.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Address Space
//
// Foreign modules address memory through 32-bit pointers. Any implementation of
// Space can host them: memory.Paged is a sparse host-side space, and engine
// wraps a wazero linear memory.
//
// Host functions exposed to the foreign module live at addresses handed out by
// hostcall.Registry, so function-pointer tables written into foreign memory can
// be dereferenced and invoked from either side.
package soruntime
