// Package runtime stands up the host environment a foreign game module
// expects and drives a loader.Loader through the module sequence.
//
// New registers the C library, file, threading, callback-interface and shader
// shims into one symbol table. Run then:
//
//  1. checks that every installation marker exists
//  2. loads, relocates and resolves each dependent module, flushes it and
//     runs its initializers
//  3. does the same for the primary module, patching the configured throw
//     entry points to a fatal fault between resolve and flush
//  4. builds the fake VM and environment objects
//  5. calls the primary module's entry point with the VM object
//
// Any failure in steps 1 to 3 is fatal: it is shown through the Presenter
// and returned. A Watchdog polling a Trigger can force a fatal fault at any
// time.
//
// # Quick Start
//
//	eng, err := engine.New(ctx)
//	if err != nil {
//		return err
//	}
//	cfg := runtime.DefaultConfig().
//		WithRoot("/srv/vita").
//		WithLayout(engine.DefaultLoadAddress, engine.DefaultModuleStride)
//	rt, err := runtime.New(cfg, eng)
//	if err != nil {
//		return err
//	}
//	defer rt.Close(ctx)
//	return rt.Run(ctx)
package runtime
