// Package jni fabricates the embedding runtime a foreign Android module
// expects to be hosted by.
//
// The module receives two pseudo-objects: a VM handle and an environment.
// Both are fixed-size byte buffers in the foreign address space whose first
// word points at the buffer itself and whose slots at ABI-defined offsets
// hold host function addresses. Unused slots keep the filler byte. All
// offset arithmetic lives in layout.go.
//
// Method and field lookups map names to small integer ids (ids.go). Calls and
// field reads on those ids consult one dispatch table (dispatch.go); any id or
// return type without an entry yields the zero value of its type.
//
//	emu := jni.New(jni.DefaultDevice(), "ux0:data/fahrenheit")
//	emu.Register(builder)           // Android_JNI_GetEnv and friends
//	objs, err := emu.Build(space, registry)
//	// pass objs.VM to the module's entry point
package jni
