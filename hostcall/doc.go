// Package hostcall gives host functions addresses in the foreign address space.
//
// Foreign code calls through function pointers: it stores them in tables,
// passes them as callbacks and reads them back out of structures the host
// built. The Registry assigns each host Func an address in a reserved window
// (Base upward, Stride apart) so such pointers can be produced, compared and
// dereferenced from either side.
//
// Host functions follow the wazero stack convention: parameters arrive in
// stack, results are written back starting at stack[0]. Signatures use the
// Emscripten letters: v void, i i32, j i64, f f32, d f64; the first letter is
// the result.
//
// Calls to addresses outside the window go to the installed GuestCaller.
package hostcall
