// Package libc implements the Bionic C library surface the foreign module
// links against: allocation, memory and string routines, ctype tables, math
// pass-throughs, formatted output, Android logging and the C++ runtime ABI.
//
// Functions follow the host call convention of package hostcall: arguments
// arrive on the stack, doubles and floats as IEEE bits, and variadic
// functions receive a pointer to their packed arguments as the last
// parameter. Routines that dereference a bad pointer fault the calling
// thread rather than returning.
package libc
