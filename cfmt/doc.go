// Package cfmt implements C printf-family formatting for foreign callers.
//
// Arguments come from an Args source. VaList reads them from a packed
// argument area in foreign memory, laid out the way wasm32 C compilers pass
// variadic arguments: each value at its natural alignment, 32-bit ints and
// pointers in 4 bytes, 64-bit ints and doubles in 8.
package cfmt
