// Package shadercache intercepts shader source submission and serves
// precompiled binaries from a content-addressed store.
//
// Every glShaderSource call is digested (SHA-1 of the concatenated source
// strings). If <root>/gxp/<digest>.gxp exists the binary goes to the Driver
// and the following glCompileShader is a no-op. Otherwise the source is
// captured to <root>/glsl/<digest>.glsl for offline compilation and the
// source path runs as usual. An optional Precompiler turns a captured source
// into a binary right away so later submissions hit.
//
// Digests render as five little-endian 32-bit words, so file names match
// caches produced by earlier loaders.
package shadercache
