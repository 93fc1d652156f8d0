// Package vfs rewrites foreign path conventions onto the host filesystem and
// provides the file-level libc surface of the foreign module.
//
// Paths flow through two steps. The Virtualizer turns a foreign path into a
// virtual one: a path already on the root volume passes through unchanged,
// anything else is prefixed with the data root, and an empty fopen path
// selects the next archive in a fixed list. Volumes then map the volume
// marker of a virtual path onto a host directory.
//
//	ux0:data/fahrenheit/save.dat  ->  <host>/data/fahrenheit/save.dat
//
// FILE streams and descriptors are kept in resource tables; a FILE* is a
// small block allocated in the foreign address space whose address keys the
// stream. stat results are copied field by field into the foreign
// struct stat layout (stat.go).
package vfs
