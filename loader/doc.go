// Package loader defines the contract between the load orchestrator and the
// backend that maps foreign module images, plus the per-module record the
// two share.
//
// A backend implements Loader. It may additionally implement SpaceProvider
// when the foreign modules live in an address space the backend owns, and
// RegistryProvider when host function addresses must fall inside a window
// the backend dictates.
package loader
