// Package types defines the canonical task model, the partitioned store
// document, the intermediate vault record shape, and the standard errors
// shared by the vault sync engine.
package types
