// Package protocol owns the receiver wire contract and parsing primitives.
//
// Ownership boundary:
// - frame header packing/unpacking
// - control-item and data-item message construction
// - bit-packed IQ sample extraction
//
// The package is stateless and performs no I/O.
package protocol
