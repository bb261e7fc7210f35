// Package nodes provides ready-made node kinds for nodeflow graphs.
//
// Every constructor returns a node with its ports already declared. Port ids
// are assigned in declaration order, so single-input kinds use port 0 for
// their input and port 1 for their output; sources without inputs use
// port 0 for their output.
//
// Catalog maps model names to factories for building nodes from
// configuration.
package nodes
