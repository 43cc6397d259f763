package graph

import (
	"verimap/internal/extractor"
	"verimap/internal/symbols"
)

// Location classifies where inside its caller a call occurs.
type Location string

const (
	LocationPrecondition  Location = "precondition"
	LocationPostcondition Location = "postcondition"
	LocationBody          Location = "body"
)

// Node is one project-internal function definition.
type Node struct {
	Atom        symbols.Atom
	DisplayName string
	File        string
	Module      string
	StartLine   int
	EndLine     int
	Mode        string
	// Approximate is set when no source entity matched the definition and
	// the span is the indexer's definition line only.
	Approximate bool
	Entity      *extractor.FunctionEntity
}

// Edge is a call from an internal definition to an atom or an external
// reference.
type Edge struct {
	From     symbols.Atom
	To       symbols.Atom
	External bool
	Location Location
	Line     int
}

// Stats summarizes a built graph.
type Stats struct {
	Nodes         int
	Approximate   int
	Edges         int
	ExternalEdges int
	ByLocation    map[Location]int
}
