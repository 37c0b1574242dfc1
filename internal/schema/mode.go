package schema

import (
	"fmt"
	"strings"
)

// ConnectionMode is the pagination style of connection types.
type ConnectionMode string

const (
	// ModeAuto detects the mode from the schema.
	ModeAuto ConnectionMode = "auto"
	// ModeNodes wraps collections as { nodes { ... } }.
	ModeNodes ConnectionMode = "nodes"
	// ModeEdges wraps collections as { edges { node { ... } } }.
	ModeEdges ConnectionMode = "edges"
	// ModePlain returns collections as bare lists.
	ModePlain ConnectionMode = "plain"
)

// ParseConnectionMode parses a configured mode. The empty string means auto.
func ParseConnectionMode(s string) (ConnectionMode, error) {
	switch ConnectionMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeNodes:
		return ModeNodes, nil
	case ModeEdges:
		return ModeEdges, nil
	case ModePlain, "list":
		return ModePlain, nil
	default:
		return "", fmt.Errorf("unknown connection mode %q (expected auto, nodes, edges or plain)", s)
	}
}
