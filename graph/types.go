package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Core types
// ---------------------------------------------------------------------------

// Edge identifies a directed edge by its endpoints. It is the record key of
// the raw edge topic, so two edges are the same record iff both endpoints
// match.
type Edge[K comparable] struct {
	Source K
	Target K
}

// Adjacency holds the current outgoing edges of one source vertex, keyed by
// target. Re-observing a target overwrites its value, matching the compacted
// table the map is derived from.
type Adjacency[K comparable, EV any] map[K]EV

// ---------------------------------------------------------------------------
// Text ingestion
// ---------------------------------------------------------------------------

// VertexLine is a parsed `<key> [value]` input line. HasValue is false when
// the value token was absent; such records are published with a nil value.
type VertexLine struct {
	Key      string
	Value    string
	HasValue bool
}

// EdgeLine is a parsed `<source> <target> [value]` input line.
type EdgeLine struct {
	Source   string
	Target   string
	Value    string
	HasValue bool
}

func ParseVertexLine(line string) (VertexLine, error) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return VertexLine{}, fmt.Errorf("empty vertex line")
	}
	v := VertexLine{Key: tokens[0]}
	if len(tokens) > 1 {
		v.Value = tokens[1]
		v.HasValue = true
	}
	return v, nil
}

func ParseEdgeLine(line string) (EdgeLine, error) {
	tokens := strings.Fields(line)
	if len(tokens) < 2 {
		return EdgeLine{}, fmt.Errorf("edge line %q: need source and target", line)
	}
	e := EdgeLine{Source: tokens[0], Target: tokens[1]}
	if len(tokens) > 2 {
		e.Value = tokens[2]
		e.HasValue = true
	}
	return e, nil
}

// ---------------------------------------------------------------------------
// Token parsers
// ---------------------------------------------------------------------------

func ParseLong(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad long %q: %w", s, err)
	}
	return v, nil
}

func ParseDouble(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad double %q: %w", s, err)
	}
	return v, nil
}
