package graph

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// ---------------------------------------------------------------------------
// Codec
// ---------------------------------------------------------------------------

// Codec serializes record keys and values for the wire. Encode of a zero
// payload and Decode of nil bytes must round-trip: nil bytes decode to the
// zero value, so a record published with a null value stays readable.
type Codec[T any] interface {
	Encode(T) ([]byte, error)
	Decode([]byte) (T, error)
}

// ---------------------------------------------------------------------------
// Scalar codecs
// ---------------------------------------------------------------------------

// LongCodec writes int64 as 8 big-endian bytes, wire-compatible with the
// stock long serializer of the log system.
type LongCodec struct{}

func (LongCodec) Encode(v int64) ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b, nil
}

func (LongCodec) Decode(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if len(b) != 8 {
		return 0, fmt.Errorf("long codec: want 8 bytes, got %d", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// DoubleCodec writes float64 as 8 big-endian IEEE-754 bytes.
type DoubleCodec struct{}

func (DoubleCodec) Encode(v float64) ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	return b, nil
}

func (DoubleCodec) Decode(b []byte) (float64, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if len(b) != 8 {
		return 0, fmt.Errorf("double codec: want 8 bytes, got %d", len(b))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// StringCodec passes UTF-8 bytes through unchanged.
type StringCodec struct{}

func (StringCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }

func (StringCodec) Decode(b []byte) (string, error) { return string(b), nil }

// ---------------------------------------------------------------------------
// Composite codecs
// ---------------------------------------------------------------------------

// EdgeCodec serializes an Edge key as a length-prefixed pair:
// uint32 source length, source bytes, target bytes.
type EdgeCodec[K comparable] struct {
	Key Codec[K]
}

func (c EdgeCodec[K]) Encode(e Edge[K]) ([]byte, error) {
	src, err := c.Key.Encode(e.Source)
	if err != nil {
		return nil, err
	}
	dst, err := c.Key.Encode(e.Target)
	if err != nil {
		return nil, err
	}
	b := make([]byte, 4, 4+len(src)+len(dst))
	binary.BigEndian.PutUint32(b, uint32(len(src)))
	b = append(b, src...)
	b = append(b, dst...)
	return b, nil
}

func (c EdgeCodec[K]) Decode(b []byte) (Edge[K], error) {
	var e Edge[K]
	if len(b) < 4 {
		return e, fmt.Errorf("edge codec: short key (%d bytes)", len(b))
	}
	n := int(binary.BigEndian.Uint32(b))
	if len(b) < 4+n {
		return e, fmt.Errorf("edge codec: source length %d exceeds key", n)
	}
	src, err := c.Key.Decode(b[4 : 4+n])
	if err != nil {
		return e, err
	}
	dst, err := c.Key.Decode(b[4+n:])
	if err != nil {
		return e, err
	}
	e.Source = src
	e.Target = dst
	return e, nil
}

// AdjacencyCodec serializes the grouped-edges value as a JSON object keyed by
// the target's textual form. Only key types JSON supports (integers, strings)
// are usable here, which covers the graphs this loader ingests.
type AdjacencyCodec[K comparable, EV any] struct{}

func (AdjacencyCodec[K, EV]) Encode(a Adjacency[K, EV]) ([]byte, error) {
	return json.Marshal(a)
}

func (AdjacencyCodec[K, EV]) Decode(b []byte) (Adjacency[K, EV], error) {
	if len(b) == 0 {
		return nil, nil
	}
	var a Adjacency[K, EV]
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, err
	}
	return a, nil
}
