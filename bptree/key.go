package bptree

import (
	"bytes"
	"encoding/binary"
)

// KeyCodec encodes and decodes a fixed-width key type to and from a node
// page's byte slots. EncodedSize is fixed for the lifetime of a tree
// instantiation.
type KeyCodec[K any] interface {
	EncodedSize() int
	Encode(k K, dst []byte)
	Decode(src []byte) K
}

// Comparator returns negative/zero/positive for a<b, a==b, a>b.
type Comparator[K any] func(a, b K) int

// Int32Codec encodes int32 keys in 4 bytes, little-endian.
type Int32Codec struct{}

func (Int32Codec) EncodedSize() int            { return 4 }
func (Int32Codec) Encode(k int32, dst []byte)  { binary.LittleEndian.PutUint32(dst, uint32(k)) }
func (Int32Codec) Decode(src []byte) int32     { return int32(binary.LittleEndian.Uint32(src)) }

// CompareInt32 is the natural ordering on int32 keys.
func CompareInt32(a, b int32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Int64Codec encodes int64 keys in 8 bytes, little-endian.
type Int64Codec struct{}

func (Int64Codec) EncodedSize() int           { return 8 }
func (Int64Codec) Encode(k int64, dst []byte) { binary.LittleEndian.PutUint64(dst, uint64(k)) }
func (Int64Codec) Decode(src []byte) int64    { return int64(binary.LittleEndian.Uint64(src)) }

// CompareInt64 is the natural ordering on int64 keys.
func CompareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// FixedBytesCodec encodes []byte keys of a fixed, instantiation-time
// width (e.g. 16-byte UUIDs, 32-byte hash digests). Keys shorter than
// Width are zero-padded on encode; Decode always returns Width bytes.
type FixedBytesCodec struct {
	Width int
}

func (c FixedBytesCodec) EncodedSize() int { return c.Width }

func (c FixedBytesCodec) Encode(k []byte, dst []byte) {
	for i := range dst[:c.Width] {
		dst[i] = 0
	}
	copy(dst, k)
}

func (c FixedBytesCodec) Decode(src []byte) []byte {
	out := make([]byte, c.Width)
	copy(out, src[:c.Width])
	return out
}

// CompareBytes is the natural lexicographic ordering for FixedBytesCodec
// keys.
func CompareBytes(a, b []byte) int {
	return bytes.Compare(a, b)
}
